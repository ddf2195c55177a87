package window

import (
	"testing"

	"github.com/switchyard/flow/internal/value"
)

func TestBackWindowEvictsPastElements(t *testing.T) {
	// spec.md §8 scenario 6: a@t=0, b@t=3ms, c@t=10ms through a 5ms back
	// window firing per element should report counts 1, 2, 1.
	storage := NewStorage(Back(5))
	wm := NewWatermark()
	wm.Attach("s")

	sel := NewSelector(ElementTrigger())

	counts := []int{}
	fire := func(et int64) {
		tr := Train{EventTime: eventTime(et)}
		storage.Add(tr)
		wm.Update("s", et)
		for _, batch := range sel.OnArrival(tr) {
			_ = batch
			ready := storage.Ready(wm.Current())
			if len(ready) == 0 {
				counts = append(counts, 0)
				return
			}
			counts = append(counts, len(ready[0].Trains))
		}
	}

	fire(0)
	fire(3)
	fire(10)

	if len(counts) != 3 {
		t.Fatalf("expected 3 firings, got %d: %v", len(counts), counts)
	}
	if counts[0] != 1 {
		t.Fatalf("firing 1: expected count 1, got %d", counts[0])
	}
	if counts[1] != 2 {
		t.Fatalf("firing 2: expected count 2, got %d", counts[1])
	}
	if counts[2] != 1 {
		t.Fatalf("firing 3 (c evicts a,b): expected count 1, got %d", counts[2])
	}
}

func TestBackWindowZeroDurationIsPerElement(t *testing.T) {
	storage := NewStorage(Back(0))
	storage.Add(Train{EventTime: eventTime(0)})
	storage.Add(Train{EventTime: eventTime(0)})
	ready := storage.Ready(0)
	if len(ready) != 1 || len(ready[0].Trains) != 2 {
		t.Fatalf("expected both trains visible at the same instant, got %+v", ready)
	}
}

func TestIntervalWindowFiresAfterAnchorPlusStep(t *testing.T) {
	storage := NewStorage(Interval(10, 0))
	storage.Add(Train{EventTime: eventTime(3)})
	storage.Add(Train{EventTime: eventTime(7)})
	storage.Add(Train{EventTime: eventTime(12)})

	if ready := storage.Ready(9); len(ready) != 0 {
		t.Fatalf("expected no window ready before anchor+step, got %+v", ready)
	}
	ready := storage.Ready(10)
	if len(ready) != 1 || len(ready[0].Trains) != 2 {
		t.Fatalf("expected first bucket [0,10) with 2 trains ready, got %+v", ready)
	}
}

func TestCountTrigger(t *testing.T) {
	sel := NewSelector(CountTrigger(3))
	var fires int
	for i := 0; i < 7; i++ {
		if batches := sel.OnArrival(Train{ID: uint64(i)}); len(batches) > 0 {
			fires++
			if len(batches[0]) != 3 {
				t.Fatalf("expected batch of 3, got %d", len(batches[0]))
			}
		}
	}
	if fires != 2 {
		t.Fatalf("expected 2 firings over 7 elements with n=3, got %d", fires)
	}
}

func eventTime(ms int64) value.Time { return value.Time{Ms: ms} }

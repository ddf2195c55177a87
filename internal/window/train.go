// Package window implements time-windowed buffering and firing (C7):
// watermark tracking, BackWindow/IntervalWindow/NonWindow retention, and
// Element/WindowEnd/Count trigger selection.
package window

import "github.com/switchyard/flow/internal/value"

// Train is a batch of records crossing a station edge. EventTime is the
// max of the individual records' times; Marks is a per-source watermark
// snapshot carried alongside the batch so a downstream station can see
// how far upstream progress had advanced when the batch was produced.
type Train struct {
	Values    []value.Value
	ID        uint64
	EventTime value.Time
	Marks     map[string]value.Time

	// Input tags which declared producer (station.inputs index) this
	// Train arrived from. Single-input stations never set it (zero
	// value, index 0); multi-input stations (Join, Union) use it to
	// route the Train to the right side of the transform.
	Input int
}

func timeLess(a, b value.Time) bool {
	if a.Ms != b.Ms {
		return a.Ms < b.Ms
	}
	return a.Ns < b.Ns
}

func timeMin(a, b value.Time) value.Time {
	if timeLess(b, a) {
		return b
	}
	return a
}

package plan

import "testing"

func TestParseStencilNetworkLine(t *testing.T) {
	text := `1[5s]{sql|SELECT * FROM $0}(i)--2(i)
In
pgcdc{"table":"events"}:1
Out
s3{"bucket":"b"}:2
Transform
$fx:passthrough{}
`
	st, err := ParseStencil(text)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(st.Stations) != 2 {
		t.Fatalf("expected 2 stations, got %d", len(st.Stations))
	}
	s1 := st.Stations[1]
	if s1.WindowRaw != "5s" {
		t.Fatalf("expected window 5s, got %q", s1.WindowRaw)
	}
	if s1.Language != "sql" || s1.Query != "SELECT * FROM $0" {
		t.Fatalf("unexpected transform clause: %+v", s1)
	}
	if s1.LayoutRaw != "i" {
		t.Fatalf("expected layout i, got %q", s1.LayoutRaw)
	}
	if len(st.Edges) != 1 || st.Edges[0].From != 1 || st.Edges[0].To != 2 || st.Edges[0].Blocking {
		t.Fatalf("unexpected edges: %+v", st.Edges)
	}
	if len(st.Sources) != 1 || st.Sources[0].Type != "pgcdc" || st.Sources[0].Options["table"] != "events" {
		t.Fatalf("unexpected sources: %+v", st.Sources)
	}
	if len(st.Destinations) != 1 || st.Destinations[0].Stops[0] != 2 {
		t.Fatalf("unexpected destinations: %+v", st.Destinations)
	}
	if len(st.Transforms) != 1 || st.Transforms[0].Name != "fx" {
		t.Fatalf("unexpected transforms: %+v", st.Transforms)
	}
}

func TestParseStencilBlockingEdge(t *testing.T) {
	st, err := ParseStencil("1-|2--3")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(st.Edges) != 2 {
		t.Fatalf("expected 2 edges, got %d", len(st.Edges))
	}
	if !st.Edges[0].Blocking {
		t.Fatalf("expected first edge blocking")
	}
	if st.Edges[1].Blocking {
		t.Fatalf("expected second edge non-blocking")
	}
}

func TestParseStencilBracketsDoNotSplitOnInternalDashes(t *testing.T) {
	st, err := ParseStencil(`1{sql|SELECT a-b FROM $0}--2`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if st.Stations[1].Query != "SELECT a-b FROM $0" {
		t.Fatalf("unexpected query: %q", st.Stations[1].Query)
	}
	if len(st.Edges) != 1 {
		t.Fatalf("expected 1 edge, got %d", len(st.Edges))
	}
}

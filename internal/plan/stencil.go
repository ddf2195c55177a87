// Package plan implements the plan stencil grammar, graph construction,
// and scheduler (C9 in spec.md §4.8): the line-based network
// description compiles to a DAG of stations wired to external sources
// and destinations, started in the three-phase protocol spec.md §4.8
// describes.
package plan

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// StationSpec is one station as parsed from a network line: a stop
// number plus its optional [window], {language|query}, (layout)
// suffixes, in whatever order the stencil wrote them.
type StationSpec struct {
	Stop        int
	WindowRaw   string // e.g. "5ms" or "5ms@12:00", empty if absent
	Language    string // "sql", "mql", ...
	Query       string // opaque — query parsing is out of scope; a caller-supplied compiler resolves this to an algebra.AlgebraRoot
	LayoutRaw   string // contents of (...), empty if absent
}

// Edge connects two stations; Blocking marks a "-|" edge (spec.md §4.8:
// the target waits for the source before firing).
type Edge struct {
	From, To int
	Blocking bool
}

// AdapterSpec is one In/Out section entry: an adapter type, its
// JSON-decoded options, and the stops it attaches to.
type AdapterSpec struct {
	Type    string
	Options map[string]any
	Stops   []int
}

// TransformSpec is one named reusable algebra declared in a Transform
// section ("$name:Type{json-options}").
type TransformSpec struct {
	Name    string
	Type    string
	Options map[string]any
}

// Stencil is the fully parsed plan: the station graph plus its
// source/destination/transform sections.
type Stencil struct {
	Stations   map[int]*StationSpec
	StopOrder  []int // first-seen order, used as a deterministic default topological hint
	Edges      []Edge
	Sources    []AdapterSpec
	Destinations []AdapterSpec
	Transforms []TransformSpec
}

type section int

const (
	sectionNetwork section = iota
	sectionIn
	sectionOut
	sectionTransform
)

// ParseStencil parses the line-based plan grammar described in spec.md
// §4.8/§6.
func ParseStencil(text string) (*Stencil, error) {
	st := &Stencil{Stations: make(map[int]*StationSpec)}
	sec := sectionNetwork

	for lineNo, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		switch line {
		case "In":
			sec = sectionIn
			continue
		case "Out":
			sec = sectionOut
			continue
		case "Transform":
			sec = sectionTransform
			continue
		}

		var err error
		switch sec {
		case sectionNetwork:
			err = st.parseNetworkLine(line)
		case sectionIn:
			err = st.parseAdapterLine(line, true)
		case sectionOut:
			err = st.parseAdapterLine(line, false)
		case sectionTransform:
			err = st.parseTransformLine(line)
		}
		if err != nil {
			return nil, fmt.Errorf("plan: line %d: %w", lineNo+1, err)
		}
	}
	return st, nil
}

// parseNetworkLine parses a dash-separated chain of station specs, e.g.
// "1--2{sql|SELECT * FROM $0}--3" or "1-|2".
func (st *Stencil) parseNetworkLine(line string) error {
	tokens, seps, err := splitChain(line)
	if err != nil {
		return err
	}
	var prev int
	for i, tok := range tokens {
		spec, err := parseStationToken(tok)
		if err != nil {
			return err
		}
		if _, seen := st.Stations[spec.Stop]; !seen {
			st.StopOrder = append(st.StopOrder, spec.Stop)
		}
		st.Stations[spec.Stop] = mergeStationSpec(st.Stations[spec.Stop], spec)
		if i > 0 {
			st.Edges = append(st.Edges, Edge{From: prev, To: spec.Stop, Blocking: seps[i-1]})
		}
		prev = spec.Stop
	}
	return nil
}

func mergeStationSpec(existing, fresh *StationSpec) *StationSpec {
	if existing == nil {
		return fresh
	}
	if fresh.WindowRaw != "" {
		existing.WindowRaw = fresh.WindowRaw
	}
	if fresh.Query != "" {
		existing.Language, existing.Query = fresh.Language, fresh.Query
	}
	if fresh.LayoutRaw != "" {
		existing.LayoutRaw = fresh.LayoutRaw
	}
	return existing
}

// splitChain splits line on top-level "--"/"-|" separators (top-level
// meaning outside [], {}, () nesting) and reports, per gap, whether the
// separator was blocking ("-|").
func splitChain(line string) (tokens []string, blocking []bool, err error) {
	depth := 0
	start := 0
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '[', '{', '(':
			depth++
		case ']', '}', ')':
			depth--
			if depth < 0 {
				return nil, nil, fmt.Errorf("unbalanced bracket at %d", i)
			}
		}
		if depth == 0 && line[i] == '-' && i+1 < len(line) {
			switch line[i+1] {
			case '-':
				tokens = append(tokens, line[start:i])
				blocking = append(blocking, false)
				start = i + 2
				i++
			case '|':
				tokens = append(tokens, line[start:i])
				blocking = append(blocking, true)
				start = i + 2
				i++
			}
		}
	}
	tokens = append(tokens, line[start:])
	if depth != 0 {
		return nil, nil, fmt.Errorf("unbalanced bracket in %q", line)
	}
	return tokens, blocking, nil
}

// parseStationToken parses one station spec: a stop number followed by
// any of [window], {language|query}, (layout) in any order.
func parseStationToken(tok string) (*StationSpec, error) {
	tok = strings.TrimSpace(tok)
	i := 0
	for i < len(tok) && tok[i] >= '0' && tok[i] <= '9' {
		i++
	}
	if i == 0 {
		return nil, fmt.Errorf("station token %q has no leading stop number", tok)
	}
	stop, err := strconv.Atoi(tok[:i])
	if err != nil {
		return nil, err
	}
	spec := &StationSpec{Stop: stop}

	for i < len(tok) {
		switch tok[i] {
		case '[':
			end := matchBracket(tok, i, '[', ']')
			if end < 0 {
				return nil, fmt.Errorf("station %d: unterminated [window]", stop)
			}
			spec.WindowRaw = tok[i+1 : end]
			i = end + 1
		case '{':
			end := matchBracket(tok, i, '{', '}')
			if end < 0 {
				return nil, fmt.Errorf("station %d: unterminated {transform}", stop)
			}
			body := tok[i+1 : end]
			if lang, q, ok := strings.Cut(body, "|"); ok {
				spec.Language, spec.Query = lang, q
			} else {
				spec.Query = body
			}
			i = end + 1
		case '(':
			end := matchBracket(tok, i, '(', ')')
			if end < 0 {
				return nil, fmt.Errorf("station %d: unterminated (layout)", stop)
			}
			spec.LayoutRaw = tok[i+1 : end]
			i = end + 1
		default:
			return nil, fmt.Errorf("station %d: unexpected character %q", stop, tok[i])
		}
	}
	return spec, nil
}

func matchBracket(s string, open int, o, c byte) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case o:
			depth++
		case c:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// parseAdapterLine parses one In/Out section entry:
// "Type{json-options}:stop1,stop2". The split before ":stop1,stop2" must
// skip past the json-options' own colons, so it is bracket-aware rather
// than a plain strings.Cut on the first ':'.
func (st *Stencil) parseAdapterLine(line string, isSource bool) error {
	typ, opts, rest, err := splitTypeOptionsRest(line)
	if err != nil {
		return err
	}
	stopsStr, ok := strings.CutPrefix(rest, ":")
	if !ok {
		return fmt.Errorf("adapter line %q missing ':stop,stop'", line)
	}
	stops, err := parseStopList(stopsStr)
	if err != nil {
		return err
	}
	spec := AdapterSpec{Type: typ, Options: opts, Stops: stops}
	if isSource {
		st.Sources = append(st.Sources, spec)
	} else {
		st.Destinations = append(st.Destinations, spec)
	}
	return nil
}

// parseTransformLine parses "$name:Type{json-options}".
func (st *Stencil) parseTransformLine(line string) error {
	if !strings.HasPrefix(line, "$") {
		return fmt.Errorf("transform line %q must start with '$'", line)
	}
	name, rest, ok := strings.Cut(line[1:], ":")
	if !ok {
		return fmt.Errorf("transform line %q missing ':Type{options}'", line)
	}
	typ, opts, err := splitTypeOptions(rest)
	if err != nil {
		return err
	}
	st.Transforms = append(st.Transforms, TransformSpec{Name: name, Type: typ, Options: opts})
	return nil
}

func splitTypeOptions(s string) (typ string, opts map[string]any, err error) {
	typ, opts, rest, err := splitTypeOptionsRest(s)
	if err != nil {
		return "", nil, err
	}
	if strings.TrimSpace(rest) != "" {
		return "", nil, fmt.Errorf("unexpected trailing content %q after {options}", rest)
	}
	return typ, opts, nil
}

// splitTypeOptionsRest parses a "Type{json-options}" prefix off s and
// returns whatever follows the closing '}' unconsumed, so callers that
// still need to split a trailing ":stop,stop" list don't have to guess
// where the options object ends — strings.Cut(s, ":") would instead
// stop at the first colon inside the JSON body itself.
func splitTypeOptionsRest(s string) (typ string, opts map[string]any, rest string, err error) {
	s = strings.TrimSpace(s)
	i := strings.IndexByte(s, '{')
	if i < 0 {
		colon := strings.IndexByte(s, ':')
		if colon < 0 {
			return s, nil, "", nil
		}
		return s[:colon], nil, s[colon:], nil
	}
	end := matchBracket(s, i, '{', '}')
	if end < 0 {
		return "", nil, "", fmt.Errorf("unterminated {options} in %q", s)
	}
	typ = s[:i]
	body := s[i : end+1]
	opts = map[string]any{}
	if strings.TrimSpace(body) != "{}" {
		if err := json.Unmarshal([]byte(body), &opts); err != nil {
			return "", nil, "", fmt.Errorf("invalid json options %q: %w", body, err)
		}
	}
	return typ, opts, s[end+1:], nil
}

func parseStopList(s string) ([]int, error) {
	var stops []int
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid stop id %q: %w", p, err)
		}
		stops = append(stops, n)
	}
	return stops, nil
}

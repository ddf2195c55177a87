// Package layout implements the static type schema of streaming rows:
// parsing the mini-grammar, the merge operation used when a station has
// multiple inputs, and the accepts contract enforced between adjacent
// stations before execution starts.
package layout

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/switchyard/flow/internal/value"
)

// Type is the scalar/compound type tag of a Layout.
type Type uint8

const (
	Any Type = iota
	Integer
	Float
	Text
	Boolean
	TimeT
	DateT
	ArrayT
	TupleT
	DictT
	AndT
	OrT
)

// Layout is the static schema of a streaming row or field.
type Layout struct {
	Name     string
	Nullable bool
	Optional bool
	Order    int
	Type     Type

	Element *Layout   // ArrayT
	Length  *int      // ArrayT: fixed length, nil means unconstrained
	Fields  []*Layout // TupleT (positional) / DictT (named via Fields[i].Name)
	Of      []*Layout // AndT / OrT
}

func scalar(t Type) *Layout { return &Layout{Type: t} }

// AnyLayout returns the universal Any layout, which accepts everything.
func AnyLayout() *Layout { return scalar(Any) }

// Parse reads the mini-grammar described in spec.md §4.2:
//
//	i|f|t|b|m|d|* for scalars (int, float, text, bool, moment/time, date, any)
//	[T] for arrays, optional :N length suffix inside the brackets
//	{k1:T1,k2:T2} for dicts
//	suffixes: ? nullable, ' optional
//	(N) trailing suffix also sets an array's length
func Parse(s string) (*Layout, error) {
	p := &parser{s: s}
	l, err := p.parseLayout()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.s) {
		return nil, fmt.Errorf("layout: unexpected trailing input at %d: %q", p.pos, p.s[p.pos:])
	}
	return l, nil
}

type parser struct {
	s   string
	pos int
}

func (p *parser) peek() byte {
	if p.pos >= len(p.s) {
		return 0
	}
	return p.s[p.pos]
}

func (p *parser) parseLayout() (*Layout, error) {
	var l *Layout
	var err error
	switch p.peek() {
	case '[':
		l, err = p.parseArray()
	case '{':
		l, err = p.parseDict()
	case 'i':
		p.pos++
		l = scalar(Integer)
	case 'f':
		p.pos++
		l = scalar(Float)
	case 't':
		p.pos++
		l = scalar(Text)
	case 'b':
		p.pos++
		l = scalar(Boolean)
	case 'm':
		p.pos++
		l = scalar(TimeT)
	case 'd':
		p.pos++
		l = scalar(DateT)
	case '*':
		p.pos++
		l = scalar(Any)
	default:
		return nil, fmt.Errorf("layout: unexpected character at %d: %q", p.pos, p.s[p.pos:])
	}
	if err != nil {
		return nil, err
	}
	p.parseSuffixes(l)
	return l, nil
}

func (p *parser) parseSuffixes(l *Layout) {
	for {
		switch p.peek() {
		case '?':
			l.Nullable = true
			p.pos++
		case '\'':
			l.Optional = true
			p.pos++
		case '(':
			p.pos++
			start := p.pos
			for p.peek() >= '0' && p.peek() <= '9' {
				p.pos++
			}
			n, _ := strconv.Atoi(p.s[start:p.pos])
			if p.peek() == ')' {
				p.pos++
			}
			l.Length = &n
		default:
			return
		}
	}
}

func (p *parser) parseArray() (*Layout, error) {
	p.pos++ // consume '['
	elem, err := p.parseLayout()
	if err != nil {
		return nil, err
	}
	l := &Layout{Type: ArrayT, Element: elem}
	if p.peek() == ':' {
		p.pos++
		start := p.pos
		for p.peek() >= '0' && p.peek() <= '9' {
			p.pos++
		}
		n, _ := strconv.Atoi(p.s[start:p.pos])
		l.Length = &n
	}
	if p.peek() != ']' {
		return nil, fmt.Errorf("layout: expected ']' at %d", p.pos)
	}
	p.pos++
	return l, nil
}

func (p *parser) parseDict() (*Layout, error) {
	p.pos++ // consume '{'
	l := &Layout{Type: DictT}
	for p.peek() != '}' {
		start := p.pos
		for p.peek() != ':' && p.pos < len(p.s) {
			p.pos++
		}
		name := strings.TrimSpace(p.s[start:p.pos])
		if p.peek() != ':' {
			return nil, fmt.Errorf("layout: expected ':' after field name %q", name)
		}
		p.pos++
		field, err := p.parseLayout()
		if err != nil {
			return nil, err
		}
		field.Name = name
		l.Fields = append(l.Fields, field)
		if p.peek() == ',' {
			p.pos++
		}
	}
	p.pos++ // consume '}'
	return l, nil
}

func (l *Layout) String() string {
	if l == nil {
		return "*"
	}
	var b strings.Builder
	switch l.Type {
	case Any:
		b.WriteByte('*')
	case Integer:
		b.WriteByte('i')
	case Float:
		b.WriteByte('f')
	case Text:
		b.WriteByte('t')
	case Boolean:
		b.WriteByte('b')
	case TimeT:
		b.WriteByte('m')
	case DateT:
		b.WriteByte('d')
	case ArrayT:
		b.WriteByte('[')
		b.WriteString(l.Element.String())
		if l.Length != nil {
			fmt.Fprintf(&b, ":%d", *l.Length)
		}
		b.WriteByte(']')
	case TupleT:
		b.WriteByte('(')
		for i, f := range l.Fields {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(f.String())
		}
		b.WriteByte(')')
	case DictT:
		b.WriteByte('{')
		for i, f := range l.Fields {
			if i > 0 {
				b.WriteByte(',')
			}
			fmt.Fprintf(&b, "%s:%s", f.Name, f.String())
		}
		b.WriteByte('}')
	case AndT:
		for i, o := range l.Of {
			if i > 0 {
				b.WriteByte('&')
			}
			b.WriteString(o.String())
		}
	case OrT:
		for i, o := range l.Of {
			if i > 0 {
				b.WriteByte('|')
			}
			b.WriteString(o.String())
		}
	}
	if l.Nullable {
		b.WriteByte('?')
	}
	if l.Optional {
		b.WriteByte('\'')
	}
	return b.String()
}

// fieldByName finds a named field in a DictT layout.
func (l *Layout) fieldByName(name string) *Layout {
	for _, f := range l.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Accepts reports whether every value that fits other also fits l,
// producing a human-readable path to the first mismatch. l is the
// downstream (consuming) station's declared demand; other is the
// producer's output.
func (l *Layout) Accepts(other *Layout) error {
	return l.acceptsAt("$", other)
}

func (l *Layout) acceptsAt(path string, other *Layout) error {
	if l == nil || l.Type == Any {
		return nil
	}
	if other == nil {
		other = scalar(Any)
	}
	if other.Nullable && !l.Nullable {
		return fmt.Errorf("%s: producer allows null but consumer does not", path)
	}
	if other.Optional && !l.Optional {
		return fmt.Errorf("%s: producer allows optional but consumer requires presence", path)
	}
	switch l.Type {
	case AndT:
		for i, t := range l.Of {
			if err := t.acceptsAt(fmt.Sprintf("%s.&%d", path, i), other); err != nil {
				return err
			}
		}
		return nil
	case OrT:
		var firstErr error
		for _, t := range l.Of {
			if err := t.acceptsAt(path, other); err == nil {
				return nil
			} else if firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}
	if other.Type == Any {
		return fmt.Errorf("%s: consumer demands %v but producer is Any", path, l.Type)
	}
	switch l.Type {
	case Integer, Float, Text, Boolean, TimeT, DateT:
		if l.Type != other.Type {
			return fmt.Errorf("%s: type mismatch, consumer wants %v got %v", path, l.Type, other.Type)
		}
		return nil
	case ArrayT:
		if other.Type != ArrayT {
			return fmt.Errorf("%s: type mismatch, consumer wants array got %v", path, other.Type)
		}
		if l.Length != nil {
			if other.Length == nil || *other.Length != *l.Length {
				return fmt.Errorf("%s: array length mismatch", path)
			}
		}
		return l.Element.acceptsAt(path+"[]", other.Element)
	case TupleT:
		if other.Type != TupleT || len(other.Fields) != len(l.Fields) {
			return fmt.Errorf("%s: tuple arity mismatch", path)
		}
		for i, f := range l.Fields {
			if err := f.acceptsAt(fmt.Sprintf("%s.%d", path, i), other.Fields[i]); err != nil {
				return err
			}
		}
		return nil
	case DictT:
		if other.Type != DictT {
			return fmt.Errorf("%s: type mismatch, consumer wants dict got %v", path, other.Type)
		}
		for _, f := range l.Fields {
			of := other.fieldByName(f.Name)
			if of == nil {
				if f.Optional {
					continue
				}
				return fmt.Errorf("%s.%s: missing required field", path, f.Name)
			}
			if err := f.acceptsAt(path+"."+f.Name, of); err != nil {
				return err
			}
		}
		return nil
	}
	return nil
}

// Merge computes the most specific common super-layout of l and other,
// used when a station has multiple inputs. See spec.md §4.2 for the
// absorbing/narrowing rules.
func Merge(l, other *Layout) *Layout {
	if l == nil || l.Type == Any {
		return other
	}
	if other == nil || other.Type == Any {
		return l
	}
	if l.Type == Text || other.Type == Text {
		return scalar(Text)
	}
	if (l.Type == Integer && other.Type == Float) || (l.Type == Float && other.Type == Integer) {
		return scalar(Integer)
	}
	if l.Type == ArrayT && other.Type == ArrayT {
		out := &Layout{Type: ArrayT, Element: Merge(l.Element, other.Element)}
		switch {
		case l.Length != nil && other.Length != nil:
			n := *l.Length
			if *other.Length < n {
				n = *other.Length
			}
			out.Length = &n
		}
		return out
	}
	if l.Type == DictT && other.Type == DictT {
		out := &Layout{Type: DictT}
		seen := map[string]bool{}
		for _, f := range l.Fields {
			out.Fields = append(out.Fields, f)
			seen[f.Name] = true
		}
		for _, f := range other.Fields {
			if !seen[f.Name] {
				out.Fields = append(out.Fields, f)
			}
		}
		return out
	}
	if l.Type == other.Type {
		return l
	}
	// Incompatible scalar kinds merge down to Any, the only layout both
	// sides structurally fit.
	return scalar(Any)
}

// Fits reports whether v matches l's declared shape — used by the
// station loop to decide whether an arriving Train may enter storage.
func (l *Layout) Fits(v value.Value) bool {
	if l == nil || l.Type == Any {
		return true
	}
	u := v.Unwrap()
	if u.IsNull() {
		return l.Nullable
	}
	switch l.Type {
	case AndT:
		for _, t := range l.Of {
			if !t.Fits(v) {
				return false
			}
		}
		return true
	case OrT:
		for _, t := range l.Of {
			if t.Fits(v) {
				return true
			}
		}
		return false
	case Integer:
		return u.Kind() == value.KindInt
	case Float:
		return u.Kind() == value.KindFloat
	case Text:
		return u.Kind() == value.KindText
	case Boolean:
		return u.Kind() == value.KindBool
	case TimeT:
		return u.Kind() == value.KindTime
	case DateT:
		return u.Kind() == value.KindDate
	case ArrayT:
		if u.Kind() != value.KindArray {
			return false
		}
		arr := u.AsArray()
		if l.Length != nil && len(arr) != *l.Length {
			return false
		}
		for _, e := range arr {
			if !l.Element.Fits(e) {
				return false
			}
		}
		return true
	case DictT:
		if u.Kind() != value.KindDict {
			return false
		}
		for _, f := range l.Fields {
			fv, ok := u.AsDict().Get(f.Name)
			if !ok {
				if f.Optional {
					continue
				}
				return false
			}
			if !f.Fits(fv) {
				return false
			}
		}
		return true
	}
	return true
}

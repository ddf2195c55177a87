// Package operator implements the scalar/aggregate/collection expression
// tree (the "Operator" node in spec.md §3/§4.3) and its compilation to
// ValueHandlers — Value -> Value closure trees.
package operator

import "github.com/switchyard/flow/internal/value"

// Kind tags the variant of an Operator node.
type Kind uint8

const (
	// Binary
	Cast Kind = iota
	// Tuple
	Plus
	Minus
	Mul
	Div
	Combine
	Not
	Equal
	And
	Or
	Doc
	Split
	Input
	Name
	Index
	Literal
	Context
	KeyValue
	// Aggregate
	Count
	Sum
	Avg
	// Collection
	Unwind
)

// Operator is a node of the scalar expression tree. Its implementation
// is compiled by Compile (compile.go); this package derives no input or
// output Layout for an Operator.
type Operator struct {
	Op       Kind
	Operands []*Operator

	// Name holds the field name for Name(k) and Context(name), and the
	// target type letter ("i","f","t","b","m","d") for Cast.
	Name string
	// Index holds the positional index for Index(i).
	Index int
	// Lit holds the literal payload for Literal(v).
	Lit value.Value
	// Pattern holds the regex source for Split(pattern).
	Pattern string
	// Key holds the optional key for KeyValue(Option<String>).
	Key *string
}

// Leaf constructors.

func NewInput() *Operator                { return &Operator{Op: Input} }
func NewLiteral(v value.Value) *Operator  { return &Operator{Op: Literal, Lit: v} }
func NewName(field string) *Operator      { return &Operator{Op: Name, Name: field} }
func NewIndex(i int) *Operator            { return &Operator{Op: Index, Index: i} }
func NewContext(origin string) *Operator  { return &Operator{Op: Context, Name: origin} }
func NewSplit(pattern string, operand *Operator) *Operator {
	return &Operator{Op: Split, Pattern: pattern, Operands: []*Operator{operand}}
}
func NewCast(target string, operand *Operator) *Operator {
	return &Operator{Op: Cast, Name: target, Operands: []*Operator{operand}}
}
func NewKeyValue(key *string, operand *Operator) *Operator {
	return &Operator{Op: KeyValue, Key: key, Operands: []*Operator{operand}}
}

func unary(op Kind, a *Operator) *Operator { return &Operator{Op: op, Operands: []*Operator{a}} }
func binary(op Kind, a, b *Operator) *Operator {
	return &Operator{Op: op, Operands: []*Operator{a, b}}
}

func NewPlus(a, b *Operator) *Operator  { return binary(Plus, a, b) }
func NewMinus(a, b *Operator) *Operator { return binary(Minus, a, b) }
func NewMul(a, b *Operator) *Operator   { return binary(Mul, a, b) }
func NewDiv(a, b *Operator) *Operator   { return binary(Div, a, b) }
func NewAnd(a, b *Operator) *Operator   { return binary(And, a, b) }
func NewOr(a, b *Operator) *Operator    { return binary(Or, a, b) }
func NewEqual(a, b *Operator) *Operator { return binary(Equal, a, b) }
func NewNot(a *Operator) *Operator      { return unary(Not, a) }
func NewCombine(operands ...*Operator) *Operator {
	return &Operator{Op: Combine, Operands: operands}
}
func NewDoc(operands ...*Operator) *Operator {
	return &Operator{Op: Doc, Operands: operands}
}
func NewUnwind(a *Operator) *Operator { return unary(Unwind, a) }

func NewCount() *Operator              { return &Operator{Op: Count} }
func NewSum(a *Operator) *Operator     { return unary(Sum, a) }
func NewAvg(a *Operator) *Operator     { return unary(Avg, a) }

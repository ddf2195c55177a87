// Package optimizer implements the rule-based rewrite engine (C6):
// FilterMerge and ProjectMerge, plus the OperatorMerger substitution
// logic ProjectMerge relies on.
package optimizer

import (
	"fmt"

	"github.com/switchyard/flow/internal/operator"
	"github.com/switchyard/flow/internal/value"
)

// mergeOperator composes an outer projection with the inner projection
// it consumes: every Input reference in outer becomes the whole inner
// tree; every Index(i)/Name(k) reference is substituted with the
// sub-expression inner actually produces at that slot. This is not a
// generic flattening — it only understands how Index resolves against
// Combine/Doc/Literal(array/dict), and how Name resolves against
// Doc/Literal(dict). Anything else panics; tryMerge recovers that panic
// and reports the pair as not mergeable.
func mergeOperator(outer, inner *operator.Operator) *operator.Operator {
	switch outer.Op {
	case operator.Input:
		return inner
	case operator.Index:
		return substituteIndex(outer.Index, inner)
	case operator.Name:
		return substituteName(outer.Name, inner)
	default:
		newOperands := make([]*operator.Operator, len(outer.Operands))
		for i, o := range outer.Operands {
			newOperands[i] = mergeOperator(o, inner)
		}
		return &operator.Operator{
			Op: outer.Op, Operands: newOperands, Name: outer.Name,
			Index: outer.Index, Lit: outer.Lit, Pattern: outer.Pattern, Key: outer.Key,
		}
	}
}

func substituteIndex(i int, inner *operator.Operator) *operator.Operator {
	switch inner.Op {
	case operator.Combine:
		if i >= 0 && i < len(inner.Operands) {
			return inner.Operands[i]
		}
	case operator.Doc:
		if i >= 0 && i < len(inner.Operands) {
			return inner.Operands[i]
		}
	case operator.Literal:
		u := inner.Lit.Unwrap()
		if u.Kind() == value.KindArray {
			arr := u.AsArray()
			if i >= 0 && i < len(arr) {
				return operator.NewLiteral(arr[i])
			}
		}
		if u.Kind() == value.KindDict {
			if fv, ok := u.AsDict().Get(fmt.Sprintf("$%d", i)); ok {
				return operator.NewLiteral(fv)
			}
		}
	}
	panic(fmt.Sprintf("optimizer: cannot substitute Index(%d) against %v", i, inner.Op))
}

func substituteName(name string, inner *operator.Operator) *operator.Operator {
	if inner.Op == operator.Doc {
		for _, kv := range inner.Operands {
			if kv.Op == operator.KeyValue && kv.Key != nil && *kv.Key == name {
				return kv.Operands[0]
			}
		}
	}
	if inner.Op == operator.Literal {
		u := inner.Lit.Unwrap()
		if u.Kind() == value.KindDict {
			if fv, ok := u.AsDict().Get(name); ok {
				return operator.NewLiteral(fv)
			}
		}
	}
	panic(fmt.Sprintf("optimizer: cannot substitute Name(%q) against %v", name, inner.Op))
}

// tryMerge runs mergeOperator under a recover guard: when the outer
// projection references a slot the inner projection's shape can't supply
// structurally (an expression that isn't Combine/Doc/Literal), the merge
// isn't a valid rewrite for this pair and the rule simply doesn't fire,
// rather than aborting optimization.
func tryMerge(outer, inner *operator.Operator) (result *operator.Operator, ok bool) {
	defer func() {
		if recover() != nil {
			result, ok = nil, false
		}
	}()
	return mergeOperator(outer, inner), true
}

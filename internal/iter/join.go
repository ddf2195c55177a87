package iter

import (
	"github.com/switchyard/flow/internal/operator"
	"github.com/switchyard/flow/internal/value"
)

type keyedValue struct {
	key value.Value
	val value.Value
}

// JoinIter is a nested-loop join with lazy bilateral caching: instead of
// materializing both sides up front it grows cache_left/cache_right one
// element at a time and walks the cross product only over the cached
// entries, so memory only grows with distinct inputs actually seen.
type JoinIter struct {
	left, right         Iterator
	leftHash, rightHash operator.Handler
	out                 func(left, right value.Value) value.Value

	cacheLeft, cacheRight []keyedValue
	leftIndex, rightIndex int
}

func NewJoin(left, right Iterator, leftHash, rightHash operator.Handler, out func(left, right value.Value) value.Value) *JoinIter {
	return &JoinIter{left: left, right: right, leftHash: leftHash, rightHash: rightHash, out: out}
}

func (j *JoinIter) Next() (value.Value, bool) {
	if len(j.cacheLeft) == 0 && !j.nextLeft() {
		return value.Null(), false
	}
	for {
		if !j.nextRight() {
			if !j.nextLeft() {
				return value.Null(), false
			}
			j.rightIndex = 0
		}
		left := j.cacheLeft[j.leftIndex]
		right := j.cacheRight[j.rightIndex]
		if value.Equal(left.key, right.key) {
			return j.out(left.val, right.val), true
		}
	}
}

func (j *JoinIter) nextLeft() bool {
	if v, ok := j.left.Next(); ok {
		j.cacheLeft = append(j.cacheLeft, keyedValue{key: j.leftHash(v), val: v})
		if len(j.cacheLeft) > 1 {
			j.leftIndex++
		}
		j.rightIndex = 0
		return true
	}
	if j.leftIndex < len(j.cacheLeft)-1 {
		j.leftIndex++
		j.rightIndex = 0
		return true
	}
	return false
}

func (j *JoinIter) nextRight() bool {
	if v, ok := j.right.Next(); ok {
		j.cacheRight = append(j.cacheRight, keyedValue{key: j.rightHash(v), val: v})
		if len(j.cacheRight) > 1 {
			j.rightIndex++
		}
		return true
	}
	if len(j.cacheRight) == 0 {
		return false
	}
	if j.rightIndex < len(j.cacheRight)-1 {
		j.rightIndex++
		return true
	}
	return false
}

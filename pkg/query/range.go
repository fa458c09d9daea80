package query

import (
	"math"
	"time"

	"github.com/nainya/assetcatalog/pkg/metadata"
)

// Bound is the set of value types a Range can span.
type Bound interface {
	int64 | float64 | time.Time
}

// Range is an inclusive interval with optional ends. At least one end is set
// and, when both are, Min <= Max.
type Range[T Bound] struct {
	Min *T
	Max *T
}

// NewRange creates a validated range.
func NewRange[T Bound](min, max *T) (*Range[T], error) {
	r := &Range[T]{Min: min, Max: max}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// AtLeast is the half-open range [min, +inf).
func AtLeast[T Bound](min T) *Range[T] {
	return &Range[T]{Min: &min}
}

// AtMost is the half-open range (-inf, max].
func AtMost[T Bound](max T) *Range[T] {
	return &Range[T]{Max: &max}
}

// Between is the closed range [min, max].
func Between[T Bound](min, max T) (*Range[T], error) {
	return NewRange(&min, &max)
}

// Validate enforces the range invariants.
func (r *Range[T]) Validate() error {
	if r.Min == nil && r.Max == nil {
		return metadata.ErrValidation.New("range needs at least one bound")
	}
	if isNaN(r.Min) || isNaN(r.Max) {
		return metadata.ErrValidation.New("range bounds must be numbers")
	}
	if r.Min != nil && r.Max != nil && less(*r.Max, *r.Min) {
		return metadata.ErrValidation.New("range minimum %v is greater than maximum %v", *r.Min, *r.Max)
	}
	return nil
}

// Contains reports whether v lies within the range.
func (r *Range[T]) Contains(v T) bool {
	if r.Min != nil && less(v, *r.Min) {
		return false
	}
	if r.Max != nil && less(*r.Max, v) {
		return false
	}
	return true
}

func (r *Range[T]) bounds() Bounds {
	var b Bounds
	if r.Min != nil {
		b.Min = normalizeBound(*r.Min)
	}
	if r.Max != nil {
		b.Max = normalizeBound(*r.Max)
	}
	return b
}

func normalizeBound[T Bound](v T) any {
	if t, ok := any(v).(time.Time); ok {
		return metadata.NormalizeTime(t)
	}
	return v
}

func isNaN[T Bound](v *T) bool {
	if v == nil {
		return false
	}
	f, ok := any(*v).(float64)
	return ok && math.IsNaN(f)
}

func less[T Bound](a, b T) bool {
	switch x := any(a).(type) {
	case int64:
		return x < any(b).(int64)
	case float64:
		return x < any(b).(float64)
	case time.Time:
		return x.Before(any(b).(time.Time))
	}
	return false
}

package address

import (
	"errors"
	"fmt"
	"slices"
)

// ErrInvalidRange is returned when a range has low > high or its bounds do
// not belong to the expected address kind.
var ErrInvalidRange = errors.New("invalid range")

// Range is a closed interval [Low, High] of 16-bit values. It is used for
// unicast addresses, group addresses and scene numbers alike.
type Range struct {
	Low  uint16
	High uint16
}

// NewRange returns the range [low, high].
func NewRange(low, high uint16) (Range, error) {
	if low > high {
		return Range{}, fmt.Errorf("%w: %04X > %04X", ErrInvalidRange, low, high)
	}
	return Range{Low: low, High: high}, nil
}

// UnicastRange returns a range of unicast addresses.
func UnicastRange(low, high Address) (Range, error) {
	if !low.IsUnicast() || !high.IsUnicast() {
		return Range{}, fmt.Errorf("%w: %s-%s is not a unicast range", ErrInvalidRange, low, high)
	}
	return NewRange(uint16(low), uint16(high))
}

// GroupRange returns a range of group addresses.
func GroupRange(low, high Address) (Range, error) {
	if !low.IsGroup() || !high.IsGroup() {
		return Range{}, fmt.Errorf("%w: %s-%s is not a group range", ErrInvalidRange, low, high)
	}
	return NewRange(uint16(low), uint16(high))
}

// SceneRange returns a range of scene numbers. Scene number 0 is prohibited.
func SceneRange(first, last uint16) (Range, error) {
	if first == 0 {
		return Range{}, fmt.Errorf("%w: scene number 0x0000 is prohibited", ErrInvalidRange)
	}
	return NewRange(first, last)
}

// MustRange is like NewRange but panics on an invalid range.
func MustRange(low, high uint16) Range {
	r, err := NewRange(low, high)
	if err != nil {
		panic(err)
	}
	return r
}

// Count returns the number of values in the range.
func (r Range) Count() int {
	return int(r.High) - int(r.Low) + 1
}

// Contains returns true if v is in the range.
func (r Range) Contains(v uint16) bool {
	return v >= r.Low && v <= r.High
}

// ContainsRange returns true if other lies completely within r.
func (r Range) ContainsRange(other Range) bool {
	return other.Low >= r.Low && other.High <= r.High
}

// Overlaps returns true if the two ranges share at least one value.
func (r Range) Overlaps(other Range) bool {
	return r.Low <= other.High && other.Low <= r.High
}

// Distance returns the number of values lying strictly between the two ranges.
// It is 0 when the ranges overlap or are adjacent.
func (r Range) Distance(other Range) int {
	switch {
	case r.Overlaps(other):
		return 0
	case r.High < other.Low:
		return int(other.Low) - int(r.High) - 1
	default:
		return int(r.Low) - int(other.High) - 1
	}
}

// Plus returns the union of the two ranges. When they overlap or touch the
// result is a single range, otherwise both ranges sorted by their low bound.
func (r Range) Plus(other Range) []Range {
	if r.Distance(other) == 0 {
		return []Range{{Low: min(r.Low, other.Low), High: max(r.High, other.High)}}
	}
	if r.Low < other.Low {
		return []Range{r, other}
	}
	return []Range{other, r}
}

// Minus returns what remains of r after removing other: zero, one or two ranges.
func (r Range) Minus(other Range) []Range {
	if !r.Overlaps(other) {
		return []Range{r}
	}
	var result []Range
	if other.Low > r.Low {
		result = append(result, Range{Low: r.Low, High: other.Low - 1})
	}
	if other.High < r.High {
		result = append(result, Range{Low: other.High + 1, High: r.High})
	}
	return result
}

// String returns "LOW-HIGH" in hex.
func (r Range) String() string {
	return fmt.Sprintf("%04X-%04X", r.Low, r.High)
}

// Merged sorts ranges by their low bound and folds overlapping or adjacent
// ranges together. The input is not modified.
func Merged(ranges []Range) []Range {
	if len(ranges) == 0 {
		return nil
	}
	sorted := slices.Clone(ranges)
	slices.SortFunc(sorted, func(a, b Range) int {
		return int(a.Low) - int(b.Low)
	})

	result := make([]Range, 0, len(sorted))
	acc := sorted[0]
	for _, candidate := range sorted[1:] {
		switch {
		case acc.High >= candidate.High:
			// candidate is contained in acc
		case int(acc.High)+1 >= int(candidate.Low):
			acc.High = candidate.High
		default:
			result = append(result, acc)
			acc = candidate
		}
	}
	return append(result, acc)
}

// RangeSet is a sorted list of ranges in which no two ranges overlap or touch.
// The zero value is an empty set.
type RangeSet struct {
	ranges []Range
}

// NewRangeSet returns the minimal set covering the given ranges.
func NewRangeSet(ranges ...Range) RangeSet {
	return RangeSet{ranges: Merged(ranges)}
}

// Ranges returns a copy of the ranges in the set.
func (s RangeSet) Ranges() []Range {
	return slices.Clone(s.ranges)
}

// Len returns the number of disjoint ranges.
func (s RangeSet) Len() int {
	return len(s.ranges)
}

// IsEmpty returns true if the set contains no values.
func (s RangeSet) IsEmpty() bool {
	return len(s.ranges) == 0
}

// Add returns the set with r added.
func (s RangeSet) Add(r ...Range) RangeSet {
	return RangeSet{ranges: Merged(append(slices.Clone(s.ranges), r...))}
}

// Remove returns the set with every value of r removed.
func (s RangeSet) Remove(r Range) RangeSet {
	var result []Range
	for _, existing := range s.ranges {
		result = append(result, existing.Minus(r)...)
	}
	return RangeSet{ranges: Merged(result)}
}

// RemoveSet returns the set with every value of other removed.
func (s RangeSet) RemoveSet(other RangeSet) RangeSet {
	result := s
	for _, r := range other.ranges {
		result = result.Remove(r)
	}
	return result
}

// Contains returns true if v is in one of the ranges.
func (s RangeSet) Contains(v uint16) bool {
	for _, r := range s.ranges {
		if r.Contains(v) {
			return true
		}
	}
	return false
}

// ContainsRange returns true if every value of r is in the set.
func (s RangeSet) ContainsRange(r Range) bool {
	for _, existing := range s.ranges {
		if existing.ContainsRange(r) {
			return true
		}
	}
	return false
}

// Overlaps returns true if r shares a value with any range in the set.
func (s RangeSet) Overlaps(r Range) bool {
	for _, existing := range s.ranges {
		if existing.Overlaps(r) {
			return true
		}
	}
	return false
}

// OverlapsSet returns true if the two sets share a value.
func (s RangeSet) OverlapsSet(other RangeSet) bool {
	for _, r := range other.ranges {
		if s.Overlaps(r) {
			return true
		}
	}
	return false
}

// IsMinimal returns true if the ranges are sorted and no two of them overlap or touch.
func (s RangeSet) IsMinimal() bool {
	for i := 1; i < len(s.ranges); i++ {
		if int(s.ranges[i-1].High)+1 >= int(s.ranges[i].Low) {
			return false
		}
	}
	return true
}

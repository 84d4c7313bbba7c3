package address

import (
	"math/rand"
	"slices"
	"testing"
)

func TestRangeDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b Range
		want int
	}{
		{"overlapping", MustRange(1, 5), MustRange(3, 8), 0},
		{"adjacent", MustRange(1, 3), MustRange(4, 6), 0},
		{"gap of one", MustRange(1, 3), MustRange(5, 7), 1},
		{"reversed", MustRange(10, 12), MustRange(1, 3), 6},
		{"contained", MustRange(1, 10), MustRange(4, 5), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Distance(tt.b); got != tt.want {
				t.Errorf("Distance() = %d, want %d", got, tt.want)
			}
			if got := tt.b.Distance(tt.a); got != tt.want {
				t.Errorf("reverse Distance() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRangePlus(t *testing.T) {
	t.Run("Merges", func(t *testing.T) {
		got := MustRange(1, 3).Plus(MustRange(4, 6))
		if !slices.Equal(got, []Range{MustRange(1, 6)}) {
			t.Errorf("Plus() = %v, want [0001-0006]", got)
		}
	})

	t.Run("KeepsBothSorted", func(t *testing.T) {
		got := MustRange(10, 12).Plus(MustRange(1, 3))
		want := []Range{MustRange(1, 3), MustRange(10, 12)}
		if !slices.Equal(got, want) {
			t.Errorf("Plus() = %v, want %v", got, want)
		}
	})
}

func TestRangeMinus(t *testing.T) {
	tests := []struct {
		name string
		a, b Range
		want []Range
	}{
		{"disjoint", MustRange(1, 5), MustRange(7, 9), []Range{MustRange(1, 5)}},
		{"middle", MustRange(1, 10), MustRange(4, 6), []Range{MustRange(1, 3), MustRange(7, 10)}},
		{"covers", MustRange(4, 6), MustRange(1, 10), nil},
		{"low end", MustRange(1, 10), MustRange(1, 4), []Range{MustRange(5, 10)}},
		{"high end", MustRange(1, 10), MustRange(8, 12), []Range{MustRange(1, 7)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Minus(tt.b); !slices.Equal(got, tt.want) {
				t.Errorf("Minus() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMerged(t *testing.T) {
	got := Merged([]Range{
		MustRange(20, 30),
		MustRange(1, 5),
		MustRange(6, 8),
		MustRange(2, 3),
		MustRange(25, 40),
		MustRange(50, 50),
	})
	want := []Range{MustRange(1, 8), MustRange(20, 40), MustRange(50, 50)}
	if !slices.Equal(got, want) {
		t.Errorf("Merged() = %v, want %v", got, want)
	}
}

func TestMergedIdempotent(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 500; i++ {
		var input []Range
		for j := 0; j < rng.Intn(12); j++ {
			low := uint16(rng.Intn(200))
			input = append(input, MustRange(low, low+uint16(rng.Intn(20))))
		}

		once := Merged(input)
		twice := Merged(once)
		if !slices.Equal(once, twice) {
			t.Fatalf("Merged(Merged(%v)) = %v, want %v", input, twice, once)
		}
		if !(RangeSet{ranges: once}).IsMinimal() {
			t.Fatalf("Merged(%v) = %v is not minimal", input, once)
		}
	}
}

func TestRangeSetStaysMinimal(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	var set RangeSet
	for i := 0; i < 300; i++ {
		low := uint16(rng.Intn(500)) + 1
		r := MustRange(low, low+uint16(rng.Intn(30)))
		if rng.Intn(3) == 0 {
			set = set.Remove(r)
			for v := r.Low; v <= r.High; v++ {
				if set.Contains(v) {
					t.Fatalf("Remove(%v): set still contains %04X", r, v)
				}
			}
		} else {
			set = set.Add(r)
			if !set.ContainsRange(r) {
				t.Fatalf("Add(%v): set %v does not contain it", r, set.Ranges())
			}
		}
		if !set.IsMinimal() {
			t.Fatalf("set %v is not minimal after step %d", set.Ranges(), i)
		}
	}
}

func TestRangeSetOverlaps(t *testing.T) {
	a := NewRangeSet(MustRange(1, 10), MustRange(100, 200))
	b := NewRangeSet(MustRange(11, 99))
	if a.OverlapsSet(b) {
		t.Error("OverlapsSet() = true for touching sets, want false")
	}
	c := NewRangeSet(MustRange(150, 160))
	if !a.OverlapsSet(c) {
		t.Error("OverlapsSet() = false, want true")
	}
}

func TestTypedRanges(t *testing.T) {
	if _, err := UnicastRange(0x0001, 0x8000); err == nil {
		t.Error("UnicastRange(0001, 8000) succeeded, want error")
	}
	if _, err := GroupRange(0xC000, 0xFEFF); err != nil {
		t.Errorf("GroupRange() error = %v", err)
	}
	if _, err := SceneRange(0, 10); err == nil {
		t.Error("SceneRange(0, 10) succeeded, want error")
	}
	if _, err := NewRange(5, 4); err == nil {
		t.Error("NewRange(5, 4) succeeded, want error")
	}
}

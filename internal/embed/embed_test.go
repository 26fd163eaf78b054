package embed

import (
	"math"
	"testing"
)

func TestNormalize_UnitLength(t *testing.T) {
	cases := [][]float32{
		{3, 4},
		{1, 1, 1, 1},
		{0.001, -0.02, 5},
		{-7},
	}

	for _, v := range cases {
		got := Normalize(append([]float32(nil), v...))

		var sum float64
		for _, x := range got {
			sum += float64(x) * float64(x)
		}
		if math.Abs(math.Sqrt(sum)-1) > 1e-5 {
			t.Errorf("Normalize(%v): norm = %v, want 1", v, math.Sqrt(sum))
		}
	}
}

func TestNormalize_ZeroVectorUnchanged(t *testing.T) {
	v := []float32{0, 0, 0}
	got := Normalize(v)
	for i, x := range got {
		if x != 0 {
			t.Errorf("element %d = %v, want 0", i, x)
		}
	}
}

func TestNormalize_PreservesDirection(t *testing.T) {
	v := Normalize([]float32{3, 4})
	if v[0] <= 0 || v[1] <= 0 {
		t.Errorf("normalization flipped signs: %v", v)
	}
	// 3-4-5 triangle: expect (0.6, 0.8).
	if math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Errorf("got %v, want [0.6 0.8]", v)
	}
}

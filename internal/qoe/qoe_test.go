package qoe

import (
	"math"
	"testing"
)

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func TestLossCoefficientsTable(t *testing.T) {
	cases := []struct {
		loss    float64
		a, b    float64
	}{
		{0.01, 0, 0},
		{0.07, 4, -0.2},
		{0.2, 1, 0.1},
		{0.5, 0, 0.5},
	}
	for _, c := range cases {
		a, b := lossCoefficients(c.loss)
		if a != c.a || b != c.b {
			t.Errorf("loss=%v: got (%v,%v) want (%v,%v)", c.loss, a, b, c.a, c.b)
		}
	}
}

func TestUpdateFileProducesFiniteValues(t *testing.T) {
	p := Update(File, 10, 0.05, 0.01)
	if !isFinite(p.Lambda) || !isFinite(p.Beta) {
		t.Errorf("got (%v,%v), want finite values", p.Lambda, p.Beta)
	}
	if p.Lambda <= 0 {
		t.Errorf("Lambda = %v, want > 0", p.Lambda)
	}
}

func TestUpdateStreamingProducesFiniteValues(t *testing.T) {
	p := Update(Streaming, 10, 0.05, 0.01)
	if !isFinite(p.Lambda) || !isFinite(p.Beta) {
		t.Errorf("got (%v,%v), want finite values", p.Lambda, p.Beta)
	}
	if p.Lambda <= 0 {
		t.Errorf("Lambda = %v, want > 0", p.Lambda)
	}
	if p.Beta < 0 {
		t.Errorf("Beta = %v, want >= 0", p.Beta)
	}
}

package util

import "testing"

func TestNewRandIsReproducible(t *testing.T) {
	a, b := NewRand(42), NewRand(42)
	for i := 0; i < 100; i++ {
		if x, y := a.Float64(), b.Float64(); x != y {
			t.Fatalf("draw %d diverged: %v vs %v", i, x, y)
		}
	}
	c := NewRand(43)
	same := true
	for i := 0; i < 10; i++ {
		if a.Float64() != c.Float64() {
			same = false
		}
	}
	if same {
		t.Errorf("expected different seeds to produce different draws")
	}
}

func TestIntBetweenBounds(t *testing.T) {
	r := NewRand(7)
	for i := 0; i < 1000; i++ {
		v := IntBetween(r, 1, 5)
		if v < 1 || v > 5 {
			t.Fatalf("expected value in [1,5], got %d", v)
		}
	}
}

func TestScriptReplaysDraws(t *testing.T) {
	s := &Script{Floats: []float64{0.9, 0.1}, Ints: []int{7}, Exps: []float64{2}}

	if got := s.Float64(); got != 0.9 {
		t.Errorf("expected 0.9, got %v", got)
	}
	if got := s.Float64(); got != 0.1 {
		t.Errorf("expected 0.1, got %v", got)
	}
	if got := s.Float64(); got != 0 {
		t.Errorf("expected exhausted script to return 0, got %v", got)
	}
	if got := s.IntN(5); got != 2 {
		t.Errorf("expected 7 mod 5 = 2, got %d", got)
	}
	if got := Exponential(s, 2.5); got != 5 {
		t.Errorf("expected 2*2.5 = 5, got %v", got)
	}
	if got := s.ExpFloat64(); got != 1 {
		t.Errorf("expected exhausted exp draw 1, got %v", got)
	}
}

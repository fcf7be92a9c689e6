package util

import "math/rand/v2"

// Rand is the single source of randomness for a run. Every stochastic
// decision draws from it so that a seed fully determines the run.
type Rand interface {
	Float64() float64
	NormFloat64() float64
	ExpFloat64() float64
	IntN(n int) int
	Shuffle(n int, swap func(i, j int))
}

// NewRand returns a PCG-backed source seeded with seed.
func NewRand(seed uint64) Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Normal draws from N(mean, std).
func Normal(r Rand, mean, std float64) float64 {
	return mean + std*r.NormFloat64()
}

// Uniform draws from U[a, b).
func Uniform(r Rand, a, b float64) float64 {
	return a + (b-a)*r.Float64()
}

// Exponential draws from an exponential distribution with the given mean.
func Exponential(r Rand, mean float64) float64 {
	return r.ExpFloat64() * mean
}

// IntBetween draws an integer from U{a..b}, both ends inclusive.
func IntBetween(r Rand, a, b int) int {
	return a + r.IntN(b-a+1)
}

// Script replays fixed draws. Exhausted queues return the zero draw
// (0 for Float64/NormFloat64/IntN, 1 for ExpFloat64). Shuffle keeps order.
type Script struct {
	Floats []float64
	Norms  []float64
	Exps   []float64
	Ints   []int
}

func (s *Script) Float64() float64 {
	if len(s.Floats) == 0 {
		return 0
	}
	v := s.Floats[0]
	s.Floats = s.Floats[1:]
	return v
}

func (s *Script) NormFloat64() float64 {
	if len(s.Norms) == 0 {
		return 0
	}
	v := s.Norms[0]
	s.Norms = s.Norms[1:]
	return v
}

func (s *Script) ExpFloat64() float64 {
	if len(s.Exps) == 0 {
		return 1
	}
	v := s.Exps[0]
	s.Exps = s.Exps[1:]
	return v
}

func (s *Script) IntN(n int) int {
	if len(s.Ints) == 0 {
		return 0
	}
	v := s.Ints[0]
	s.Ints = s.Ints[1:]
	return v % n
}

func (s *Script) Shuffle(int, func(i, j int)) {}

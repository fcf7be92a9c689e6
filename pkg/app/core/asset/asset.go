package asset

import (
	"fmt"
	"math"

	"github.com/uhyunpark/marketsim/pkg/app/core/ids"
	"github.com/uhyunpark/marketsim/pkg/util"
)

const (
	// DefaultLookahead is the number of future dividends kept in the buffer.
	DefaultLookahead = 100
	// DefaultStd is the standard deviation of the log dividend step.
	DefaultStd = 5e-3
)

// Asset is a dividend-paying instrument. It keeps the dividend paid this tick
// and a fixed-length queue of future dividends that insiders may look into.
type Asset struct {
	ID ids.AssetID

	dividend float64
	book     []float64 // future dividends, oldest first
	std      float64
}

// New creates an asset paying dividend now and pre-computes lookahead future
// dividends as a multiplicative random walk starting from it.
func New(id ids.AssetID, dividend float64, lookahead int, std float64, rng util.Rand) (*Asset, error) {
	if dividend < 0 {
		return nil, fmt.Errorf("initial dividend must be non-negative, got %v", dividend)
	}
	if lookahead <= 0 {
		return nil, fmt.Errorf("lookahead must be positive, got %d", lookahead)
	}
	if std < 0 {
		return nil, fmt.Errorf("dividend std must be non-negative, got %v", std)
	}

	a := &Asset{ID: id, dividend: dividend, book: make([]float64, 0, lookahead), std: std}
	d := dividend
	for i := 0; i < lookahead; i++ {
		d = a.next(d, rng)
		a.book = append(a.book, d)
	}
	return a, nil
}

func (a *Asset) next(d float64, rng util.Rand) float64 {
	return math.Max(d*math.Exp(util.Normal(rng, 0, a.std)), 0)
}

// Update advances one tick: the oldest buffered dividend becomes current and
// one new sample, drawn from the tail of the buffer, is appended.
func (a *Asset) Update(rng util.Rand) {
	last := len(a.book) - 1
	tail := a.book[last]
	a.dividend = a.book[0]
	copy(a.book, a.book[1:])
	a.book[last] = a.next(tail, rng)
}

// Current returns the dividend paid this tick.
func (a *Asset) Current() float64 { return a.dividend }

// Dividend returns the current dividend followed by up to access future ones.
func (a *Asset) Dividend(access int) []float64 {
	if access < 0 {
		access = 0
	}
	if access > len(a.book) {
		access = len(a.book)
	}
	out := make([]float64, 0, access+1)
	out = append(out, a.dividend)
	return append(out, a.book[:access]...)
}

// Lookahead returns the buffer length.
func (a *Asset) Lookahead() int { return len(a.book) }

// Shift adds delta to the current and every future dividend, flooring at zero.
func (a *Asset) Shift(delta float64) {
	a.dividend = math.Max(a.dividend+delta, 0)
	for i := range a.book {
		a.book[i] = math.Max(a.book[i]+delta, 0)
	}
}

package agent

import (
	"errors"
	"math"

	"github.com/uhyunpark/marketsim/pkg/app/core/ids"
	"github.com/uhyunpark/marketsim/pkg/app/core/market"
	"github.com/uhyunpark/marketsim/pkg/util"
)

// Snapshot is the read-only population summary taken at the start of a tick.
// Pre-action hooks receive it explicitly instead of reading telemetry.
type Snapshot struct {
	Traders         int
	Fundamentalists int
	Chartists       int
	// Optimists and Pessimists count active chartists by sentiment.
	Optimists   int
	Pessimists  int
	MeanReturn  float64
	PriceChange map[ids.MarketID]float64 // last captured price minus the one before
}

// Opinion dynamics coefficients.
const (
	herdWeight   = 1.0 // a1: weight of the chartist majority
	trendWeight  = 1.0 // a2: weight of the last price change
	opinionRate  = 0.1 // v1: revaluation frequency of sentiment
	profitWeight = 1.0 // a3: weight of the profit differential
	switchRate   = 0.1 // v2: revaluation frequency of strategy
	valueWeight  = 0.1 // s: weight of the fundamental mispricing
	fitnessClamp = 100.0
)

// PreAction runs the population-driven revaluations ahead of Call: a sentiment
// update for active chartists, then a strategy update for universalists.
func (a *Agent) PreAction(snap Snapshot, m *market.Market, rng util.Rand) error {
	if err := a.checkMarket(m); err != nil {
		return err
	}
	if a.HasSentiment() && a.Strategy == Trend {
		if err := a.ChangeSentiment(snap, m, rng); err != nil {
			return err
		}
	}
	if a.Kind == KindUniversalist {
		if err := a.ChangeStrategy(snap, m, rng); err != nil {
			return err
		}
	}
	return nil
}

// ChangeSentiment flips the agent's view with a probability that rises when
// the chartist majority or the last price move point the other way.
func (a *Agent) ChangeSentiment(snap Snapshot, m *market.Market, rng util.Rand) error {
	if a.Sentiment == NoSentiment || snap.Traders == 0 || snap.Chartists == 0 {
		return nil
	}
	p, err := m.Price()
	if errors.Is(err, market.ErrNoPrice) {
		return nil
	} else if err != nil {
		return err
	}

	x := float64(snap.Optimists-snap.Pessimists) / float64(snap.Chartists)
	dp := snap.PriceChange[m.ID]
	u := herdWeight*x + trendWeight/opinionRate*dp/p
	base := opinionRate * float64(snap.Chartists) / float64(snap.Traders)

	draw := rng.Float64()
	switch a.Sentiment {
	case Optimistic:
		if base*math.Exp(-u) > draw {
			a.Sentiment = Pessimistic
		}
	case Pessimistic:
		if base*math.Exp(u) > draw {
			a.Sentiment = Optimistic
		}
	}
	return nil
}

// ChangeStrategy moves a universalist between the fundamental and the trend
// strategy by comparing the return implied by fundamentals and the last price
// move against the average realised return of the population.
func (a *Agent) ChangeStrategy(snap Snapshot, m *market.Market, rng util.Rand) error {
	if a.Kind != KindUniversalist || snap.Traders == 0 {
		return nil
	}
	p, err := m.Price()
	if errors.Is(err, market.ErrNoPrice) {
		return nil
	} else if err != nil {
		return err
	}

	pf := a.fairValue(m)
	r := pf * m.RiskFree()
	dp := snap.PriceChange[m.ID]
	expected := (r + dp/switchRate) / p
	gap := valueWeight * math.Abs((pf-p)/p)

	u1 := clamp(profitWeight*(expected-snap.MeanReturn-gap), fitnessClamp)
	u2 := clamp(profitWeight*(snap.MeanReturn-expected-gap), fitnessClamp)
	n := float64(snap.Traders)

	switch a.Strategy {
	case Trend:
		draw := rng.Float64()
		var prob float64
		if a.Sentiment == Optimistic {
			prob = switchRate * float64(snap.Optimists) / (n * math.Exp(u1))
		} else {
			prob = switchRate * float64(snap.Pessimists) / (n * math.Exp(u2))
		}
		if prob > draw {
			a.Strategy = Fundamental
		}
	case Fundamental:
		d1, d2 := rng.Float64(), rng.Float64()
		nf := float64(snap.Fundamentalists)
		if a.Sentiment == Pessimistic && switchRate*nf/(n*math.Exp(-u1)) > d1 {
			a.Strategy, a.Sentiment = Trend, Optimistic
		} else if a.Sentiment == Optimistic && switchRate*nf/(n*math.Exp(-u2)) > d2 {
			a.Strategy, a.Sentiment = Trend, Pessimistic
		}
	}
	return nil
}

func clamp(v, bound float64) float64 {
	return math.Max(-bound, math.Min(bound, v))
}

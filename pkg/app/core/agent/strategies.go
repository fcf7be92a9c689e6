package agent

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/marketsim/pkg/app/core/ids"
	"github.com/uhyunpark/marketsim/pkg/app/core/market"
	"github.com/uhyunpark/marketsim/pkg/app/core/orderbook"
	"github.com/uhyunpark/marketsim/pkg/util"
)

const (
	// noiseDelta is the mean distance of an out-of-spread noise quote from the best price.
	noiseDelta = 2.5
	// fundamentalGamma scales mispricing into order size.
	fundamentalGamma = 5e-3
	maxQty           = 5
)

func NewRandom(id ids.AgentID, mkt ids.MarketID, cash decimal.Decimal, assets int64) *Agent {
	return newAgent(id, KindRandom, Noise, mkt, cash, assets)
}

// NewFundamentalist creates an agent that knows access future dividends
// (0 means only the current one).
func NewFundamentalist(id ids.AgentID, mkt ids.MarketID, cash decimal.Decimal, assets int64, access int) *Agent {
	a := newAgent(id, KindFundamentalist, Fundamental, mkt, cash, assets)
	a.Access = access
	return a
}

// NewChartist draws the initial sentiment from rng.
func NewChartist(id ids.AgentID, mkt ids.MarketID, cash decimal.Decimal, assets int64, rng util.Rand) *Agent {
	a := newAgent(id, KindChartist, Trend, mkt, cash, assets)
	a.Sentiment = drawSentiment(rng)
	return a
}

// NewUniversalist draws the initial strategy, then the initial sentiment.
func NewUniversalist(id ids.AgentID, mkt ids.MarketID, cash decimal.Decimal, assets int64, access int, rng util.Rand) *Agent {
	strategy := Fundamental
	if rng.Float64() > .5 {
		strategy = Trend
	}
	a := newAgent(id, KindUniversalist, strategy, mkt, cash, assets)
	a.Sentiment = drawSentiment(rng)
	a.Access = access
	return a
}

func NewMarketMaker(id ids.AgentID, mkt ids.MarketID, cash decimal.Decimal, assets int64, softLimit int64) *Agent {
	a := newAgent(id, KindMarketMaker, MarketMaking, mkt, cash, assets)
	a.SoftLimit = softLimit
	return a
}

func drawSentiment(rng util.Rand) Sentiment {
	if rng.Float64() > .5 {
		return Optimistic
	}
	return Pessimistic
}

type decision func(a *Agent, m *market.Market, rng util.Rand) error

var decisions = [...]decision{
	Noise:        (*Agent).callNoise,
	Fundamental:  (*Agent).callFundamental,
	Trend:        (*Agent).callTrend,
	MarketMaking: (*Agent).callMarketMaking,
}

// Call runs the active strategy once. It is the only agent method that
// submits or cancels orders. A missing price makes the agent sit the tick out.
func (a *Agent) Call(m *market.Market, rng util.Rand) error {
	if err := a.checkMarket(m); err != nil {
		return err
	}
	if int(a.Strategy) >= len(decisions) {
		return fmt.Errorf("%s: no decision rule for strategy %d", a.ID, a.Strategy)
	}
	err := decisions[a.Strategy](a, m, rng)
	if errors.Is(err, market.ErrNoPrice) {
		return nil
	}
	return err
}

// drawQuantity is U{1..5}.
func drawQuantity(rng util.Rand) int64 {
	return int64(util.IntBetween(rng, 1, maxQty))
}

// drawPrice quotes uniformly inside the spread 35% of the time, otherwise an
// exponential distance behind the best price of side.
func drawPrice(side orderbook.Side, s market.Spread, rng util.Rand) float64 {
	if rng.Float64() < .35 {
		return util.Uniform(rng, s.Bid, s.Ask)
	}
	delta := util.Exponential(rng, noiseDelta)
	if side == orderbook.Bid {
		return s.Bid - delta
	}
	return s.Ask + delta
}

func (a *Agent) callNoise(m *market.Market, rng util.Rand) error {
	s, err := m.Spread()
	if err != nil {
		return err
	}

	side := orderbook.Ask
	if rng.Float64() > .5 {
		side = orderbook.Bid
	}

	switch r := rng.Float64(); {
	case r > .85:
		_, err = m.MarketOrder(a.ID, side, drawQuantity(rng))
		return err
	case r > .5:
		price := drawPrice(side, s, rng)
		return a.limit(m, side, drawQuantity(rng), price)
	case r < .35:
		if len(a.orders) == 0 {
			return nil
		}
		return a.cancel(m, a.orders[rng.IntN(len(a.orders))])
	}
	return nil
}

// Evaluate prices a stream of known dividends with a constant dividend model:
// the known dividends discounted at rate r plus a perpetuity on the last one.
func Evaluate(dividends []float64, r float64) float64 {
	if len(dividends) == 0 || r <= 0 {
		return 0
	}
	n := len(dividends)
	perp := dividends[n-1] / r / math.Pow(1+r, float64(n-1))
	known := 0.0
	for i := 0; i < n-1; i++ {
		known += dividends[i] / math.Pow(1+r, float64(i+1))
	}
	return known + perp
}

// fundamentalQuantity grows with the relative mispricing, capped at 5.
func fundamentalQuantity(pf, p float64) int64 {
	if p <= 0 {
		return 0
	}
	q := int64(math.RoundToEven(math.Abs(pf-p) / p / fundamentalGamma))
	return min(q, maxQty)
}

func (a *Agent) fairValue(m *market.Market) float64 {
	return Evaluate(m.Dividend(a.Access), m.RiskFree())
}

func (a *Agent) callFundamental(m *market.Market, rng util.Rand) error {
	pf := m.FromTicks(m.ToTicks(a.fairValue(m)))
	p, err := m.Price()
	if err != nil {
		return err
	}
	s, err := m.Spread()
	if err != nil {
		return err
	}
	tc := m.TransactionCost()

	if rng.Float64() <= .45 {
		if len(a.orders) == 0 {
			return nil
		}
		return a.cancel(m, a.orders[0])
	}

	aggress := rng.Float64() > .5
	askT := m.FromTicks(m.ToTicks(s.Ask * (1 + tc)))
	bidT := m.FromTicks(m.ToTicks(s.Bid * (1 - tc)))
	qty := fundamentalQuantity(pf, p)
	below := func() float64 { return (pf - util.Exponential(rng, noiseDelta)) * (1 - tc) }
	above := func() float64 { return (pf + util.Exponential(rng, noiseDelta)) * (1 + tc) }

	switch {
	case pf >= askT:
		if aggress {
			_, err = a.buyMarket(m, qty)
			return err
		}
		return a.sellLimit(m, qty, above())
	case pf <= bidT:
		if aggress {
			_, err = a.sellMarket(m, qty)
			return err
		}
		return a.buyLimit(m, qty, below())
	default:
		if aggress {
			return a.buyLimit(m, qty, below())
		}
		return a.sellLimit(m, qty, above())
	}
}

func (a *Agent) callTrend(m *market.Market, rng util.Rand) error {
	s, err := m.Spread()
	if err != nil {
		return err
	}
	tc := m.TransactionCost()

	side, markup := orderbook.Bid, 1-tc
	if a.Sentiment == Pessimistic {
		side, markup = orderbook.Ask, 1+tc
	}

	switch r := rng.Float64(); {
	case r > .85:
		_, err = m.MarketOrder(a.ID, side, drawQuantity(rng))
		return err
	case r > .5:
		qty := drawQuantity(rng)
		return a.limit(m, side, qty, drawPrice(side, s, rng)*markup)
	case r < .35:
		if len(a.orders) == 0 {
			return nil
		}
		return a.cancel(m, a.orders[len(a.orders)-1])
	}
	return nil
}

// callMarketMaking requotes both sides every tick. Inside the soft band it
// posts limits sized to the room left, one tick outside the best prices and
// pulled towards each other by spread × inventory / limit. Once either side
// has no room it panics and flattens with a market order.
func (a *Agent) callMarketMaking(m *market.Market, rng util.Rand) error {
	if err := a.CancelAll(m); err != nil {
		return err
	}

	limit := a.SoftLimit
	bidVolume := max(0, limit-1-a.Inventory)
	askVolume := max(0, a.Inventory+limit-1)

	if bidVolume == 0 || askVolume == 0 {
		a.Panic = true
		var err error
		if bidVolume == 0 && a.Inventory > 0 {
			_, err = a.sellMarket(m, a.Inventory)
		} else if askVolume == 0 && a.Inventory < 0 {
			_, err = a.buyMarket(m, -a.Inventory)
		}
		return err
	}
	a.Panic = false

	s, err := m.Spread()
	if err != nil {
		return err
	}
	tick := m.TickSize()
	offset := (s.Ask - s.Bid) * float64(a.Inventory) / float64(limit)
	if err := a.buyLimit(m, bidVolume, s.Bid+offset-tick); err != nil {
		return err
	}
	return a.sellLimit(m, askVolume, s.Ask-offset+tick)
}

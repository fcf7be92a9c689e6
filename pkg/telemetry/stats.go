package telemetry

import (
	"fmt"
	"math"

	"github.com/uhyunpark/marketsim/pkg/app/core/agent"
	"github.com/uhyunpark/marketsim/pkg/app/core/ids"
	"github.com/uhyunpark/marketsim/pkg/app/core/market"
)

func (i *Info) series(id ids.MarketID) (*MarketSeries, error) {
	s, ok := i.Markets[id]
	if !ok {
		return nil, fmt.Errorf("no series for market %d", id)
	}
	return s, nil
}

func (i *Info) market(id ids.MarketID) (*market.Market, error) {
	for _, m := range i.markets {
		if m.ID == id {
			return m, nil
		}
	}
	return nil, fmt.Errorf("market %d not tracked", id)
}

// Prices returns the captured mid prices of a market.
func (i *Info) Prices(id ids.MarketID) ([]float64, error) {
	s, err := i.series(id)
	if err != nil {
		return nil, err
	}
	return append([]float64(nil), s.Prices...), nil
}

// Equity returns the captured equity of an agent.
func (i *Info) Equity(id ids.AgentID) ([]float64, error) {
	s, ok := i.Agents[id]
	if !ok {
		return nil, fmt.Errorf("no series for %s", id)
	}
	return append([]float64(nil), s.Equity...), nil
}

// FundamentalValue values the asset at every captured tick as a fundamentalist
// with the given access would have: paid dividends are followed by the
// still-unpaid ones the market currently reveals. A negative access counts
// as 0.
func (i *Info) FundamentalValue(id ids.MarketID, access int) ([]float64, error) {
	access = max(access, 0)
	s, err := i.series(id)
	if err != nil {
		return nil, err
	}
	m, err := i.market(id)
	if err != nil {
		return nil, err
	}
	upcoming := m.Dividend(access)[1:]
	divs := append(append([]float64(nil), s.Dividends...), upcoming...)

	n := len(divs) - access
	if n < 0 {
		n = 0
	}
	out := make([]float64, 0, n)
	for t := 0; t < n; t++ {
		out = append(out, agent.Evaluate(divs[t:t+access+1], m.RiskFree()))
	}
	return out, nil
}

// StockReturns is price return plus dividend yield between consecutive ticks.
func (i *Info) StockReturns(id ids.MarketID) ([]float64, error) {
	s, err := i.series(id)
	if err != nil {
		return nil, err
	}
	return s.StockReturns(), nil
}

// AbnormalReturns are stock returns in excess of the risk-free rate.
func (i *Info) AbnormalReturns(id ids.MarketID) ([]float64, error) {
	s, err := i.series(id)
	if err != nil {
		return nil, err
	}
	m, err := i.market(id)
	if err != nil {
		return nil, err
	}
	return s.AbnormalReturns(m.RiskFree()), nil
}

func (i *Info) ReturnVolatility(id ids.MarketID, window int) ([]float64, error) {
	s, err := i.series(id)
	if err != nil {
		return nil, err
	}
	return s.ReturnVolatility(window)
}

func (i *Info) PriceVolatility(id ids.MarketID, window int) ([]float64, error) {
	s, err := i.series(id)
	if err != nil {
		return nil, err
	}
	return s.PriceVolatility(window)
}

func (i *Info) Liquidity(id ids.MarketID) ([]float64, error) {
	s, err := i.series(id)
	if err != nil {
		return nil, err
	}
	return s.Liquidity(), nil
}

// StockReturns is price return plus dividend yield between consecutive ticks.
func (s *MarketSeries) StockReturns() []float64 {
	p, div := s.Prices, s.Dividends
	if len(p) < 2 {
		return nil
	}
	out := make([]float64, 0, len(p)-1)
	for t := 0; t < len(p)-1; t++ {
		out = append(out, (p[t+1]-p[t])/p[t]+div[t]/p[t])
	}
	return out
}

// AbnormalReturns are stock returns in excess of rate.
func (s *MarketSeries) AbnormalReturns(rate float64) []float64 {
	r := s.StockReturns()
	for t := range r {
		r[t] -= rate
	}
	return r
}

// ReturnVolatility is the rolling standard deviation of stock returns.
func (s *MarketSeries) ReturnVolatility(window int) ([]float64, error) {
	return rollingStd(s.StockReturns(), window)
}

// PriceVolatility is the rolling standard deviation of prices.
func (s *MarketSeries) PriceVolatility(window int) ([]float64, error) {
	return rollingStd(s.Prices, window)
}

// Liquidity is the bid-ask spread relative to the price at each tick.
func (s *MarketSeries) Liquidity() []float64 {
	out := make([]float64, len(s.Prices))
	for t, p := range s.Prices {
		out[t] = (s.Spreads[t].Ask - s.Spreads[t].Bid) / p
	}
	return out
}

// Rolling applies a trailing moving average of width roll.
func Rolling(xs []float64, roll int) []float64 {
	if roll <= 1 {
		return append([]float64(nil), xs...)
	}
	if len(xs) < roll {
		return nil
	}
	out := make([]float64, 0, len(xs)-roll+1)
	var sum float64
	for t, x := range xs {
		sum += x
		if t >= roll {
			sum -= xs[t-roll]
		}
		if t >= roll-1 {
			out = append(out, sum/float64(roll))
		}
	}
	return out
}

func rollingStd(xs []float64, window int) ([]float64, error) {
	if window < 2 {
		return nil, fmt.Errorf("window must be at least 2, got %d", window)
	}
	if len(xs) < window {
		return nil, nil
	}
	out := make([]float64, 0, len(xs)-window+1)
	for t := 0; t+window <= len(xs); t++ {
		out = append(out, std(xs[t:t+window]))
	}
	return out, nil
}

// std is the population standard deviation.
func std(xs []float64) float64 {
	var mean float64
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	var ss float64
	for _, x := range xs {
		ss += (x - mean) * (x - mean)
	}
	return math.Sqrt(ss / float64(len(xs)))
}

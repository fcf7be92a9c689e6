package telemetry

import (
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/marketsim/pkg/app/core/agent"
	"github.com/uhyunpark/marketsim/pkg/app/core/ids"
	"github.com/uhyunpark/marketsim/pkg/app/core/market"
)

// MarketSeries is the per-tick history of one market. Undefined prices are
// stored as NaN.
type MarketSeries struct {
	Market    ids.MarketID
	Prices    []float64
	Spreads   []market.Spread
	Dividends []float64
	Depth     []market.Depth

	Imbalance        []float64
	NormalizedSpread []float64
	SmartPrice       []float64
	TradeSign        []int
	SignedVolume     []int64
	BuyVolume        []int64
	SellVolume       []int64
	PastReturnBps    []float64
}

// AgentSeries is the per-tick history of one agent. An agent injected mid-run
// starts at the tick of its first capture, recorded in Start.
type AgentSeries struct {
	Agent      ids.AgentID
	Kind       string
	Market     ids.MarketID
	Start      int
	Cash       []decimal.Decimal
	Inventory  []int64
	Equity     []float64
	Types      []string
	Sentiments []string // empty entries for agents without sentiment
	Returns    []float64
}

// Info accumulates append-only time series for a run. The core writes to it
// once per tick through Capture and never reads it back except via Snapshot.
type Info struct {
	RunID uuid.UUID

	ticks   int
	markets []*market.Market
	Markets map[ids.MarketID]*MarketSeries
	Agents  map[ids.AgentID]*AgentSeries
	order   []ids.AgentID

	snapshot agent.Snapshot
}

func New(runID uuid.UUID, markets []*market.Market) *Info {
	info := &Info{
		RunID:   runID,
		markets: markets,
		Markets: make(map[ids.MarketID]*MarketSeries, len(markets)),
		Agents:  make(map[ids.AgentID]*AgentSeries),
		snapshot: agent.Snapshot{
			PriceChange: make(map[ids.MarketID]float64),
		},
	}
	for _, m := range markets {
		info.Markets[m.ID] = &MarketSeries{Market: m.ID}
	}
	return info
}

// Ticks returns how many captures were taken.
func (i *Info) Ticks() int { return i.ticks }

// AgentIDs returns every agent ever captured, in first-seen order.
func (i *Info) AgentIDs() []ids.AgentID {
	out := make([]ids.AgentID, len(i.order))
	copy(out, i.order)
	return out
}

func orNaN(v float64, err error) float64 {
	if err != nil {
		return math.NaN()
	}
	return v
}

// Capture appends the current state of every market and agent. It must run
// before agents act so the series describe the state agents observe.
func (i *Info) Capture(pop *agent.Population) error {
	byID := make(map[ids.MarketID]*market.Market, len(i.markets))
	for _, m := range i.markets {
		byID[m.ID] = m
		if err := i.captureMarket(m); err != nil {
			return err
		}
	}

	snap := agent.Snapshot{PriceChange: make(map[ids.MarketID]float64, len(i.markets))}
	var returns float64
	for _, a := range pop.Agents() {
		m, ok := byID[a.Market]
		if !ok {
			return fmt.Errorf("capture %s: market %d not tracked", a.ID, a.Market)
		}
		r, err := i.captureAgent(a, m)
		if err != nil {
			return err
		}
		returns += r

		snap.Traders++
		switch a.Strategy {
		case agent.Fundamental:
			snap.Fundamentalists++
		case agent.Trend:
			snap.Chartists++
			switch a.Sentiment {
			case agent.Optimistic:
				snap.Optimists++
			case agent.Pessimistic:
				snap.Pessimists++
			}
		}
	}
	if snap.Traders > 0 {
		snap.MeanReturn = returns / float64(snap.Traders)
	}
	for id, s := range i.Markets {
		snap.PriceChange[id] = lastChange(s.Prices)
	}
	i.snapshot = snap
	i.ticks++
	return nil
}

func (i *Info) captureMarket(m *market.Market) error {
	s := i.Markets[m.ID]
	price := orNaN(m.Price())
	spread, err := m.Spread()
	if err != nil && !errors.Is(err, market.ErrNoPrice) {
		return err
	}
	if err != nil {
		spread = market.Spread{Bid: math.NaN(), Ask: math.NaN()}
	}
	s.Prices = append(s.Prices, price)
	s.Spreads = append(s.Spreads, spread)
	s.Dividends = append(s.Dividends, m.CurrentDividend())
	s.Depth = append(s.Depth, m.Depth())

	buy, sell := m.AggressiveVolume()
	s.Imbalance = append(s.Imbalance, m.Imbalance())
	s.NormalizedSpread = append(s.NormalizedSpread, orNaN(m.NormalizedSpread()))
	s.SmartPrice = append(s.SmartPrice, orNaN(m.SmartPrice()))
	s.TradeSign = append(s.TradeSign, m.TradeSign())
	s.SignedVolume = append(s.SignedVolume, buy-sell)
	s.BuyVolume = append(s.BuyVolume, buy)
	s.SellVolume = append(s.SellVolume, sell)
	s.PastReturnBps = append(s.PastReturnBps, m.PastReturnBps())
	return nil
}

// captureAgent records a and returns its latest return (0 when undefined).
func (i *Info) captureAgent(a *agent.Agent, m *market.Market) (float64, error) {
	s, ok := i.Agents[a.ID]
	if !ok {
		s = &AgentSeries{Agent: a.ID, Kind: a.Kind.String(), Market: a.Market, Start: i.ticks}
		i.Agents[a.ID] = s
		i.order = append(i.order, a.ID)
	}

	equity := math.NaN()
	eq, err := a.Equity(m)
	switch {
	case err == nil:
		equity = eq.InexactFloat64()
	case !errors.Is(err, market.ErrNoPrice):
		return 0, err
	}

	s.Cash = append(s.Cash, a.Cash)
	s.Inventory = append(s.Inventory, a.Inventory)
	s.Equity = append(s.Equity, equity)
	s.Types = append(s.Types, a.Type())
	sentiment := ""
	if a.HasSentiment() {
		sentiment = a.Sentiment.String()
	}
	s.Sentiments = append(s.Sentiments, sentiment)

	if n := len(s.Equity); n > 1 {
		r := relativeChange(s.Equity[n-2], s.Equity[n-1])
		s.Returns = append(s.Returns, r)
		return r, nil
	}
	return 0, nil
}

// relativeChange is (b - a) / a, or 0 when it is undefined.
func relativeChange(a, b float64) float64 {
	if math.IsNaN(a) || math.IsNaN(b) || a == 0 {
		return 0
	}
	return (b - a) / a
}

func lastChange(prices []float64) float64 {
	n := len(prices)
	if n < 2 || math.IsNaN(prices[n-1]) || math.IsNaN(prices[n-2]) {
		return 0
	}
	return prices[n-1] - prices[n-2]
}

// Snapshot returns the population summary built by the last Capture.
func (i *Info) Snapshot() agent.Snapshot { return i.snapshot }

package scenario

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/marketsim/pkg/app/core/agent"
	"github.com/uhyunpark/marketsim/pkg/app/core/ids"
	"github.com/uhyunpark/marketsim/pkg/app/core/market"
	"github.com/uhyunpark/marketsim/pkg/app/core/orderbook"
)

var ErrNotLinked = errors.New("event is not linked to a simulator")

// Target is the part of the scheduler an event reaches into once linked.
type Target interface {
	Market(id ids.MarketID) (*market.Market, error)
	Population() *agent.Population
	Allocator() *ids.Allocator
	Events() []Event
}

// Event is a one-shot scripted mutation of a market. Call is invoked every
// tick and fires only when it equals the trigger iteration.
type Event interface {
	Iteration() int
	MarketID() ids.MarketID
	Link(t Target) error
	Call(it int) error
	String() string
}

type base struct {
	market ids.MarketID
	it     int

	target Target
	mkt    *market.Market
	fired  bool
}

func (b *base) Iteration() int         { return b.it }
func (b *base) MarketID() ids.MarketID { return b.market }

func (b *base) Link(t Target) error {
	m, err := t.Market(b.market)
	if err != nil {
		return fmt.Errorf("link event at iteration %d: %w", b.it, err)
	}
	b.target = t
	b.mkt = m
	return nil
}

// due reports whether the event fires on it, marking it spent if so.
func (b *base) due(it int) (bool, error) {
	if b.target == nil {
		return false, ErrNotLinked
	}
	if it != b.it || b.fired {
		return false, nil
	}
	b.fired = true
	return true, nil
}

// round1 rounds half to even at one decimal place.
func round1(v float64) float64 {
	return decimal.NewFromFloat(v).RoundBank(1).InexactFloat64()
}

// FundamentalPriceShock moves the fundamental value by Delta: the current and
// every future dividend rise by Delta times the risk-free rate.
type FundamentalPriceShock struct {
	base
	Delta float64
}

func NewFundamentalPriceShock(mkt ids.MarketID, it int, delta float64) *FundamentalPriceShock {
	return &FundamentalPriceShock{base: base{market: mkt, it: it}, Delta: round1(delta)}
}

func (e *FundamentalPriceShock) Call(it int) error {
	ok, err := e.due(it)
	if !ok {
		return err
	}
	e.mkt.Asset().Shift(e.Delta * e.mkt.RiskFree())
	return nil
}

func (e *FundamentalPriceShock) String() string {
	return fmt.Sprintf("fundamental price shock (market=%d, it=%d, dp=%v)", e.market, e.it, e.Delta)
}

// MarketPriceShock moves every resting order on both sides by Delta.
type MarketPriceShock struct {
	base
	Delta float64
}

func NewMarketPriceShock(mkt ids.MarketID, it int, delta float64) *MarketPriceShock {
	return &MarketPriceShock{base: base{market: mkt, it: it}, Delta: round1(delta)}
}

func (e *MarketPriceShock) Call(it int) error {
	ok, err := e.due(it)
	if !ok {
		return err
	}
	return e.mkt.ShiftPrices(e.mkt.ToTicks(e.Delta))
}

func (e *MarketPriceShock) String() string {
	return fmt.Sprintf("market price shock (market=%d, it=%d, dp=%v)", e.market, e.it, e.Delta)
}

// LiquidityShock sends one large ownerless market order. A negative Volume
// buys, a positive one sells.
type LiquidityShock struct {
	base
	Volume int64
}

func NewLiquidityShock(mkt ids.MarketID, it int, volume int64) *LiquidityShock {
	return &LiquidityShock{base: base{market: mkt, it: it}, Volume: volume}
}

func (e *LiquidityShock) Call(it int) error {
	ok, err := e.due(it)
	if !ok || e.Volume == 0 {
		return err
	}
	side, qty := orderbook.Ask, e.Volume
	if e.Volume < 0 {
		side, qty = orderbook.Bid, -e.Volume
	}
	_, err = e.mkt.MarketOrder(ids.NoAgent, side, qty)
	return err
}

func (e *LiquidityShock) String() string {
	return fmt.Sprintf("liquidity shock (market=%d, it=%d, dv=%d)", e.market, e.it, e.Volume)
}

// InformationShock sets how many future dividends every fundamentalist and
// universalist on the market can see.
type InformationShock struct {
	base
	Access int
}

func NewInformationShock(mkt ids.MarketID, it int, access int) *InformationShock {
	return &InformationShock{base: base{market: mkt, it: it}, Access: access}
}

func (e *InformationShock) Call(it int) error {
	ok, err := e.due(it)
	if !ok {
		return err
	}
	for _, a := range e.target.Population().Agents() {
		if a.Market != e.market {
			continue
		}
		if a.Kind == agent.KindFundamentalist || a.Kind == agent.KindUniversalist {
			a.Access = e.Access
		}
	}
	return nil
}

func (e *InformationShock) String() string {
	return fmt.Sprintf("information shock (market=%d, it=%d, access=%d)", e.market, e.it, e.Access)
}

// MarketMakerIn injects a market maker. Only makers added this way can be
// taken out again by MarketMakerOut.
type MarketMakerIn struct {
	base
	Cash      decimal.Decimal
	Assets    int64
	SoftLimit int64

	maker ids.AgentID
}

const (
	DefaultMakerCash      = 1000
	DefaultMakerSoftLimit = 100
)

func NewMarketMakerIn(mkt ids.MarketID, it int, cash decimal.Decimal, assets, softLimit int64) *MarketMakerIn {
	return &MarketMakerIn{
		base:      base{market: mkt, it: it},
		Cash:      cash,
		Assets:    assets,
		SoftLimit: softLimit,
	}
}

// Maker returns the injected agent, or ids.NoAgent before the event fires.
func (e *MarketMakerIn) Maker() ids.AgentID { return e.maker }

func (e *MarketMakerIn) Call(it int) error {
	ok, err := e.due(it)
	if !ok {
		return err
	}
	id := e.target.Allocator().NextAgent()
	if err := e.target.Population().Add(agent.NewMarketMaker(id, e.market, e.Cash, e.Assets, e.SoftLimit)); err != nil {
		return fmt.Errorf("%s: %w", e, err)
	}
	e.maker = id
	return nil
}

func (e *MarketMakerIn) String() string {
	return fmt.Sprintf("market maker in (market=%d, it=%d, softlimit=%d)", e.market, e.it, e.SoftLimit)
}

// MarketMakerOut evicts the maker injected by the latest earlier
// MarketMakerIn on the same market and cancels its resting orders.
type MarketMakerOut struct {
	base
	in *MarketMakerIn
}

func NewMarketMakerOut(mkt ids.MarketID, it int) *MarketMakerOut {
	return &MarketMakerOut{base: base{market: mkt, it: it}}
}

func (e *MarketMakerOut) Link(t Target) error {
	if err := e.base.Link(t); err != nil {
		return err
	}
	for _, ev := range t.Events() {
		in, ok := ev.(*MarketMakerIn)
		if ok && in.market == e.market && in.it < e.it {
			e.in = in
		}
	}
	if e.in == nil {
		return fmt.Errorf("%s: no earlier market maker in on market %d", e, e.market)
	}
	return nil
}

func (e *MarketMakerOut) Call(it int) error {
	ok, err := e.due(it)
	if !ok {
		return err
	}
	id := e.in.Maker()
	if id == ids.NoAgent {
		return fmt.Errorf("%s: market maker was never injected", e)
	}
	if _, err := e.target.Population().Evict(id, e.mkt); err != nil {
		return fmt.Errorf("%s: %w", e, err)
	}
	return nil
}

func (e *MarketMakerOut) String() string {
	return fmt.Sprintf("market maker out (market=%d, it=%d)", e.market, e.it)
}

// TransactionCost sets the fraction charged on every subsequent trade.
type TransactionCost struct {
	base
	Cost float64
}

func NewTransactionCost(mkt ids.MarketID, it int, cost float64) *TransactionCost {
	return &TransactionCost{base: base{market: mkt, it: it}, Cost: cost}
}

func (e *TransactionCost) Call(it int) error {
	ok, err := e.due(it)
	if !ok {
		return err
	}
	return e.mkt.SetTransactionCost(e.Cost)
}

func (e *TransactionCost) String() string {
	return fmt.Sprintf("transaction cost (market=%d, it=%d, cost=%v)", e.market, e.it, e.Cost)
}

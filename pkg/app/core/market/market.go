package market

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/marketsim/pkg/app/core/asset"
	"github.com/uhyunpark/marketsim/pkg/app/core/ids"
	"github.com/uhyunpark/marketsim/pkg/app/core/orderbook"
	"github.com/uhyunpark/marketsim/pkg/util"
)

var (
	// ErrNoPrice means there is no executable price: one side of the book is
	// empty or the midpoint is not positive. Callers skip the action instead
	// of failing.
	ErrNoPrice = errors.New("no executable price")

	ErrCrossedBook = errors.New("crossed book")
)

// Ledger receives the accounting side of every trade. The agent population
// implements it; a nil Ledger leaves trades unsettled.
type Ledger interface {
	// Settle credits qty units (positive for the buyer, negative for the seller)
	// and the signed cash amount to owner.
	Settle(owner ids.AgentID, qty int64, cash decimal.Decimal) error
	// OrderClosed tells owner that its resting order was fully filled.
	OrderClosed(owner ids.AgentID, id ids.OrderID) error
}

type Spread struct {
	Bid float64
	Ask float64
}

type Depth struct {
	BidOrders int
	AskOrders int
	BidVolume int64
	AskVolume int64
}

// Market is the exchange for one asset: a bid book, an ask book and the
// tape of trades executed since the last ClearTape.
type Market struct {
	ID ids.MarketID

	params   Params
	tick     decimal.Decimal
	bids     *orderbook.Book
	asks     *orderbook.Book
	asset    *asset.Asset
	riskFree float64
	cost     float64

	tape     []orderbook.Fill
	refPrice int64 // mid price in ticks when the tape was last cleared
	hasRef   bool

	ledger Ledger
	alloc  *ids.Allocator
}

// New builds a market around a, seeding the book from p with draws from rng.
func New(id ids.MarketID, p Params, a *asset.Asset, ledger Ledger, alloc *ids.Allocator, rng util.Rand) (*Market, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid market params: %w", err)
	}
	if a == nil {
		return nil, fmt.Errorf("market %d: asset is required", id)
	}
	if alloc == nil {
		alloc = ids.NewAllocator()
	}

	m := &Market{
		ID:       id,
		params:   p,
		tick:     decimal.NewFromFloat(p.TickSize),
		bids:     orderbook.NewBook(orderbook.Bid),
		asks:     orderbook.NewBook(orderbook.Ask),
		asset:    a,
		riskFree: p.RiskFree,
		cost:     p.TransactionCost,
		ledger:   ledger,
		alloc:    alloc,
	}
	if err := m.fillBook(rng); err != nil {
		return nil, err
	}
	m.refPrice, m.hasRef = m.midTicks()
	return m, nil
}

// fillBook seeds Volume ownerless orders: half priced around Price-Std, half
// around Price+Std, sorted, paired with U{1..5} quantities. Orders above Price
// go to the ask side.
func (m *Market) fillBook(rng util.Rand) error {
	half := m.params.Volume / 2
	prices := make([]int64, 0, 2*half)
	for i := 0; i < half; i++ {
		prices = append(prices, m.ToTicks(util.Normal(rng, m.params.Price-m.params.Std, m.params.Std)))
	}
	for i := 0; i < half; i++ {
		prices = append(prices, m.ToTicks(util.Normal(rng, m.params.Price+m.params.Std, m.params.Std)))
	}
	qtys := make([]int64, m.params.Volume)
	for i := range qtys {
		qtys[i] = int64(util.IntBetween(rng, 1, 5))
	}
	sort.Slice(prices, func(i, j int) bool { return prices[i] < prices[j] })

	centre := m.ToTicks(m.params.Price)
	for i, price := range prices {
		o := orderbook.Order{
			ID:    m.alloc.NextOrder(),
			Type:  orderbook.Limit,
			Price: max(price, 1),
			Qty:   qtys[i],
			Owner: ids.NoAgent,
		}
		book := m.bids
		o.Side = orderbook.Bid
		if price > centre {
			book = m.asks
			o.Side = orderbook.Ask
		}
		if err := book.Insert(o); err != nil {
			return fmt.Errorf("seed book: %w", err)
		}
	}
	return nil
}

func (m *Market) books(side orderbook.Side) (own, opposite *orderbook.Book) {
	if side == orderbook.Bid {
		return m.bids, m.asks
	}
	return m.asks, m.bids
}

// LimitOrder submits a limit order. The part that crosses the opposite side is
// matched immediately and any remainder rests. The returned bool reports
// whether a remainder rests under the returned Ref. Prices below one tick are
// raised to one tick.
func (m *Market) LimitOrder(owner ids.AgentID, side orderbook.Side, price, qty int64) (orderbook.Ref, bool, error) {
	if qty <= 0 {
		return orderbook.Ref{}, false, nil
	}
	o := orderbook.Order{
		ID:    m.alloc.NextOrder(),
		Side:  side,
		Type:  orderbook.Limit,
		Price: max(price, 1),
		Qty:   qty,
		Owner: owner,
	}

	own, opp := m.books(side)
	if opp.Crosses(o.Price) {
		var fills []orderbook.Fill
		o, fills = opp.Fulfill(o, m.cost)
		if err := m.settle(fills); err != nil {
			return orderbook.Ref{}, false, err
		}
	}
	rested := false
	if o.Qty > 0 {
		if err := own.Insert(o); err != nil {
			return orderbook.Ref{}, false, err
		}
		rested = true
	}
	if err := m.checkUncrossed(); err != nil {
		return orderbook.Ref{}, false, err
	}
	return o.Ref(), rested, nil
}

// MarketOrder matches qty against the opposite side regardless of price and
// returns the unfilled remainder. A remainder is not an error.
func (m *Market) MarketOrder(owner ids.AgentID, side orderbook.Side, qty int64) (int64, error) {
	if qty <= 0 {
		return 0, nil
	}
	o := orderbook.Order{
		ID:    m.alloc.NextOrder(),
		Side:  side,
		Type:  orderbook.Market,
		Qty:   qty,
		Owner: owner,
	}
	_, opp := m.books(side)
	rem, fills := opp.Fulfill(o, m.cost)
	if err := m.settle(fills); err != nil {
		return rem.Qty, err
	}
	return rem.Qty, nil
}

// CancelOrder removes a resting order. A missing order is a logic fault.
func (m *Market) CancelOrder(ref orderbook.Ref) error {
	own, _ := m.books(ref.Side)
	if _, err := own.Remove(ref.ID); err != nil {
		return fmt.Errorf("market %d: cancel: %w", m.ID, err)
	}
	return nil
}

// Order looks up a resting order.
func (m *Market) Order(ref orderbook.Ref) (orderbook.Order, bool) {
	own, _ := m.books(ref.Side)
	return own.Get(ref.ID)
}

func (m *Market) settle(fills []orderbook.Fill) error {
	one := decimal.NewFromInt(1)
	for _, f := range fills {
		m.tape = append(m.tape, f)
		if m.ledger == nil {
			continue
		}
		notional := m.FromTicksDecimal(f.Price).Mul(decimal.NewFromInt(f.Qty))
		cost := decimal.NewFromFloat(f.Cost)

		if buyer := f.Buyer(); buyer != ids.NoAgent {
			if err := m.ledger.Settle(buyer, f.Qty, notional.Mul(one.Add(cost)).Neg()); err != nil {
				return fmt.Errorf("market %d: settle buyer: %w", m.ID, err)
			}
		}
		if seller := f.Seller(); seller != ids.NoAgent {
			if err := m.ledger.Settle(seller, -f.Qty, notional.Mul(one.Sub(cost))); err != nil {
				return fmt.Errorf("market %d: settle seller: %w", m.ID, err)
			}
		}
		if f.MakerDone && f.Maker != ids.NoAgent {
			if err := m.ledger.OrderClosed(f.Maker, f.MakerOrder); err != nil {
				return fmt.Errorf("market %d: close order: %w", m.ID, err)
			}
		}
	}
	return nil
}

func (m *Market) checkUncrossed() error {
	bid, okb := m.bids.Best()
	ask, oka := m.asks.Best()
	if okb && oka && bid >= ask {
		return fmt.Errorf("market %d: best bid %d >= best ask %d: %w", m.ID, bid, ask, ErrCrossedBook)
	}
	return nil
}

// SpreadTicks returns the best bid and ask in ticks.
func (m *Market) SpreadTicks() (int64, int64, error) {
	bid, okb := m.bids.Best()
	ask, oka := m.asks.Best()
	if !okb || !oka {
		return 0, 0, ErrNoPrice
	}
	return bid, ask, nil
}

// Spread returns the best bid and ask prices.
func (m *Market) Spread() (Spread, error) {
	bid, ask, err := m.SpreadTicks()
	if err != nil {
		return Spread{}, err
	}
	return Spread{Bid: m.FromTicks(bid), Ask: m.FromTicks(ask)}, nil
}

// midTicks is the bid/ask midpoint rounded half-to-even to a whole tick.
// A midpoint at or below zero, reachable after a large negative price shock,
// is not a price.
func (m *Market) midTicks() (int64, bool) {
	bid, ask, err := m.SpreadTicks()
	if err != nil {
		return 0, false
	}
	mid := decimal.NewFromInt(bid + ask).Div(decimal.NewFromInt(2)).RoundBank(0).IntPart()
	if mid <= 0 {
		return 0, false
	}
	return mid, true
}

// PriceTicks returns the mid price in ticks.
func (m *Market) PriceTicks() (int64, error) {
	mid, ok := m.midTicks()
	if !ok {
		return 0, ErrNoPrice
	}
	return mid, nil
}

// PriceDecimal returns the mid price rounded to the tick.
func (m *Market) PriceDecimal() (decimal.Decimal, error) {
	mid, err := m.PriceTicks()
	if err != nil {
		return decimal.Zero, err
	}
	return m.FromTicksDecimal(mid), nil
}

// Price returns the mid price rounded to the tick.
func (m *Market) Price() (float64, error) {
	p, err := m.PriceDecimal()
	if err != nil {
		return 0, err
	}
	return p.InexactFloat64(), nil
}

// ToTicks converts a price to the nearest whole tick.
func (m *Market) ToTicks(price float64) int64 {
	return decimal.NewFromFloat(price).Div(m.tick).RoundBank(0).IntPart()
}

func (m *Market) FromTicksDecimal(ticks int64) decimal.Decimal {
	return m.tick.Mul(decimal.NewFromInt(ticks))
}

func (m *Market) FromTicks(ticks int64) float64 {
	return m.FromTicksDecimal(ticks).InexactFloat64()
}

func (m *Market) TickSize() float64 { return m.params.TickSize }

func (m *Market) Params() Params { return m.params }

func (m *Market) Asset() *asset.Asset { return m.asset }

// Dividend returns the current dividend followed by access future ones.
func (m *Market) Dividend(access int) []float64 { return m.asset.Dividend(access) }

// CurrentDividend returns the dividend paid this tick.
func (m *Market) CurrentDividend() float64 { return m.asset.Current() }

func (m *Market) RiskFree() float64 { return m.riskFree }

func (m *Market) TransactionCost() float64 { return m.cost }

// SetTransactionCost changes the cost charged on subsequent trades.
func (m *Market) SetTransactionCost(c float64) error {
	if err := validateCost(c); err != nil {
		return fmt.Errorf("market %d: %w", m.ID, err)
	}
	m.cost = c
	return nil
}

// ShiftPrices moves every resting order on both sides by delta ticks.
func (m *Market) ShiftPrices(delta int64) error {
	m.bids.Shift(delta)
	m.asks.Shift(delta)
	return m.checkUncrossed()
}

// Depth reports order counts and volumes per side.
func (m *Market) Depth() Depth {
	return Depth{
		BidOrders: m.bids.Len(),
		AskOrders: m.asks.Len(),
		BidVolume: m.bids.Volume(),
		AskVolume: m.asks.Volume(),
	}
}

// Levels returns aggregated book levels, best first on each side.
func (m *Market) Levels() (bids, asks []orderbook.PriceLevel) {
	return m.bids.Levels(), m.asks.Levels()
}

// HasSide reports whether anything rests on side.
func (m *Market) HasSide(side orderbook.Side) bool {
	own, _ := m.books(side)
	return !own.Empty()
}

// Tape returns a copy of the trades executed since the last ClearTape.
func (m *Market) Tape() []orderbook.Fill {
	out := make([]orderbook.Fill, len(m.tape))
	copy(out, m.tape)
	return out
}

// ClearTape empties the tape and remembers the current mid price as the
// reference for PastReturnBps.
func (m *Market) ClearTape() {
	m.tape = m.tape[:0]
	m.refPrice, m.hasRef = m.midTicks()
}

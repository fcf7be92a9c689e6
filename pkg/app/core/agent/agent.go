package agent

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/marketsim/pkg/app/core/ids"
	"github.com/uhyunpark/marketsim/pkg/app/core/market"
	"github.com/uhyunpark/marketsim/pkg/app/core/orderbook"
)

var (
	ErrNotOwner       = errors.New("order is not owned by agent")
	ErrUnknownAgent   = errors.New("unknown agent")
	ErrWrongMarket    = errors.New("agent does not trade on this market")
	ErrDuplicateAgent = errors.New("agent already registered")
)

// cashPlaces bounds the precision of cash after interest is compounded.
const cashPlaces = 8

// Kind is the variant an agent was created as. It never changes.
type Kind uint8

const (
	KindRandom Kind = iota
	KindFundamentalist
	KindChartist
	KindUniversalist
	KindMarketMaker
)

func (k Kind) String() string {
	switch k {
	case KindRandom:
		return "Random"
	case KindFundamentalist:
		return "Fundamentalist"
	case KindChartist:
		return "Chartist"
	case KindUniversalist:
		return "Universalist"
	case KindMarketMaker:
		return "Market Maker"
	default:
		return "Unknown"
	}
}

// Strategy is the decision rule an agent currently follows. Only
// universalists switch strategy during a run.
type Strategy uint8

const (
	Noise Strategy = iota
	Fundamental
	Trend
	MarketMaking
)

func (s Strategy) String() string {
	switch s {
	case Noise:
		return "Random"
	case Fundamental:
		return "Fundamentalist"
	case Trend:
		return "Chartist"
	case MarketMaking:
		return "Market Maker"
	default:
		return "Unknown"
	}
}

type Sentiment uint8

const (
	NoSentiment Sentiment = iota
	Optimistic
	Pessimistic
)

func (s Sentiment) String() string {
	switch s {
	case Optimistic:
		return "Optimistic"
	case Pessimistic:
		return "Pessimistic"
	default:
		return ""
	}
}

// Agent is a trader. It carries the union of the state every strategy needs
// and dispatches on Strategy.
type Agent struct {
	ID     ids.AgentID
	Kind   Kind
	Market ids.MarketID

	Strategy  Strategy
	Sentiment Sentiment

	Cash      decimal.Decimal
	Inventory int64

	// Access is the number of future dividends a fundamentalist knows.
	Access int
	// SoftLimit is the inventory band a market maker keeps within.
	SoftLimit int64
	// Panic is set while a market maker is unwinding outside its band.
	Panic bool

	orders []orderbook.Ref
}

func newAgent(id ids.AgentID, kind Kind, strategy Strategy, mkt ids.MarketID, cash decimal.Decimal, assets int64) *Agent {
	return &Agent{
		ID:        id,
		Kind:      kind,
		Market:    mkt,
		Strategy:  strategy,
		Cash:      cash,
		Inventory: assets,
	}
}

// Type is the label of the strategy the agent follows right now.
func (a *Agent) Type() string { return a.Strategy.String() }

// HasSentiment reports whether the variant carries a market view.
func (a *Agent) HasSentiment() bool {
	return a.Kind == KindChartist || a.Kind == KindUniversalist
}

// Orders returns the references of the agent's resting orders.
func (a *Agent) Orders() []orderbook.Ref {
	out := make([]orderbook.Ref, len(a.orders))
	copy(out, a.orders)
	return out
}

func (a *Agent) checkMarket(m *market.Market) error {
	if m == nil || m.ID != a.Market {
		return fmt.Errorf("%s: %w", a.ID, ErrWrongMarket)
	}
	return nil
}

// Income pays one tick of risk-free interest on cash and the current
// dividend on every unit held. It never touches the book.
func (a *Agent) Income(m *market.Market) error {
	if err := a.checkMarket(m); err != nil {
		return err
	}
	interest := a.Cash.Mul(decimal.NewFromFloat(m.RiskFree()))
	dividend := decimal.NewFromFloat(m.CurrentDividend()).Mul(decimal.NewFromInt(a.Inventory))
	a.Cash = a.Cash.Add(interest).Add(dividend).Round(cashPlaces)
	return nil
}

// Equity values the agent at the current mid price. It returns
// market.ErrNoPrice when the price is undefined.
func (a *Agent) Equity(m *market.Market) (decimal.Decimal, error) {
	if err := a.checkMarket(m); err != nil {
		return decimal.Zero, err
	}
	p, err := m.PriceDecimal()
	if err != nil {
		return decimal.Zero, err
	}
	return a.Cash.Add(p.Mul(decimal.NewFromInt(a.Inventory))), nil
}

func (a *Agent) limit(m *market.Market, side orderbook.Side, qty int64, price float64) error {
	ref, rested, err := m.LimitOrder(a.ID, side, m.ToTicks(price), qty)
	if err != nil {
		return err
	}
	if rested {
		a.orders = append(a.orders, ref)
	}
	return nil
}

func (a *Agent) buyLimit(m *market.Market, qty int64, price float64) error {
	return a.limit(m, orderbook.Bid, qty, price)
}

func (a *Agent) sellLimit(m *market.Market, qty int64, price float64) error {
	return a.limit(m, orderbook.Ask, qty, price)
}

// buyMarket and sellMarket return the unfilled quantity.
func (a *Agent) buyMarket(m *market.Market, qty int64) (int64, error) {
	return m.MarketOrder(a.ID, orderbook.Bid, qty)
}

func (a *Agent) sellMarket(m *market.Market, qty int64) (int64, error) {
	return m.MarketOrder(a.ID, orderbook.Ask, qty)
}

func (a *Agent) cancel(m *market.Market, ref orderbook.Ref) error {
	i := a.indexOf(ref.ID)
	if i < 0 {
		return fmt.Errorf("%s cancel %s: %w", a.ID, ref.ID, ErrNotOwner)
	}
	if err := m.CancelOrder(ref); err != nil {
		return err
	}
	a.orders = append(a.orders[:i], a.orders[i+1:]...)
	return nil
}

// CancelAll withdraws every resting order the agent owns.
func (a *Agent) CancelAll(m *market.Market) error {
	if err := a.checkMarket(m); err != nil {
		return err
	}
	for _, ref := range a.Orders() {
		if err := a.cancel(m, ref); err != nil {
			return err
		}
	}
	return nil
}

// forget drops a reference once the order has been filled.
func (a *Agent) forget(id ids.OrderID) error {
	i := a.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%s forget %s: %w", a.ID, id, ErrNotOwner)
	}
	a.orders = append(a.orders[:i], a.orders[i+1:]...)
	return nil
}

func (a *Agent) indexOf(id ids.OrderID) int {
	for i, ref := range a.orders {
		if ref.ID == id {
			return i
		}
	}
	return -1
}

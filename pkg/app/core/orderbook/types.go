package orderbook

import (
	"errors"

	"github.com/uhyunpark/marketsim/pkg/app/core/ids"
)

var (
	ErrOrderNotFound  = errors.New("order not found")
	ErrDuplicateOrder = errors.New("order already resting")
	ErrWrongSide      = errors.New("order side does not match book")
)

type Side int8

const (
	Bid Side = 1
	Ask Side = -1
)

func (s Side) String() string {
	switch s {
	case Bid:
		return "bid"
	case Ask:
		return "ask"
	default:
		return "unknown"
	}
}

// Opposite returns the side an incoming order of side s matches against.
func (s Side) Opposite() Side { return -s }

type OrderType uint8

const (
	Limit OrderType = iota
	Market
)

func (t OrderType) String() string {
	if t == Market {
		return "market"
	}
	return "limit"
}

type Order struct {
	ID    ids.OrderID
	Side  Side
	Type  OrderType
	Price int64 // integer ticks
	Qty   int64
	Owner ids.AgentID
}

// Ref is what an owner keeps for a resting order: enough to cancel it.
type Ref struct {
	ID   ids.OrderID
	Side Side
}

func (o Order) Ref() Ref { return Ref{ID: o.ID, Side: o.Side} }

// Fill is one match between an incoming (taker) order and a resting (maker) order.
// Price is always the maker's price. Cost is the transaction-cost fraction in
// force when the match happened; it does not alter Price.
type Fill struct {
	Price      int64
	Qty        int64
	Side       Side // taker side
	Taker      ids.AgentID
	Maker      ids.AgentID
	MakerOrder ids.OrderID
	MakerDone  bool
	Cost       float64
}

// Buyer and Seller resolve the owners on each side of the fill.
func (f Fill) Buyer() ids.AgentID {
	if f.Side == Bid {
		return f.Taker
	}
	return f.Maker
}

func (f Fill) Seller() ids.AgentID {
	if f.Side == Ask {
		return f.Taker
	}
	return f.Maker
}

type PriceLevel struct {
	Price  int64
	Qty    int64 // total qty at this price level
	Orders int
}

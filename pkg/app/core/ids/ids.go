package ids

import "fmt"

// AgentID identifies a trader within one run. The zero value means "no owner".
type AgentID uint64

// OrderID identifies an order within one run.
type OrderID uint64

// MarketID indexes a market within one run. Markets are numbered from 0.
type MarketID int

// AssetID indexes an asset within one run. Assets are numbered from 0.
type AssetID int

// NoAgent marks orders that belong to nobody (initial book fill, shocks).
const NoAgent AgentID = 0

func (id AgentID) String() string  { return fmt.Sprintf("agent-%d", uint64(id)) }
func (id OrderID) String() string  { return fmt.Sprintf("order-%d", uint64(id)) }
func (id MarketID) String() string { return fmt.Sprintf("market-%d", int(id)) }
func (id AssetID) String() string  { return fmt.Sprintf("asset-%d", int(id)) }

// Allocator hands out monotonically increasing handles for a single run.
// It replaces process-wide counters so that two runs never share identity state.
type Allocator struct {
	agent  uint64
	order  uint64
	market int
	asset  int
}

func NewAllocator() *Allocator { return &Allocator{} }

// NextAgent returns the next agent handle, starting at 1.
func (a *Allocator) NextAgent() AgentID {
	a.agent++
	return AgentID(a.agent)
}

// NextOrder returns the next order handle, starting at 1.
func (a *Allocator) NextOrder() OrderID {
	a.order++
	return OrderID(a.order)
}

// NextMarket returns the next market index, starting at 0.
func (a *Allocator) NextMarket() MarketID {
	id := MarketID(a.market)
	a.market++
	return id
}

// NextAsset returns the next asset index, starting at 0.
func (a *Allocator) NextAsset() AssetID {
	id := AssetID(a.asset)
	a.asset++
	return id
}

// Agents reports how many agent handles were issued.
func (a *Allocator) Agents() int { return int(a.agent) }

// Orders reports how many order handles were issued.
func (a *Allocator) Orders() int { return int(a.order) }

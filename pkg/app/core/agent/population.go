package agent

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/marketsim/pkg/app/core/ids"
	"github.com/uhyunpark/marketsim/pkg/app/core/market"
)

// Population is the arena of agents in a run, indexed by handle and kept in
// registration order. It settles trades for every market it is attached to.
type Population struct {
	agents map[ids.AgentID]*Agent
	order  []ids.AgentID
}

var _ market.Ledger = (*Population)(nil)

func NewPopulation() *Population {
	return &Population{agents: make(map[ids.AgentID]*Agent)}
}

func (p *Population) Add(a *Agent) error {
	if a == nil || a.ID == ids.NoAgent {
		return fmt.Errorf("add agent: invalid handle")
	}
	if _, ok := p.agents[a.ID]; ok {
		return fmt.Errorf("add %s: %w", a.ID, ErrDuplicateAgent)
	}
	p.agents[a.ID] = a
	p.order = append(p.order, a.ID)
	return nil
}

// Remove drops the agent from the arena. Its resting orders are left alone;
// use Evict to withdraw them as well.
func (p *Population) Remove(id ids.AgentID) (*Agent, error) {
	a, ok := p.agents[id]
	if !ok {
		return nil, fmt.Errorf("remove %s: %w", id, ErrUnknownAgent)
	}
	delete(p.agents, id)
	for i, v := range p.order {
		if v == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	return a, nil
}

// Evict cancels every resting order of the agent on m and removes it.
func (p *Population) Evict(id ids.AgentID, m *market.Market) (*Agent, error) {
	a, ok := p.agents[id]
	if !ok {
		return nil, fmt.Errorf("evict %s: %w", id, ErrUnknownAgent)
	}
	if err := a.CancelAll(m); err != nil {
		return nil, fmt.Errorf("evict %s: %w", id, err)
	}
	return p.Remove(id)
}

func (p *Population) Get(id ids.AgentID) (*Agent, bool) {
	a, ok := p.agents[id]
	return a, ok
}

// IDs returns the handles in registration order.
func (p *Population) IDs() []ids.AgentID {
	out := make([]ids.AgentID, len(p.order))
	copy(out, p.order)
	return out
}

// Agents returns the agents in registration order.
func (p *Population) Agents() []*Agent {
	out := make([]*Agent, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.agents[id])
	}
	return out
}

func (p *Population) Len() int { return len(p.order) }

// Settle implements market.Ledger.
func (p *Population) Settle(owner ids.AgentID, qty int64, cash decimal.Decimal) error {
	a, ok := p.agents[owner]
	if !ok {
		return fmt.Errorf("settle %s: %w", owner, ErrUnknownAgent)
	}
	a.Inventory += qty
	a.Cash = a.Cash.Add(cash)
	return nil
}

// OrderClosed implements market.Ledger.
func (p *Population) OrderClosed(owner ids.AgentID, id ids.OrderID) error {
	a, ok := p.agents[owner]
	if !ok {
		return fmt.Errorf("close %s: %w", id, ErrUnknownAgent)
	}
	return a.forget(id)
}

package sim

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/uhyunpark/marketsim/pkg/app/core/agent"
	"github.com/uhyunpark/marketsim/pkg/app/core/asset"
	"github.com/uhyunpark/marketsim/pkg/app/core/ids"
	"github.com/uhyunpark/marketsim/pkg/app/core/market"
	"github.com/uhyunpark/marketsim/pkg/scenario"
	"github.com/uhyunpark/marketsim/pkg/telemetry"
	"github.com/uhyunpark/marketsim/pkg/util"
)

// Journal receives one line per fired scenario event.
type Journal interface {
	Append(line string)
}

// MarketTick is the end-of-tick state of one market. Price, Bid and Ask are
// NaN when undefined.
type MarketTick struct {
	Market   ids.MarketID
	Price    float64
	Bid      float64
	Ask      float64
	Dividend float64
	Trades   int
	Volume   int64
}

// Tick summarises one completed iteration for live observers.
type Tick struct {
	RunID     uuid.UUID
	Iteration int
	Agents    int
	Markets   []MarketTick
}

// Options wires a Simulator. Markets must share Population as their ledger
// and Allocator as their order id source.
type Options struct {
	RunID      uuid.UUID
	Markets    []*market.Market
	Assets     []*asset.Asset
	Population *agent.Population
	Allocator  *ids.Allocator
	Events     []scenario.Event
	Rand       util.Rand
	Logger     *zap.SugaredLogger
}

// Simulator drives the per-tick control loop. It owns the iteration counter
// and is the only component that advances phases.
type Simulator struct {
	Logger      *zap.SugaredLogger
	Journal     Journal
	OnTick      func(Tick)
	LogInterval int

	registry *market.Registry
	assets   []*asset.Asset
	pop      *agent.Population
	alloc    *ids.Allocator
	events   []scenario.Event
	info     *telemetry.Info
	rng      util.Rand
	it       int
}

var _ scenario.Target = (*Simulator)(nil)

// New builds a simulator and links every event to it.
func New(o Options) (*Simulator, error) {
	if o.Population == nil || o.Allocator == nil || o.Rand == nil {
		return nil, fmt.Errorf("simulator needs a population, an allocator and a random source")
	}
	if o.RunID == uuid.Nil {
		o.RunID = uuid.New()
	}
	s := &Simulator{
		Logger:   util.OrNop(o.Logger),
		registry: market.NewRegistry(),
		assets:   o.Assets,
		pop:      o.Population,
		alloc:    o.Allocator,
		events:   o.Events,
		info:     telemetry.New(o.RunID, o.Markets),
		rng:      o.Rand,
	}
	for _, m := range o.Markets {
		if err := s.registry.Register(m); err != nil {
			return nil, err
		}
	}
	for _, a := range o.Population.Agents() {
		if _, err := s.registry.Get(a.Market); err != nil {
			return nil, fmt.Errorf("%s: %w", a.ID, err)
		}
	}
	for _, ev := range s.events {
		if err := ev.Link(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Simulate runs n more iterations.
func (s *Simulator) Simulate(n int) (*Simulator, error) {
	return s, s.Run(context.Background(), n)
}

// Run is Simulate with a context checked between iterations. A cancelled
// context aborts the run after the current iteration completes.
func (s *Simulator) Run(ctx context.Context, n int) error {
	if n < 0 {
		return fmt.Errorf("iteration count must be non-negative, got %d", n)
	}
	s.Logger.Infow("simulation_started",
		"run_id", s.info.RunID,
		"from", s.it,
		"iterations", n,
		"markets", s.registry.Count(),
		"agents", s.pop.Len(),
		"events", len(s.events),
	)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			s.Logger.Warnw("simulation_interrupted", "iteration", s.it, "err", err)
			return err
		}
		if err := s.step(); err != nil {
			s.Logger.Errorw("simulation_aborted", "iteration", s.it, "err", err)
			return fmt.Errorf("iteration %d: %w", s.it, err)
		}
	}
	s.Logger.Infow("simulation_finished", "run_id", s.info.RunID, "iterations", s.it)
	return nil
}

// step runs one iteration: events, capture, tape reset, agent actions,
// income, dividend update.
func (s *Simulator) step() error {
	it := s.it
	markets := s.registry.List()

	for _, ev := range s.events {
		fires := ev.Iteration() == it
		if err := ev.Call(it); err != nil {
			return fmt.Errorf("%s: %w", ev, err)
		}
		if fires {
			s.Logger.Infow("event_fired", "iteration", it, "market", ev.MarketID(), "event", ev.String())
			if s.Journal != nil {
				s.Journal.Append(fmt.Sprintf("run=%s it=%d %s", s.info.RunID, it, ev))
			}
		}
	}

	if err := s.info.Capture(s.pop); err != nil {
		return err
	}

	for _, m := range markets {
		m.ClearTape()
	}

	agents := s.pop.Agents()
	s.rng.Shuffle(len(agents), func(i, j int) { agents[i], agents[j] = agents[j], agents[i] })
	snap := s.info.Snapshot()
	for _, a := range agents {
		m, err := s.registry.Get(a.Market)
		if err != nil {
			return err
		}
		if err := a.PreAction(snap, m, s.rng); err != nil {
			return err
		}
		if err := a.Call(m, s.rng); err != nil {
			return err
		}
	}

	for _, a := range s.pop.Agents() {
		m, err := s.registry.Get(a.Market)
		if err != nil {
			return err
		}
		if err := a.Income(m); err != nil {
			return err
		}
	}

	for _, a := range s.assets {
		a.Update(s.rng)
	}

	s.it++
	s.report(markets)
	return nil
}

func (s *Simulator) report(markets []*market.Market) {
	if s.LogInterval > 0 && s.it%s.LogInterval == 0 {
		for _, m := range markets {
			price, err := m.Price()
			if errors.Is(err, market.ErrNoPrice) {
				price = math.NaN()
			}
			s.Logger.Infow("tick_progress",
				"iteration", s.it,
				"market", m.ID,
				"price", price,
				"dividend", m.CurrentDividend(),
				"agents", s.pop.Len(),
			)
		}
	}
	if s.OnTick != nil {
		s.OnTick(s.summary(markets))
	}
}

func (s *Simulator) summary(markets []*market.Market) Tick {
	t := Tick{RunID: s.info.RunID, Iteration: s.it - 1, Agents: s.pop.Len()}
	for _, m := range markets {
		mt := MarketTick{Market: m.ID, Price: math.NaN(), Bid: math.NaN(), Ask: math.NaN(), Dividend: m.CurrentDividend()}
		if p, err := m.Price(); err == nil {
			mt.Price = p
		}
		if sp, err := m.Spread(); err == nil {
			mt.Bid, mt.Ask = sp.Bid, sp.Ask
		}
		for _, f := range m.Tape() {
			mt.Trades++
			mt.Volume += f.Qty
		}
		t.Markets = append(t.Markets, mt)
	}
	return t
}

// Iteration returns the number of completed iterations.
func (s *Simulator) Iteration() int { return s.it }

func (s *Simulator) Info() *telemetry.Info { return s.info }

func (s *Simulator) RunID() uuid.UUID { return s.info.RunID }

// Markets returns the markets ordered by id.
func (s *Simulator) Markets() []*market.Market { return s.registry.List() }

// Market implements scenario.Target.
func (s *Simulator) Market(id ids.MarketID) (*market.Market, error) { return s.registry.Get(id) }

func (s *Simulator) Population() *agent.Population { return s.pop }

func (s *Simulator) Allocator() *ids.Allocator { return s.alloc }

func (s *Simulator) Events() []scenario.Event { return s.events }

package storage

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/uhyunpark/marketsim/pkg/app/core/ids"
	"github.com/uhyunpark/marketsim/pkg/telemetry"
)

type InMemoryRunStore struct {
	mu      sync.Mutex
	runs    map[uuid.UUID]Run
	markets map[uuid.UUID]map[ids.MarketID]*telemetry.MarketSeries
	agents  map[uuid.UUID]map[ids.AgentID]*telemetry.AgentSeries
}

var _ RunStore = (*InMemoryRunStore)(nil)

func NewInMemoryRunStore() *InMemoryRunStore {
	return &InMemoryRunStore{
		runs:    make(map[uuid.UUID]Run),
		markets: make(map[uuid.UUID]map[ids.MarketID]*telemetry.MarketSeries),
		agents:  make(map[uuid.UUID]map[ids.AgentID]*telemetry.AgentSeries),
	}
}

func (s *InMemoryRunStore) SaveRun(r Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[r.ID] = r
	return nil
}

func (s *InMemoryRunStore) LoadRun(id uuid.UUID) (Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok {
		return Run{}, fmt.Errorf("run %s: %w", id, ErrRunNotFound)
	}
	return r, nil
}

func (s *InMemoryRunStore) ListRuns() ([]Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	runs := make([]Run, 0, len(s.runs))
	for _, r := range s.runs {
		runs = append(runs, r)
	}
	sortRuns(runs)
	return runs, nil
}

func (s *InMemoryRunStore) SaveMarketSeries(run uuid.UUID, ms *telemetry.MarketSeries) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markets[run] == nil {
		s.markets[run] = make(map[ids.MarketID]*telemetry.MarketSeries)
	}
	s.markets[run][ms.Market] = ms
	return nil
}

func (s *InMemoryRunStore) LoadMarketSeries(run uuid.UUID, id ids.MarketID) (*telemetry.MarketSeries, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ms, ok := s.markets[run][id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrRunNotFound)
	}
	return ms, nil
}

func (s *InMemoryRunStore) SaveAgentSeries(run uuid.UUID, as *telemetry.AgentSeries) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.agents[run] == nil {
		s.agents[run] = make(map[ids.AgentID]*telemetry.AgentSeries)
	}
	s.agents[run][as.Agent] = as
	return nil
}

func (s *InMemoryRunStore) LoadAgentSeries(run uuid.UUID, id ids.AgentID) (*telemetry.AgentSeries, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	as, ok := s.agents[run][id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrRunNotFound)
	}
	return as, nil
}

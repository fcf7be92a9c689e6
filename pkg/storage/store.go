package storage

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/uhyunpark/marketsim/pkg/app/core/ids"
	"github.com/uhyunpark/marketsim/pkg/telemetry"
)

var ErrRunNotFound = errors.New("run not found")

// Run is the metadata of one archived simulation.
type Run struct {
	ID         uuid.UUID
	Seed       uint64
	Iterations int
	Scenario   string
	RiskFree   float64
	Markets    []ids.MarketID
	Agents     []ids.AgentID
	StartedAt  time.Time
	FinishedAt time.Time
}

// RunStore archives finished runs and serves them back.
type RunStore interface {
	SaveRun(r Run) error
	LoadRun(id uuid.UUID) (Run, error)
	ListRuns() ([]Run, error)
	SaveMarketSeries(run uuid.UUID, s *telemetry.MarketSeries) error
	LoadMarketSeries(run uuid.UUID, id ids.MarketID) (*telemetry.MarketSeries, error)
	SaveAgentSeries(run uuid.UUID, s *telemetry.AgentSeries) error
	LoadAgentSeries(run uuid.UUID, id ids.AgentID) (*telemetry.AgentSeries, error)
}

// Archive writes a finished run and all of its series.
func Archive(s RunStore, r Run, info *telemetry.Info) error {
	for _, id := range r.Markets {
		if ms, ok := info.Markets[id]; ok {
			if err := s.SaveMarketSeries(r.ID, ms); err != nil {
				return err
			}
		}
	}
	for _, id := range r.Agents {
		if as, ok := info.Agents[id]; ok {
			if err := s.SaveAgentSeries(r.ID, as); err != nil {
				return err
			}
		}
	}
	// metadata last so a listed run always has its series
	return s.SaveRun(r)
}

package storage

import (
	"errors"
	"fmt"
	"sort"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"

	"github.com/uhyunpark/marketsim/pkg/app/core/ids"
	"github.com/uhyunpark/marketsim/pkg/telemetry"
)

type PebbleStore struct {
	db *pebble.DB
}

var _ RunStore = (*PebbleStore)(nil)

func Open(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open run archive %s: %w", path, err)
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

func (s *PebbleStore) put(key []byte, v any, what string) error {
	val, err := encodeGob(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", what, err)
	}
	if err := s.db.Set(key, val, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save %s: %w", what, err)
	}
	return nil
}

// get decodes the value at key into v. A missing key is ErrRunNotFound.
func (s *PebbleStore) get(key []byte, v any, what string) error {
	val, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return fmt.Errorf("%s: %w", what, ErrRunNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to get %s: %w", what, err)
	}
	defer closer.Close()
	if err := decodeGob(val, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", what, err)
	}
	return nil
}

func (s *PebbleStore) SaveRun(r Run) error {
	return s.put(runKey(r.ID), r, "run "+r.ID.String())
}

func (s *PebbleStore) LoadRun(id uuid.UUID) (Run, error) {
	var r Run
	err := s.get(runKey(id), &r, "run "+id.String())
	return r, err
}

// ListRuns returns every archived run, most recently started first.
func (s *PebbleStore) ListRuns() ([]Run, error) {
	prefix := []byte(prefixRun)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan runs: %w", err)
	}
	defer iter.Close()

	var runs []Run
	for iter.First(); iter.Valid(); iter.Next() {
		var r Run
		if err := decodeGob(iter.Value(), &r); err != nil {
			return nil, fmt.Errorf("failed to decode run %s: %w", iter.Key(), err)
		}
		runs = append(runs, r)
	}
	sortRuns(runs)
	return runs, nil
}

func (s *PebbleStore) SaveMarketSeries(run uuid.UUID, ms *telemetry.MarketSeries) error {
	return s.put(marketKey(run, ms.Market), ms, ms.Market.String())
}

func (s *PebbleStore) LoadMarketSeries(run uuid.UUID, id ids.MarketID) (*telemetry.MarketSeries, error) {
	var ms telemetry.MarketSeries
	if err := s.get(marketKey(run, id), &ms, id.String()); err != nil {
		return nil, err
	}
	return &ms, nil
}

func (s *PebbleStore) SaveAgentSeries(run uuid.UUID, as *telemetry.AgentSeries) error {
	return s.put(agentKey(run, as.Agent), as, as.Agent.String())
}

func (s *PebbleStore) LoadAgentSeries(run uuid.UUID, id ids.AgentID) (*telemetry.AgentSeries, error) {
	var as telemetry.AgentSeries
	if err := s.get(agentKey(run, id), &as, id.String()); err != nil {
		return nil, err
	}
	return &as, nil
}

// DeleteRun removes a run and all of its series in one batch.
func (s *PebbleStore) DeleteRun(id uuid.UUID) error {
	b := s.db.NewBatch()
	defer b.Close()
	for _, prefix := range [][]byte{marketPrefix(id), agentPrefix(id)} {
		if err := b.DeleteRange(prefix, keyUpperBound(prefix), nil); err != nil {
			return fmt.Errorf("failed to delete run %s: %w", id, err)
		}
	}
	if err := b.Delete(runKey(id), nil); err != nil {
		return fmt.Errorf("failed to delete run %s: %w", id, err)
	}
	return b.Commit(pebble.Sync)
}

func sortRuns(runs []Run) {
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].StartedAt.After(runs[j].StartedAt)
		}
		return runs[i].ID.String() < runs[j].ID.String()
	})
}

package sim

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/marketsim/params"
	"github.com/uhyunpark/marketsim/pkg/app/core/agent"
	"github.com/uhyunpark/marketsim/pkg/app/core/asset"
	"github.com/uhyunpark/marketsim/pkg/app/core/ids"
	"github.com/uhyunpark/marketsim/pkg/app/core/market"
	"github.com/uhyunpark/marketsim/pkg/scenario"
	"github.com/uhyunpark/marketsim/pkg/util"
)

func testConfig() params.Config {
	cfg := params.Default()
	cfg.Simulation.Iterations = 60
	cfg.Simulation.LogInterval = 0
	cfg.Market.Volume = 400
	cfg.Agents = params.Agents{
		Random:         6,
		Fundamentalist: 4,
		Chartist:       4,
		Universalist:   4,
		MarketMaker:    1,
		Cash:           1000,
		Assets:         5,
		Access:         2,
		SoftLimit:      50,
	}
	return cfg
}

func build(t *testing.T, cfg params.Config) *Simulator {
	t.Helper()
	s, err := Build(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func samePrices(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] && !(math.IsNaN(a[i]) && math.IsNaN(b[i])) {
			return false
		}
	}
	return true
}

func TestSameSeedSamePrices(t *testing.T) {
	cfg := testConfig()
	cfg.Agents = params.Agents{Random: 20, Cash: 1000, Assets: 5}

	first, err := build(t, cfg).Simulate(cfg.Simulation.Iterations)
	if err != nil {
		t.Fatal(err)
	}
	second, err := build(t, cfg).Simulate(cfg.Simulation.Iterations)
	if err != nil {
		t.Fatal(err)
	}
	p1, _ := first.Info().Prices(0)
	p2, _ := second.Info().Prices(0)
	if len(p1) != cfg.Simulation.Iterations {
		t.Fatalf("expected %d prices, got %d", cfg.Simulation.Iterations, len(p1))
	}
	if !samePrices(p1, p2) {
		t.Errorf("same seed produced different price series")
	}

	cfg.Simulation.Seed++
	third, err := build(t, cfg).Simulate(cfg.Simulation.Iterations)
	if err != nil {
		t.Fatal(err)
	}
	p3, _ := third.Info().Prices(0)
	if samePrices(p1, p3) {
		t.Errorf("different seeds produced identical price series")
	}
}

func TestMixedPopulationRuns(t *testing.T) {
	cfg := testConfig()
	cfg.Market.Count = 2
	cfg.Market.TransactionCost = 0.001
	s := build(t, cfg)
	if _, err := s.Simulate(cfg.Simulation.Iterations); err != nil {
		t.Fatal(err)
	}
	if s.Iteration() != cfg.Simulation.Iterations {
		t.Errorf("expected %d iterations, got %d", cfg.Simulation.Iterations, s.Iteration())
	}
	if got := len(s.Markets()); got != 2 {
		t.Fatalf("expected 2 markets, got %d", got)
	}
	if got, want := s.Population().Len(), 2*cfg.Agents.TotalAgents(); got != want {
		t.Errorf("expected %d agents, got %d", want, got)
	}
	for _, m := range s.Markets() {
		for _, d := range s.Info().Markets[m.ID].Dividends {
			if d < 0 {
				t.Fatalf("negative dividend on %s", m.ID)
			}
		}
		bid, ask, err := m.SpreadTicks()
		if err == nil && bid >= ask {
			t.Errorf("%s left crossed: %d >= %d", m.ID, bid, ask)
		}
	}
}

func TestEquityMatchesTelemetry(t *testing.T) {
	cfg := testConfig()
	s := build(t, cfg)
	if _, err := s.Simulate(cfg.Simulation.Iterations); err != nil {
		t.Fatal(err)
	}
	info := s.Info()
	prices, _ := info.Prices(0)
	for _, id := range info.AgentIDs() {
		series := info.Agents[id]
		for k, eq := range series.Equity {
			tick := series.Start + k
			if math.IsNaN(prices[tick]) {
				if !math.IsNaN(eq) {
					t.Fatalf("%s tick %d: equity %v without a price", id, tick, eq)
				}
				continue
			}
			want := series.Cash[k].Add(decimal.NewFromFloat(prices[tick]).Mul(decimal.NewFromInt(series.Inventory[k])))
			if eq != want.InexactFloat64() {
				t.Fatalf("%s tick %d: telemetry equity %v, recomputed %v", id, tick, eq, want)
			}
		}
	}
}

func TestCaptureBeforeAgentsAct(t *testing.T) {
	cfg := testConfig()
	s := build(t, cfg)
	m := s.Markets()[0]
	initial, err := m.Price()
	if err != nil {
		t.Fatal(err)
	}
	depth := m.Depth()

	if _, err := s.Simulate(1); err != nil {
		t.Fatal(err)
	}
	series := s.Info().Markets[m.ID]
	if series.Prices[0] != initial {
		t.Errorf("expected first capture to see the initial price %v, got %v", initial, series.Prices[0])
	}
	if series.Depth[0] != depth {
		t.Errorf("expected first capture to see the initial book %+v, got %+v", depth, series.Depth[0])
	}
	if d := s.Info().Agents[1].Cash[0]; !d.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("expected starting cash before income, got %s", d)
	}
}

func TestFundamentalShockTiming(t *testing.T) {
	cfg := testConfig()
	base := build(t, cfg)

	cfg.Simulation.Scenario = "fundamental_shock:0:10:-20"
	shocked := build(t, cfg)

	if _, err := base.Simulate(20); err != nil {
		t.Fatal(err)
	}
	if _, err := shocked.Simulate(20); err != nil {
		t.Fatal(err)
	}

	d0 := base.Info().Markets[0].Dividends
	d1 := shocked.Info().Markets[0].Dividends
	for it := 0; it < 10; it++ {
		if d0[it] != d1[it] {
			t.Fatalf("dividend differs before the shock at iteration %d: %v vs %v", it, d0[it], d1[it])
		}
	}
	shift := -20 * cfg.Market.RiskFree
	if got := d1[10] - d0[10]; math.Abs(got-shift) > 1e-12 {
		t.Errorf("expected dividend shift %v at iteration 10, got %v", shift, got)
	}

	f0, _ := base.Info().FundamentalValue(0, 0)
	f1, _ := shocked.Info().FundamentalValue(0, 0)
	if math.Abs(f1[9]-f0[9]) > 1e-9 {
		t.Errorf("fundamental value moved before iteration 10: %v vs %v", f0[9], f1[9])
	}
	if math.Abs((f1[10]-f0[10])+20) > 1e-6 {
		t.Errorf("expected fundamental value to fall by 20 at iteration 10, got %v", f1[10]-f0[10])
	}
}

func TestMarketMakerScenario(t *testing.T) {
	cfg := testConfig()
	cfg.Agents.MarketMaker = 0
	cfg.Simulation.Scenario = "mm_in:0:5:1000,0,20;mm_out:0:15"
	s := build(t, cfg)
	before := s.Population().Len()

	if _, err := s.Simulate(25); err != nil {
		t.Fatal(err)
	}
	if s.Population().Len() != before {
		t.Errorf("expected injected maker to be gone, %d agents vs %d", s.Population().Len(), before)
	}
	in := s.Events()[0].(*scenario.MarketMakerIn)
	series, ok := s.Info().Agents[in.Maker()]
	if !ok {
		t.Fatal("expected telemetry for the injected maker")
	}
	if series.Start != 5 || len(series.Equity) != 10 {
		t.Errorf("expected maker captured from 5 for 10 ticks, got start %d len %d", series.Start, len(series.Equity))
	}
	if series.Kind != agent.KindMarketMaker.String() {
		t.Errorf("unexpected kind %q", series.Kind)
	}
}

func TestOnTickAndJournal(t *testing.T) {
	cfg := testConfig()
	cfg.Simulation.Scenario = "transaction_cost:0:3:0.01"
	s := build(t, cfg)

	var ticks []Tick
	s.OnTick = func(tk Tick) { ticks = append(ticks, tk) }
	j := &lines{}
	s.Journal = j

	if _, err := s.Simulate(5); err != nil {
		t.Fatal(err)
	}
	if len(ticks) != 5 || ticks[4].Iteration != 4 {
		t.Fatalf("expected 5 tick callbacks ending at 4, got %d", len(ticks))
	}
	if ticks[0].RunID != s.RunID() || len(ticks[0].Markets) != 1 {
		t.Errorf("unexpected tick summary %+v", ticks[0])
	}
	if len(j.got) != 1 {
		t.Errorf("expected one journal line, got %v", j.got)
	}
	if s.Markets()[0].TransactionCost() != 0.01 {
		t.Errorf("expected transaction cost event applied")
	}
}

type lines struct{ got []string }

func (l *lines) Append(line string) { l.got = append(l.got, line) }

func TestSimulateContinuesCounter(t *testing.T) {
	cfg := testConfig()
	s := build(t, cfg)
	if _, err := s.Simulate(3); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Simulate(4); err != nil {
		t.Fatal(err)
	}
	if s.Iteration() != 7 || s.Info().Ticks() != 7 {
		t.Errorf("expected 7 iterations, got %d and %d captures", s.Iteration(), s.Info().Ticks())
	}
}

func TestRunCancelled(t *testing.T) {
	s := build(t, testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Run(ctx, 10); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if s.Iteration() != 0 {
		t.Errorf("expected no iterations after cancel, got %d", s.Iteration())
	}
}

func TestBuildRejects(t *testing.T) {
	cfg := testConfig()
	cfg.Simulation.Scenario = "market_shock:3:1:2"
	if _, err := Build(cfg, nil); err == nil {
		t.Error("expected event on a missing market to fail linking")
	}

	cfg = testConfig()
	cfg.Simulation.Scenario = "mm_out:0:4"
	if _, err := Build(cfg, nil); err == nil {
		t.Error("expected mm_out without mm_in to fail linking")
	}

	cfg = testConfig()
	cfg.Market.RiskFree = 0
	if _, err := Build(cfg, nil); err == nil {
		t.Error("expected invalid config to be rejected")
	}
}

func TestNewRejectsAgentOnUnknownMarket(t *testing.T) {
	pop := agent.NewPopulation()
	alloc := ids.NewAllocator()
	rng := util.NewRand(3)
	a, _ := asset.New(alloc.NextAsset(), 0.05, 5, 0, rng)
	m, err := market.New(alloc.NextMarket(), market.DefaultParams(), a, pop, alloc, rng)
	if err != nil {
		t.Fatal(err)
	}
	pop.Add(agent.NewRandom(alloc.NextAgent(), 4, decimal.NewFromInt(1), 0))

	_, err = New(Options{
		RunID:      uuid.New(),
		Markets:    []*market.Market{m},
		Assets:     []*asset.Asset{a},
		Population: pop,
		Allocator:  alloc,
		Rand:       rng,
	})
	if err == nil {
		t.Error("expected agent on an unknown market to be rejected")
	}
}

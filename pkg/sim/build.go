package sim

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/marketsim/params"
	"github.com/uhyunpark/marketsim/pkg/app/core/agent"
	"github.com/uhyunpark/marketsim/pkg/app/core/asset"
	"github.com/uhyunpark/marketsim/pkg/app/core/ids"
	"github.com/uhyunpark/marketsim/pkg/app/core/market"
	"github.com/uhyunpark/marketsim/pkg/scenario"
	"github.com/uhyunpark/marketsim/pkg/util"
)

// Build sets up a run from cfg: cfg.Market.Count markets, each with its own
// asset and the configured agent mix, plus the parsed scenario. Every random
// draw comes from one source seeded with cfg.Simulation.Seed.
func Build(cfg params.Config, logger *zap.SugaredLogger) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	events, err := scenario.Parse(cfg.Simulation.Scenario)
	if err != nil {
		return nil, err
	}

	rng := util.NewRand(cfg.Simulation.Seed)
	alloc := ids.NewAllocator()
	pop := agent.NewPopulation()
	mp := market.Params{
		TickSize:        cfg.Market.TickSize,
		Price:           cfg.Market.Price,
		Std:             cfg.Market.Std,
		Volume:          cfg.Market.Volume,
		RiskFree:        cfg.Market.RiskFree,
		TransactionCost: cfg.Market.TransactionCost,
	}

	var (
		markets []*market.Market
		assets  []*asset.Asset
	)
	for i := 0; i < cfg.Market.Count; i++ {
		a, err := asset.New(alloc.NextAsset(), mp.RiskFree*mp.Price, cfg.Market.Lookahead, cfg.Market.DividendStd, rng)
		if err != nil {
			return nil, err
		}
		m, err := market.New(alloc.NextMarket(), mp, a, pop, alloc, rng)
		if err != nil {
			return nil, err
		}
		if err := populate(pop, alloc, m.ID, cfg.Agents, rng); err != nil {
			return nil, err
		}
		assets = append(assets, a)
		markets = append(markets, m)
	}

	s, err := New(Options{
		RunID:      uuid.New(),
		Markets:    markets,
		Assets:     assets,
		Population: pop,
		Allocator:  alloc,
		Events:     events,
		Rand:       rng,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	s.LogInterval = cfg.Simulation.LogInterval
	return s, nil
}

func populate(pop *agent.Population, alloc *ids.Allocator, mkt ids.MarketID, c params.Agents, rng util.Rand) error {
	cash := decimal.NewFromFloat(c.Cash)
	var agents []*agent.Agent
	for i := 0; i < c.Random; i++ {
		agents = append(agents, agent.NewRandom(alloc.NextAgent(), mkt, cash, c.Assets))
	}
	for i := 0; i < c.Fundamentalist; i++ {
		agents = append(agents, agent.NewFundamentalist(alloc.NextAgent(), mkt, cash, c.Assets, c.Access))
	}
	for i := 0; i < c.Chartist; i++ {
		agents = append(agents, agent.NewChartist(alloc.NextAgent(), mkt, cash, c.Assets, rng))
	}
	for i := 0; i < c.Universalist; i++ {
		agents = append(agents, agent.NewUniversalist(alloc.NextAgent(), mkt, cash, c.Assets, c.Access, rng))
	}
	for i := 0; i < c.MarketMaker; i++ {
		agents = append(agents, agent.NewMarketMaker(alloc.NextAgent(), mkt, cash, c.Assets, c.SoftLimit))
	}
	for _, a := range agents {
		if err := pop.Add(a); err != nil {
			return err
		}
	}
	return nil
}

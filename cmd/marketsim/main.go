package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/uhyunpark/marketsim/params"
	"github.com/uhyunpark/marketsim/pkg/api"
	"github.com/uhyunpark/marketsim/pkg/sim"
	"github.com/uhyunpark/marketsim/pkg/storage"
	"github.com/uhyunpark/marketsim/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg, err := params.LoadFromEnv("") // "" means load from .env in current directory
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// Setup logging (write to both console and file)
	logger, err := util.NewLoggerWithFile(cfg.Log.File, cfg.Log.Level)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Log.File, "level", cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := sim.Build(cfg, sugar)
	if err != nil {
		sugar.Fatalw("build_failed", "err", err)
	}

	// ---- Event journal ----
	if cfg.Log.Journal != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Log.Journal), 0755); err != nil {
			sugar.Fatalw("journal_dir_failed", "path", cfg.Log.Journal, "err", err)
		}
	}
	journal, err := storage.OpenJournal(cfg.Log.Journal)
	if err != nil {
		sugar.Fatalw("journal_open_failed", "path", cfg.Log.Journal, "err", err)
	}
	defer journal.Close()
	s.Journal = journal

	// ---- Run archive ----
	// Without a storage path runs are only kept in memory for the API.
	var store storage.RunStore
	if cfg.Storage.Path != "" {
		ps, err := storage.Open(cfg.Storage.Path)
		if err != nil {
			sugar.Fatalw("storage_open_failed", "path", cfg.Storage.Path, "err", err)
		}
		defer ps.Close()
		store = ps
	} else {
		store = storage.NewInMemoryRunStore()
	}

	// ---- API Server ----
	// Archived runs over REST, live ticks over WebSocket
	var apiServer *api.Server
	if cfg.API.Addr != "" {
		apiServer = api.NewServer(store, cfg.API.Origins, sugar)
		go func() {
			if err := apiServer.Start(ctx, cfg.API.Addr); err != nil {
				sugar.Fatalw("api_server_failed", "err", err)
			}
		}()
		s.OnTick = apiServer.BroadcastTick
	}

	started := time.Now()
	runErr := s.Run(ctx, cfg.Simulation.Iterations)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		sugar.Errorw("simulation_failed", "err", runErr)
	}

	// Interrupted runs are archived up to the last completed iteration.
	run := storage.Run{
		ID:         s.RunID(),
		Seed:       cfg.Simulation.Seed,
		Iterations: s.Iteration(),
		Scenario:   cfg.Simulation.Scenario,
		RiskFree:   cfg.Market.RiskFree,
		Agents:     s.Info().AgentIDs(),
		StartedAt:  started,
		FinishedAt: time.Now(),
	}
	for _, m := range s.Markets() {
		run.Markets = append(run.Markets, m.ID)
	}
	if err := storage.Archive(store, run, s.Info()); err != nil {
		sugar.Errorw("archive_failed", "run_id", run.ID, "err", err)
	} else {
		sugar.Infow("run_archived", "run_id", run.ID, "iterations", run.Iterations, "agents", len(run.Agents))
	}

	if apiServer == nil || ctx.Err() != nil {
		return
	}
	sugar.Infow("serving_until_interrupted", "addr", cfg.API.Addr)
	<-ctx.Done()
}

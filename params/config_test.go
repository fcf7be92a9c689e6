package params

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("SIM_ITERATIONS", "42")
	t.Setenv("SIM_SEED", "7")
	t.Setenv("MARKET_COUNT", "2")
	t.Setenv("MARKET_TRANSACTION_COST", "0.01")
	t.Setenv("AGENTS_UNIVERSALIST", "3")
	t.Setenv("AGENTS_SOFT_LIMIT", "50")
	t.Setenv("SCENARIO", "mm_in:0:10")
	t.Setenv("API_ORIGINS", "http://a,http://b")
	t.Setenv("JOURNAL_FILE", "")

	cfg, err := LoadFromEnv(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Simulation.Iterations != 42 || cfg.Simulation.Seed != 7 {
		t.Errorf("simulation not overridden: %+v", cfg.Simulation)
	}
	if cfg.Market.Count != 2 || cfg.Market.TransactionCost != 0.01 {
		t.Errorf("market not overridden: %+v", cfg.Market)
	}
	if cfg.Agents.Universalist != 3 || cfg.Agents.SoftLimit != 50 {
		t.Errorf("agents not overridden: %+v", cfg.Agents)
	}
	if cfg.Simulation.Scenario != "mm_in:0:10" {
		t.Errorf("scenario not loaded: %q", cfg.Simulation.Scenario)
	}
	if len(cfg.API.Origins) != 2 || cfg.API.Origins[1] != "http://b" {
		t.Errorf("origins not split: %v", cfg.API.Origins)
	}
	if cfg.Log.Journal != "" {
		t.Errorf("expected an empty JOURNAL_FILE to disable the journal, got %q", cfg.Log.Journal)
	}
	if cfg.Market.Price != 100 {
		t.Errorf("untouched field lost its default: %v", cfg.Market.Price)
	}
}

func TestLoadFromEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("AGENTS_CHARTIST=4\nMARKET_VOLUME=20\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MARKET_VOLUME", "30")
	// registers cleanup for the variable godotenv is about to set
	t.Setenv("AGENTS_CHARTIST", "")
	os.Unsetenv("AGENTS_CHARTIST")

	cfg, err := LoadFromEnv(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Agents.Chartist != 4 {
		t.Errorf("expected chartists from .env, got %d", cfg.Agents.Chartist)
	}
	if cfg.Market.Volume != 30 {
		t.Errorf("expected environment to win over .env, got %d", cfg.Market.Volume)
	}
}

func TestLoadFromEnvRejects(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"SIM_ITERATIONS", "many"},
		{"SIM_ITERATIONS", "0"},
		{"MARKET_RISK_FREE", "0"},
		{"MARKET_TRANSACTION_COST", "1"},
		{"AGENTS_RANDOM", "-1"},
		{"AGENTS_ACCESS", "1000"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := LoadFromEnv(filepath.Join(t.TempDir(), "missing.env")); err == nil {
				t.Errorf("expected %s=%s to be rejected", tt.key, tt.value)
			}
		})
	}
}

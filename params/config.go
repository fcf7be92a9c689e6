package params

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Simulation struct {
	Iterations int
	Seed       uint64
	// Scenario lists scripted events, see scenario.Parse for the syntax.
	// Example: "market_shock:0:200:-20;mm_in:0:100"
	Scenario string
	// LogInterval is the number of ticks between progress log lines. 0 disables them.
	LogInterval int
}

type Market struct {
	Count           int
	TickSize        float64
	Price           float64
	Std             float64
	Volume          int
	RiskFree        float64
	TransactionCost float64
	DividendStd     float64
	Lookahead       int
}

// Agents sets how many traders of each kind are placed on every market and
// what they start with.
type Agents struct {
	Random         int
	Fundamentalist int
	Chartist       int
	Universalist   int
	MarketMaker    int

	Cash      float64
	Assets    int64
	Access    int
	SoftLimit int64
}

type Storage struct {
	// Path of the Pebble run archive. Empty disables archiving.
	Path string
}

type API struct {
	// Addr to serve telemetry on. Empty disables the server.
	Addr    string
	Origins []string
}

type Log struct {
	File  string
	Level string
	// Journal is the file fired scenario events are appended to. Empty disables it.
	Journal string
}

type Config struct {
	Simulation Simulation
	Market     Market
	Agents     Agents
	Storage    Storage
	API        API
	Log        Log
}

func Default() Config {
	return Config{
		Simulation: Simulation{
			Iterations:  500,
			Seed:        1,
			LogInterval: 100,
		},
		Market: Market{
			Count:       1,
			TickSize:    0.1,
			Price:       100,
			Std:         25,
			Volume:      1000,
			RiskFree:    5e-4,
			DividendStd: 5e-3,
			Lookahead:   100,
		},
		Agents: Agents{
			Random:         10,
			Fundamentalist: 10,
			Chartist:       10,
			Cash:           1000,
			Access:         1,
			SoftLimit:      100,
		},
		Storage: Storage{Path: "./data/runs"},
		API: API{
			Origins: []string{"http://localhost:3000", "http://localhost:3001"},
		},
		Log: Log{
			File:    "logs/marketsim.log",
			Level:   "info",
			Journal: "logs/events.log",
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) (Config, error) {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	l := loader{}
	l.setInt("SIM_ITERATIONS", &cfg.Simulation.Iterations)
	l.setUint64("SIM_SEED", &cfg.Simulation.Seed)
	l.setString("SCENARIO", &cfg.Simulation.Scenario)
	l.setInt("LOG_INTERVAL", &cfg.Simulation.LogInterval)

	l.setInt("MARKET_COUNT", &cfg.Market.Count)
	l.setFloat("MARKET_PRICE", &cfg.Market.Price)
	l.setFloat("MARKET_STD", &cfg.Market.Std)
	l.setInt("MARKET_VOLUME", &cfg.Market.Volume)
	l.setFloat("MARKET_RISK_FREE", &cfg.Market.RiskFree)
	l.setFloat("MARKET_TRANSACTION_COST", &cfg.Market.TransactionCost)

	l.setInt("AGENTS_RANDOM", &cfg.Agents.Random)
	l.setInt("AGENTS_FUNDAMENTALIST", &cfg.Agents.Fundamentalist)
	l.setInt("AGENTS_CHARTIST", &cfg.Agents.Chartist)
	l.setInt("AGENTS_UNIVERSALIST", &cfg.Agents.Universalist)
	l.setInt("AGENTS_MARKET_MAKER", &cfg.Agents.MarketMaker)
	l.setFloat("AGENTS_CASH", &cfg.Agents.Cash)
	l.setInt64("AGENTS_ASSETS", &cfg.Agents.Assets)
	l.setInt("AGENTS_ACCESS", &cfg.Agents.Access)
	l.setInt64("AGENTS_SOFT_LIMIT", &cfg.Agents.SoftLimit)

	l.setString("STORAGE_PATH", &cfg.Storage.Path)
	l.setString("API_ADDR", &cfg.API.Addr)
	if origins := os.Getenv("API_ORIGINS"); origins != "" {
		cfg.API.Origins = strings.Split(origins, ",")
	}
	l.setString("LOG_FILE", &cfg.Log.File)
	l.setString("LOG_LEVEL", &cfg.Log.Level)
	// set but empty turns the journal off
	if v, ok := os.LookupEnv("JOURNAL_FILE"); ok {
		cfg.Log.Journal = v
	}

	if l.err != nil {
		return cfg, l.err
	}
	return cfg, cfg.Validate()
}

// loader keeps the first parse error so callers can read every variable and
// check once.
type loader struct {
	err error
}

func (l *loader) lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	return v, ok && v != "" && l.err == nil
}

func (l *loader) fail(key, v string, err error) {
	l.err = fmt.Errorf("%s=%q: %w", key, v, err)
}

func (l *loader) setString(key string, dst *string) {
	if v, ok := l.lookup(key); ok {
		*dst = v
	}
}

func (l *loader) setInt(key string, dst *int) {
	if v, ok := l.lookup(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			l.fail(key, v, err)
			return
		}
		*dst = n
	}
}

func (l *loader) setInt64(key string, dst *int64) {
	if v, ok := l.lookup(key); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			l.fail(key, v, err)
			return
		}
		*dst = n
	}
}

func (l *loader) setUint64(key string, dst *uint64) {
	if v, ok := l.lookup(key); ok {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			l.fail(key, v, err)
			return
		}
		*dst = n
	}
}

func (l *loader) setFloat(key string, dst *float64) {
	if v, ok := l.lookup(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			l.fail(key, v, err)
			return
		}
		*dst = f
	}
}

// Validate checks the configuration before a run is built.
func (c Config) Validate() error {
	s, m, a := c.Simulation, c.Market, c.Agents
	switch {
	case s.Iterations <= 0:
		return fmt.Errorf("iterations must be positive, got %d", s.Iterations)
	case s.LogInterval < 0:
		return fmt.Errorf("log interval cannot be negative")
	case m.Count <= 0:
		return fmt.Errorf("market count must be positive, got %d", m.Count)
	case m.TickSize <= 0:
		return fmt.Errorf("tick size must be positive")
	case m.Price <= 0:
		return fmt.Errorf("initial price must be positive")
	case m.Std < 0:
		return fmt.Errorf("price std cannot be negative")
	case m.Volume < 0:
		return fmt.Errorf("initial volume cannot be negative")
	case m.RiskFree <= 0:
		return fmt.Errorf("risk-free rate must be positive")
	case m.TransactionCost < 0 || m.TransactionCost >= 1:
		return fmt.Errorf("transaction cost must be in [0, 1), got %v", m.TransactionCost)
	case m.DividendStd < 0:
		return fmt.Errorf("dividend std cannot be negative")
	case m.Lookahead <= 0:
		return fmt.Errorf("lookahead must be positive")
	case a.Random < 0 || a.Fundamentalist < 0 || a.Chartist < 0 || a.Universalist < 0 || a.MarketMaker < 0:
		return fmt.Errorf("agent counts cannot be negative")
	case a.Access < 0:
		return fmt.Errorf("access cannot be negative")
	case a.Access > m.Lookahead:
		return fmt.Errorf("access %d exceeds lookahead %d", a.Access, m.Lookahead)
	case a.MarketMaker > 0 && a.SoftLimit <= 0:
		return fmt.Errorf("soft limit must be positive")
	}
	return nil
}

// TotalAgents returns the number of agents placed on each market.
func (a Agents) TotalAgents() int {
	return a.Random + a.Fundamentalist + a.Chartist + a.Universalist + a.MarketMaker
}

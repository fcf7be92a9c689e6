package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/marketsim/pkg/app/core/ids"
	"github.com/uhyunpark/marketsim/pkg/sim"
	"github.com/uhyunpark/marketsim/pkg/storage"
	"github.com/uhyunpark/marketsim/pkg/util"
)

const defaultWindow = 5

// Server serves archived runs over REST and live ticks over WebSocket
type Server struct {
	store   storage.RunStore
	router  *mux.Router
	hub     *Hub
	origins []string
	logger  *zap.SugaredLogger
}

// NewServer creates a new API server
func NewServer(store storage.RunStore, origins []string, logger *zap.SugaredLogger) *Server {
	logger = util.OrNop(logger)
	s := &Server{
		store:   store,
		router:  mux.NewRouter(),
		hub:     NewHub(logger),
		origins: origins,
		logger:  logger,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// API v1 routes
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Run archive endpoints
	api.HandleFunc("/runs", s.handleListRuns).Methods("GET")
	api.HandleFunc("/runs/{run}", s.handleGetRun).Methods("GET")
	api.HandleFunc("/runs/{run}/markets/{market}", s.handleGetMarketSeries).Methods("GET")
	api.HandleFunc("/runs/{run}/markets/{market}/stats", s.handleGetMarketStats).Methods("GET")
	api.HandleFunc("/runs/{run}/agents/{agent}", s.handleGetAgentSeries).Methods("GET")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	// Health check
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Hub returns the WebSocket hub; it must be running before clients connect.
func (s *Server) Hub() *Hub { return s.hub }

// Handler returns the router wrapped with CORS.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Start serves on addr until ctx is cancelled
func (s *Server) Start(ctx context.Context, addr string) error {
	go s.hub.Run(ctx)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	s.logger.Infow("api_server_starting", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.store.ListRuns()
	if err != nil {
		s.storeError(w, err)
		return
	}
	out := make([]RunInfo, len(runs))
	for i, run := range runs {
		out[i] = runInfo(run)
	}
	respondJSON(w, out)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id, ok := parseRun(w, r)
	if !ok {
		return
	}
	run, err := s.store.LoadRun(id)
	if err != nil {
		s.storeError(w, err)
		return
	}
	respondJSON(w, runInfo(run))
}

func (s *Server) handleGetMarketSeries(w http.ResponseWriter, r *http.Request) {
	id, ok := parseRun(w, r)
	if !ok {
		return
	}
	mkt, ok := parseMarket(w, r)
	if !ok {
		return
	}
	ms, err := s.store.LoadMarketSeries(id, mkt)
	if err != nil {
		s.storeError(w, err)
		return
	}

	out := MarketSeries{
		Market:           int(ms.Market),
		Prices:           numbers(ms.Prices),
		Bids:             make([]Number, len(ms.Spreads)),
		Asks:             make([]Number, len(ms.Spreads)),
		Dividends:        numbers(ms.Dividends),
		BidOrders:        make([]int, len(ms.Depth)),
		AskOrders:        make([]int, len(ms.Depth)),
		BidVolume:        make([]int64, len(ms.Depth)),
		AskVolume:        make([]int64, len(ms.Depth)),
		Imbalance:        numbers(ms.Imbalance),
		NormalizedSpread: numbers(ms.NormalizedSpread),
		SmartPrice:       numbers(ms.SmartPrice),
		TradeSign:        ms.TradeSign,
		SignedVolume:     ms.SignedVolume,
		PastReturnBps:    numbers(ms.PastReturnBps),
	}
	for i, sp := range ms.Spreads {
		out.Bids[i], out.Asks[i] = Number(sp.Bid), Number(sp.Ask)
	}
	for i, d := range ms.Depth {
		out.BidOrders[i], out.AskOrders[i] = d.BidOrders, d.AskOrders
		out.BidVolume[i], out.AskVolume[i] = d.BidVolume, d.AskVolume
	}
	respondJSON(w, out)
}

func (s *Server) handleGetMarketStats(w http.ResponseWriter, r *http.Request) {
	id, ok := parseRun(w, r)
	if !ok {
		return
	}
	mkt, ok := parseMarket(w, r)
	if !ok {
		return
	}
	window := defaultWindow
	if v := r.URL.Query().Get("window"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 2 {
			respondError(w, http.StatusBadRequest, "invalid_window", "window must be an integer of at least 2")
			return
		}
		window = n
	}

	run, err := s.store.LoadRun(id)
	if err != nil {
		s.storeError(w, err)
		return
	}
	ms, err := s.store.LoadMarketSeries(id, mkt)
	if err != nil {
		s.storeError(w, err)
		return
	}
	retVol, err := ms.ReturnVolatility(window)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_window", err.Error())
		return
	}
	priceVol, _ := ms.PriceVolatility(window)

	respondJSON(w, MarketStats{
		Market:           int(mkt),
		Window:           window,
		StockReturns:     numbers(ms.StockReturns()),
		AbnormalReturns:  numbers(ms.AbnormalReturns(run.RiskFree)),
		ReturnVolatility: numbers(retVol),
		PriceVolatility:  numbers(priceVol),
		Liquidity:        numbers(ms.Liquidity()),
	})
}

func (s *Server) handleGetAgentSeries(w http.ResponseWriter, r *http.Request) {
	id, ok := parseRun(w, r)
	if !ok {
		return
	}
	raw := mux.Vars(r)["agent"]
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || n == 0 {
		respondError(w, http.StatusBadRequest, "invalid_agent", "agent must be a positive integer")
		return
	}
	as, err := s.store.LoadAgentSeries(id, ids.AgentID(n))
	if err != nil {
		s.storeError(w, err)
		return
	}

	cash := make([]string, len(as.Cash))
	for i, c := range as.Cash {
		cash[i] = c.String()
	}
	respondJSON(w, AgentSeries{
		Agent:      uint64(as.Agent),
		Kind:       as.Kind,
		Market:     int(as.Market),
		Start:      as.Start,
		Cash:       cash,
		Inventory:  as.Inventory,
		Equity:     numbers(as.Equity),
		Types:      as.Types,
		Sentiments: as.Sentiments,
		Returns:    numbers(as.Returns),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Broadcast Methods (called from the simulator)
// ==============================

// BroadcastTick pushes one iteration summary to subscribers of "ticks" and
// of "ticks:<run id>".
func (s *Server) BroadcastTick(t sim.Tick) {
	update := TickUpdate{
		Type:      "tick",
		RunID:     t.RunID.String(),
		Iteration: t.Iteration,
		Agents:    t.Agents,
		Markets:   make([]MarketTick, len(t.Markets)),
		Timestamp: time.Now().UnixMilli(),
	}
	for i, m := range t.Markets {
		update.Markets[i] = MarketTick{
			Market:   int(m.Market),
			Price:    Number(m.Price),
			Bid:      Number(m.Bid),
			Ask:      Number(m.Ask),
			Dividend: Number(m.Dividend),
			Trades:   m.Trades,
			Volume:   m.Volume,
		}
	}
	s.hub.BroadcastToChannel("ticks", update)
	s.hub.BroadcastToChannel("ticks:"+update.RunID, update)
}

// ==============================
// Helper Functions
// ==============================

func runInfo(r storage.Run) RunInfo {
	info := RunInfo{
		ID:         r.ID.String(),
		Seed:       r.Seed,
		Iterations: r.Iterations,
		Scenario:   r.Scenario,
		RiskFree:   r.RiskFree,
		Markets:    make([]int, len(r.Markets)),
		Agents:     make([]uint64, len(r.Agents)),
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}
	for i, m := range r.Markets {
		info.Markets[i] = int(m)
	}
	for i, a := range r.Agents {
		info.Agents[i] = uint64(a)
	}
	return info
}

func parseRun(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["run"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_run", "run must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

func parseMarket(w http.ResponseWriter, r *http.Request) (ids.MarketID, bool) {
	n, err := strconv.Atoi(mux.Vars(r)["market"])
	if err != nil || n < 0 {
		respondError(w, http.StatusBadRequest, "invalid_market", "market must be a non-negative integer")
		return 0, false
	}
	return ids.MarketID(n), true
}

func (s *Server) storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrRunNotFound) {
		respondError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	s.logger.Errorw("store_read_failed", "err", err)
	respondError(w, http.StatusInternalServerError, "internal", "failed to read run archive")
}

func respondJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}

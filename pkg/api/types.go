package api

import (
	"math"
	"strconv"
	"time"
)

// API response types for REST endpoints and WebSocket messages

// Number is a float that encodes NaN and infinities as JSON null.
type Number float64

func (n Number) MarshalJSON() ([]byte, error) {
	f := float64(n)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, f, 'g', -1, 64), nil
}

func numbers(xs []float64) []Number {
	out := make([]Number, len(xs))
	for i, x := range xs {
		out[i] = Number(x)
	}
	return out
}

// ==============================
// REST Response Types
// ==============================

// RunInfo describes one archived run
type RunInfo struct {
	ID         string    `json:"id"`
	Seed       uint64    `json:"seed"`
	Iterations int       `json:"iterations"`
	Scenario   string    `json:"scenario,omitempty"`
	RiskFree   float64   `json:"riskFree"`
	Markets    []int     `json:"markets"`
	Agents     []uint64  `json:"agents"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

// MarketSeries is the per-tick history of one market, index = iteration
type MarketSeries struct {
	Market           int      `json:"market"`
	Prices           []Number `json:"prices"` // null where one side of the book was empty
	Bids             []Number `json:"bids"`
	Asks             []Number `json:"asks"`
	Dividends        []Number `json:"dividends"`
	BidOrders        []int    `json:"bidOrders"`
	AskOrders        []int    `json:"askOrders"`
	BidVolume        []int64  `json:"bidVolume"`
	AskVolume        []int64  `json:"askVolume"`
	Imbalance        []Number `json:"imbalance"`
	NormalizedSpread []Number `json:"normalizedSpread"`
	SmartPrice       []Number `json:"smartPrice"`
	TradeSign        []int    `json:"tradeSign"`
	SignedVolume     []int64  `json:"signedVolume"`
	PastReturnBps    []Number `json:"pastReturnBps"`
}

// MarketStats holds series derived from a market's history
type MarketStats struct {
	Market           int      `json:"market"`
	Window           int      `json:"window"`
	StockReturns     []Number `json:"stockReturns"`
	AbnormalReturns  []Number `json:"abnormalReturns"`
	ReturnVolatility []Number `json:"returnVolatility"`
	PriceVolatility  []Number `json:"priceVolatility"`
	Liquidity        []Number `json:"liquidity"`
}

// AgentSeries is the per-tick history of one agent, starting at Start
type AgentSeries struct {
	Agent      uint64   `json:"agent"`
	Kind       string   `json:"kind"`
	Market     int      `json:"market"`
	Start      int      `json:"start"`
	Cash       []string `json:"cash"` // exact decimal strings
	Inventory  []int64  `json:"inventory"`
	Equity     []Number `json:"equity"`
	Types      []string `json:"types"`
	Sentiments []string `json:"sentiments"`
	Returns    []Number `json:"returns"`
}

// ==============================
// WebSocket Message Types
// ==============================

// WSSubscribeRequest is sent by client to subscribe to channels
type WSSubscribeRequest struct {
	Op       string   `json:"op"`       // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"` // e.g., ["ticks", "ticks:<run id>"]
}

// MarketTick is the end-of-iteration state of one market
type MarketTick struct {
	Market   int    `json:"market"`
	Price    Number `json:"price"`
	Bid      Number `json:"bid"`
	Ask      Number `json:"ask"`
	Dividend Number `json:"dividend"`
	Trades   int    `json:"trades"`
	Volume   int64  `json:"volume"`
}

// TickUpdate is broadcast after every iteration of a live run
type TickUpdate struct {
	Type      string       `json:"type"` // "tick"
	RunID     string       `json:"runId"`
	Iteration int          `json:"iteration"`
	Agents    int          `json:"agents"`
	Markets   []MarketTick `json:"markets"`
	Timestamp int64        `json:"timestamp"`
}

// ErrorResponse is returned for all errors
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

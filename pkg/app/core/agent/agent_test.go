package agent

import (
	"errors"
	"math"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/marketsim/pkg/app/core/asset"
	"github.com/uhyunpark/marketsim/pkg/app/core/ids"
	"github.com/uhyunpark/marketsim/pkg/app/core/market"
	"github.com/uhyunpark/marketsim/pkg/app/core/orderbook"
	"github.com/uhyunpark/marketsim/pkg/util"
)

func testMarket(t *testing.T, pop *Population) *market.Market {
	t.Helper()
	p := market.DefaultParams()
	p.Volume = 0
	a, err := asset.New(0, 0.05, 10, 0, util.NewRand(1))
	if err != nil {
		t.Fatal(err)
	}
	m, err := market.New(0, p, a, pop, ids.NewAllocator(), util.NewRand(1))
	if err != nil {
		t.Fatal(err)
	}
	return m
}

// seed rests ownerless liquidity at 99.0 / 101.0.
func seed(t *testing.T, m *market.Market, qty int64) {
	t.Helper()
	if _, _, err := m.LimitOrder(ids.NoAgent, orderbook.Bid, 990, qty); err != nil {
		t.Fatal(err)
	}
	if _, _, err := m.LimitOrder(ids.NoAgent, orderbook.Ask, 1010, qty); err != nil {
		t.Fatal(err)
	}
}

func cash(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestMarketMakerPanicsWithMarketOrder(t *testing.T) {
	pop := NewPopulation()
	m := testMarket(t, pop)
	seed(t, m, 20)

	mm := NewMarketMaker(1, 0, cash(1000), 12, 10)
	if err := pop.Add(mm); err != nil {
		t.Fatal(err)
	}
	m.ClearTape()

	if err := mm.Call(m, util.NewRand(1)); err != nil {
		t.Fatalf("call: %v", err)
	}

	if !mm.Panic {
		t.Errorf("expected panic state outside the soft band")
	}
	if len(mm.Orders()) != 0 {
		t.Errorf("expected no limit orders in panic, got %d", len(mm.Orders()))
	}
	tape := m.Tape()
	if len(tape) == 0 {
		t.Fatalf("expected a market order to trade")
	}
	last := tape[len(tape)-1]
	if last.Taker != mm.ID || last.Side != orderbook.Ask {
		t.Errorf("expected market sell by the maker, got %+v", last)
	}
	if mm.Inventory != 0 {
		t.Errorf("expected inventory flattened to 0, got %d", mm.Inventory)
	}
	if want := cash(1000).Add(decimal.NewFromInt(12 * 99)); !mm.Cash.Equal(want) {
		t.Errorf("expected cash %s, got %s", want, mm.Cash)
	}
}

func TestMarketMakerQuotesInsideBand(t *testing.T) {
	pop := NewPopulation()
	m := testMarket(t, pop)
	seed(t, m, 5)

	mm := NewMarketMaker(1, 0, cash(1000), 0, 10)
	pop.Add(mm)

	if err := mm.Call(m, util.NewRand(1)); err != nil {
		t.Fatal(err)
	}
	if mm.Panic {
		t.Errorf("expected no panic inside band")
	}
	orders := mm.Orders()
	if len(orders) != 2 {
		t.Fatalf("expected a bid and an ask, got %d orders", len(orders))
	}
	bid, _ := m.Order(orders[0])
	ask, _ := m.Order(orders[1])
	if bid.Price != 989 || bid.Qty != 9 {
		t.Errorf("expected bid 9 @98.9, got %+v", bid)
	}
	if ask.Price != 1011 || ask.Qty != 9 {
		t.Errorf("expected ask 9 @101.1, got %+v", ask)
	}

	// requoting cancels the previous pair first
	if err := mm.Call(m, util.NewRand(1)); err != nil {
		t.Fatal(err)
	}
	if n := len(mm.Orders()); n != 2 {
		t.Errorf("expected exactly two live quotes after requote, got %d", n)
	}
}

func TestMarketMakerQuotesNarrowWithInventory(t *testing.T) {
	tests := []struct {
		name      string
		inventory int64
		bidPrice  int64
		bidQty    int64
		askPrice  int64
		askQty    int64
	}{
		{"long", 5, 999, 4, 1001, 14},
		{"short", -5, 979, 14, 1021, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pop := NewPopulation()
			m := testMarket(t, pop)
			seed(t, m, 5)

			mm := NewMarketMaker(1, 0, cash(1000), tt.inventory, 10)
			pop.Add(mm)
			if err := mm.Call(m, util.NewRand(1)); err != nil {
				t.Fatal(err)
			}
			orders := mm.Orders()
			if len(orders) != 2 {
				t.Fatalf("expected a bid and an ask, got %d orders", len(orders))
			}
			bid, _ := m.Order(orders[0])
			ask, _ := m.Order(orders[1])
			if bid.Price != tt.bidPrice || bid.Qty != tt.bidQty {
				t.Errorf("expected bid %d @%d, got %+v", tt.bidQty, tt.bidPrice, bid)
			}
			if ask.Price != tt.askPrice || ask.Qty != tt.askQty {
				t.Errorf("expected ask %d @%d, got %+v", tt.askQty, tt.askPrice, ask)
			}
		})
	}
}

func TestNoiseLimitOrderBehindBest(t *testing.T) {
	pop := NewPopulation()
	m := testMarket(t, pop)
	seed(t, m, 5)

	a := NewRandom(1, 0, cash(1000), 0)
	pop.Add(a)
	rng := &util.Script{
		Floats: []float64{0.9, 0.6, 0.5}, // bid, limit, out of spread
		Exps:   []float64{1},             // delta 2.5
		Ints:   []int{2},                 // qty 3
	}
	if err := a.Call(m, rng); err != nil {
		t.Fatal(err)
	}
	orders := a.Orders()
	if len(orders) != 1 {
		t.Fatalf("expected one resting order, got %d", len(orders))
	}
	o, _ := m.Order(orders[0])
	if o.Side != orderbook.Bid || o.Price != 965 || o.Qty != 3 {
		t.Errorf("expected bid 3 @96.5, got %+v", o)
	}
}

func TestNoiseCancelsOwnOrder(t *testing.T) {
	pop := NewPopulation()
	m := testMarket(t, pop)
	seed(t, m, 5)

	a := NewRandom(1, 0, cash(1000), 0)
	pop.Add(a)
	if err := a.buyLimit(m, 1, 95); err != nil {
		t.Fatal(err)
	}
	if err := a.Call(m, &util.Script{Floats: []float64{0.9, 0.1}}); err != nil {
		t.Fatal(err)
	}
	if len(a.Orders()) != 0 {
		t.Errorf("expected the order cancelled")
	}
	if d := m.Depth(); d.BidOrders != 1 {
		t.Errorf("expected only the seed bid left, got %d", d.BidOrders)
	}
}

func TestCallSkipsWithoutPrice(t *testing.T) {
	pop := NewPopulation()
	m := testMarket(t, pop)
	m.LimitOrder(ids.NoAgent, orderbook.Bid, 990, 5)

	agents := []*Agent{
		NewRandom(1, 0, cash(1000), 0),
		NewFundamentalist(2, 0, cash(1000), 0, 1),
		NewChartist(3, 0, cash(1000), 0, util.NewRand(1)),
	}
	for _, a := range agents {
		pop.Add(a)
		if err := a.Call(m, util.NewRand(2)); err != nil {
			t.Errorf("%s: expected skip, got %v", a.Kind, err)
		}
	}
	if d := m.Depth(); d.AskOrders != 0 || d.BidOrders != 1 {
		t.Errorf("expected untouched book, got %+v", d)
	}
}

func TestCallRejectsForeignMarket(t *testing.T) {
	m := testMarket(t, NewPopulation())
	a := NewRandom(1, 3, cash(1), 0)
	if err := a.Call(m, util.NewRand(1)); !errors.Is(err, ErrWrongMarket) {
		t.Errorf("expected ErrWrongMarket, got %v", err)
	}
}

func TestCancelRequiresOwnership(t *testing.T) {
	pop := NewPopulation()
	m := testMarket(t, pop)
	owner := NewRandom(1, 0, cash(1000), 0)
	other := NewRandom(2, 0, cash(1000), 0)
	pop.Add(owner)
	pop.Add(other)
	owner.sellLimit(m, 1, 105)

	if err := other.cancel(m, owner.Orders()[0]); !errors.Is(err, ErrNotOwner) {
		t.Errorf("expected ErrNotOwner, got %v", err)
	}
}

func TestTradesSettleThroughPopulation(t *testing.T) {
	pop := NewPopulation()
	m := testMarket(t, pop)
	seller := NewRandom(1, 0, cash(1000), 5)
	buyer := NewRandom(2, 0, cash(1000), 0)
	pop.Add(seller)
	pop.Add(buyer)

	if err := seller.sellLimit(m, 2, 100); err != nil {
		t.Fatal(err)
	}
	if rem, err := buyer.buyMarket(m, 2); err != nil || rem != 0 {
		t.Fatalf("expected full fill, rem=%d err=%v", rem, err)
	}

	if seller.Inventory != 3 || !seller.Cash.Equal(cash(1200)) {
		t.Errorf("expected seller 3 units and 1200 cash, got %d and %s", seller.Inventory, seller.Cash)
	}
	if buyer.Inventory != 2 || !buyer.Cash.Equal(cash(800)) {
		t.Errorf("expected buyer 2 units and 800 cash, got %d and %s", buyer.Inventory, buyer.Cash)
	}
	if len(seller.Orders()) != 0 {
		t.Errorf("expected filled order forgotten, got %d refs", len(seller.Orders()))
	}
}

func TestIncomeAndEquity(t *testing.T) {
	pop := NewPopulation()
	m := testMarket(t, pop)
	a := NewRandom(1, 0, cash(1000), 10)
	pop.Add(a)

	if _, err := a.Equity(m); !errors.Is(err, market.ErrNoPrice) {
		t.Errorf("expected ErrNoPrice on empty book, got %v", err)
	}

	if err := a.Income(m); err != nil {
		t.Fatal(err)
	}
	// 1000 * 5e-4 interest + 10 * 0.05 dividend
	if want := decimal.RequireFromString("1001"); !a.Cash.Equal(want) {
		t.Errorf("expected cash %s, got %s", want, a.Cash)
	}

	seed(t, m, 1)
	eq, err := a.Equity(m)
	if err != nil {
		t.Fatal(err)
	}
	if want := decimal.RequireFromString("2001"); !eq.Equal(want) {
		t.Errorf("expected equity %s, got %s", want, eq)
	}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name string
		divs []float64
		r    float64
		want float64
	}{
		{"current dividend only", []float64{0.05}, 5e-4, 100},
		{"two known dividends", []float64{1, 1}, 0.1, 1/1.1 + 1/0.1/1.1},
		{"empty stream", nil, 0.1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Evaluate(tt.divs, tt.r); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestFundamentalistBuysUndervaluedStock(t *testing.T) {
	pop := NewPopulation()
	m := testMarket(t, pop)
	// fair value 100, book quoted around 90
	m.LimitOrder(ids.NoAgent, orderbook.Bid, 890, 10)
	m.LimitOrder(ids.NoAgent, orderbook.Ask, 910, 10)

	a := NewFundamentalist(1, 0, cash(10000), 0, 0)
	pop.Add(a)
	if err := a.Call(m, &util.Script{Floats: []float64{0.9, 0.9}}); err != nil {
		t.Fatal(err)
	}
	if a.Inventory != 5 {
		t.Errorf("expected a capped market buy of 5, got inventory %d", a.Inventory)
	}
}

func TestFundamentalQuantity(t *testing.T) {
	tests := []struct {
		name  string
		pf, p float64
		want  int64
	}{
		{"fairly priced", 100, 100, 0},
		{"capped", 100, 50, maxQty},
		{"zero price", 100, 0, 0},
		{"negative price", 100, -5, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := fundamentalQuantity(tt.pf, tt.p); got != tt.want {
				t.Errorf("fundamentalQuantity(%v, %v) = %d, want %d", tt.pf, tt.p, got, tt.want)
			}
		})
	}
}

func TestChartistTradesWithSentiment(t *testing.T) {
	pop := NewPopulation()
	m := testMarket(t, pop)
	seed(t, m, 10)

	a := NewChartist(1, 0, cash(1000), 0, &util.Script{Floats: []float64{0.1}})
	if a.Sentiment != Pessimistic {
		t.Fatalf("expected pessimist from a low draw, got %s", a.Sentiment)
	}
	pop.Add(a)
	if err := a.Call(m, &util.Script{Floats: []float64{0.9}, Ints: []int{1}}); err != nil {
		t.Fatal(err)
	}
	if a.Inventory != -2 {
		t.Errorf("expected a market sell of 2, got inventory %d", a.Inventory)
	}
}

func TestChangeSentimentFollowsHerd(t *testing.T) {
	m := testMarket(t, NewPopulation())
	seed(t, m, 1)
	snap := Snapshot{Traders: 1, Chartists: 1, Pessimists: 1, PriceChange: map[ids.MarketID]float64{}}

	tests := []struct {
		name string
		draw float64
		want Sentiment
	}{
		{"flips under a pessimistic majority", 0.1, Pessimistic},
		{"keeps view on a high draw", 0.9, Optimistic},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewChartist(1, 0, cash(1), 0, &util.Script{Floats: []float64{0.9}})
			if err := a.ChangeSentiment(snap, m, &util.Script{Floats: []float64{tt.draw}}); err != nil {
				t.Fatal(err)
			}
			if a.Sentiment != tt.want {
				t.Errorf("expected %s, got %s", tt.want, a.Sentiment)
			}
		})
	}
}

func TestChangeStrategy(t *testing.T) {
	m := testMarket(t, NewPopulation())
	seed(t, m, 1)

	// strategy draw 0.9 -> chartist, sentiment draw 0.9 -> optimist
	a := NewUniversalist(1, 0, cash(1), 0, 0, &util.Script{Floats: []float64{0.9, 0.9}})
	if a.Strategy != Trend || a.Sentiment != Optimistic {
		t.Fatalf("expected optimistic chartist, got %s %s", a.Strategy, a.Sentiment)
	}

	none := Snapshot{Traders: 10, PriceChange: map[ids.MarketID]float64{}}
	if err := a.ChangeStrategy(none, m, &util.Script{Floats: []float64{0}}); err != nil {
		t.Fatal(err)
	}
	if a.Strategy != Trend {
		t.Errorf("expected no switch without optimists to imitate")
	}

	crowd := Snapshot{Traders: 10, Optimists: 10, Chartists: 10, PriceChange: map[ids.MarketID]float64{}}
	if err := a.ChangeStrategy(crowd, m, &util.Script{Floats: []float64{0}}); err != nil {
		t.Fatal(err)
	}
	if a.Strategy != Fundamental || a.Type() != "Fundamentalist" {
		t.Errorf("expected switch to fundamentalist, got %s", a.Type())
	}
}

func TestPreActionOnlyTouchesSentimentBearers(t *testing.T) {
	m := testMarket(t, NewPopulation())
	seed(t, m, 1)
	snap := Snapshot{Traders: 1, Chartists: 1, Pessimists: 1, PriceChange: map[ids.MarketID]float64{}}

	r := NewRandom(1, 0, cash(1), 0)
	rng := &util.Script{Floats: []float64{0}}
	if err := r.PreAction(snap, m, rng); err != nil {
		t.Fatal(err)
	}
	if len(rng.Floats) != 1 {
		t.Errorf("expected no draws for a noise trader")
	}
	if r.Sentiment != NoSentiment {
		t.Errorf("expected noise trader without sentiment")
	}
}

func TestPopulationEvictCancelsOrders(t *testing.T) {
	pop := NewPopulation()
	m := testMarket(t, pop)
	a := NewMarketMaker(1, 0, cash(1000), 0, 10)
	pop.Add(a)
	seed(t, m, 5)
	a.Call(m, util.NewRand(1))

	if _, err := pop.Evict(a.ID, m); err != nil {
		t.Fatal(err)
	}
	if pop.Len() != 0 {
		t.Errorf("expected empty population")
	}
	if d := m.Depth(); d.BidOrders != 1 || d.AskOrders != 1 {
		t.Errorf("expected only seed orders left, got %+v", d)
	}
	if _, err := pop.Evict(a.ID, m); !errors.Is(err, ErrUnknownAgent) {
		t.Errorf("expected ErrUnknownAgent, got %v", err)
	}
	if err := pop.Settle(a.ID, 1, cash(1)); !errors.Is(err, ErrUnknownAgent) {
		t.Errorf("expected ErrUnknownAgent on settle, got %v", err)
	}
}

func TestPopulationOrder(t *testing.T) {
	pop := NewPopulation()
	for _, id := range []ids.AgentID{3, 1, 2} {
		if err := pop.Add(NewRandom(id, 0, cash(1), 0)); err != nil {
			t.Fatal(err)
		}
	}
	if err := pop.Add(NewRandom(1, 0, cash(1), 0)); !errors.Is(err, ErrDuplicateAgent) {
		t.Errorf("expected ErrDuplicateAgent, got %v", err)
	}
	pop.Remove(1)
	got := pop.IDs()
	if len(got) != 2 || got[0] != 3 || got[1] != 2 {
		t.Errorf("expected registration order [3 2], got %v", got)
	}
}

package orderbook

// priceHeap keeps the distinct prices of one book side with the best on top:
// highest first for bids, lowest first for asks.
// Use container/heap to manipulate it (Init, Push, Pop, Remove).
type priceHeap struct {
	side   Side
	prices []int64
}

func (h priceHeap) Len() int { return len(h.prices) }

func (h priceHeap) Less(i, j int) bool {
	return better(h.side, h.prices[i], h.prices[j])
}

func (h priceHeap) Swap(i, j int) { h.prices[i], h.prices[j] = h.prices[j], h.prices[i] }

func (h *priceHeap) Push(x any) {
	h.prices = append(h.prices, x.(int64))
}

func (h *priceHeap) Pop() any {
	old := h.prices
	n := len(old)
	x := old[n-1]
	h.prices = old[:n-1]
	return x
}

// peek returns the top price without removing it.
func (h priceHeap) peek() (int64, bool) {
	if len(h.prices) == 0 {
		return 0, false
	}
	return h.prices[0], true
}

func (h priceHeap) indexOf(price int64) int {
	for i, p := range h.prices {
		if p == price {
			return i
		}
	}
	return -1
}

// better reports whether price a has priority over price b on side s.
func better(s Side, a, b int64) bool {
	if s == Bid {
		return a > b
	}
	return a < b
}

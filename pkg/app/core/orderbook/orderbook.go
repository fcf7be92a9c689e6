package orderbook

import (
	"container/heap"
	"fmt"
	"sort"

	"github.com/uhyunpark/marketsim/pkg/app/core/ids"
)

// Book holds the resting orders of one side of one market in price-time
// priority. Each distinct price keeps a FIFO queue; a heap tracks the best price.
//
// Book is not safe for concurrent use. The simulator mutates books from a
// single goroutine.
type Book struct {
	side   Side
	prices *priceHeap
	levels map[int64][]*Order    // price -> FIFO queue
	index  map[ids.OrderID]int64 // order ID -> price
	volume int64                 // total resting qty
}

func NewBook(side Side) *Book {
	h := &priceHeap{side: side}
	heap.Init(h)
	return &Book{
		side:   side,
		prices: h,
		levels: make(map[int64][]*Order),
		index:  make(map[ids.OrderID]int64),
	}
}

func (b *Book) Side() Side { return b.side }

// Insert rests o at the back of its price level. A zero-quantity order is a no-op.
// Insert does not match: callers route crossing orders through Fulfill first.
func (b *Book) Insert(o Order) error {
	if o.Qty <= 0 {
		return nil
	}
	if o.Side != b.side {
		return fmt.Errorf("insert %s order into %s book: %w", o.Side, b.side, ErrWrongSide)
	}
	if _, ok := b.index[o.ID]; ok {
		return fmt.Errorf("insert %s: %w", o.ID, ErrDuplicateOrder)
	}
	if len(b.levels[o.Price]) == 0 {
		heap.Push(b.prices, o.Price)
	}
	cp := o
	b.levels[o.Price] = append(b.levels[o.Price], &cp)
	b.index[o.ID] = o.Price
	b.volume += o.Qty
	return nil
}

// Fulfill matches the incoming order in against this book, best price first,
// and returns what is left of it together with the fills. Matching stops when
// in is exhausted, the book is empty, or (for limit orders) the best resting
// price no longer crosses in.Price. Each fill trades at the resting price.
func (b *Book) Fulfill(in Order, cost float64) (Order, []Fill) {
	if in.Qty <= 0 || in.Side != b.side.Opposite() {
		return in, nil
	}

	var fills []Fill
	for in.Qty > 0 {
		best, ok := b.prices.peek()
		if !ok {
			break
		}
		if in.Type == Limit && !b.crosses(best, in.Price) {
			break
		}
		level := b.levels[best]
		maker := level[0]
		match := min(in.Qty, maker.Qty)
		in.Qty -= match
		maker.Qty -= match
		b.volume -= match

		done := maker.Qty == 0
		fills = append(fills, Fill{
			Price:      best,
			Qty:        match,
			Side:       in.Side,
			Taker:      in.Owner,
			Maker:      maker.Owner,
			MakerOrder: maker.ID,
			MakerDone:  done,
			Cost:       cost,
		})
		if done {
			delete(b.index, maker.ID)
			b.popFront(best)
		}
	}
	return in, fills
}

// Crosses reports whether an incoming order priced at price would match the
// best resting order of this book. An empty book never crosses.
func (b *Book) Crosses(price int64) bool {
	best, ok := b.prices.peek()
	if !ok {
		return false
	}
	return b.crosses(best, price)
}

func (b *Book) crosses(resting, incoming int64) bool {
	if b.side == Ask {
		return resting <= incoming
	}
	return resting >= incoming
}

// Remove deletes the order with the given ID and returns it.
func (b *Book) Remove(id ids.OrderID) (Order, error) {
	price, ok := b.index[id]
	if !ok {
		return Order{}, fmt.Errorf("remove %s from %s book: %w", id, b.side, ErrOrderNotFound)
	}
	level := b.levels[price]
	for i, o := range level {
		if o.ID != id {
			continue
		}
		out := *o
		b.levels[price] = append(level[:i], level[i+1:]...)
		b.volume -= o.Qty
		delete(b.index, id)
		if len(b.levels[price]) == 0 {
			b.dropLevel(price)
		}
		return out, nil
	}
	return Order{}, fmt.Errorf("remove %s: index points at %d but level has no such order: %w", id, price, ErrOrderNotFound)
}

func (b *Book) popFront(price int64) {
	level := b.levels[price]
	level[0] = nil
	b.levels[price] = level[1:]
	if len(b.levels[price]) == 0 {
		b.dropLevel(price)
	}
}

func (b *Book) dropLevel(price int64) {
	delete(b.levels, price)
	if i := b.prices.indexOf(price); i >= 0 {
		heap.Remove(b.prices, i)
	}
}

// Best returns the best resting price.
func (b *Book) Best() (int64, bool) { return b.prices.peek() }

// BestOrder returns the order at the front of the best price level.
func (b *Book) BestOrder() (Order, bool) {
	best, ok := b.prices.peek()
	if !ok {
		return Order{}, false
	}
	return *b.levels[best][0], true
}

// BestLevel aggregates the orders resting at the best price.
func (b *Book) BestLevel() (PriceLevel, bool) {
	best, ok := b.prices.peek()
	if !ok {
		return PriceLevel{}, false
	}
	lvl := PriceLevel{Price: best, Orders: len(b.levels[best])}
	for _, o := range b.levels[best] {
		lvl.Qty += o.Qty
	}
	return lvl, true
}

// Get returns a resting order by ID.
func (b *Book) Get(id ids.OrderID) (Order, bool) {
	price, ok := b.index[id]
	if !ok {
		return Order{}, false
	}
	for _, o := range b.levels[price] {
		if o.ID == id {
			return *o, true
		}
	}
	return Order{}, false
}

// Len returns the number of resting orders.
func (b *Book) Len() int { return len(b.index) }

// Empty reports whether nothing rests on this side.
func (b *Book) Empty() bool { return len(b.index) == 0 }

// Volume returns the total resting quantity.
func (b *Book) Volume() int64 { return b.volume }

// Levels returns the aggregated price levels, best first.
func (b *Book) Levels() []PriceLevel {
	levels := make([]PriceLevel, 0, len(b.levels))
	for price, orders := range b.levels {
		var qty int64
		for _, o := range orders {
			qty += o.Qty
		}
		levels = append(levels, PriceLevel{Price: price, Qty: qty, Orders: len(orders)})
	}
	sort.Slice(levels, func(i, j int) bool {
		return better(b.side, levels[i].Price, levels[j].Price)
	})
	return levels
}

// Orders returns every resting order in priority order.
func (b *Book) Orders() []Order {
	out := make([]Order, 0, len(b.index))
	for _, lvl := range b.Levels() {
		for _, o := range b.levels[lvl.Price] {
			out = append(out, *o)
		}
	}
	return out
}

// Shift moves every resting price by delta ticks. Relative priority is unchanged.
func (b *Book) Shift(delta int64) {
	if delta == 0 || len(b.levels) == 0 {
		return
	}
	shifted := make(map[int64][]*Order, len(b.levels))
	for price, orders := range b.levels {
		for _, o := range orders {
			o.Price += delta
			b.index[o.ID] = o.Price
		}
		shifted[price+delta] = orders
	}
	b.levels = shifted
	for i := range b.prices.prices {
		b.prices.prices[i] += delta
	}
	heap.Init(b.prices)
}

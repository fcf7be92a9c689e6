package market

import "github.com/uhyunpark/marketsim/pkg/app/core/orderbook"

// Derived per-tick metrics. They read only the current book and the tape, and
// a tape with no trades yields zero for every trade-based metric.

// Imbalance is (bidQty - askQty) / (bidQty + askQty) over the best levels, in [-1, 1].
// It is 0 when both best levels are empty.
func (m *Market) Imbalance() float64 {
	var qb, qa int64
	if lvl, ok := m.bids.BestLevel(); ok {
		qb = lvl.Qty
	}
	if lvl, ok := m.asks.BestLevel(); ok {
		qa = lvl.Qty
	}
	if qb+qa == 0 {
		return 0
	}
	return float64(qb-qa) / float64(qb+qa)
}

// NormalizedSpread is (ask - bid) / mid.
func (m *Market) NormalizedSpread() (float64, error) {
	bid, ask, err := m.SpreadTicks()
	if err != nil {
		return 0, err
	}
	mid, err := m.PriceTicks()
	if err != nil {
		return 0, err
	}
	return float64(ask-bid) / float64(mid), nil
}

// SmartPrice is the size-weighted microprice: each best price weighted by the
// quantity resting on the other side.
func (m *Market) SmartPrice() (float64, error) {
	bl, okb := m.bids.BestLevel()
	al, oka := m.asks.BestLevel()
	if !okb || !oka {
		return 0, ErrNoPrice
	}
	ticks := (float64(bl.Price)*float64(al.Qty) + float64(al.Price)*float64(bl.Qty)) / float64(bl.Qty+al.Qty)
	return ticks * m.params.TickSize, nil
}

// TradeSign is +1 if the last trade on the tape was buyer-initiated, -1 if
// seller-initiated and 0 without trades.
func (m *Market) TradeSign() int {
	if len(m.tape) == 0 {
		return 0
	}
	return int(m.tape[len(m.tape)-1].Side)
}

// SignedVolume is buyer-initiated volume minus seller-initiated volume.
func (m *Market) SignedVolume() int64 {
	buy, sell := m.AggressiveVolume()
	return buy - sell
}

// AggressiveVolume splits the tape volume by initiating side.
func (m *Market) AggressiveVolume() (buy, sell int64) {
	for _, f := range m.tape {
		if f.Side == orderbook.Bid {
			buy += f.Qty
		} else {
			sell += f.Qty
		}
	}
	return buy, sell
}

// PastReturnBps is the mid-price return since the last ClearTape, in basis
// points. It is 0 when either price is undefined.
func (m *Market) PastReturnBps() float64 {
	if !m.hasRef || m.refPrice <= 0 {
		return 0
	}
	now, ok := m.midTicks()
	if !ok {
		return 0
	}
	return float64(now-m.refPrice) / float64(m.refPrice) * 1e4
}

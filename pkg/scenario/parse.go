package scenario

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/marketsim/pkg/app/core/ids"
)

// Parse reads a scenario of the form
//
//	kind:market:iteration[:value];kind:market:iteration[:value];...
//
// Kinds are fundamental_shock, market_shock, liquidity_shock,
// information_shock, transaction_cost (value required), mm_in (optional value
// "softlimit" or "cash,assets,softlimit") and mm_out (no value). Events are
// returned in the order written.
func Parse(s string) ([]Event, error) {
	var events []Event
	for _, item := range strings.Split(s, ";") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		ev, err := parseItem(item)
		if err != nil {
			return nil, fmt.Errorf("scenario %q: %w", item, err)
		}
		events = append(events, ev)
	}
	return events, nil
}

func parseItem(item string) (Event, error) {
	fields := strings.Split(item, ":")
	if len(fields) < 3 || len(fields) > 4 {
		return nil, fmt.Errorf("expected kind:market:iteration[:value]")
	}
	kind := strings.ToLower(strings.TrimSpace(fields[0]))
	mkt, err := strconv.Atoi(strings.TrimSpace(fields[1]))
	if err != nil || mkt < 0 {
		return nil, fmt.Errorf("invalid market %q", fields[1])
	}
	it, err := strconv.Atoi(strings.TrimSpace(fields[2]))
	if err != nil || it < 0 {
		return nil, fmt.Errorf("invalid iteration %q", fields[2])
	}
	value := ""
	if len(fields) == 4 {
		value = strings.TrimSpace(fields[3])
	}
	id := ids.MarketID(mkt)

	switch kind {
	case "fundamental_shock", "market_shock", "transaction_cost":
		v, err := parseFloat(value)
		if err != nil {
			return nil, err
		}
		switch kind {
		case "fundamental_shock":
			return NewFundamentalPriceShock(id, it, v), nil
		case "market_shock":
			return NewMarketPriceShock(id, it, v), nil
		}
		return NewTransactionCost(id, it, v), nil
	case "liquidity_shock":
		v, err := parseFloat(value)
		if err != nil {
			return nil, err
		}
		return NewLiquidityShock(id, it, decimal.NewFromFloat(v).RoundBank(0).IntPart()), nil
	case "information_shock":
		if value == "" {
			return nil, fmt.Errorf("missing value")
		}
		access, err := strconv.Atoi(value)
		if err != nil || access < 0 {
			return nil, fmt.Errorf("invalid access %q", value)
		}
		return NewInformationShock(id, it, access), nil
	case "mm_in":
		return parseMakerIn(id, it, value)
	case "mm_out":
		if value != "" {
			return nil, fmt.Errorf("mm_out takes no value")
		}
		return NewMarketMakerOut(id, it), nil
	}
	return nil, fmt.Errorf("unknown event kind %q", kind)
}

func parseFloat(value string) (float64, error) {
	if value == "" {
		return 0, fmt.Errorf("missing value")
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q", value)
	}
	return v, nil
}

func parseMakerIn(id ids.MarketID, it int, value string) (Event, error) {
	cash := decimal.NewFromInt(DefaultMakerCash)
	var assets int64
	var soft int64 = DefaultMakerSoftLimit

	parts := strings.Split(value, ",")
	var err error
	switch {
	case value == "":
	case len(parts) == 1:
		soft, err = strconv.ParseInt(parts[0], 10, 64)
	case len(parts) == 3:
		if cash, err = decimal.NewFromString(strings.TrimSpace(parts[0])); err != nil {
			break
		}
		if assets, err = strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64); err != nil {
			break
		}
		soft, err = strconv.ParseInt(strings.TrimSpace(parts[2]), 10, 64)
	default:
		return nil, fmt.Errorf("mm_in value must be softlimit or cash,assets,softlimit")
	}
	if err != nil {
		return nil, fmt.Errorf("invalid mm_in value %q: %w", value, err)
	}
	if soft <= 0 {
		return nil, fmt.Errorf("soft limit must be positive, got %d", soft)
	}
	return NewMarketMakerIn(id, it, cash, assets, soft), nil
}

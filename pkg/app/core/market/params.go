package market

import "fmt"

// Params configures one market and its initial order book.
type Params struct {
	// TickSize is the price increment. Book prices are integer multiples of it.
	TickSize float64
	// Price is the centre of the initial book.
	Price float64
	// Std is the spread of initial order prices around Price.
	Std float64
	// Volume is the number of orders seeded into the initial book.
	Volume int
	// RiskFree is the per-tick risk-free rate paid on cash.
	RiskFree float64
	// TransactionCost is the fraction charged to both counterparties of a trade.
	TransactionCost float64
}

func DefaultParams() Params {
	return Params{
		TickSize:        0.1,
		Price:           100,
		Std:             25,
		Volume:          1000,
		RiskFree:        5e-4,
		TransactionCost: 0,
	}
}

// Validate checks parameter sanity
func (p Params) Validate() error {
	if p.TickSize <= 0 {
		return fmt.Errorf("tick size must be positive")
	}
	if p.Price <= 0 {
		return fmt.Errorf("initial price must be positive")
	}
	if p.Std < 0 {
		return fmt.Errorf("price std cannot be negative")
	}
	if p.Volume < 0 {
		return fmt.Errorf("initial volume cannot be negative")
	}
	if p.RiskFree <= 0 {
		return fmt.Errorf("risk-free rate must be positive")
	}
	if err := validateCost(p.TransactionCost); err != nil {
		return err
	}
	return nil
}

func validateCost(c float64) error {
	if c < 0 || c >= 1 {
		return fmt.Errorf("transaction cost must be in [0, 1), got %v", c)
	}
	return nil
}

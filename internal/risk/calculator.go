package risk

import (
	"fmt"

	"tradepilot/internal/domain"
)

// OrderSpec is the concrete order a signal resolves to for one subscriber.
type OrderSpec struct {
	Symbol          string
	Side            domain.Direction
	Quantity        float64
	EntryPrice      float64
	StopLossPrice   float64
	TakeProfitPrice float64
}

// Calculator turns (signal, risk profile, equity) into an order. It performs
// no I/O and is deterministic given its inputs.
type Calculator struct {
	// Unit scales the per-leverage-point price offset for stop and target,
	// e.g. 0.001 means each multiplier*leverage point moves the exit 0.1%
	// away from entry.
	Unit float64
}

func NewCalculator(unit float64) *Calculator {
	if unit <= 0 {
		unit = 0.001
	}
	return &Calculator{Unit: unit}
}

// Build sizes the position and derives protective prices. The profile is
// re-validated here so a corrupt row can never reach the exchange.
func (c *Calculator) Build(sig domain.Signal, profile domain.RiskProfile, equity float64) (OrderSpec, error) {
	if err := profile.Validate(); err != nil {
		return OrderSpec{}, err
	}
	if sig.Price <= 0 {
		return OrderSpec{}, fmt.Errorf("signal price must be positive, got %f", sig.Price)
	}
	if equity <= 0 {
		return OrderSpec{}, fmt.Errorf("account equity must be positive, got %f", equity)
	}

	margin := equity * profile.BalancePercentPerTrade / 100
	quantity := margin / sig.Price * float64(profile.Leverage)

	slOffset := profile.StopLossMultiplier * float64(profile.Leverage) * c.Unit
	tpOffset := profile.TakeProfitMultiplier * float64(profile.Leverage) * c.Unit

	var stopLoss, takeProfit float64
	switch sig.Direction {
	case domain.DirectionLong:
		stopLoss = sig.Price * (1 - slOffset)
		takeProfit = sig.Price * (1 + tpOffset)
	case domain.DirectionShort:
		stopLoss = sig.Price * (1 + slOffset)
		takeProfit = sig.Price * (1 - tpOffset)
	default:
		return OrderSpec{}, fmt.Errorf("unknown direction %q", sig.Direction)
	}

	return OrderSpec{
		Symbol:          sig.Symbol,
		Side:            sig.Direction,
		Quantity:        quantity,
		EntryPrice:      sig.Price,
		StopLossPrice:   stopLoss,
		TakeProfitPrice: takeProfit,
	}, nil
}

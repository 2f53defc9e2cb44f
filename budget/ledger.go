// Package budget enforces spend ceilings. Every check-and-charge is a single
// atomic step, so concurrent bids can never overdraw a budget between the
// check and the write.
package budget

import (
	"context"
	"errors"
	"math"
	"strconv"

	"github.com/puzpuzpuz/xsync/v4"
)

var (
	// ErrExhausted is returned when a charge would exceed the available budget.
	ErrExhausted    = errors.New("budget: exhausted")
	ErrInvalidEvent = errors.New("budget: event without entity id")
)

// Micros is the number of Amount units in one currency unit.
const Micros = 1_000_000

// Amount is a currency amount in millionths. Integer arithmetic keeps
// repeated charges exact.
type Amount int64

// FromFloat rounds f to the nearest micro unit.
func FromFloat(f float64) Amount { return Amount(math.Round(f * Micros)) }

func (a Amount) Float() float64 { return float64(a) / Micros }

func (a Amount) String() string { return strconv.FormatFloat(a.Float(), 'f', -1, 64) }

// Ledger keeps running totals per key.
type Ledger interface {
	// TryIncrement adds amount to the total for key if the result does not
	// exceed ceiling. It returns the total after the call and whether the
	// increment was applied.
	TryIncrement(ctx context.Context, key string, amount, ceiling Amount) (Amount, bool, error)
	// Total returns the current total for key, zero if unknown.
	Total(ctx context.Context, key string) (Amount, error)
}

// MemoryLedger is a process-local Ledger.
type MemoryLedger struct {
	totals *xsync.Map[string, Amount]
}

var _ Ledger = (*MemoryLedger)(nil)

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{totals: xsync.NewMap[string, Amount]()}
}

func (l *MemoryLedger) TryIncrement(ctx context.Context, key string, amount, ceiling Amount) (Amount, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	applied := false
	total, _ := l.totals.Compute(key, func(old Amount, _ bool) (Amount, xsync.ComputeOp) {
		if old+amount > ceiling {
			return old, xsync.CancelOp
		}
		applied = true
		return old + amount, xsync.UpdateOp
	})
	return total, applied, nil
}

func (l *MemoryLedger) Total(ctx context.Context, key string) (Amount, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	v, _ := l.totals.Load(key)
	return v, nil
}

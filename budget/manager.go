package budget

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"

	"github.com/oy3o/bidstream/entity"
)

// EntryRecorder persists or forwards ledger entries.
type EntryRecorder interface {
	Record(ctx context.Context, entry *entity.LedgerEntry) error
}

// RecorderFunc adapts a function to EntryRecorder.
type RecorderFunc func(ctx context.Context, entry *entity.LedgerEntry) error

func (f RecorderFunc) Record(ctx context.Context, entry *entity.LedgerEntry) error {
	return f(ctx, entry)
}

// Manager tracks the budget allocated to each entity and charges against it.
type Manager struct {
	remaining *xsync.Map[string, Amount]
	ledger    Ledger
	recorder  EntryRecorder
	log       *zap.Logger
}

// NewManager returns a manager charging ledger. recorder and logger may be nil.
func NewManager(ledger Ledger, recorder EntryRecorder, logger *zap.Logger) *Manager {
	if ledger == nil {
		ledger = NewMemoryLedger()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		remaining: xsync.NewMap[string, Amount](),
		ledger:    ledger,
		recorder:  recorder,
		log:       logger.Named("budget"),
	}
}

// Allocate adds amount to the entity's remaining budget and returns the new balance.
func (m *Manager) Allocate(id string, amount Amount) Amount {
	balance, _ := m.remaining.Compute(id, func(old Amount, _ bool) (Amount, xsync.ComputeOp) {
		return old + amount, xsync.UpdateOp
	})
	m.log.Debug("budget allocated", zap.String("id", id), zap.Stringer("amount", amount), zap.Stringer("balance", balance))
	return balance
}

// HandleBudgetEvent applies a budget grant received from the bus.
func (m *Manager) HandleBudgetEvent(_ context.Context, ev *entity.BudgetEvent) error {
	if ev == nil || ev.EntityID == "" {
		return ErrInvalidEvent
	}
	m.Allocate(ev.EntityID, FromFloat(ev.Amount))
	return nil
}

func (m *Manager) Remaining(id string) Amount {
	v, _ := m.remaining.Load(id)
	return v
}

func (m *Manager) IsExhausted(id string) bool { return m.Remaining(id) <= 0 }

// TrySpend deducts amount from the entity's remaining budget. It refuses,
// leaving the balance untouched, when the balance does not cover amount.
func (m *Manager) TrySpend(id string, amount Amount) bool {
	spent := false
	m.remaining.Compute(id, func(old Amount, loaded bool) (Amount, xsync.ComputeOp) {
		if !loaded || old < amount {
			return old, xsync.CancelOp
		}
		spent = true
		return old - amount, xsync.UpdateOp
	})
	if !spent {
		m.log.Debug("budget refused", zap.String("id", id), zap.Stringer("amount", amount))
	}
	return spent
}

// Reserve charges amount against the ledger total for id, bounded by
// ceiling, and records the resulting entry.
func (m *Manager) Reserve(ctx context.Context, id string, amount, ceiling Amount) (*entity.LedgerEntry, error) {
	total, ok, err := m.ledger.TryIncrement(ctx, id, amount, ceiling)
	if err != nil {
		return nil, fmt.Errorf("budget: reserve %s: %w", id, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s at %s of %s", ErrExhausted, id, total, ceiling)
	}

	entry := &entity.LedgerEntry{
		ID:              id,
		SecondaryID:     uuid.New(),
		EntryType:       entity.LedgerBid,
		OriginalAmount:  amount.Float(),
		RemainingAmount: (ceiling - total).Float(),
	}
	if m.recorder != nil {
		if err := m.recorder.Record(ctx, entry); err != nil {
			m.log.Warn("ledger entry not recorded", zap.String("id", id), zap.Error(err))
		}
	}
	return entry, nil
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	codec "github.com/oy3o/bidstream"
	"github.com/oy3o/bidstream/budget"
	"github.com/oy3o/bidstream/entity"
)

// Ledger is a durable budget.Ledger that also records the ledger entries
// produced by reservations.
type Ledger struct {
	store *Store
	now   func() time.Time
}

// LedgerSummary totals the entries recorded in [Start, End).
type LedgerSummary struct {
	Start  time.Time
	End    time.Time
	Amount budget.Amount
	Bids   int
}

var errEmptyRange = errors.New("storage: summary range is empty")

var (
	_ budget.Ledger        = (*Ledger)(nil)
	_ budget.EntryRecorder = (*Ledger)(nil)
)

func NewLedger(s *Store) *Ledger {
	if !codec.IsRegistered[entity.LedgerEntry](s.reg) {
		panic("storage: no serializer registered for ledger entries")
	}
	return &Ledger{store: s, now: time.Now}
}

func (l *Ledger) createTables(conn *sqlite.Conn) error {
	return sqlitex.ExecuteScript(conn, `
		CREATE TABLE IF NOT EXISTS budget_totals (
			key   TEXT PRIMARY KEY,
			total INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS ledger_entries (
			secondary TEXT PRIMARY KEY,
			id        TEXT NOT NULL,
			contents  BLOB NOT NULL,
			format    INTEGER NOT NULL,
			amount    INTEGER NOT NULL,
			recorded  INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS ledger_entries_id ON ledger_entries (id, recorded);
	`, nil)
}

// TryIncrement applies the increment inside an immediate transaction, so the
// ceiling check and the write see the same total.
func (l *Ledger) TryIncrement(ctx context.Context, key string, amount, ceiling budget.Amount) (budget.Amount, bool, error) {
	var (
		total   int64
		applied bool
	)
	err := l.store.withConn(ctx, l.createTables, func(conn *sqlite.Conn) (err error) {
		endFn, err := sqlitex.ImmediateTransaction(conn)
		if err != nil {
			return err
		}
		defer endFn(&err)

		err = sqlitex.Execute(conn,
			`INSERT INTO budget_totals (key, total) VALUES (?, 0) ON CONFLICT(key) DO NOTHING`,
			&sqlitex.ExecOptions{Args: []any{key}})
		if err != nil {
			return err
		}
		err = sqlitex.Execute(conn,
			`UPDATE budget_totals SET total = total + ? WHERE key = ? AND total + ? <= ?`,
			&sqlitex.ExecOptions{Args: []any{int64(amount), key, int64(amount), int64(ceiling)}})
		if err != nil {
			return err
		}
		applied = conn.Changes() > 0
		total, err = l.selectTotal(conn, key)
		return err
	})
	if err != nil {
		return 0, false, fmt.Errorf("storage: increment %s: %w", key, err)
	}
	return budget.Amount(total), applied, nil
}

func (l *Ledger) Total(ctx context.Context, key string) (budget.Amount, error) {
	var total int64
	err := l.store.withConn(ctx, l.createTables, func(conn *sqlite.Conn) (err error) {
		total, err = l.selectTotal(conn, key)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("storage: total %s: %w", key, err)
	}
	return budget.Amount(total), nil
}

func (l *Ledger) selectTotal(conn *sqlite.Conn, key string) (int64, error) {
	var total int64
	err := sqlitex.Execute(conn, `SELECT total FROM budget_totals WHERE key = ?`, &sqlitex.ExecOptions{
		Args: []any{key},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			total = stmt.ColumnInt64(0)
			return nil
		},
	})
	return total, err
}

// Record appends entry. Recording the same secondary id twice is a no-op.
func (l *Ledger) Record(ctx context.Context, entry *entity.LedgerEntry) error {
	if entry == nil {
		return errNilValue
	}
	data, err := codec.Marshal(l.store.reg, entry, l.store.format)
	if err != nil {
		return fmt.Errorf("storage: encode ledger entry: %w", err)
	}
	return l.store.withConn(ctx, l.createTables, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`INSERT INTO ledger_entries (secondary, id, contents, format, amount, recorded) VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT(secondary) DO NOTHING`,
			&sqlitex.ExecOptions{Args: []any{
				entry.SecondaryID.String(), entry.ID, data, int64(l.store.format),
				int64(budget.FromFloat(entry.OriginalAmount)), l.now().UnixNano(),
			}})
	})
}

// Entries returns the entries recorded for id, oldest first.
func (l *Ledger) Entries(ctx context.Context, id string) ([]*entity.LedgerEntry, error) {
	var out []*entity.LedgerEntry
	err := l.store.withConn(ctx, l.createTables, func(conn *sqlite.Conn) error {
		out = out[:0]
		return sqlitex.Execute(conn,
			`SELECT contents, format FROM ledger_entries WHERE id = ? ORDER BY recorded, secondary`,
			&sqlitex.ExecOptions{
				Args: []any{id},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					blob := make([]byte, stmt.ColumnLen(0))
					stmt.ColumnBytes(0, blob)
					e, err := codec.Unmarshal[entity.LedgerEntry](l.store.reg, blob, codec.Format(stmt.ColumnInt64(1)))
					if err != nil {
						return err
					}
					if e != nil {
						out = append(out, e)
					}
					return nil
				},
			})
	})
	if err != nil {
		return nil, fmt.Errorf("storage: entries %s: %w", id, err)
	}
	return out, nil
}

// Summary splits [start, end) into segments of equal width and totals the
// entries recorded for id in each. segments below 1 means one segment. Every
// segment is returned, including empty ones.
func (l *Ledger) Summary(ctx context.Context, id string, start, end time.Time, segments int) ([]LedgerSummary, error) {
	if !end.After(start) {
		return nil, errEmptyRange
	}
	if segments < 1 {
		segments = 1
	}
	from, to := start.UnixNano(), end.UnixNano()
	width := (to - from + int64(segments) - 1) / int64(segments)

	out := make([]LedgerSummary, segments)
	for i := range out {
		out[i].Start = time.Unix(0, from+int64(i)*width).UTC()
		out[i].End = time.Unix(0, min(from+int64(i+1)*width, to)).UTC()
	}
	err := l.store.withConn(ctx, l.createTables, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT (recorded - ?) / ? AS segment, SUM(amount), COUNT(*) FROM ledger_entries
			 WHERE id = ? AND recorded >= ? AND recorded < ?
			 GROUP BY segment`,
			&sqlitex.ExecOptions{
				Args: []any{from, width, id, from, to},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					i := stmt.ColumnInt64(0)
					if i < 0 || i >= int64(segments) {
						return nil
					}
					out[i].Amount = budget.Amount(stmt.ColumnInt64(1))
					out[i].Bids = stmt.ColumnInt(2)
					return nil
				},
			})
	})
	if err != nil {
		return nil, fmt.Errorf("storage: summary %s: %w", id, err)
	}
	return out, nil
}

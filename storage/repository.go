package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	codec "github.com/oy3o/bidstream"
)

// Storable is an entity with a primary key and a version tag.
type Storable interface {
	Key() string
	GetETag() string
	SetETag(etag string)
}

// Repository stores values of T in one table. Writes are optimistic: an
// Update or Delete carrying a non-empty ETag only applies to the row version
// it names.
type Repository[T any, P interface {
	*T
	Storable
}] struct {
	store *Store
	table string
	log   *zap.Logger

	selectOne string
	selectAll string
	insert    string
	update    string
	updateAny string
	remove    string
	removeAny string
}

// NewRepository binds T to table. It panics if table is not a plain
// lower-case identifier or T has no registered serializer.
func NewRepository[T any, P interface {
	*T
	Storable
}](s *Store, table string) *Repository[T, P] {
	if !validIdent(table) {
		panic(fmt.Sprintf("storage: invalid table name %q", table))
	}
	if !codec.IsRegistered[T](s.reg) {
		panic(fmt.Sprintf("storage: no serializer registered for table %q", table))
	}
	const cols = "contents, format, compression, size, etag"
	return &Repository[T, P]{
		store:     s,
		table:     table,
		log:       s.log.With(zap.String("table", table)),
		selectOne: "SELECT " + cols + " FROM " + table + " WHERE id = ?",
		selectAll: "SELECT " + cols + " FROM " + table + " ORDER BY id",
		insert: "INSERT INTO " + table + " (id, contents, format, compression, size, etag, updated)" +
			" VALUES (?, ?, ?, ?, ?, ?, ?) ON CONFLICT(id) DO NOTHING",
		update: "UPDATE " + table + " SET contents = ?, format = ?, compression = ?, size = ?, etag = ?, updated = ?" +
			" WHERE id = ? AND etag = ?",
		updateAny: "UPDATE " + table + " SET contents = ?, format = ?, compression = ?, size = ?, etag = ?, updated = ?" +
			" WHERE id = ?",
		remove:    "DELETE FROM " + table + " WHERE id = ? AND etag = ?",
		removeAny: "DELETE FROM " + table + " WHERE id = ?",
	}
}

func (r *Repository[T, P]) createTable(conn *sqlite.Conn) error {
	return sqlitex.ExecuteTransient(conn, `CREATE TABLE IF NOT EXISTS `+r.table+` (
		id          TEXT PRIMARY KEY,
		contents    BLOB NOT NULL,
		format      INTEGER NOT NULL,
		compression INTEGER NOT NULL,
		size        INTEGER NOT NULL,
		etag        TEXT NOT NULL,
		updated     INTEGER NOT NULL
	)`, nil)
}

// Get returns the value stored under id, or ErrNotFound.
func (r *Repository[T, P]) Get(ctx context.Context, id string) (*T, error) {
	var (
		out  *T
		derr error
	)
	err := r.store.withConn(ctx, r.createTable, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, r.selectOne, &sqlitex.ExecOptions{
			Args: []any{id},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				out, derr = r.scan(stmt)
				return nil
			},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("storage: get %s/%s: %w", r.table, id, err)
	}
	if derr != nil {
		return nil, fmt.Errorf("storage: decode %s/%s: %w", r.table, id, derr)
	}
	if out == nil {
		return nil, ErrNotFound
	}
	return out, nil
}

// List returns every stored value ordered by key. Rows that fail to decode
// are logged and skipped.
func (r *Repository[T, P]) List(ctx context.Context) ([]*T, error) {
	var out []*T
	err := r.store.withConn(ctx, r.createTable, func(conn *sqlite.Conn) error {
		out = out[:0]
		return sqlitex.Execute(conn, r.selectAll, &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				v, err := r.scan(stmt)
				if err != nil {
					r.log.Warn("skipping undecodable row", zap.Error(err))
					return nil
				}
				if v != nil {
					out = append(out, v)
				}
				return nil
			},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("storage: list %s: %w", r.table, err)
	}
	return out, nil
}

// Insert stores v under its key. It reports false when the key is taken.
// On success v carries the new ETag.
func (r *Repository[T, P]) Insert(ctx context.Context, v *T) (bool, error) {
	p := P(v)
	row, err := r.encode(v)
	if err != nil {
		return false, err
	}
	var inserted bool
	err = r.store.withConn(ctx, r.createTable, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn, r.insert, &sqlitex.ExecOptions{
			Args: []any{p.Key(), row.contents, int64(row.format), int64(row.compression), row.size, row.etag, row.updated},
		})
		inserted = err == nil && conn.Changes() > 0
		return err
	})
	if err != nil {
		return false, fmt.Errorf("storage: insert %s/%s: %w", r.table, p.Key(), err)
	}
	if inserted {
		p.SetETag(row.etag)
	}
	return inserted, nil
}

// Update replaces the stored value of v's key. With an ETag set it only
// replaces that version. It reports false when no row matched.
func (r *Repository[T, P]) Update(ctx context.Context, v *T) (bool, error) {
	p := P(v)
	row, err := r.encode(v)
	if err != nil {
		return false, err
	}
	query, args := r.updateAny, []any{
		row.contents, int64(row.format), int64(row.compression), row.size, row.etag, row.updated, p.Key(),
	}
	if etag := p.GetETag(); etag != "" {
		query, args = r.update, append(args, etag)
	}
	var updated bool
	err = r.store.withConn(ctx, r.createTable, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{Args: args})
		updated = err == nil && conn.Changes() > 0
		return err
	})
	if err != nil {
		return false, fmt.Errorf("storage: update %s/%s: %w", r.table, p.Key(), err)
	}
	if updated {
		p.SetETag(row.etag)
	}
	return updated, nil
}

// Delete removes v's key, constrained to v's ETag when it has one.
func (r *Repository[T, P]) Delete(ctx context.Context, v *T) (bool, error) {
	if v == nil {
		return false, errNilValue
	}
	p := P(v)
	query, args := r.removeAny, []any{p.Key()}
	if etag := p.GetETag(); etag != "" {
		query, args = r.remove, append(args, etag)
	}
	var deleted bool
	err := r.store.withConn(ctx, r.createTable, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{Args: args})
		deleted = err == nil && conn.Changes() > 0
		return err
	})
	if err != nil {
		return false, fmt.Errorf("storage: delete %s/%s: %w", r.table, p.Key(), err)
	}
	return deleted, nil
}

type encodedRow struct {
	contents    []byte
	format      codec.Format
	compression Compression
	size        int64
	etag        string
	updated     int64
}

var errNilValue = errors.New("storage: nil value")

func (r *Repository[T, P]) encode(v *T) (encodedRow, error) {
	if v == nil {
		return encodedRow{}, errNilValue
	}
	data, err := codec.Marshal(r.store.reg, v, r.store.format)
	if err != nil {
		return encodedRow{}, fmt.Errorf("storage: encode %s/%s: %w", r.table, P(v).Key(), err)
	}
	contents, used, err := compress(data, r.store.compression)
	if err != nil {
		return encodedRow{}, err
	}
	return encodedRow{
		contents:    contents,
		format:      r.store.format,
		compression: used,
		size:        int64(len(data)),
		etag:        ETag(data),
		updated:     time.Now().UnixNano(),
	}, nil
}

// scan decodes a row selected with the contents, format, compression, size
// and etag columns in that order.
func (r *Repository[T, P]) scan(stmt *sqlite.Stmt) (*T, error) {
	blob := make([]byte, stmt.ColumnLen(0))
	stmt.ColumnBytes(0, blob)
	format := codec.Format(stmt.ColumnInt64(1))
	data, err := decompress(blob, Compression(stmt.ColumnInt64(2)), int(stmt.ColumnInt64(3)))
	if err != nil {
		return nil, err
	}
	v, err := codec.Unmarshal[T](r.store.reg, data, format)
	if err != nil {
		return nil, err
	}
	if v == nil {
		v = new(T)
	}
	P(v).SetETag(stmt.ColumnText(4))
	return v, nil
}

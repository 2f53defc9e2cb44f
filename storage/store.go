// Package storage persists encoded entities in SQLite. Each row holds the
// encoded bytes together with the format and compression used to write
// them, so rows written under an older configuration stay readable.
package storage

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/zeebo/blake3"
	"go.uber.org/zap"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	codec "github.com/oy3o/bidstream"
)

var (
	// ErrNotFound is returned when no row has the requested key.
	ErrNotFound = errors.New("storage: not found")
	ErrNoPath   = errors.New("storage: path is required")
)

// Config holds the parameters for opening a Store.
type Config struct {
	// Path is the SQLite database file. It is created if missing.
	Path string
	// PoolSize defaults to max(runtime.NumCPU(), 4).
	PoolSize int
	// Format is used for new writes.
	Format codec.Format
	// Compression is used for new writes.
	Compression Compression
}

// Store is a pool of SQLite connections plus the codec settings shared by
// every repository opened on it.
type Store struct {
	pool        *sqlitex.Pool
	reg         *codec.Registry
	format      codec.Format
	compression Compression
	log         *zap.Logger
	path        string
}

// Open creates the connection pool. Connections are opened lazily.
func Open(cfg Config, reg *codec.Registry, logger *zap.Logger) (*Store, error) {
	if cfg.Path == "" {
		return nil, ErrNoPath
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Format.Valid() {
		cfg.Format = codec.FormatBinary
	}
	size := cfg.PoolSize
	if size <= 0 {
		size = max(runtime.NumCPU(), 4)
	}

	pool, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize:    size,
		PrepareConn: prepareConn,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: opening %s: %w", cfg.Path, err)
	}

	log := logger.Named("storage")
	log.Info("sqlite pool opened", zap.String("path", cfg.Path), zap.Int("pool_size", size),
		zap.Stringer("format", cfg.Format), zap.Stringer("compression", cfg.Compression))

	return &Store{
		pool:        pool,
		reg:         reg,
		format:      cfg.Format,
		compression: cfg.Compression,
		log:         log,
		path:        cfg.Path,
	}, nil
}

func prepareConn(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("storage: %s: %w", pragma, err)
		}
	}
	return nil
}

// Close blocks until borrowed connections are returned.
func (s *Store) Close() error {
	if err := s.pool.Close(); err != nil {
		s.log.Error("sqlite pool close error", zap.String("path", s.path), zap.Error(err))
		return fmt.Errorf("storage: closing %s: %w", s.path, err)
	}
	s.log.Info("sqlite pool closed", zap.String("path", s.path))
	return nil
}

// withConn runs fn on a pooled connection. When fn fails because a table is
// missing, ensure creates the schema and fn runs once more.
func (s *Store) withConn(ctx context.Context, ensure func(*sqlite.Conn) error, fn func(*sqlite.Conn) error) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("storage: take: %w", err)
	}
	defer s.pool.Put(conn)

	err = fn(conn)
	if !isNoSuchTable(err) {
		return err
	}
	s.log.Info("creating missing table", zap.Error(err))
	if err := ensure(conn); err != nil {
		return fmt.Errorf("storage: create schema: %w", err)
	}
	return fn(conn)
}

func isNoSuchTable(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}

// ETag derives the version tag of an encoded value.
func ETag(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:16])
}

// validIdent accepts lower-case SQL identifiers.
func validIdent(name string) bool {
	if name == "" {
		return false
	}
	for i, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c == '_':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

package db

import (
	"context"
	"embed"
	"fmt"
	"net"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Cypherspark/devops-app/internal/config"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	probeSQL  = `SELECT NOW()`
	insertSQL = `INSERT INTO process_logs (data, created_at) VALUES ($1, NOW())`
)

// DB is the datastore client. Every call borrows a pooled connection for the
// duration of one statement and is bounded by QueryTimeout.
type DB struct {
	Pool         *pgxpool.Pool
	QueryTimeout time.Duration
}

func NewDB(pool *pgxpool.Pool, queryTimeout time.Duration) *DB {
	return &DB{Pool: pool, QueryTimeout: queryTimeout}
}

// DSN builds a postgres URL; credentials are escaped.
func DSN(cfg config.DBConfig) string {
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:   "/" + cfg.Name,
	}
	q := u.Query()
	q.Set("sslmode", cfg.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// NewPool configures a pool without dialing. Connections are opened on first
// use, so an unreachable database does not fail here.
func NewPool(ctx context.Context, cfg config.DBConfig) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	pcfg.MaxConns = cfg.MaxConns
	pcfg.MinConns = 0
	pcfg.MaxConnIdleTime = cfg.IdleTimeout
	pcfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}
	return pool, nil
}

func (db *DB) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if db.QueryTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, db.QueryTimeout)
}

// Now runs the round-trip probe query and returns the server clock.
func (db *DB) Now(ctx context.Context) (time.Time, error) {
	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	var now time.Time
	if err := db.Pool.QueryRow(ctx, probeSQL).Scan(&now); err != nil {
		return time.Time{}, fmt.Errorf("probe: %w", err)
	}
	return now, nil
}

// InsertProcessLog appends one serialized payload to process_logs.
func (db *DB) InsertProcessLog(ctx context.Context, data string) error {
	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	if _, err := db.Pool.Exec(ctx, insertSQL, data); err != nil {
		return fmt.Errorf("insert process_log: %w", err)
	}
	return nil
}

// EnsureSchema applies the embedded migrations in name order. Every migration
// is idempotent, so this is safe on each start.
func (db *DB) EnsureSchema(ctx context.Context) error {
	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files) // 001_, 002_, ...

	for _, name := range files {
		sqlBytes, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		if _, err := db.Pool.Exec(ctx, string(sqlBytes)); err != nil {
			return fmt.Errorf("apply %s: %w", name, err)
		}
	}
	return nil
}

// Close drains the pool. It blocks until every borrowed connection is returned.
func (db *DB) Close() {
	db.Pool.Close()
}

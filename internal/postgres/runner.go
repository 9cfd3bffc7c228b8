package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
)

// Conns caches one connection per database, all derived from the same
// connection string. The empty database name targets the connection
// string's default database.
type Conns struct {
	connString string
	conns      map[string]*pgx.Conn
}

func NewConns(connString string) *Conns {
	return &Conns{connString: connString, conns: map[string]*pgx.Conn{}}
}

func (c *Conns) Get(ctx context.Context, database string) (*pgx.Conn, error) {
	if conn, ok := c.conns[database]; ok {
		return conn, nil
	}
	config, err := pgx.ParseConfig(c.connString)
	if err != nil {
		return nil, fmt.Errorf("bad connection string: %w", err)
	}
	if database != "" {
		config.Database = database
	}
	conn, err := pgx.ConnectConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %q: %w", config.Database, err)
	}
	slog.Debug("Connected to Postgres.", "database", config.Database)
	c.conns[database] = conn
	return conn, nil
}

func (c *Conns) Close(ctx context.Context) {
	for database, conn := range c.conns {
		if err := conn.Close(ctx); err != nil {
			slog.Debug("Error while closing connection.", "database", database, "err", err)
		}
	}
	clear(c.conns)
}

// Runner executes rendered queries against the cluster.
type Runner interface {
	RunQueries(ctx context.Context, queries []SyncQuery) (int, error)
	Dry() bool
}

// PGRunner executes queries over cached per-database connections. In dry
// mode queries are logged instead of executed, and still counted.
type PGRunner struct {
	Conns  *Conns
	DryRun bool
}

func (r *PGRunner) Dry() bool {
	return r.DryRun
}

func (r *PGRunner) RunQueries(ctx context.Context, queries []SyncQuery) (int, error) {
	count := 0
	for _, query := range queries {
		args := append([]any{"database", query.Database}, query.LogArgs...)
		if r.DryRun {
			slog.Info("Would "+query.Description, args...)
			count++
			continue
		}
		slog.Info(query.Description, args...)
		conn, err := r.Conns.Get(ctx, query.Database)
		if err != nil {
			return count, err
		}
		if _, err := conn.Exec(ctx, query.Query); err != nil {
			return count, fmt.Errorf("failed to run query on %q: %w", query.Database, err)
		}
		count++
	}
	return count, nil
}

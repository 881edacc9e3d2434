// Package database opens the bun handle shared by the Postgres stores.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// database/sql drivers usable under bun
const (
	DriverPgdriver = "pgdriver"
	DriverPgx      = "pgx"
)

// Options describes how to reach Postgres
type Options struct {
	DSN            string
	Driver         string
	MaxConnections int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	ConnectTimeout time.Duration
}

// Open creates a pooled bun.DB over the configured driver and pings it
func Open(ctx context.Context, opts Options) (*bun.DB, error) {
	sqldb, err := openSQL(opts)
	if err != nil {
		return nil, err
	}

	if opts.MaxConnections <= 0 {
		opts.MaxConnections = 10
	}
	sqldb.SetMaxOpenConns(opts.MaxConnections)
	sqldb.SetMaxIdleConns(opts.MaxConnections / 2)
	sqldb.SetConnMaxLifetime(time.Hour)

	db := bun.NewDB(sqldb, pgdialect.New())

	connectTimeout := opts.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 10 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

func openSQL(opts Options) (*sql.DB, error) {
	if opts.DSN == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	switch opts.Driver {
	case "", DriverPgdriver:
		connectorOpts := []pgdriver.Option{pgdriver.WithDSN(opts.DSN)}
		if opts.ReadTimeout > 0 {
			connectorOpts = append(connectorOpts, pgdriver.WithReadTimeout(opts.ReadTimeout))
		}
		if opts.WriteTimeout > 0 {
			connectorOpts = append(connectorOpts, pgdriver.WithWriteTimeout(opts.WriteTimeout))
		}
		return sql.OpenDB(pgdriver.NewConnector(connectorOpts...)), nil
	case DriverPgx:
		sqldb, err := sql.Open("pgx", opts.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open pgx connection: %w", err)
		}
		return sqldb, nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", opts.Driver)
	}
}

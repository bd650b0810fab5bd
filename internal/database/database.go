// Package database opens PostgreSQL connections for the database record
// source and classifies the errors they return.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	// Registers the "pgx" database/sql driver.
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/pardreamin/prospectsync/internal/logger"
)

// DriverName is the database/sql driver used for every connection.
const DriverName = "pgx"

const (
	defaultMaxOpenConns   = 2
	defaultConnectTimeout = 30 * time.Second
)

// ErrMissingConnectionString is returned when neither a connection string nor
// a reference to one is configured.
var ErrMissingConnectionString = errors.New("connection string is required")

// Config describes a connection.
type Config struct {
	// ConnectionString is a postgres:// URL or keyword/value DSN
	ConnectionString string
	// ConnectionStringRef names an environment variable holding the
	// connection string. Used when ConnectionString is empty.
	ConnectionStringRef string
	MaxOpenConns        int
	ConnectTimeout      time.Duration
}

// LookupFunc resolves environment variables.
type LookupFunc func(string) (string, bool)

// ResolveConnectionString returns the configured connection string, reading
// the referenced environment variable when needed.
func ResolveConnectionString(cfg Config, lookup LookupFunc) (string, error) {
	if cfg.ConnectionString != "" {
		return cfg.ConnectionString, nil
	}
	if cfg.ConnectionStringRef == "" {
		return "", ErrMissingConnectionString
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}
	v, ok := lookup(cfg.ConnectionStringRef)
	if !ok || v == "" {
		return "", fmt.Errorf("environment variable %s referenced by connectionStringRef is not set", cfg.ConnectionStringRef)
	}
	return v, nil
}

// Open opens and pings a PostgreSQL database.
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	dsn, err := ResolveConnectionString(cfg, os.LookupEnv)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(DriverName, dsn)
	if err != nil {
		return nil, NewConnectionError("opening database", err)
	}
	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = defaultMaxOpenConns
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen)

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, ClassifyDatabaseError(err, "connect", "")
	}

	logger.Debug("database connection opened",
		"driver", DriverName,
		"max_open_conns", maxOpen,
	)
	return db, nil
}

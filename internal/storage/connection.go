package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

const healthCheckTimeout = 5 * time.Second

// ErrNoDatabaseConnection is returned when a store is built without a connection.
var ErrNoDatabaseConnection = errors.New("database connection is required")

// Connection is a pooled PostgreSQL connection.
type Connection struct {
	*sql.DB
}

// NewConnection opens a PostgreSQL pool sized by cfg and verifies it with a ping.
func NewConnection(cfg *Config) (*Connection, error) {
	if strings.TrimSpace(cfg.databaseURL) == "" {
		return nil, ErrDatabaseURLEmpty
	}

	db, err := sql.Open("postgres", cfg.databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	conn := &Connection{DB: db}

	if err := conn.HealthCheck(context.Background()); err != nil {
		_ = db.Close()

		return nil, err
	}

	return conn, nil
}

// HealthCheck pings the database with a bounded timeout.
func (c *Connection) HealthCheck(ctx context.Context) error {
	if c == nil || c.DB == nil {
		return ErrNoDatabaseConnection
	}

	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	if err := c.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	return nil
}

// isDatabaseConnectionError checks if an error indicates database connection failure.
// PostgreSQL class 08 codes and the database/sql connection errors qualify.
func isDatabaseConnectionError(err error) bool {
	if err == nil {
		return false
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return strings.HasPrefix(string(pqErr.Code), "08")
	}

	return errors.Is(err, sql.ErrConnDone) || errors.Is(err, driver.ErrBadConn)
}

// pqErrorCode returns the SQLSTATE of a lib/pq error, or "".
func pqErrorCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}

	return ""
}

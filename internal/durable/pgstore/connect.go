package pgstore

import (
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vsayer/materialize/pkg/catalog"
)

// Pool sizing. Bootstrap holds one connection for the session lock and uses
// at most one more for transactions.
const (
	DefaultMaxConns        = 4
	DefaultMinConns        = 1
	DefaultMaxConnIdleTime = 30 * time.Minute
	DefaultConnectTimeout  = 10 * time.Second
)

func configurePool(poolConfig *pgxpool.Config, cfg Config) {
	poolConfig.MaxConns = DefaultMaxConns
	poolConfig.MinConns = DefaultMinConns
	poolConfig.MaxConnIdleTime = DefaultMaxConnIdleTime
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	poolConfig.ConnConfig.ConnectTimeout = timeout
}

// wrapConnectionError adds guidance to raw pgx connection errors. The result
// always matches catalog.ErrConnectionFailed.
func wrapConnectionError(err error, host string, port uint16, database string) error {
	msg := strings.ToLower(err.Error())
	addr := fmt.Sprintf("%s:%d", host, port)

	var hint string
	switch {
	case strings.Contains(msg, "connection refused"):
		hint = fmt.Sprintf("connection refused to %s; is PostgreSQL running (pg_isready -h %s -p %d)?", addr, host, port)
	case strings.Contains(msg, "no such host"):
		hint = fmt.Sprintf("cannot resolve host %q", host)
	case strings.Contains(msg, "password authentication failed"):
		hint = fmt.Sprintf("password authentication failed for database %q", database)
	case strings.Contains(msg, "does not exist"):
		hint = fmt.Sprintf("database %q does not exist; create it with: createdb %s", database, database)
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"):
		hint = fmt.Sprintf("connection timed out to %s", addr)
	case strings.Contains(msg, "too many connections"):
		hint = fmt.Sprintf("too many connections to database %q", database)
	default:
		return fmt.Errorf("%w: %w", catalog.ErrConnectionFailed, err)
	}
	return fmt.Errorf("%w: %s: %w", catalog.ErrConnectionFailed, hint, err)
}

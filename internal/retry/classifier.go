package retry

import (
	"errors"
	"io"
	"net"
	"syscall"

	"github.com/dgraph-io/badger/v4"
	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresClassifier treats connection loss, resource exhaustion, operator
// intervention and serialization conflicts as transient.
type PostgresClassifier struct{}

// IsTransient implements catalog.ErrorClassifier.
func (PostgresClassifier) IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return transientPgCode(pgErr.Code)
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return true
	}
	return transientNetError(err)
}

// https://www.postgresql.org/docs/current/errcodes-appendix.html
func transientPgCode(code string) bool {
	if len(code) < 2 {
		return false
	}
	switch code[:2] {
	case "08", // connection exception
		"53", // insufficient resources
		"57": // operator intervention
		return true
	}
	switch code {
	case "40001", // serialization_failure
		"40P01", // deadlock_detected
		"55P03": // lock_not_available
		return true
	}
	return false
}

func transientNetError(err error) bool {
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTemporary || dnsErr.IsTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	for _, errno := range []syscall.Errno{syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.ENETUNREACH, syscall.EHOSTUNREACH, syscall.EPIPE} {
		if errors.Is(err, errno) {
			return true
		}
	}
	return false
}

// BadgerClassifier treats optimistic transaction conflicts as transient.
type BadgerClassifier struct{}

// IsTransient implements catalog.ErrorClassifier.
func (BadgerClassifier) IsTransient(err error) bool {
	return errors.Is(err, badger.ErrConflict)
}

package db

import (
	"context"
	"errors"
	"net"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

// Fault kinds reported by Classify.
const (
	FaultNone           = ""
	FaultTimeout        = "timeout"
	FaultCanceled       = "canceled"
	FaultConnection     = "connection"
	FaultPrivilege      = "privilege"
	FaultUndefinedTable = "undefined_table"
	FaultQuery          = "query"
)

// Classify buckets a datastore error into a small, stable set of kinds
// suitable for log fields and metric labels.
func Classify(err error) string {
	if err == nil {
		return FaultNone
	}

	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return FaultTimeout
	}
	if errors.Is(err, context.Canceled) {
		return FaultCanceled
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgerrcode.IsConnectionException(pgErr.Code):
			return FaultConnection
		case pgErr.Code == pgerrcode.InsufficientPrivilege:
			return FaultPrivilege
		case pgErr.Code == pgerrcode.UndefinedTable:
			return FaultUndefinedTable
		case pgerrcode.IsInvalidAuthorizationSpecification(pgErr.Code):
			return FaultConnection
		}
		return FaultQuery
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return FaultConnection
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return FaultTimeout
		}
		return FaultConnection
	}
	return FaultQuery
}

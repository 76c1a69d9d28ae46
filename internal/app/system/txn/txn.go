// internal/app/system/txn/txn.go

// Package txn wraps MongoDB multi-document transactions.
//
// All cross-collection invariants in this app (slug index, alias index,
// post↔event mirror fields) are maintained by running their
// read-check-write sequences through WithTransaction. The callback must
// be idempotent: the driver may re-invoke it on write conflicts.
//
// Standalone mongod instances (common in dev) do not support
// transactions. Rather than refuse to start, WithTransaction detects
// that case and runs the callback without a session. Uniqueness is then
// only best-effort between concurrent writers, which is acceptable for a
// single-developer database and never used in production (production
// runs against a replica set).
package txn

import (
	"context"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/mongo"
)

// WithTransaction runs fn inside a transaction on client. The context
// passed to fn carries the session; hand it to every collection
// operation so the reads and writes join the transaction. Any error
// returned by fn aborts the transaction with no writes applied.
func WithTransaction(ctx context.Context, client *mongo.Client, fn func(ctx context.Context) error) error {
	session, err := client.StartSession()
	if err != nil {
		if IsNotSupported(err) {
			return fn(ctx)
		}
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	if err != nil && IsNotSupported(err) {
		return fn(ctx)
	}
	return err
}

// IsNotSupported reports whether err means the server cannot run
// multi-document transactions (standalone mongod, or a server too old
// for sessions). Matches both the structured command-error codes and the
// message shapes various server versions produce.
func IsNotSupported(err error) bool {
	if err == nil {
		return false
	}

	var ce mongo.CommandError
	if errors.As(err, &ce) {
		switch ce.Code {
		case 20, 51, 263:
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "illegal operation") {
		return true
	}
	if strings.Contains(msg, "transaction") && strings.Contains(msg, "replica set") {
		return true
	}
	if strings.Contains(msg, "session") && strings.Contains(msg, "not supported") {
		return true
	}
	if strings.Contains(msg, "transaction") && strings.Contains(msg, "session") {
		return true
	}
	return false
}

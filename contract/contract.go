//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-relay/domain"
	"context"
	"reflect"
)

// ConnectionSink is a live, writable handle to one connected identity's
// transport. Consume never blocks past the sink's own bound: a full queue or
// a closed session comes back as an error so the caller can treat the target
// as implicitly disconnected. Close tears the owning connection down and is
// idempotent.
type ConnectionSink interface {
	Consume(ctx context.Context, msg domain.DeliveredMessage) error
	Close(reason string)
}

// IRegistry is the process-wide online directory mapping Identity to its
// live ConnectionSink. All operations are linearizable with respect to each
// other; the registry is the single serialization point for presence truth.
type IRegistry interface {
	// Register inserts or replaces the sink for id (last-writer-wins) and
	// returns the replaced sink, if any. The registry never closes it.
	Register(id domain.Identity, sink ConnectionSink) ConnectionSink
	// Unregister removes the entry only when sink is still the registered
	// one, and reports whether an entry was removed. Absence is a no-op.
	Unregister(id domain.Identity, sink ConnectionSink) bool
	Lookup(id domain.Identity) (ConnectionSink, bool)
	Snapshot() []domain.Identity
}

// IIdentityProvider resolves a connection-establishment credential to a
// stable identity and its display name.
type IIdentityProvider interface {
	Resolve(credential string) (domain.Identity, string, error)
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

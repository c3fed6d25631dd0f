package store

import (
	"context"

	"github.com/pkg/errors"
)

// M is the loose document/filter shape used across the store boundary.
// Domain documents outside the privacy-relevant attributes are opaque
// to this core, so they travel as M rather than typed structs.
type M = map[string]any

var ErrNotFound = errors.New("store: document not found")

// Store is the narrow contract this core needs from the document
// database. Eventually consistent, no transactions assumed. Backed by
// mongo in production and by MemoryStore in tests.
type Store interface {
	FindOne(ctx context.Context, collection string, filter M, out any) error
	Find(ctx context.Context, collection string, filter M, out any) error
	InsertOne(ctx context.Context, collection string, doc any) error
	UpdateOne(ctx context.Context, collection string, filter M, update M) error
	UpdateMany(ctx context.Context, collection string, filter M, update M) error
	// Upsert is UpdateOne with insert-if-missing. Callers rely on it for
	// the queued-event "one row per (uid,event)" contract.
	Upsert(ctx context.Context, collection string, filter M, update M) error
	DeleteOne(ctx context.Context, collection string, filter M) error
	DeleteMany(ctx context.Context, collection string, filter M) error
}

package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"geoingest/internal/transformer"
)

// Config is the backend-agnostic configuration passed to a sink factory.
//
// Edge cases:
//   - Kind must be non-empty and must match a registered backend kind.
//   - Addresses is used by network document stores (Elasticsearch); DSN by
//     SQL backends. Each backend validates what it needs.
type Config struct {
	Kind       string
	Addresses  []string
	DSN        string
	Username   string
	Password   string
	APIKey     string
	MaxRetries int
}

// Sink is the destination of ingested documents.
//
// Each backend implements "index" in its own idiomatic way: an Elasticsearch
// index, or a table for SQL backends.
type Sink interface {
	// RecreateIndex drops any existing index named spec.Name and creates it
	// again with the given schema. A missing index is not an error, so the
	// call is idempotent. It must complete before any SubmitBatch.
	//
	// Errors wrap ErrSinkUnavailable or ErrSchemaRejected.
	RecreateIndex(ctx context.Context, spec IndexSpec) error

	// SubmitBatch writes all docs in one bulk operation and returns the number
	// the destination acknowledged.
	//
	// Errors wrap ErrSinkUnavailable, or are a *PartialFailureError when some
	// documents were rejected.
	SubmitBatch(ctx context.Context, index string, docs []transformer.Document) (int, error)

	// Close releases connections. Call once.
	Close()
}

// Factory constructs a Sink for a registered kind.
type Factory func(ctx context.Context, cfg Config) (Sink, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers a backend under a kind (e.g. "elasticsearch", "sqlite").
//
// Call Register from an init() function in a backend package.
//
// Panics:
//   - If kind is empty.
//   - If f is nil.
//   - If kind is already registered.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// New constructs a Sink using the registered backend factory.
//
// Concurrency:
//   - Safe for concurrent use with Register.
//
// Errors:
//   - Returns an error if cfg.Kind is empty or unsupported.
//   - Returns whatever error the registered factory returns.
func New(ctx context.Context, cfg Config) (Sink, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported storage.kind=%s (registered: %v)", cfg.Kind, Kinds())
	}
	return f(ctx, cfg)
}

// Kinds lists registered backend kinds.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

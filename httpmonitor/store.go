// Package httpmonitor attaches an instrumentation operation to every
// request handled by a net/http handler.
//
// Wrap individual routes so the matched pattern is known when the
// operation starts:
//
//	mux := httpmonitor.NewObservableMux(sink, httpmonitor.WithLogger(logger))
//	mux.HandleFunc("GET /orders/{id}", func(w http.ResponseWriter, r *http.Request) {
//	    op, err := httpmonitor.CurrentOperation(r.Context())
//	    if err == nil {
//	        _ = op.AddOperationProperty("Customer", r.Header.Get("X-Customer"))
//	    }
//	})
//
// The operation is named after the pattern ("GET /orders/{id}") and carries
// one RouteData[name] property per wildcard. It is released after the
// handler returns.
package httpmonitor

import (
	"context"
	"sync"

	"github.com/itsneelabh/gomind-monitoring/core"
	"github.com/itsneelabh/gomind-monitoring/instrumentation"
)

// RequestStore holds the current operation of one request.
type RequestStore struct {
	mu      sync.RWMutex
	current instrumentation.OperationInstance
}

// NewRequestStore creates an empty store.
func NewRequestStore() *RequestStore {
	return &RequestStore{}
}

// Set makes op the current operation.
func (s *RequestStore) Set(op instrumentation.OperationInstance) {
	s.mu.Lock()
	s.current = op
	s.mu.Unlock()
}

// Get returns the current operation, or an error wrapping
// core.ErrNotConfigured when none is set.
func (s *RequestStore) Get() (instrumentation.OperationInstance, error) {
	if s == nil {
		return nil, errNoOperation("RequestStore.Get")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil, errNoOperation("RequestStore.Get")
	}
	return s.current, nil
}

// Clear removes the current operation.
func (s *RequestStore) Clear() {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
}

type storeKey struct{}

// WithRequestStore returns a copy of ctx carrying store.
func WithRequestStore(ctx context.Context, store *RequestStore) context.Context {
	return context.WithValue(ctx, storeKey{}, store)
}

// StoreFromContext returns the store carried by ctx.
func StoreFromContext(ctx context.Context) (*RequestStore, bool) {
	store, ok := ctx.Value(storeKey{}).(*RequestStore)
	return store, ok && store != nil
}

// CurrentOperation returns the operation of the request ctx belongs to.
func CurrentOperation(ctx context.Context) (instrumentation.OperationInstance, error) {
	store, ok := StoreFromContext(ctx)
	if !ok {
		return nil, errNoOperation("httpmonitor.CurrentOperation")
	}
	return store.Get()
}

func errNoOperation(op string) error {
	return &core.InstrumentationError{
		Op:      op,
		Kind:    "usage",
		Message: "no operation instance is set for this request",
		Err:     core.ErrNotConfigured,
	}
}

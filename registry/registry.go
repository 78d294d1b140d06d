// Package registry is a small service registry used to wire sinks and their
// decorators at start-up.
//
// It supports two kinds of registration:
//   - singletons, keyed by ServiceKey, built from an instance or a Factory
//   - open registrations, keyed by ServiceKey, whose OpenFactory is invoked
//     once per closed reflect.Type (the Go stand-in for an open generic
//     service such as "operations sink for source T")
//
// Registering a key again appends a new registration; the most recent one
// wins at resolution. TryAdd* variants register only when nothing is
// registered under the key yet, atomically.
//
// Factories run without the registry lock held, so a factory may resolve
// other services.
package registry

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/itsneelabh/gomind-monitoring/core"
)

// ServiceKey identifies a registration.
type ServiceKey string

// Factory builds a singleton on first resolution.
type Factory func(r *Registry) (any, error)

// OpenFactory builds the instance of an open registration for one closed type.
type OpenFactory func(r *Registry, t reflect.Type) (any, error)

// descriptor caches a successfully built instance. Failures are not
// cached, so a later resolution retries the factory.
type descriptor struct {
	factory Factory

	mu       sync.Mutex
	instance any
}

type openDescriptor struct {
	factory OpenFactory

	mu        sync.Mutex
	instances map[reflect.Type]*descriptor
}

// Registry holds service registrations. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	closed map[ServiceKey][]*descriptor
	open   map[ServiceKey][]*openDescriptor
	logger core.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for registration and resolution events.
func WithLogger(logger core.Logger) Option {
	return func(r *Registry) {
		r.logger = core.ForComponent(logger, "registry")
	}
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		closed: make(map[ServiceKey][]*descriptor),
		open:   make(map[ServiceKey][]*openDescriptor),
		logger: &core.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Logger returns the registry's logger, never nil.
func (r *Registry) Logger() core.Logger {
	return r.logger
}

// AddSingleton registers an existing instance under key.
func (r *Registry) AddSingleton(key ServiceKey, instance any) {
	r.AddSingletonFactory(key, func(*Registry) (any, error) { return instance, nil })
}

// AddSingletonFactory registers a factory under key.
func (r *Registry) AddSingletonFactory(key ServiceKey, factory Factory) {
	r.mu.Lock()
	r.closed[key] = append(r.closed[key], &descriptor{factory: factory})
	r.mu.Unlock()

	r.logger.Debug("Registered singleton", map[string]interface{}{"key": string(key)})
}

// AddOpenSingleton registers an open factory under key.
func (r *Registry) AddOpenSingleton(key ServiceKey, factory OpenFactory) {
	r.mu.Lock()
	r.open[key] = append(r.open[key], newOpenDescriptor(factory))
	r.mu.Unlock()

	r.logger.Debug("Registered open singleton", map[string]interface{}{"key": string(key)})
}

// TryAddSingleton registers instance only if key has no registration.
// It reports whether it registered.
func (r *Registry) TryAddSingleton(key ServiceKey, instance any) bool {
	return r.TryAddSingletonFactory(key, func(*Registry) (any, error) { return instance, nil })
}

// TryAddSingletonFactory registers factory only if key has no registration.
func (r *Registry) TryAddSingletonFactory(key ServiceKey, factory Factory) bool {
	r.mu.Lock()
	if r.isRegisteredLocked(key) {
		r.mu.Unlock()
		r.logger.Debug("Registration skipped, key already registered", map[string]interface{}{"key": string(key)})
		return false
	}
	r.closed[key] = append(r.closed[key], &descriptor{factory: factory})
	r.mu.Unlock()

	r.logger.Debug("Registered singleton", map[string]interface{}{"key": string(key)})
	return true
}

// TryAddOpenSingleton registers an open factory only if key has no registration.
func (r *Registry) TryAddOpenSingleton(key ServiceKey, factory OpenFactory) bool {
	r.mu.Lock()
	if r.isRegisteredLocked(key) {
		r.mu.Unlock()
		r.logger.Debug("Registration skipped, key already registered", map[string]interface{}{"key": string(key)})
		return false
	}
	r.open[key] = append(r.open[key], newOpenDescriptor(factory))
	r.mu.Unlock()

	r.logger.Debug("Registered open singleton", map[string]interface{}{"key": string(key)})
	return true
}

// IsRegistered reports whether any registration exists for key.
// Nothing is built.
func (r *Registry) IsRegistered(key ServiceKey) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.isRegisteredLocked(key)
}

func (r *Registry) isRegisteredLocked(key ServiceKey) bool {
	return len(r.closed[key]) > 0 || len(r.open[key]) > 0
}

// Keys returns every registered key, sorted.
func (r *Registry) Keys() []ServiceKey {
	r.mu.RLock()
	keys := make([]ServiceKey, 0, len(r.closed)+len(r.open))
	for k := range r.closed {
		keys = append(keys, k)
	}
	for k := range r.open {
		if _, dup := r.closed[k]; !dup {
			keys = append(keys, k)
		}
	}
	r.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Resolve returns the singleton registered last under key, building it on
// first use. Unknown keys and factory failures wrap core.ErrResolutionFailure.
func (r *Registry) Resolve(key ServiceKey) (any, error) {
	r.mu.RLock()
	regs := r.closed[key]
	var d *descriptor
	if len(regs) > 0 {
		d = regs[len(regs)-1]
	}
	r.mu.RUnlock()

	if d == nil {
		return nil, &core.InstrumentationError{
			Op:      "Registry.Resolve",
			Kind:    "registry",
			ID:      string(key),
			Message: "no registration",
			Err:     core.ErrResolutionFailure,
		}
	}
	return r.build(key, d)
}

// ResolveOpen returns the instance of the open registration under key for
// the closed type t. Each (registration, type) pair is built once.
func (r *Registry) ResolveOpen(key ServiceKey, t reflect.Type) (any, error) {
	if t == nil {
		return nil, core.InvalidArgument("Registry.ResolveOpen", "type must not be nil")
	}

	r.mu.RLock()
	regs := r.open[key]
	var od *openDescriptor
	if len(regs) > 0 {
		od = regs[len(regs)-1]
	}
	r.mu.RUnlock()

	if od == nil {
		return nil, &core.InstrumentationError{
			Op:      "Registry.ResolveOpen",
			Kind:    "registry",
			ID:      fmt.Sprintf("%s[%s]", key, t),
			Message: "no open registration",
			Err:     core.ErrResolutionFailure,
		}
	}

	od.mu.Lock()
	d, ok := od.instances[t]
	if !ok {
		d = &descriptor{factory: func(reg *Registry) (any, error) { return od.factory(reg, t) }}
		od.instances[t] = d
	}
	od.mu.Unlock()

	return r.build(ServiceKey(fmt.Sprintf("%s[%s]", key, t)), d)
}

func (r *Registry) build(key ServiceKey, d *descriptor) (any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.instance != nil {
		return d.instance, nil
	}

	instance, err := d.factory(r)
	if err == nil && instance == nil {
		err = errors.New("factory returned nil")
	}
	if err != nil {
		r.logger.Error("Service resolution failed", map[string]interface{}{
			"key":   string(key),
			"error": err,
		})
		if errors.Is(err, core.ErrResolutionFailure) {
			return nil, err
		}
		return nil, &core.InstrumentationError{
			Op:      "Registry.Resolve",
			Kind:    "registry",
			ID:      string(key),
			Message: err.Error(),
			Err:     core.ErrResolutionFailure,
		}
	}
	d.instance = instance
	return instance, nil
}

func newOpenDescriptor(factory OpenFactory) *openDescriptor {
	return &openDescriptor{
		factory:   factory,
		instances: make(map[reflect.Type]*descriptor),
	}
}

// ResolveAs resolves key and asserts the result to T.
func ResolveAs[T any](r *Registry, key ServiceKey) (T, error) {
	var zero T
	v, err := r.Resolve(key)
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, &core.InstrumentationError{
			Op:      "Registry.Resolve",
			Kind:    "registry",
			ID:      string(key),
			Message: fmt.Sprintf("registered %T does not implement %s", v, reflect.TypeFor[T]()),
			Err:     core.ErrResolutionFailure,
		}
	}
	return typed, nil
}

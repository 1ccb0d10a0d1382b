// Package registry maps node type names to constructors. Types are either
// script-backed (an ECMAScript source evaluated in a per-node sandbox) or
// native (a Go factory); both produce the same node.Backend contract, so
// nothing downstream ever learns which kind a node is.
package registry

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/c360/flowrt/errors"
	"github.com/c360/flowrt/node"
	"github.com/c360/flowrt/sandbox"
)

// Kind is the backing kind of a node type.
type Kind string

// Node type kinds.
const (
	KindScript Kind = "script"
	KindNative Kind = "native"
)

// Factory constructs a native backend for one node instance. Factories do
// no I/O; anything that touches the outside world starts in Start.
type Factory func(def node.Definition, host node.HostAPI) (node.Backend, error)

// Type describes one registrable node type.
type Type struct {
	Name string
	Kind Kind

	// Source is the script for script-kind types. A script type may
	// leave it empty and take the source from each node's config
	// ("source" key), which is how a generic function node works.
	Source string

	// Factory builds native-kind backends.
	Factory Factory
}

// Registry holds the registered node types. It is shared across flow
// generations and safe for concurrent use.
type Registry struct {
	logger *slog.Logger

	mu    sync.RWMutex
	types map[string]Type
}

// New creates an empty registry.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger: logger,
		types:  make(map[string]Type),
	}
}

// RegisterType registers a node type. Re-registering a name overwrites the
// previous type with a logged warning; it is never a hard failure, so a
// type package reloaded by the module collaborator simply wins.
func (r *Registry) RegisterType(name string, t Type) error {
	if name == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterType", "type name validation")
	}
	switch t.Kind {
	case KindScript:
		// Source may come from node config at create time.
	case KindNative:
		if t.Factory == nil {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterType", "factory validation")
		}
	default:
		return errors.WrapInvalid(
			fmt.Errorf("unknown kind %q: %w", t.Kind, errors.ErrInvalidConfig),
			"Registry", "RegisterType", "kind validation")
	}
	t.Name = name

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.types[name]; exists {
		r.logger.Warn("Node type re-registered, overwriting previous registration", "type", name)
	}
	r.types[name] = t
	return nil
}

// Has reports whether a type name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.types[name]
	return ok
}

// ListTypes returns the registered type names.
func (r *Registry) ListTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	return names
}

// Create builds the backend for a node definition. Unknown types fail with
// errors.ErrUnknownType; script evaluation failures fail this node only and
// the caller marks it errored without aborting the deploy.
func (r *Registry) Create(def node.Definition, host node.HostAPI) (node.Backend, error) {
	r.mu.RLock()
	t, exists := r.types[def.Type]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.WrapInvalid(
			fmt.Errorf("node %q type %q: %w", def.ID, def.Type, errors.ErrUnknownType),
			"Registry", "Create", "type lookup")
	}

	switch t.Kind {
	case KindScript:
		source := t.Source
		if s, ok := def.Config["source"].(string); ok && s != "" {
			source = s
		}
		backend, err := sandbox.New(def.ID, source, host, r.logger)
		if err != nil {
			return nil, errors.Wrap(err, "Registry", "Create", "sandbox instantiation")
		}
		return backend, nil
	default:
		backend, err := t.Factory(def, host)
		if err != nil {
			return nil, errors.Wrap(err, "Registry", "Create", "native construction")
		}
		return backend, nil
	}
}

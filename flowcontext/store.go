// Package flowcontext provides the scoped key-value store available to
// nodes. Three tiers exist: node scope (torn down with the node), flow scope
// (torn down with the flow), and global scope (survives any number of
// redeploys). Backing stores are pluggable; the in-memory default is
// linearizable per (scope, owner).
package flowcontext

import (
	"context"

	"github.com/c360/flowrt/errors"
)

// Scope identifies the storage tier of a context entry.
type Scope string

// Context scopes. Node and flow entries are purged when their owner is torn
// down during a redeploy; global entries are never purged by a redeploy.
const (
	ScopeNode   Scope = "node"
	ScopeFlow   Scope = "flow"
	ScopeGlobal Scope = "global"
)

// GlobalOwner is the owner identifier for global-scope entries.
const GlobalOwner = "global"

// Valid reports whether s is a known scope.
func (s Scope) Valid() bool {
	switch s {
	case ScopeNode, ScopeFlow, ScopeGlobal:
		return true
	}
	return false
}

// Store is the pluggable backing contract. Reads and writes for the same
// (scope, owner) pair are linearizable with respect to each other.
type Store interface {
	// Get returns the value for a key, or errors.ErrKeyNotFound.
	Get(ctx context.Context, scope Scope, owner, key string) (any, error)

	// Set stores a value for a key.
	Set(ctx context.Context, scope Scope, owner, key string, value any) error

	// Delete removes a key. Deleting a missing key is not an error.
	Delete(ctx context.Context, scope Scope, owner, key string) error

	// Keys lists the keys stored for an owner.
	Keys(ctx context.Context, scope Scope, owner string) ([]string, error)

	// PurgeOwner removes every entry belonging to an owner. Called
	// synchronously during the stop phase of a redeploy for node and
	// flow scopes.
	PurgeOwner(ctx context.Context, scope Scope, owner string) error
}

// checkScope validates scope and owner before touching a backing store.
func checkScope(scope Scope, owner string) error {
	if !scope.Valid() {
		return errors.WrapInvalid(errors.ErrInvalidScope, "flowcontext", "checkScope", "scope validation")
	}
	if owner == "" {
		return errors.WrapInvalid(errors.ErrInvalidScope, "flowcontext", "checkScope", "owner validation")
	}
	return nil
}

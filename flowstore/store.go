// Package flowstore persists the deployed flow set so the runtime can
// restore it on restart. Two backends ship: a JSON file for single-node
// setups and a NATS JetStream KV bucket for durable deployments.
package flowstore

import (
	"context"

	"github.com/c360/flowrt/node"
)

// Store persists and restores the deployed flow set.
type Store interface {
	// Save replaces the persisted set with the given one.
	Save(ctx context.Context, set node.FlowSet) error

	// Load returns the persisted set. A store that has never been saved
	// returns an empty set, not an error.
	Load(ctx context.Context) (node.FlowSet, error)
}

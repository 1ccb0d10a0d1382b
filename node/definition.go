// Package node defines the deploy-time data model (definitions, flow sets)
// and the runtime contracts every node backend implements. The router and
// flow layers hold only these contracts and never learn whether a node is
// script-backed or native.
package node

import (
	"fmt"

	"github.com/c360/flowrt/errors"
)

// Definition is the immutable deploy-time description of one node.
type Definition struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	FlowID string `json:"flow_id"`
	// Wires holds one ordered target list per output port. Wires[0] are
	// the node IDs wired to port 0, in declared delivery order.
	Wires  [][]string     `json:"wires,omitempty"`
	Config map[string]any `json:"config,omitempty"`
}

// FlowDefinition is a named subgraph: an ordered set of node definitions.
type FlowDefinition struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Disabled bool         `json:"disabled,omitempty"`
	Nodes    []Definition `json:"nodes"`
}

// FlowSet is the unit of deployment: every flow that should be running
// after the deploy completes.
type FlowSet []FlowDefinition

// NodeCount returns the number of node definitions across all flows.
func (fs FlowSet) NodeCount() int {
	n := 0
	for _, f := range fs {
		n += len(f.Nodes)
	}
	return n
}

// Validate performs the pre-instantiation validation pass over the whole
// set: flow and node identifiers present and unique, every node type known
// to the registry, every wire target inside the deployed set. Any failure
// rejects the deploy as a whole.
func (fs FlowSet) Validate(knownType func(name string) bool) error {
	flowIDs := make(map[string]bool, len(fs))
	nodeIDs := make(map[string]bool, fs.NodeCount())

	for _, f := range fs {
		if f.ID == "" {
			return errors.WrapInvalid(errors.ErrInvalidDefinition, "FlowSet", "Validate", "flow ID check")
		}
		if flowIDs[f.ID] {
			return errors.WrapInvalid(
				fmt.Errorf("duplicate flow ID %q: %w", f.ID, errors.ErrInvalidDefinition),
				"FlowSet", "Validate", "flow ID uniqueness check")
		}
		flowIDs[f.ID] = true

		for i, def := range f.Nodes {
			if def.ID == "" {
				return errors.WrapInvalid(
					fmt.Errorf("flow %q node at index %d has no ID: %w", f.ID, i, errors.ErrInvalidDefinition),
					"FlowSet", "Validate", "node ID check")
			}
			if def.Type == "" {
				return errors.WrapInvalid(
					fmt.Errorf("node %q has no type: %w", def.ID, errors.ErrInvalidDefinition),
					"FlowSet", "Validate", "node type check")
			}
			if def.FlowID != "" && def.FlowID != f.ID {
				return errors.WrapInvalid(
					fmt.Errorf("node %q claims flow %q but is declared in flow %q: %w",
						def.ID, def.FlowID, f.ID, errors.ErrInvalidDefinition),
					"FlowSet", "Validate", "owning flow check")
			}
			if nodeIDs[def.ID] {
				return errors.WrapInvalid(
					fmt.Errorf("node %q: %w", def.ID, errors.ErrDuplicateNodeID),
					"FlowSet", "Validate", "node ID uniqueness check")
			}
			nodeIDs[def.ID] = true

			if knownType != nil && !knownType(def.Type) {
				return errors.WrapInvalid(
					fmt.Errorf("node %q type %q: %w", def.ID, def.Type, errors.ErrUnknownType),
					"FlowSet", "Validate", "node type lookup")
			}
		}
	}

	// Wire targets may cross flows, so they are checked against the
	// complete set after every node ID is collected.
	for _, f := range fs {
		for _, def := range f.Nodes {
			for port, targets := range def.Wires {
				for _, target := range targets {
					if !nodeIDs[target] {
						return errors.WrapInvalid(
							fmt.Errorf("node %q port %d wire to %q: %w",
								def.ID, port, target, errors.ErrDanglingWire),
							"FlowSet", "Validate", "wire target check")
					}
				}
			}
		}
	}

	return nil
}

// Package flowrt is a flow-based dataflow runtime: wired graphs of nodes
// are deployed as a unit, messages move along the wires, and each node
// processes its inbox strictly sequentially.
//
// # Architecture
//
//	┌─────────────────────────────────────┐
//	│            Runtime                  │  Deploy, start, stop
//	│   (generation swap, validation)     │  One graph generation live
//	└─────────────────────────────────────┘
//	           ↓ owns
//	┌─────────────────────────────────────┐
//	│         Flows / Instances           │  Per-node mailbox,
//	│   (sequential message handling)     │  contained failures
//	└─────────────────────────────────────┘
//	           ↓ communicate via
//	┌─────────────────────────────────────┐
//	│            Router                   │  Fire-and-forget fan-out
//	│   (wire-order, copy-on-branch)      │  in declared wire order
//	└─────────────────────────────────────┘
//
// Node behavior comes from the type registry: script types run per-node
// ECMAScript in an isolated sandbox, native types are Go factories. Both
// implement the same backend contract, so the graph machinery never learns
// which kind a node is.
//
// Scoped context gives nodes storage beyond a single message: node scope is
// private, flow scope is shared within a flow, and global scope survives
// redeploys. The store backs onto memory or NATS JetStream KV.
//
// The packages fit together as follows:
//
//   - runtime: graph lifecycle manager, the main entry point
//   - flow: node instances, mailboxes, per-flow lifecycle
//   - router: message delivery between instances
//   - registry, sandbox, builtin: node types and their backends
//   - flowcontext: three-tier scoped context storage
//   - flowstore: persistence of the deployed flow set
//   - message, node, events, errors: shared data model and contracts
//   - natsclient, metric, config: infrastructure plumbing
//
// See cmd/flowrt for the runnable daemon wiring everything together.
package flowrt

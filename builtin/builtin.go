// Package builtin registers the node types every deployment gets for free:
// inject (periodic source), debug (message sink), delay (timed pass-through)
// and function (per-node script). Domain-specific types are registered by
// embedding applications on top of these.
package builtin

import (
	stderrors "errors"
	"fmt"
	"time"

	"github.com/c360/flowrt/errors"
	"github.com/c360/flowrt/events"
	"github.com/c360/flowrt/node"
	"github.com/c360/flowrt/registry"
)

// Register installs the builtin node types.
func Register(types *registry.Registry, emitter events.Emitter) error {
	if types == nil {
		return errors.WrapFatal(
			stderrors.New("registry cannot be nil"),
			"Builtin", "Register", "registry validation")
	}

	if err := types.RegisterType("inject", registry.Type{
		Kind:    registry.KindNative,
		Factory: newInject,
	}); err != nil {
		return errors.WrapInvalid(err, "Builtin", "Register", "inject registration")
	}

	if err := types.RegisterType("debug", registry.Type{
		Kind: registry.KindNative,
		Factory: func(def node.Definition, host node.HostAPI) (node.Backend, error) {
			return newDebug(def, host, emitter)
		},
	}); err != nil {
		return errors.WrapInvalid(err, "Builtin", "Register", "debug registration")
	}

	if err := types.RegisterType("delay", registry.Type{
		Kind:    registry.KindNative,
		Factory: newDelay,
	}); err != nil {
		return errors.WrapInvalid(err, "Builtin", "Register", "delay registration")
	}

	// The generic script node: each instance brings its own source.
	if err := types.RegisterType("function", registry.Type{
		Kind: registry.KindScript,
	}); err != nil {
		return errors.WrapInvalid(err, "Builtin", "Register", "function registration")
	}

	return nil
}

// configString reads a string config value with a default.
func configString(cfg map[string]any, key, fallback string) string {
	if v, ok := cfg[key].(string); ok {
		return v
	}
	return fallback
}

// configBool reads a bool config value with a default.
func configBool(cfg map[string]any, key string, fallback bool) bool {
	if v, ok := cfg[key].(bool); ok {
		return v
	}
	return fallback
}

// configDuration reads a duration config value. Strings parse as Go
// durations; bare numbers are seconds.
func configDuration(cfg map[string]any, key string, fallback time.Duration) (time.Duration, error) {
	v, ok := cfg[key]
	if !ok {
		return fallback, nil
	}

	switch value := v.(type) {
	case string:
		d, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("config %q: %w", key, err)
		}
		return d, nil
	case float64:
		return time.Duration(value * float64(time.Second)), nil
	case int:
		return time.Duration(value) * time.Second, nil
	default:
		return 0, fmt.Errorf("config %q: unsupported type %T: %w", key, v, errors.ErrInvalidConfig)
	}
}

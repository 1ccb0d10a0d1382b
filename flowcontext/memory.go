package flowcontext

import (
	"context"
	"sync"

	"github.com/c360/flowrt/errors"
	"github.com/c360/flowrt/message"
)

// Memory is the default in-process store. Values are deep-copied on the way
// in and out so callers never share mutable references with the store.
type Memory struct {
	mu sync.RWMutex
	// scope -> owner -> key -> value
	entries map[Scope]map[string]map[string]any
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		entries: map[Scope]map[string]map[string]any{
			ScopeNode:   {},
			ScopeFlow:   {},
			ScopeGlobal: {},
		},
	}
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, scope Scope, owner, key string) (any, error) {
	if err := checkScope(scope, owner); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	owned, ok := m.entries[scope][owner]
	if !ok {
		return nil, errors.ErrKeyNotFound
	}
	value, ok := owned[key]
	if !ok {
		return nil, errors.ErrKeyNotFound
	}
	return message.CopyValue(value), nil
}

// Set implements Store.
func (m *Memory) Set(_ context.Context, scope Scope, owner, key string, value any) error {
	if err := checkScope(scope, owner); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	owned, ok := m.entries[scope][owner]
	if !ok {
		owned = make(map[string]any)
		m.entries[scope][owner] = owned
	}
	owned[key] = message.CopyValue(value)
	return nil
}

// Delete implements Store.
func (m *Memory) Delete(_ context.Context, scope Scope, owner, key string) error {
	if err := checkScope(scope, owner); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if owned, ok := m.entries[scope][owner]; ok {
		delete(owned, key)
		if len(owned) == 0 {
			delete(m.entries[scope], owner)
		}
	}
	return nil
}

// Keys implements Store.
func (m *Memory) Keys(_ context.Context, scope Scope, owner string) ([]string, error) {
	if err := checkScope(scope, owner); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	owned := m.entries[scope][owner]
	keys := make([]string, 0, len(owned))
	for key := range owned {
		keys = append(keys, key)
	}
	return keys, nil
}

// PurgeOwner implements Store.
func (m *Memory) PurgeOwner(_ context.Context, scope Scope, owner string) error {
	if err := checkScope(scope, owner); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries[scope], owner)
	return nil
}

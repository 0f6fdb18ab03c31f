// Copyright 2026 BrightClass
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"fmt"
	"sync"
)

// BackendFactory creates a Backend instance from configuration. Factories
// validate the config and return an error if invalid.
type BackendFactory func(cfg BackendConfig) (Backend, error)

// factoryRegistry holds registered backend factories.
// Thread-safe for concurrent access.
type factoryRegistry struct {
	factories map[BackendType]BackendFactory
	mu        sync.RWMutex
}

var globalFactories = &factoryRegistry{
	factories: make(map[BackendType]BackendFactory),
}

// RegisterFactory registers a factory function for a backend type. Adapter
// packages call this from init(), so a blank import wires the type in:
//
//	import _ "brightclass/platform/llm/anthropic"
//
// Registering a type twice overwrites the earlier factory.
func RegisterFactory(backendType BackendType, factory BackendFactory) {
	globalFactories.mu.Lock()
	defer globalFactories.mu.Unlock()
	globalFactories.factories[backendType] = factory
}

// GetFactory returns the factory for a backend type, or nil if not
// registered.
func GetFactory(backendType BackendType) BackendFactory {
	globalFactories.mu.RLock()
	defer globalFactories.mu.RUnlock()
	return globalFactories.factories[backendType]
}

// HasFactory returns true if a factory is registered for the backend type.
func HasFactory(backendType BackendType) bool {
	globalFactories.mu.RLock()
	defer globalFactories.mu.RUnlock()
	_, ok := globalFactories.factories[backendType]
	return ok
}

// ListFactories returns all registered backend types.
func ListFactories() []BackendType {
	globalFactories.mu.RLock()
	defer globalFactories.mu.RUnlock()
	types := make([]BackendType, 0, len(globalFactories.factories))
	for bt := range globalFactories.factories {
		types = append(types, bt)
	}
	return types
}

// CreateBackend creates a backend using the registered factory for its
// configured type.
func CreateBackend(cfg BackendConfig) (Backend, error) {
	if cfg.Type == "" {
		return nil, fmt.Errorf("backend type is required")
	}

	factory := GetFactory(cfg.Type)
	if factory == nil {
		return nil, fmt.Errorf("no factory registered for backend type %q", cfg.Type)
	}

	backend, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating backend %q: %w", cfg.Name, err)
	}
	return backend, nil
}

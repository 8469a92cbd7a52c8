package analyzer

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/c360/filestream/errors"
)

// Registration holds the factory and metadata for one analyzer type.
type Registration struct {
	Name        string  `json:"name"`        // Analyzer type name (e.g., "extract")
	Description string  `json:"description"` // Human-readable description
	Version     string  `json:"version"`     // Analyzer version
	Factory     Factory `json:"-"`           // Factory function (not serializable)
}

// Registry manages analyzer factories. Registration happens once per type,
// early in process lifetime, before any file traffic is processed; there is
// no removal operation. Lookup is safe for concurrent use.
type Registry struct {
	factories map[string]*Registration
	mu        sync.RWMutex
}

// NewRegistry creates a new empty analyzer registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]*Registration),
	}
}

// Register registers an analyzer factory under its type name. Returns an
// error if the name is empty, the factory is nil, or a factory with the same
// name is already registered.
func (r *Registry) Register(reg Registration) error {
	if reg.Name == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "Register", "type name validation")
	}
	if reg.Factory == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "Register", "factory function validation")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[reg.Name]; exists {
		msg := fmt.Errorf("%w: %q", errors.ErrAlreadyRegistered, reg.Name)
		return errors.WrapInvalid(msg, "Registry", "Register", "duplicate type check")
	}

	r.factories[reg.Name] = &reg
	return nil
}

// Instantiate creates a new analyzer of the named type. It fails with
// errors.ErrUnknownAnalyzer when the name is absent, and propagates the
// factory's own construction failure otherwise.
func (r *Registry) Instantiate(name string, rawArgs json.RawMessage, deps Dependencies) (Analyzer, error) {
	r.mu.RLock()
	reg, exists := r.factories[name]
	r.mu.RUnlock()

	if !exists {
		msg := fmt.Errorf("%w: %q", errors.ErrUnknownAnalyzer, name)
		return nil, errors.WrapInvalid(msg, "Registry", "Instantiate", "factory lookup")
	}

	a, err := reg.Factory(rawArgs, deps)
	if err != nil {
		return nil, errors.Wrap(err, "Registry", "Instantiate", "factory execution")
	}

	return a, nil
}

// Lookup returns the registration for a type name.
func (r *Registry) Lookup(name string) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, exists := r.factories[name]
	if !exists {
		return Registration{}, false
	}
	return *reg, true
}

// Types returns the registered analyzer type names in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

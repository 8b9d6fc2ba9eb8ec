package docmap

import (
	"fmt"
	"sort"
	"sync"
)

// Function is a helper callable from template segments.
type Function func(args ...any) (any, error)

// FunctionRegistry stores template helper functions keyed by name. Names are
// case sensitive; they surface verbatim as expression identifiers.
type FunctionRegistry struct {
	mu        sync.RWMutex
	functions map[string]Function
}

// NewFunctionRegistry constructs an empty registry.
func NewFunctionRegistry() *FunctionRegistry {
	return &FunctionRegistry{
		functions: make(map[string]Function),
	}
}

// Register stores fn under name, rejecting duplicates.
func (r *FunctionRegistry) Register(name string, fn Function) error {
	if name == "" {
		return fmt.Errorf("docmap: function name must not be empty")
	}
	if fn == nil {
		return fmt.Errorf("docmap: function %q is nil", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.functions == nil {
		r.functions = make(map[string]Function)
	}
	if _, exists := r.functions[name]; exists {
		return fmt.Errorf("docmap: function %q already registered", name)
	}
	r.functions[name] = fn
	return nil
}

// MustRegister is Register that panics on error, for package-level setup.
func (r *FunctionRegistry) MustRegister(name string, fn Function) {
	if err := r.Register(name, fn); err != nil {
		panic(err)
	}
}

// Call executes the function registered for name.
func (r *FunctionRegistry) Call(name string, args ...any) (any, error) {
	if r == nil {
		return nil, fmt.Errorf("docmap: function registry is nil")
	}
	r.mu.RLock()
	fn := r.functions[name]
	r.mu.RUnlock()
	if fn == nil {
		return nil, fmt.Errorf("docmap: function %q not registered", name)
	}
	return fn(args...)
}

// Clone returns a shallow copy so engines can hold a stable snapshot.
func (r *FunctionRegistry) Clone() *FunctionRegistry {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	clone := &FunctionRegistry{
		functions: make(map[string]Function, len(r.functions)),
	}
	for name, fn := range r.functions {
		clone.functions[name] = fn
	}
	return clone
}

// Names returns registered function names sorted alphabetically.
func (r *FunctionRegistry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.functions))
	for name := range r.functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len reports the number of registered functions.
func (r *FunctionRegistry) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.functions)
}

// Package registry maps provider names to adapter factories and their
// credentials, and resolves the "random" provider policy.
package registry

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"

	common "github.com/ajayykmr/sms-gateway/internal/adapters/common"
	"github.com/ajayykmr/sms-gateway/internal/errs"
)

// Random is the reserved provider name selecting from the random pool.
const Random = "random"

// Factory builds an adapter from its configuration. Factories validate
// required credentials and fail with a ConfigurationError.
type Factory func(cfg common.ProviderConfig, deps common.Deps) (common.Adapter, error)

// Entry is one registered provider.
type Entry struct {
	Factory Factory
	Config  common.ProviderConfig
}

// Registry is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
	pool    []string
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Register adds or replaces a provider. The name "random" is reserved.
func (r *Registry) Register(name string, factory Factory, cfg common.ProviderConfig) error {
	name = normalize(name)
	if name == "" {
		return errors.New("registry: provider name is required")
	}
	if name == Random {
		return fmt.Errorf("registry: provider name %q is reserved", Random)
	}
	if factory == nil {
		return fmt.Errorf("registry: factory for %q is nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = Entry{Factory: factory, Config: cfg.Clone()}
	return nil
}

// Lookup returns the entry registered under name.
func (r *Registry) Lookup(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[normalize(name)]
	return e, ok
}

// Names lists registered providers in lexical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetRandomPool sets the ordered candidate list used by the random policy.
func (r *Registry) SetRandomPool(names []string) {
	pool := make([]string, 0, len(names))
	for _, n := range names {
		if n = normalize(n); n != "" {
			pool = append(pool, n)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pool = pool
}

// RandomPool returns a copy of the random pool.
func (r *Registry) RandomPool() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.pool...)
}

// Pick resolves name to a concrete provider name. For "random" it draws one
// pool member uniformly using intn, which defaults to math/rand/v2.IntN.
// Other names are returned normalized and unchecked; Build reports unknown
// ones.
func (r *Registry) Pick(name string, intn func(n int) int) (string, error) {
	name = normalize(name)
	if name == "" {
		return "", errs.Configuration("", "no provider selected")
	}
	if name != Random {
		return name, nil
	}

	pool := r.RandomPool()
	if len(pool) == 0 {
		return "", errs.Configuration(Random, "random driver pool is empty")
	}
	if intn == nil {
		intn = rand.IntN
	}
	return pool[intn(len(pool))], nil
}

// Build constructs the adapter registered under name.
func (r *Registry) Build(name string, deps common.Deps) (common.Adapter, error) {
	entry, ok := r.Lookup(name)
	if !ok {
		return nil, &errs.UnknownProviderError{Provider: normalize(name)}
	}
	adapter, err := entry.Factory(entry.Config, deps)
	if err != nil {
		return nil, err
	}
	return adapter, nil
}

// Preflight builds each named adapter once so missing credentials surface at
// startup. "random" expands to the pool. All failures are joined.
func (r *Registry) Preflight(deps common.Deps, names ...string) error {
	seen := make(map[string]bool)
	var errList []error
	for _, name := range names {
		targets := []string{normalize(name)}
		if targets[0] == Random {
			targets = r.RandomPool()
			if len(targets) == 0 {
				errList = append(errList, errs.Configuration(Random, "random driver pool is empty"))
			}
		}
		for _, target := range targets {
			if target == "" || seen[target] {
				continue
			}
			seen[target] = true
			if _, err := r.Build(target, deps); err != nil {
				errList = append(errList, err)
			}
		}
	}
	return errors.Join(errList...)
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

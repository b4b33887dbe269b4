package source

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Opener connects a driver.
type Opener func(ctx context.Context, opts Options) (Source, error)

type driverEntry struct {
	name string
	open Opener
}

var (
	registryMu sync.RWMutex
	drivers    = make(map[string]driverEntry)
)

// Register makes a driver available under name and any aliases.
// Panics if a name is already taken.
func Register(name string, open Opener, aliases ...string) {
	registryMu.Lock()
	defer registryMu.Unlock()

	d := driverEntry{name: name, open: open}
	for _, key := range append([]string{name}, aliases...) {
		key = strings.ToLower(key)
		if _, exists := drivers[key]; exists {
			panic(fmt.Sprintf("source driver %q already registered", key))
		}
		drivers[key] = d
	}
}

// Open connects using the named driver (case-insensitive).
func Open(ctx context.Context, driver string, opts Options) (Source, error) {
	registryMu.RLock()
	d, ok := drivers[strings.ToLower(driver)]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown source driver: %q (available: %v)", driver, Available())
	}
	return d.open(ctx, opts)
}

// Canonicalize returns the primary name for a driver name or alias, or the
// input unchanged when nothing matches.
func Canonicalize(nameOrAlias string) string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if d, ok := drivers[strings.ToLower(nameOrAlias)]; ok {
		return d.name
	}
	return nameOrAlias
}

// Available returns the sorted primary driver names.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	seen := make(map[string]bool)
	for _, d := range drivers {
		seen[d.name] = true
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRegistered reports whether a driver name or alias exists.
func IsRegistered(nameOrAlias string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := drivers[strings.ToLower(nameOrAlias)]
	return ok
}

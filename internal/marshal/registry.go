package marshal

import (
	"fmt"
	"sync"

	"github.com/roach88/cepsnap/internal/engine"
)

// Factory returns a new zero value of a registered fact type, ready to be
// decoded into.
type Factory func() engine.Fact

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// RegisterType makes a fact type readable by the serialize strategy.
// Registering the same name twice panics. Typically called from init.
func RegisterType(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("marshal: type %q registered twice", name))
	}
	if f == nil {
		panic(fmt.Sprintf("marshal: nil factory for %q", name))
	}
	registry[name] = f
}

func lookupType(name string) (Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[name]
	return f, ok
}

// MissingTypes returns the names that have no registered factory.
func MissingTypes(names ...string) (missing []string) {
	for _, n := range names {
		if _, ok := lookupType(n); !ok {
			missing = append(missing, n)
		}
	}
	return missing
}

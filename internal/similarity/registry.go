package similarity

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/example/go-simscore/internal/params"
)

// DefaultType is used by FromParams when the configuration has no "type".
const DefaultType = MyLinearType

// Factory builds a Function from a configuration object. It must consume
// every key it understands and fail on leftovers.
type Factory func(p *params.Params, opts ...Option) (Function, error)

var registry = struct {
	sync.RWMutex
	factories map[string]Factory
}{factories: make(map[string]Factory)}

// Register adds a factory under name. It panics on an empty or duplicate
// name; call it from init.
func Register(name string, f Factory) {
	name = strings.TrimSpace(name)
	if name == "" || f == nil {
		panic("similarity: Register requires a name and a factory")
	}

	registry.Lock()
	defer registry.Unlock()

	if _, dup := registry.factories[name]; dup {
		panic(fmt.Sprintf("similarity: Register called twice for %q", name))
	}

	registry.factories[name] = f
}

// ByName returns the factory registered under name.
func ByName(name string) (Factory, error) {
	registry.RLock()
	f, ok := registry.factories[name]
	registry.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: unknown similarity function %q (registered: %s)", ErrConfiguration, name, strings.Join(Names(), ", "))
	}

	return f, nil
}

// Names lists registered function names in sorted order.
func Names() []string {
	registry.RLock()
	defer registry.RUnlock()

	names := make([]string, 0, len(registry.factories))
	for name := range registry.factories {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// FromParams pops "type" (default DefaultType) and hands the rest of p to
// the matching factory.
func FromParams(p *params.Params, opts ...Option) (Function, error) {
	typ, err := p.PopString("type", DefaultType)
	if err != nil {
		return nil, err
	}

	f, err := ByName(typ)
	if err != nil {
		return nil, err
	}

	return f(p, opts...)
}

// Package params provides the key-value configuration object consumed by
// configuration-driven constructors. Every Pop removes the key, so
// AssertEmpty can reject keys nobody asked for.
package params

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/spf13/cast"
)

// ErrConfiguration marks invalid or inconsistent configuration. It is
// returned wrapped; test with errors.Is.
var ErrConfiguration = errors.New("configuration error")

// Params is a mutable view over a nested key-value configuration.
type Params struct {
	history string
	values  map[string]any
}

// New copies the top level of values into a Params. Nested maps are copied
// lazily by PopParams.
func New(values map[string]any) *Params {
	return newWithHistory(values, "")
}

func newWithHistory(values map[string]any, history string) *Params {
	copied := make(map[string]any, len(values))
	for k, v := range values {
		copied[k] = v
	}

	return &Params{history: history, values: copied}
}

// Get returns the value for key without removing it.
func (p *Params) Get(key string) (any, bool) {
	v, ok := p.values[key]
	return v, ok
}

// Keys returns the remaining keys in sorted order.
func (p *Params) Keys() []string {
	keys := make([]string, 0, len(p.values))
	for k := range p.values {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

// Len reports how many keys remain.
func (p *Params) Len() int { return len(p.values) }

// Pop removes key and returns its value, or def when the key is absent.
func (p *Params) Pop(key string, def any) any {
	v, ok := p.values[key]
	if !ok {
		slog.Debug("param default", "key", p.history+key, "value", def)
		return def
	}

	delete(p.values, key)
	slog.Debug("param", "key", p.history+key, "value", v)

	return v
}

// PopRequired removes key and returns its value; a missing key is an error.
func (p *Params) PopRequired(key string) (any, error) {
	if _, ok := p.values[key]; !ok {
		return nil, fmt.Errorf("%w: key %q is required at location %q", ErrConfiguration, key, p.location())
	}

	return p.Pop(key, nil), nil
}

// PopInt removes a required integer-valued key.
func (p *Params) PopInt(key string) (int, error) {
	v, err := p.PopRequired(key)
	if err != nil {
		return 0, err
	}

	return p.toInt(key, v)
}

// PopIntDefault removes an optional integer-valued key.
func (p *Params) PopIntDefault(key string, def int) (int, error) {
	return p.toInt(key, p.Pop(key, def))
}

// PopString removes an optional string-valued key.
func (p *Params) PopString(key, def string) (string, error) {
	v := p.Pop(key, def)

	s, err := cast.ToStringE(v)
	if err != nil {
		return "", fmt.Errorf("%w: %s%s: %v", ErrConfiguration, p.history, key, err)
	}

	return s, nil
}

// PopBool removes an optional boolean-valued key.
func (p *Params) PopBool(key string, def bool) (bool, error) {
	v := p.Pop(key, def)

	b, err := cast.ToBoolE(v)
	if err != nil {
		return false, fmt.Errorf("%w: %s%s: %v", ErrConfiguration, p.history, key, err)
	}

	return b, nil
}

// PopParams removes a nested object. A missing key yields an empty Params.
func (p *Params) PopParams(key string) (*Params, error) {
	v := p.Pop(key, nil)
	if v == nil {
		return newWithHistory(nil, p.history+key+"."), nil
	}

	m, err := cast.ToStringMapE(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %s%s must be an object: %v", ErrConfiguration, p.history, key, err)
	}

	return newWithHistory(m, p.history+key+"."), nil
}

// AssertEmpty fails when keys remain; name identifies the consumer in the
// error message.
func (p *Params) AssertEmpty(name string) error {
	if len(p.values) == 0 {
		return nil
	}

	return fmt.Errorf("%w: extra parameters passed to %s: %s", ErrConfiguration, name, strings.Join(p.Keys(), ", "))
}

// AsMap returns a copy of the remaining top-level values.
func (p *Params) AsMap() map[string]any {
	out := make(map[string]any, len(p.values))
	for k, v := range p.values {
		out[k] = v
	}

	return out
}

func (p *Params) toInt(key string, v any) (int, error) {
	// cast accepts "3.5" and 3.5 by truncating; a dimension must be integral.
	if f, ok := v.(float64); ok && f != float64(int(f)) {
		return 0, fmt.Errorf("%w: %s%s: %v is not an integer", ErrConfiguration, p.history, key, v)
	}

	n, err := cast.ToIntE(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s%s: %v", ErrConfiguration, p.history, key, err)
	}

	return n, nil
}

func (p *Params) location() string {
	if p.history == "" {
		return "root"
	}

	return strings.TrimSuffix(p.history, ".")
}

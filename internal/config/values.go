// internal/config/values.go
package config

import (
	"fmt"
	"math"
	"sort"

	"github.com/tamzrod/labjack-streamer/internal/session"
)

// ToValue converts a decoded YAML scalar into a session value.
// Numbers become numeric values, strings text values; nothing else is accepted.
func ToValue(raw any) (session.Value, error) {
	switch v := raw.(type) {
	case int:
		return session.Number(float64(v)), nil
	case int64:
		return session.Number(float64(v)), nil
	case uint64:
		return session.Number(float64(v)), nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return session.Value{}, fmt.Errorf("value must be finite, got %g", v)
		}
		return session.Number(v), nil
	case bool:
		if v {
			return session.Number(1), nil
		}
		return session.Number(0), nil
	case string:
		return session.Text(v), nil
	default:
		return session.Value{}, fmt.Errorf("unsupported value %v (%T)", raw, raw)
	}
}

// LibraryOptions converts the library section. Nil when empty.
func (c *Config) LibraryOptions() (session.LibraryOptions, error) {
	if len(c.Library) == 0 {
		return nil, nil
	}
	out := make(session.LibraryOptions, len(c.Library))
	for _, name := range sortedKeys(c.Library) {
		opt, err := session.ParseLibraryOption(name)
		if err != nil {
			return nil, err
		}
		v, err := ToValue(c.Library[name])
		if err != nil {
			return nil, fmt.Errorf("config: library.%s: %w", name, err)
		}
		out[opt] = v
	}
	return out, nil
}

// RegisterOptions converts the registers section. Nil when empty.
func (c *Config) RegisterOptions() (session.RegisterOptions, error) {
	if len(c.Registers) == 0 {
		return nil, nil
	}
	out := make(session.RegisterOptions, len(c.Registers))
	for _, name := range sortedKeys(c.Registers) {
		v, err := ToValue(c.Registers[name])
		if err != nil {
			return nil, fmt.Errorf("config: registers.%s: %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

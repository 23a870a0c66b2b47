package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// Manager manages application configuration as flat dotted keys
// ("read.timeout"). Loaders normalise keys to that form.
type Manager struct {
	values map[string]any
	mu     sync.RWMutex

	// Watchers for configuration changes
	watchers map[string][]func(string, any)
}

// NewManager creates a new configuration manager
func NewManager() *Manager {
	return &Manager{
		values:   make(map[string]any),
		watchers: make(map[string][]func(string, any)),
	}
}

// normalizeKey lower-cases key and turns '_' and '-' into '.'.
func normalizeKey(key string) string {
	key = strings.ToLower(key)
	return strings.NewReplacer("_", ".", "-", ".").Replace(key)
}

// Set sets a configuration value and notifies watchers of key.
func (m *Manager) Set(key string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[key] = value

	for _, watcher := range m.watchers[key] {
		go watcher(key, value)
	}
}

// Get gets a configuration value
func (m *Manager) Get(key string) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, exists := m.values[key]
	return value, exists
}

func lookup[T any](m *Manager, key string, conv func(any) (T, error), def []T) T {
	if value, ok := m.Get(key); ok {
		if v, err := conv(value); err == nil {
			return v
		}
	}
	if len(def) > 0 {
		return def[0]
	}
	var zero T
	return zero
}

// GetString gets a string configuration value
func (m *Manager) GetString(key string, defaultValue ...string) string {
	return lookup(m, key, cast.ToStringE, defaultValue)
}

// GetInt gets an integer configuration value
func (m *Manager) GetInt(key string, defaultValue ...int) int {
	return lookup(m, key, cast.ToIntE, defaultValue)
}

// GetInt64 gets a 64-bit integer configuration value
func (m *Manager) GetInt64(key string, defaultValue ...int64) int64 {
	return lookup(m, key, cast.ToInt64E, defaultValue)
}

// GetBool gets a boolean configuration value
func (m *Manager) GetBool(key string, defaultValue ...bool) bool {
	return lookup(m, key, cast.ToBoolE, defaultValue)
}

// GetFloat gets a float configuration value
func (m *Manager) GetFloat(key string, defaultValue ...float64) float64 {
	return lookup(m, key, cast.ToFloat64E, defaultValue)
}

// GetDuration gets a duration configuration value
func (m *Manager) GetDuration(key string, defaultValue ...time.Duration) time.Duration {
	return lookup(m, key, cast.ToDurationE, defaultValue)
}

// GetStringSlice gets a string slice configuration value. A plain string
// is split on commas.
func (m *Manager) GetStringSlice(key string, defaultValue ...[]string) []string {
	return lookup(m, key, toStringSlice, defaultValue)
}

func toStringSlice(v any) ([]string, error) {
	if s, ok := v.(string); ok {
		parts := strings.Split(s, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts, nil
	}
	return cast.ToStringSliceE(v)
}

// Watch registers callback for changes of key. Callbacks run on their own
// goroutine.
func (m *Manager) Watch(key string, callback func(string, any)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.watchers[key] = append(m.watchers[key], callback)
}

// LoadFromEnv loads variables named PREFIX_SOME_KEY as "some.key".
func (m *Manager) LoadFromEnv(prefix string) {
	for _, env := range os.Environ() {
		key, value, ok := strings.Cut(env, "=")
		if !ok {
			continue
		}
		if prefix != "" {
			rest, found := strings.CutPrefix(key, prefix+"_")
			if !found || rest == "" {
				continue
			}
			key = rest
		}
		m.Set(normalizeKey(key), value)
	}
}

// LoadFile loads a JSON, TOML or YAML file chosen by extension.
func (m *Manager) LoadFile(filename string) error {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".json":
		return m.LoadFromJSON(filename)
	case ".toml":
		return m.LoadFromTOML(filename)
	case ".yaml", ".yml":
		return m.LoadFromYAML(filename)
	}
	return fmt.Errorf("unsupported config file type %q", filepath.Ext(filename))
}

// LoadFromJSON loads configuration from JSON file
func (m *Manager) LoadFromJSON(filename string) error {
	return m.loadWith(filename, "JSON", json.Unmarshal)
}

// LoadFromTOML loads configuration from TOML file
func (m *Manager) LoadFromTOML(filename string) error {
	return m.loadWith(filename, "TOML", toml.Unmarshal)
}

// LoadFromYAML loads configuration from YAML file
func (m *Manager) LoadFromYAML(filename string) error {
	return m.loadWith(filename, "YAML", yaml.Unmarshal)
}

func (m *Manager) loadWith(filename, format string, unmarshal func([]byte, any) error) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var values map[string]any
	if err := unmarshal(data, &values); err != nil {
		return fmt.Errorf("failed to parse %s config: %w", format, err)
	}

	m.loadFromMap("", values)
	return nil
}

// loadFromMap flattens nested tables into dotted keys.
func (m *Manager) loadFromMap(prefix string, values map[string]any) {
	for key, value := range values {
		fullKey := normalizeKey(key)
		if prefix != "" {
			fullKey = prefix + "." + fullKey
		}

		if nested, ok := value.(map[string]any); ok {
			m.loadFromMap(fullKey, nested)
		} else {
			m.Set(fullKey, value)
		}
	}
}

// SaveToJSON saves configuration to JSON file
func (m *Manager) SaveToJSON(filename string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, err := json.MarshalIndent(m.values, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

var durationType = reflect.TypeFor[time.Duration]()

// Unmarshal copies values into the fields of the struct target points to.
// The key of a field is its `config` tag or its lower-cased name, under
// prefix. Fields without a value keep their current content.
func (m *Manager) Unmarshal(prefix string, target any) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	targetValue := reflect.ValueOf(target)
	if targetValue.Kind() != reflect.Pointer {
		return fmt.Errorf("target must be a pointer")
	}

	targetValue = targetValue.Elem()
	if targetValue.Kind() != reflect.Struct {
		return fmt.Errorf("target must be a pointer to struct")
	}

	targetType := targetValue.Type()
	for i := 0; i < targetType.NumField(); i++ {
		field := targetType.Field(i)
		fieldValue := targetValue.Field(i)
		if !fieldValue.CanSet() {
			continue
		}

		configKey := field.Tag.Get("config")
		if configKey == "" {
			configKey = strings.ToLower(field.Name)
		}
		if prefix != "" {
			configKey = prefix + "." + configKey
		}

		value, exists := m.values[configKey]
		if !exists {
			continue
		}

		if err := setFieldValue(fieldValue, value); err != nil {
			return fmt.Errorf("field %s (%s): %w", field.Name, configKey, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value any) error {
	if field.Type() == durationType {
		d, err := cast.ToDurationE(value)
		if err != nil {
			return err
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		s, err := cast.ToStringE(value)
		if err != nil {
			return err
		}
		field.SetString(s)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := cast.ToInt64E(value)
		if err != nil {
			return err
		}
		if field.OverflowInt(n) {
			return fmt.Errorf("%d overflows %s", n, field.Type())
		}
		field.SetInt(n)

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := cast.ToUint64E(value)
		if err != nil {
			return err
		}
		if field.OverflowUint(n) {
			return fmt.Errorf("%d overflows %s", n, field.Type())
		}
		field.SetUint(n)

	case reflect.Bool:
		b, err := cast.ToBoolE(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Float32, reflect.Float64:
		f, err := cast.ToFloat64E(value)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			ss, err := toStringSlice(value)
			if err != nil {
				return err
			}
			field.Set(reflect.ValueOf(ss))
			return nil
		}
		fallthrough

	default:
		v := reflect.ValueOf(value)
		if !v.IsValid() || !v.Type().ConvertibleTo(field.Type()) {
			return fmt.Errorf("cannot convert %T to %v", value, field.Type())
		}
		field.Set(v.Convert(field.Type()))
	}

	return nil
}

// GetAll returns all configuration values
func (m *Manager) GetAll() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]any, len(m.values))
	for k, v := range m.values {
		result[k] = v
	}
	return result
}

// Delete deletes a configuration value
func (m *Manager) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.values, key)
}

// Clear clears all configuration values
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values = make(map[string]any)
}

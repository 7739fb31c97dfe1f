// config/appconfig.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// AppKey defines a configuration key owned by the application rather than
// the core. App keys are read from the same sources as core keys: the
// config file, CATALOG_<NAME> env vars and --<name> flags.
type AppKey struct {
	// Name is the key name (e.g., "mongo_uri", "cache_ttl").
	Name string

	// Default is the default value if not set elsewhere. Its type selects
	// how the loaded value is coerced. Supported: string, int, int64, bool,
	// []string.
	Default any

	// Desc is a short description for --help output.
	Desc string

	// Secret values are redacted when the loaded config is logged.
	Secret bool
}

// AppConfigValues holds the loaded app configuration values.
// Keys are the AppKey.Name values, values are the loaded configuration.
type AppConfigValues map[string]any

// String returns a string value or empty string if not found/wrong type.
func (a AppConfigValues) String(key string) string {
	if v, ok := a[key].(string); ok {
		return v
	}
	return ""
}

// Int returns an int value or 0 if not found/wrong type.
func (a AppConfigValues) Int(key string) int {
	switch v := a[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	}
	return 0
}

// Int64 returns an int64 value or 0 if not found/wrong type.
func (a AppConfigValues) Int64(key string) int64 {
	switch v := a[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}

// Bool returns a bool value or false if not found/wrong type.
func (a AppConfigValues) Bool(key string) bool {
	if v, ok := a[key].(bool); ok {
		return v
	}
	return false
}

// StringSlice returns a []string value or nil if not found/wrong type.
func (a AppConfigValues) StringSlice(key string) []string {
	if v, ok := a[key].([]string); ok {
		return v
	}
	return nil
}

// Duration parses a duration value from the config.
// Accepts duration strings ("10m", "90s"), numeric seconds (600) and
// numeric strings ("600"). Returns def when the key is unset, empty or
// invalid.
func (a AppConfigValues) Duration(key string, def time.Duration) time.Duration {
	dur, err := parseDurationFlexible(a[key], def)
	if err != nil {
		return def
	}
	return dur
}

// loadAppConfig resolves keys against v, which already carries the env
// binding, config files and explicit flags of the core load.
func loadAppConfig(logger *zap.Logger, v *viper.Viper, keys []AppKey) (AppConfigValues, error) {
	result := make(AppConfigValues, len(keys))
	if len(keys) == 0 {
		return result, nil
	}

	for _, key := range keys {
		v.SetDefault(key.Name, key.Default)
		_ = v.BindEnv(key.Name)
	}

	fields := make([]zap.Field, 0, len(keys))
	for _, key := range keys {
		val, err := coerce(v, key)
		if err != nil {
			return nil, err
		}
		result[key.Name] = val

		if key.Secret || looksSecret(key.Name) {
			fields = append(fields, zap.String(key.Name, "[REDACTED]"))
		} else {
			fields = append(fields, zap.Any(key.Name, val))
		}
	}
	logger.Info("app config loaded", fields...)

	return result, nil
}

// coerce reads key from v as the Go type of its default.
// Env vars and flags always arrive as strings, so the viper typed getters
// do the conversion.
func coerce(v *viper.Viper, key AppKey) (any, error) {
	switch key.Default.(type) {
	case string:
		return v.GetString(key.Name), nil
	case int:
		return v.GetInt(key.Name), nil
	case int64:
		return v.GetInt64(key.Name), nil
	case bool:
		return v.GetBool(key.Name), nil
	case []string:
		arr, ok, err := toStringSlice(v.Get(key.Name))
		if err != nil {
			return nil, fmt.Errorf("config key %q expects a JSON array string: %w", key.Name, err)
		}
		if !ok {
			return nil, fmt.Errorf("config key %q has unsupported value type %T", key.Name, v.Get(key.Name))
		}
		return arr, nil
	}
	return nil, fmt.Errorf("config key %q has unsupported default type %T", key.Name, key.Default)
}

func looksSecret(name string) bool {
	name = strings.ToLower(name)
	for _, s := range []string{"key", "secret", "password", "token"} {
		if strings.Contains(name, s) {
			return true
		}
	}
	return false
}

// registerAppFlags registers command-line flags for app config keys.
// Must be called before fs.Parse.
func registerAppFlags(fs *pflag.FlagSet, keys []AppKey) error {
	for _, key := range keys {
		if fs.Lookup(key.Name) != nil {
			return fmt.Errorf("config key %q conflicts with existing flag", key.Name)
		}

		switch d := key.Default.(type) {
		case string:
			fs.String(key.Name, d, key.Desc)
		case int:
			fs.Int(key.Name, d, key.Desc)
		case int64:
			fs.Int64(key.Name, d, key.Desc)
		case bool:
			fs.Bool(key.Name, d, key.Desc)
		case []string:
			// For string slices, accept JSON array on command line
			fs.String(key.Name, "", key.Desc+" (JSON array)")
		default:
			return fmt.Errorf("config key %q has unsupported default type %T", key.Name, key.Default)
		}
	}
	return nil
}

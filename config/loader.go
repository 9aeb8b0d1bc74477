package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/c360/streamkit/errors"
	"github.com/c360/streamkit/streamcache"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "STREAMKIT"

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
	lookupEnv  func(string) (string, bool)
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		envPrefix: EnvPrefix,
		lookupEnv: os.LookupEnv,
	}
}

// AddLayer adds a configuration file layer. Later layers win.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables Config.Validate after loading. Schema
// checks of file layers always run.
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// LoadFile loads configuration from a single file
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load merges defaults, every layer and the environment
func (l *Loader) Load() (*Config, error) {
	merged, err := toMap(Defaults())
	if err != nil {
		return nil, errors.WrapFatal(err, "Loader", "Load", "encode defaults")
	}

	for _, path := range l.layers {
		raw, err := l.loadRaw(path)
		if err != nil {
			return nil, errors.Wrap(err, "Loader", "Load", fmt.Sprintf("load %s", path))
		}
		merged = deepMergeMaps(merged, raw)
	}

	data, err := json.Marshal(merged)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "Load", "encode merged config")
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "Load", "decode merged config")
	}

	if err := l.applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

// Defaults returns the configuration used before any layer is applied
func Defaults() *Config {
	return &Config{
		Version:     "1.0.0",
		Log:         LogConfig{Level: "info", Format: "json"},
		StreamCache: streamcache.DefaultConfig(),
		NATS:        NATSConfig{MaxReconnects: -1, ReconnectWait: "2s", Timeout: "5s"},
		Metrics:     MetricsConfig{Enabled: false, Port: 9090, Path: "/metrics"},
	}
}

// loadRaw reads one layer, YAML or JSON, and checks it against the schema
func (l *Loader) loadRaw(path string) (map[string]any, error) {
	data, err := safeReadFile(path)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "loadRaw", "read file")
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "loadRaw", "parse file")
	}
	if raw == nil {
		raw = map[string]any{}
	}
	if err := validateDepth(raw, 0); err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "loadRaw", "depth check")
	}

	doc, err := json.Marshal(raw)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "loadRaw", "convert to JSON")
	}
	if err := ValidateDocument(doc); err != nil {
		return nil, err
	}

	// round-trip so numbers and nested maps have JSON types
	var normalized map[string]any
	if err := json.Unmarshal(doc, &normalized); err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "loadRaw", "normalize")
	}
	return normalized, nil
}

func toMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	err = json.Unmarshal(data, &m)
	return m, err
}

// deepMergeMaps recursively merges two maps, with override taking precedence.
// Lists are replaced, not appended.
func deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base))
	for k, v := range base {
		result[k] = v
	}

	for k, v := range override {
		if v == nil {
			continue
		}
		if baseMap, ok := base[k].(map[string]any); ok {
			if overrideMap, ok := v.(map[string]any); ok {
				result[k] = deepMergeMaps(baseMap, overrideMap)
				continue
			}
		}
		result[k] = v
	}
	return result
}

// applyEnvOverrides applies STREAMKIT_* variables
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	get := func(name string) (string, bool, error) {
		key := l.envPrefix + "_" + name
		val, ok := l.lookupEnv(key)
		if !ok || val == "" {
			return "", false, nil
		}
		if err := validateEnvVar(key, val); err != nil {
			return "", false, errors.WrapInvalid(err, "Loader", "applyEnvOverrides", "check "+key)
		}
		return val, true, nil
	}

	strs := []struct {
		name   string
		target *string
	}{
		{"LOG_LEVEL", &cfg.Log.Level},
		{"LOG_FORMAT", &cfg.Log.Format},
		{"NATS_USERNAME", &cfg.NATS.Username},
		{"NATS_PASSWORD", &cfg.NATS.Password},
		{"NATS_TOKEN", &cfg.NATS.Token},
		{"STREAM_CACHE_SPOOL_DIRECTORY", &cfg.StreamCache.SpoolDirectory},
		{"STREAM_CACHE_SPOOL_CIPHER", &cfg.StreamCache.SpoolCipher},
	}
	for _, s := range strs {
		val, ok, err := get(s.name)
		if err != nil {
			return err
		}
		if ok {
			*s.target = val
		}
	}

	if val, ok, err := get("NATS_URLS"); err != nil {
		return err
	} else if ok {
		cfg.NATS.URLs = strings.Split(val, ",")
	}

	if val, ok, err := get("STREAM_CACHE_SPOOL_THRESHOLD"); err != nil {
		return err
	} else if ok {
		n, perr := strconv.ParseInt(val, 10, 64)
		if perr != nil {
			return errors.WrapInvalid(perr, "Loader", "applyEnvOverrides", "parse spool threshold")
		}
		cfg.StreamCache.SpoolThreshold = n
	}

	if val, ok, err := get("METRICS_PORT"); err != nil {
		return err
	} else if ok {
		n, perr := strconv.Atoi(val)
		if perr != nil {
			return errors.WrapInvalid(perr, "Loader", "applyEnvOverrides", "parse metrics port")
		}
		cfg.Metrics.Port = n
		cfg.Metrics.Enabled = true
	}
	return nil
}

// SaveToFile writes the configuration as indented JSON
func (c *Config) SaveToFile(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.WrapInvalid(err, "Config", "SaveToFile", "encode")
	}
	if err := safeWriteFile(path, data); err != nil {
		return errors.WrapTransient(err, "Config", "SaveToFile", "write file")
	}
	return nil
}

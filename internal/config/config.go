package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/intent"
)

// DefaultFile is read when no config path is given and it exists.
const DefaultFile = "callflow.yaml"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CALLFLOW_"

// Config is the application configuration shared by all commands.
type Config struct {
	Script   string         `mapstructure:"script"`
	Library  LibraryConfig  `mapstructure:"library"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Log      LogConfig      `mapstructure:"log"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
	Intent   intent.Config  `mapstructure:"intent"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Input    InputConfig    `mapstructure:"input"`
}

// LibraryConfig points at a Loam repository of flow documents.
type LibraryConfig struct {
	Dir  string `mapstructure:"dir"`
	Flow string `mapstructure:"flow"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type DispatchConfig struct {
	JoinTimeout time.Duration `mapstructure:"join_timeout"`
}

// RedisConfig enables the transcript recorder when Addr is set.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`

	// Redact lists regular expressions masked out of transcript text.
	Redact []string `mapstructure:"redact"`
	// EncryptionKey is a base64 AES-256 key; when set, transcript text is
	// sealed. FallbackKeys still decrypt entries sealed before a rotation.
	EncryptionKey string   `mapstructure:"encryption_key"`
	FallbackKeys  []string `mapstructure:"fallback_keys"`
}

type InputConfig struct {
	MaxSize int `mapstructure:"max_size"`
}

// envKeys maps environment variables (without EnvPrefix) to config keys.
var envKeys = map[string]string{
	"SCRIPT":                "script",
	"LIBRARY_DIR":           "library.dir",
	"LIBRARY_FLOW":          "library.flow",
	"HTTP_ADDR":             "http.addr",
	"METRICS_ENABLED":       "metrics.enabled",
	"LOG_LEVEL":             "log.level",
	"LOG_FORMAT":            "log.format",
	"DISPATCH_JOIN_TIMEOUT": "dispatch.join_timeout",
	"INTENT_PROVIDER":       "intent.provider",
	"INTENT_MODEL":          "intent.model",
	"INTENT_BASE_URL":       "intent.base_url",
	"INTENT_API_KEY":        "intent.api_key",
	"INTENT_TIMEOUT":        "intent.timeout",
	"INTENT_OPTIONS":        "intent.options",
	"REDIS_ADDR":            "redis.addr",
	"REDIS_PASSWORD":        "redis.password",
	"REDIS_DB":              "redis.db",
	"REDIS_PREFIX":          "redis.prefix",
	"REDIS_TTL":             "redis.ttl",
	"REDIS_REDACT":          "redis.redact",
	"REDIS_ENCRYPTION_KEY":  "redis.encryption_key",
	"REDIS_FALLBACK_KEYS":   "redis.fallback_keys",
	"INPUT_MAX_SIZE":        "input.max_size",
}

// apiKeyFallbacks are read when intent.api_key is still empty.
var apiKeyFallbacks = []string{"DASHSCOPE_API_KEY", "OPENAI_API_KEY"}

func defaults() map[string]any {
	return map[string]any{
		"http":     map[string]any{"addr": ":8080"},
		"log":      map[string]any{"level": "info", "format": "text"},
		"dispatch": map[string]any{"join_timeout": domain.DefaultJoinTimeout.String()},
		"intent":   map[string]any{"timeout": "10s"},
		"redis":    map[string]any{"prefix": "callflow:transcript:", "ttl": "24h"},
	}
}

// Load builds the configuration from defaults, the YAML file at path and the
// environment, in increasing precedence. A .env file in the working
// directory is loaded into the environment first.
//
// An empty path reads DefaultFile if it exists; an explicit path must exist.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	raw := defaults()

	file, required := path, true
	if file == "" {
		file, required = DefaultFile, false
	}
	fromFile, err := readFile(file, required)
	if err != nil {
		return nil, err
	}
	merge(raw, fromFile)
	overlayEnv(raw, os.LookupEnv)

	cfg, err := decode(raw)
	if err != nil {
		return nil, err
	}
	if cfg.Intent.APIKey == "" {
		for _, name := range apiKeyFallbacks {
			if v := os.Getenv(name); v != "" {
				cfg.Intent.APIKey = v
				break
			}
		}
	}
	return cfg, nil
}

func readFile(path string, required bool) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !required && errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	var out map[string]any
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return out, nil
}

func overlayEnv(raw map[string]any, lookup func(string) (string, bool)) {
	for env, key := range envKeys {
		if v, ok := lookup(EnvPrefix + env); ok {
			set(raw, key, v)
		}
	}
}

func decode(raw map[string]any) (*Config, error) {
	var cfg Config
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// merge copies src into dst, descending into nested maps.
func merge(dst, src map[string]any) {
	for k, v := range src {
		if sub, ok := v.(map[string]any); ok {
			if existing, ok := dst[k].(map[string]any); ok {
				merge(existing, sub)
				continue
			}
		}
		dst[k] = v
	}
}

// set assigns a dotted key, creating intermediate maps.
func set(m map[string]any, key string, value any) {
	parts := strings.Split(key, ".")
	for _, p := range parts[:len(parts)-1] {
		next, ok := m[p].(map[string]any)
		if !ok {
			next = make(map[string]any)
			m[p] = next
		}
		m = next
	}
	m[parts[len(parts)-1]] = value
}

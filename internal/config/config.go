package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Config holds application configuration.
type Config struct {
	// BlueprintPath points at the YAML blueprint (descriptors, forms, engine
	// flags). Relative paths resolve against the directory of the config file
	// that set them. Empty uses the built-in blueprint.
	BlueprintPath string `json:"blueprint_path,omitempty"`

	// ContentPath points at the YAML content table. Empty uses built-in
	// defaults only.
	ContentPath string `json:"content_path,omitempty"`

	// SessionBackend selects session storage: "sqlite" (default), "memory" or "redis".
	SessionBackend string `json:"session_backend,omitempty"`

	// RedisAddr is the host:port of the Redis server for the redis backend.
	RedisAddr string `json:"redis_addr,omitempty"`

	// SessionTTLHours bounds how long Redis keeps an idle session. 0 uses the default.
	SessionTTLHours int `json:"session_ttl_hours,omitempty"`

	// SinkURL is the CRM webhook that receives leads. Empty keeps leads in
	// the local outbox table only.
	SinkURL string `json:"sink_url,omitempty"`

	// AvailabilityURL and JobTypeURL enable the optional CRM lookups used by
	// the form channel. Either may be empty.
	AvailabilityURL string `json:"availability_url,omitempty"`
	JobTypeURL      string `json:"job_type_url,omitempty"`

	// SinkTimeoutSeconds bounds each HTTP sink call. 0 uses the default.
	SinkTimeoutSeconds int `json:"sink_timeout_seconds,omitempty"`

	// HTTPAddr is the listen address for `leadcap serve`.
	HTTPAddr string `json:"http_addr,omitempty"`

	// LogMode is "dev" or "prod"; LogLevel is debug, info, warn or error.
	LogMode  string `json:"log_mode,omitempty"`
	LogLevel string `json:"log_level,omitempty"`

	// DisableLogRedaction logs contact values verbatim. Development only.
	DisableLogRedaction bool `json:"disable_log_redaction,omitempty"`

	// LogHashSalt salts the hashes of session and user ids in logs.
	LogHashSalt string `json:"log_hash_salt,omitempty"`

	// TracingEnabled turns on OpenTelemetry spans exported to stderr.
	TracingEnabled   bool    `json:"tracing_enabled,omitempty"`
	TraceSampleRatio float64 `json:"trace_sample_ratio,omitempty"`

	// AllowedPaths is an allowlist of directories for lead exports.
	// Paths outside ~/.leadcap/exports require either being in this list or AllowUnsafePaths=true.
	// Paths should be absolute (relative paths are ignored).
	AllowedPaths []string `json:"allowed_paths,omitempty"`

	// AllowUnsafePaths disables directory restrictions for exports.
	// When true, any directory is allowed (but symlink and extension checks still apply).
	AllowUnsafePaths bool `json:"allow_unsafe_paths,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// If set to 1, all database access is serialized (reduces "database is locked" errors).
	// 0 means use sql.DB default (unlimited).
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// DisabledTypes is a list of tool groups to disable entirely.
	// Known types: "lead", "session". Unknown type names are logged as warnings.
	DisabledTypes []string `json:"disabled_types,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		SessionBackend:     "sqlite",
		SessionTTLHours:    24,
		SinkTimeoutSeconds: 10,
		HTTPAddr:           "127.0.0.1:8787",
		LogMode:            "dev",
		LogLevel:           "info",
		TraceSampleRatio:   1,
	}
}

// Load reads baseDir/config.json over the defaults. A missing file yields
// DefaultConfig.
func Load(baseDir string) (*Config, error) {
	file, err := readFile(filepath.Join(baseDir, "config.json"))
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), file), nil
}

// LoadWithRepo layers three sources: the defaults, globalDir/config.json,
// and the nearest .leadcap/config.json at or above startDir. Later layers
// win for scalars; lists are unioned. Either file may be absent.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	cfg := DefaultConfig()
	for _, path := range []string{filepath.Join(globalDir, "config.json"), FindRepoConfig(startDir)} {
		layer, err := readFile(path)
		if err != nil {
			return nil, err
		}
		cfg = Merge(cfg, layer)
	}
	return cfg, nil
}

// FindRepoConfig returns the nearest .leadcap/config.json at or above
// startDir, or "" when there is none.
func FindRepoConfig(startDir string) string {
	for dir := startDir; ; {
		candidate := filepath.Join(dir, ".leadcap", "config.json")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// readFile decodes one config file without applying defaults. An empty or
// missing path yields a zero Config. Relative blueprint and content paths
// are anchored to the file's directory.
func readFile(path string) (*Config, error) {
	cfg := &Config{}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	dir := filepath.Dir(path)
	cfg.BlueprintPath = anchor(dir, cfg.BlueprintPath)
	cfg.ContentPath = anchor(dir, cfg.ContentPath)
	return cfg, nil
}

func anchor(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

// Merge layers overlay on base. Non-zero overlay scalars win, booleans are
// ORed, and lists are unioned in order without duplicates.
func Merge(base, overlay *Config) *Config {
	return &Config{
		BlueprintPath:   pick(base.BlueprintPath, overlay.BlueprintPath),
		ContentPath:     pick(base.ContentPath, overlay.ContentPath),
		SessionBackend:  pick(base.SessionBackend, overlay.SessionBackend),
		RedisAddr:       pick(base.RedisAddr, overlay.RedisAddr),
		SessionTTLHours: pick(base.SessionTTLHours, overlay.SessionTTLHours),
		SinkURL:         pick(base.SinkURL, overlay.SinkURL),
		AvailabilityURL: pick(base.AvailabilityURL, overlay.AvailabilityURL),
		JobTypeURL:      pick(base.JobTypeURL, overlay.JobTypeURL),

		SinkTimeoutSeconds: pick(base.SinkTimeoutSeconds, overlay.SinkTimeoutSeconds),
		HTTPAddr:           pick(base.HTTPAddr, overlay.HTTPAddr),
		LogMode:            pick(base.LogMode, overlay.LogMode),
		LogLevel:           pick(base.LogLevel, overlay.LogLevel),
		LogHashSalt:        pick(base.LogHashSalt, overlay.LogHashSalt),
		TraceSampleRatio:   pick(base.TraceSampleRatio, overlay.TraceSampleRatio),
		DBMaxOpenConns:     pick(base.DBMaxOpenConns, overlay.DBMaxOpenConns),
		DBMaxIdleConns:     pick(base.DBMaxIdleConns, overlay.DBMaxIdleConns),

		DisableLogRedaction: base.DisableLogRedaction || overlay.DisableLogRedaction,
		TracingEnabled:      base.TracingEnabled || overlay.TracingEnabled,
		AllowUnsafePaths:    base.AllowUnsafePaths || overlay.AllowUnsafePaths,

		AllowedPaths:  union(base.AllowedPaths, overlay.AllowedPaths),
		DisabledTools: union(base.DisabledTools, overlay.DisabledTools),
		DisabledTypes: union(base.DisabledTypes, overlay.DisabledTypes),
	}
}

func pick[T comparable](base, overlay T) T {
	var zero T
	if overlay != zero {
		return overlay
	}
	return base
}

// union trims entries, drops blanks and keeps the first occurrence of each.
func union(lists ...[]string) []string {
	var out []string
	for _, list := range lists {
		for _, s := range list {
			if s = strings.TrimSpace(s); s != "" && !slices.Contains(out, s) {
				out = append(out, s)
			}
		}
	}
	return out
}

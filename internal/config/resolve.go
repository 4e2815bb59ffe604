package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Resolved is the configuration after environment overrides, loaded once at
// startup.
type Resolved struct {
	Config   *Config
	Settings Settings
}

// Resolve applies LEADCAP_* environment overrides to cfg, loads the blueprint
// it names, and returns the engine settings. getenv is usually os.Getenv.
func Resolve(cfg *Config, getenv func(string) string) (*Resolved, error) {
	if getenv == nil {
		getenv = func(string) string { return "" }
	}
	env := func(key string) string { return strings.TrimSpace(getenv(key)) }

	c := Merge(cfg, &Config{
		BlueprintPath:  env("LEADCAP_BLUEPRINT"),
		ContentPath:    env("LEADCAP_CONTENT"),
		SessionBackend: env("LEADCAP_SESSION_BACKEND"),
		RedisAddr:      env("LEADCAP_REDIS_ADDR"),
		SinkURL:        env("LEADCAP_SINK_URL"),
		HTTPAddr:       env("LEADCAP_HTTP_ADDR"),
		LogMode:        env("LEADCAP_LOG_MODE"),
		LogLevel:       env("LEADCAP_LOG_LEVEL"),
		LogHashSalt:    env("LEADCAP_LOG_HASH_SALT"),
	})
	if v := env("LEADCAP_TRACING"); v != "" {
		on, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("LEADCAP_TRACING: %w", err)
		}
		c.TracingEnabled = on
	}

	if c.SessionBackend == "" {
		c.SessionBackend = "sqlite"
	}
	switch c.SessionBackend {
	case "sqlite", "memory", "redis":
	default:
		return nil, fmt.Errorf("unknown session backend %q", c.SessionBackend)
	}
	if c.SessionBackend == "redis" && c.RedisAddr == "" {
		return nil, fmt.Errorf("session backend redis requires redis_addr")
	}

	bp, err := LoadBlueprint(c.BlueprintPath)
	if err != nil {
		return nil, err
	}
	s := bp.Settings()

	if v := env("LEADCAP_CAPTURE_LEAD"); v != "" {
		on, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("LEADCAP_CAPTURE_LEAD: %w", err)
		}
		s.CaptureLead = on
	}
	if v := env("LEADCAP_RESPONSES"); v != "" {
		mode := ResponseMode(strings.ToUpper(v))
		if mode != ResponsesProgrammatic && mode != ResponsesGenerative {
			return nil, fmt.Errorf("LEADCAP_RESPONSES: unknown mode %q", v)
		}
		s.Responses = mode
	}
	if v := env("LEADCAP_BUSINESS_NAME"); v != "" {
		s.BusinessName = v
	}

	return &Resolved{Config: c, Settings: s}, nil
}

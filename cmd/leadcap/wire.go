package main

import (
	"database/sql"
	"time"

	"github.com/hpungsan/leadcap/internal/config"
	"github.com/hpungsan/leadcap/internal/content"
	"github.com/hpungsan/leadcap/internal/engine"
	"github.com/hpungsan/leadcap/internal/logger"
	"github.com/hpungsan/leadcap/internal/session"
	"github.com/hpungsan/leadcap/internal/submit"
)

// newEngine builds the engine from resolved configuration. The returned
// func releases the session backend.
func newEngine(database *sql.DB, r *config.Resolved, log *logger.Logger) (*engine.Engine, func(), error) {
	cfg := r.Config
	closer := func() {}

	var sessions session.Backend
	switch cfg.SessionBackend {
	case "memory":
		sessions = session.NewMemoryBackend()
	case "redis":
		rb, err := session.NewRedisBackend(cfg.RedisAddr, time.Duration(cfg.SessionTTLHours)*time.Hour)
		if err != nil {
			return nil, closer, err
		}
		sessions = rb
		closer = func() { _ = rb.Close() }
	default:
		sessions = session.NewSQLiteBackend(database)
	}

	store, err := content.Load(cfg.ContentPath)
	if err != nil {
		closer()
		return nil, func() {}, err
	}

	opts := engine.Options{
		Settings: r.Settings,
		Content:  store,
		Sessions: sessions,
		Log:      log,
	}

	timeout := time.Duration(cfg.SinkTimeoutSeconds) * time.Second
	crm := submit.NewHTTPSink(cfg.SinkURL, cfg.AvailabilityURL, cfg.JobTypeURL, timeout)
	outbox := submit.NewOutboxSink(database, nil)
	if cfg.SinkURL != "" {
		outbox.Next = crm
	}
	opts.Sink = outbox
	if cfg.AvailabilityURL != "" {
		opts.Availability = crm
	}
	if cfg.JobTypeURL != "" {
		opts.JobTypes = crm
	}

	eng, err := engine.New(opts)
	if err != nil {
		closer()
		return nil, func() {}, err
	}
	log.Debug("engine ready",
		"session_backend", cfg.SessionBackend,
		"responses", r.Settings.Responses,
		"descriptors", len(r.Settings.Descriptors),
		"crm_sink", cfg.SinkURL != "",
	)
	return eng, closer, nil
}

// Package engine runs one capture turn: it merges the turn's slot sources,
// persists them, hands the turn to the selected strategy, and records the
// exchange in the session transcript before returning the response.
package engine

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hpungsan/leadcap/internal/config"
	"github.com/hpungsan/leadcap/internal/contact"
	"github.com/hpungsan/leadcap/internal/content"
	"github.com/hpungsan/leadcap/internal/errors"
	"github.com/hpungsan/leadcap/internal/logger"
	"github.com/hpungsan/leadcap/internal/observability"
	"github.com/hpungsan/leadcap/internal/session"
	"github.com/hpungsan/leadcap/internal/slots"
	"github.com/hpungsan/leadcap/internal/strategy"
	"github.com/hpungsan/leadcap/internal/submit"
)

type (
	Request  = strategy.Request
	Response = strategy.Response
)

// Options wires an Engine. Sessions is required; a nil Content uses the
// built-in defaults, and a nil Sink makes every submission fail.
type Options struct {
	Settings     config.Settings
	Content      content.Store
	Sessions     session.Backend
	Sink         submit.Sink
	Availability submit.AvailabilityProvider
	JobTypes     submit.JobTypeResolver
	Log          *logger.Logger
	Now          func() time.Time
}

// Engine handles turns. It holds no per-session state; callers serialize
// turns for the same session.
type Engine struct {
	sessions session.Backend
	deps     *strategy.Deps
	log      *logger.Logger
	now      func() time.Time
}

func New(opts Options) (*Engine, error) {
	if opts.Sessions == nil {
		return nil, errors.NewNotConfigured("session store")
	}
	log := opts.Log
	if log == nil {
		log = logger.Nop()
	}
	store := opts.Content
	if store == nil {
		store = content.Defaults()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		sessions: opts.Sessions,
		deps: &strategy.Deps{
			Settings:     opts.Settings,
			Content:      store,
			Submitter:    submit.NewController(opts.Sink, log, opts.Settings.Source),
			Availability: opts.Availability,
			JobTypes:     opts.JobTypes,
			Log:          log,
		},
		log: log,
		now: now,
	}, nil
}

// Handle processes one turn. A request without a session id starts a new
// session under a generated id, returned on the response.
func (e *Engine) Handle(ctx context.Context, req *Request) (*Response, error) {
	ctx, span := observability.Tracer().Start(ctx, "leadcap.turn")
	defer span.End()

	resp, err := e.handle(ctx, req)
	if err != nil {
		observability.RecordFailure(span, err)
		e.log.Warn("turn failed", "error", err)
		return nil, err
	}
	span.SetAttributes(
		attribute.String("turn.state", string(resp.State)),
		attribute.String("turn.tag", resp.Tag),
	)
	return resp, nil
}

func (e *Engine) handle(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, errors.NewInvalidRequest("request is required")
	}
	if ctx.Err() != nil {
		return nil, errors.NewCancelled("turn")
	}

	r := *req
	r.SessionID = strings.TrimSpace(r.SessionID)
	if r.SessionID == "" {
		r.SessionID = ulid.Make().String()
		r.IsNewSession = true
	}
	s := session.Open(e.sessions, r.SessionID)
	now := e.now()
	log := e.log.With("session_id", r.SessionID, "channel", r.Channel)

	askedRaw, err := s.Get(ctx, session.KeyAskedType)
	if err != nil {
		return nil, err
	}
	asked, _ := contact.ParseDataType(askedRaw)

	stored := slots.Map{}
	if _, err := s.GetJSON(ctx, session.KeySlots, &stored); err != nil {
		return nil, err
	}

	kind := strategy.Select(r.Channel, e.deps.Settings)
	in := slots.MergeInput{
		Session:     stored,
		Request:     slots.FromValues(r.Slots),
		Form:        slots.FromValues(r.Attributes.FormData),
		Utterance:   r.RawUtterance,
		RequestKind: r.Kind,
		AskedType:   asked,
		Heuristics:  kind != strategy.KindForm,
	}
	merged := slots.Merge(in)
	in.Session = nil
	fresh := slots.Merge(in)

	if err := s.SetJSON(ctx, session.KeySlots, merged.Slots.Compact()); err != nil {
		return nil, err
	}
	if len(merged.Alternatives) > 0 {
		log.Debug("alternative slots applied", "asked_type", asked, "slots", merged.Alternatives.Names())
	}

	if u := strings.TrimSpace(r.RawUtterance); u != "" {
		if err := s.Append(ctx, contact.Message{Role: contact.RoleUser, Text: u, Timestamp: now.UnixMilli()}); err != nil {
			return nil, err
		}
	}

	t := &strategy.Turn{
		Request:   &r,
		Session:   s,
		Slots:     merged.Slots,
		Fresh:     fresh.Slots,
		Previous:  stored,
		AskedType: asked,
		Now:       now,
	}

	var resp *Response
	if strings.EqualFold(r.Kind, contact.KindSessionEnded) {
		resp, err = strategy.EndSession(ctx, t, e.deps)
	} else {
		resp, err = strategy.New(kind, e.deps).Run(ctx, t)
	}
	if err != nil {
		if _, ok := errors.As(err); !ok {
			err = errors.NewInternal(err)
		}
		return nil, err
	}

	if resp.OutputSpeech != "" {
		if err := s.Append(ctx, contact.Message{Role: contact.RoleAssistant, Text: resp.OutputSpeech, Timestamp: now.UnixMilli()}); err != nil {
			return nil, err
		}
	}
	resp.SessionID = r.SessionID

	log.Debug("turn handled", "strategy", kind, "state", resp.State, "tag", resp.Tag)
	return resp, nil
}

// Transcript returns the messages recorded for a session.
func (e *Engine) Transcript(ctx context.Context, sessionID string) ([]contact.Message, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, errors.NewInvalidRequest("session id is required")
	}
	return session.Open(e.sessions, sessionID).Transcript(ctx)
}

// Settings returns the engine settings.
func (e *Engine) Settings() config.Settings {
	return e.deps.Settings
}

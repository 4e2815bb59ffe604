// Package strategy produces the response for a turn. Exactly one strategy
// runs per turn, chosen by channel and configuration: the form widget gets
// the Form strategy, generative deployments pass model output through, and
// everything else is the Programmatic field-by-field interview.
package strategy

import (
	"context"
	"strings"
	"time"

	"github.com/hpungsan/leadcap/internal/config"
	"github.com/hpungsan/leadcap/internal/contact"
	"github.com/hpungsan/leadcap/internal/content"
	"github.com/hpungsan/leadcap/internal/logger"
	"github.com/hpungsan/leadcap/internal/session"
	"github.com/hpungsan/leadcap/internal/slots"
	"github.com/hpungsan/leadcap/internal/submit"
)

// Kind names a strategy.
type Kind string

const (
	KindForm         Kind = "FORM"
	KindProgrammatic Kind = "PROGRAMMATIC"
	KindGenerative   Kind = "GENERATIVE"
)

// Strategy answers one turn.
type Strategy interface {
	Kind() Kind
	Run(ctx context.Context, t *Turn) (*Response, error)
}

// Select picks the strategy for a request channel.
func Select(channel string, s config.Settings) Kind {
	switch {
	case strings.EqualFold(strings.TrimSpace(channel), contact.FormWidgetChannel):
		return KindForm
	case s.Responses == config.ResponsesGenerative && s.CaptureLead:
		return KindGenerative
	default:
		return KindProgrammatic
	}
}

// New returns the strategy for kind.
func New(kind Kind, d *Deps) Strategy {
	switch kind {
	case KindForm:
		return &Form{d: d}
	case KindGenerative:
		return &Generative{d: d}
	default:
		return &Programmatic{d: d}
	}
}

// Deps are the collaborators shared by every strategy. Availability and
// JobTypes are optional.
type Deps struct {
	Settings     config.Settings
	Content      content.Store
	Submitter    *submit.Controller
	Availability submit.AvailabilityProvider
	JobTypes     submit.JobTypeResolver
	Log          *logger.Logger
}

func (d *Deps) log() *logger.Logger {
	if d.Log == nil {
		return logger.Nop()
	}
	return d.Log
}

func (d *Deps) vars() map[string]string {
	name := d.Settings.BusinessName
	if name == "" {
		name = "our team"
	}
	return map[string]string{"BUSINESS_NAME": name}
}

// text resolves the first tag with content and personalizes it. ok is false
// when none of the tags exist; the item then carries the visible
// configuration error.
func (d *Deps) text(tags ...string) (item content.Item, tag string, ok bool) {
	if d.Content != nil {
		for _, tag := range tags {
			if it, found := d.Content.Lookup(tag); found {
				return it.Personalize(d.vars()), tag, true
			}
		}
	}
	d.log().Error("missing content", "tags", tags)
	return content.Item{Speech: content.ConfigErrorText}, content.TagConfigError, false
}

// Turn is the state a strategy works from. Slots is the authoritative merged
// slot set; Fresh is the same merge without the session snapshot, used when
// a new capture generation must not inherit earlier values.
type Turn struct {
	Request   *Request
	Session   *session.Session
	Slots     slots.Map
	Fresh     slots.Map
	Previous  slots.Map
	AskedType contact.DataType
	Now       time.Time
}

func (t *Turn) now() time.Time {
	if t.Now.IsZero() {
		return time.Now()
	}
	return t.Now
}

func joinText(parts ...string) string {
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}

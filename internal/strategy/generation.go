package strategy

import (
	"context"

	"github.com/hpungsan/leadcap/internal/contact"
	"github.com/hpungsan/leadcap/internal/content"
	"github.com/hpungsan/leadcap/internal/ledger"
	"github.com/hpungsan/leadcap/internal/session"
	"github.com/hpungsan/leadcap/internal/submit"
)

// Response tags that are not content tags.
const (
	TagForm         = "FORM"
	TagGenerative   = "GENERATIVE"
	TagSessionEnded = "SESSION_ENDED"
)

func loadLedger(ctx context.Context, s *session.Session) (*ledger.Ledger, error) {
	var l ledger.Ledger
	ok, err := s.GetJSON(ctx, session.KeyLedger, &l)
	if err != nil || !ok {
		return nil, err
	}
	return &l, nil
}

func saveLedger(ctx context.Context, s *session.Session, l *ledger.Ledger) error {
	return s.SetJSON(ctx, session.KeyLedger, l)
}

// ensureLedger returns the current generation's ledger. A missing ledger or
// a new session starts a generation. A stale ledger ends one: unsent data
// is submitted as a partial lead and the session starts over from this
// turn's own slots.
func (d *Deps) ensureLedger(ctx context.Context, t *Turn, channel contact.Channel) (*ledger.Ledger, error) {
	now := t.now()
	l, err := loadLedger(ctx, t.Session)
	if err != nil {
		return nil, err
	}
	if l != nil && !t.Request.IsNewSession {
		if !l.Stale(now, d.Settings.StaleAfter) {
			return l, nil
		}
		sent, err := t.Session.Bool(ctx, session.KeySent)
		if err != nil {
			return nil, err
		}
		if !sent && l.HasData() {
			d.log().Info("capture generation expired", "session_id", t.Session.ID(), "collected", len(l.Collected()))
			if _, err := d.submitLead(ctx, t, l, "", false); err != nil {
				return nil, err
			}
		}
		if err := d.resetGeneration(ctx, t); err != nil {
			return nil, err
		}
	}
	return ledger.New(d.Settings.Descriptors, channel, now), nil
}

// resetGeneration clears the engine keys and replaces the slot snapshot with
// the slots this turn supplied. The transcript is kept.
func (d *Deps) resetGeneration(ctx context.Context, t *Turn) error {
	if err := t.Session.Clear(ctx); err != nil {
		return err
	}
	t.Slots = t.Fresh.Clone()
	t.AskedType = ""
	return t.Session.SetJSON(ctx, session.KeySlots, t.Slots.Compact())
}

// submitLead sends the generation's lead and records the sent flag and ref
// id. A failed submission still marks the generation sent: it is not
// retried, but a ref id the sink assigned is kept so a later resubmission
// updates the same record.
func (d *Deps) submitLead(ctx context.Context, t *Turn, l *ledger.Ledger, final string, abandoned bool) (submit.Result, error) {
	s := t.Session
	refID, err := s.Get(ctx, session.KeyRefID)
	if err != nil {
		return submit.Result{}, err
	}
	transcript, err := s.Transcript(ctx)
	if err != nil {
		return submit.Result{}, err
	}
	var jobType *submit.JobType
	var jt submit.JobType
	if ok, err := s.GetJSON(ctx, session.KeyJobType, &jt); err != nil {
		return submit.Result{}, err
	} else if ok {
		jobType = &jt
	}

	submitter := d.Submitter
	if submitter == nil {
		submitter = submit.NewController(nil, d.log(), d.Settings.Source)
	}
	res := submitter.Submit(ctx, submit.Input{
		Ledger:        l,
		Slots:         t.Slots,
		Transcript:    transcript,
		FinalResponse: final,
		RefID:         refID,
		SessionID:     s.ID(),
		UserID:        t.Request.Attributes.UserID,
		Channel:       t.Request.Channel,
		CurrentURL:    t.Request.Attributes.CurrentURL,
		JobType:       jobType,
		IsAbandoned:   abandoned,
		Now:           t.now(),
	})

	if err := s.SetBool(ctx, session.KeySent, true); err != nil {
		return res, err
	}
	if err := s.SetBool(ctx, session.KeyDelivered, res.Success); err != nil {
		return res, err
	}
	if res.ID != "" && res.ID != refID {
		if err := s.Set(ctx, session.KeyRefID, res.ID); err != nil {
			return res, err
		}
	}
	return res, nil
}

// EndSession submits any unsent data as an abandoned lead when the host
// reports the session is over.
func EndSession(ctx context.Context, t *Turn, d *Deps) (*Response, error) {
	resp := &Response{Tag: TagSessionEnded, State: StateEnded}

	sent, err := t.Session.Bool(ctx, session.KeySent)
	if err != nil || sent {
		return resp, err
	}
	l, err := loadLedger(ctx, t.Session)
	if err != nil || l == nil || !l.HasData() {
		return resp, err
	}

	res, err := d.submitLead(ctx, t, l, "", true)
	if err != nil {
		return nil, err
	}
	if err := t.Session.SetBool(ctx, session.KeyAbandoned, true); err != nil {
		return nil, err
	}
	if res.Success {
		resp.State = StateSubmitted
		resp.RefID = res.ID
	}
	return resp, nil
}

// optional returns personalized content for tag without treating a miss as
// a configuration error.
func (d *Deps) optional(tag string) (content.Item, bool) {
	if d.Content == nil {
		return content.Item{}, false
	}
	it, ok := d.Content.Lookup(tag)
	if !ok {
		return content.Item{}, false
	}
	return it.Personalize(d.vars()), true
}

func (d *Deps) displays(it content.Item) []Display {
	if it.Display == "" {
		return nil
	}
	html, err := content.RenderDisplay(it.Display)
	if err != nil {
		d.log().Warn("display render failed", "error", err)
		return nil
	}
	return []Display{{Type: DisplayHTML, HTML: html}}
}

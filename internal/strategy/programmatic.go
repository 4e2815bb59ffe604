package strategy

import (
	"context"
	"strings"

	"github.com/hpungsan/leadcap/internal/contact"
	"github.com/hpungsan/leadcap/internal/content"
	"github.com/hpungsan/leadcap/internal/ledger"
	"github.com/hpungsan/leadcap/internal/session"
)

// Programmatic interviews the user one field at a time over voice or chat.
type Programmatic struct {
	d *Deps
}

func (p *Programmatic) Kind() Kind { return KindProgrammatic }

func (p *Programmatic) Run(ctx context.Context, t *Turn) (*Response, error) {
	d := p.d
	s := t.Session
	req := t.Request

	aside, err := p.takeAside(ctx, t)
	if err != nil {
		return nil, err
	}

	if !d.Settings.CaptureLead {
		item, tag, _ := d.text(content.TagNoCapture)
		return &Response{
			OutputSpeech: joinText(aside, item.Speech),
			Displays:     d.displays(item),
			Tag:          tag,
			State:        StateNotCapturing,
		}, nil
	}

	sent, err := s.Bool(ctx, session.KeySent)
	if err != nil {
		return nil, err
	}
	if sent {
		l, err := loadLedger(ctx, s)
		if err != nil {
			return nil, err
		}
		restart := l == nil || l.Stale(t.now(), d.Settings.StaleAfter) ||
			strings.EqualFold(req.Kind, contact.KindCapture)
		if !restart {
			return p.afterSent(ctx, t, l, aside)
		}
		if err := d.resetGeneration(ctx, t); err != nil {
			return nil, err
		}
	}

	l, err := d.ensureLedger(ctx, t, contact.LedgerChannel(req.Channel))
	if err != nil {
		return nil, err
	}

	out := l.Advance(ledger.AdvanceInput{
		Slots:     t.Slots,
		Utterance: req.RawUtterance,
		AskedType: t.AskedType,
		Judgment:  req.Attributes.ValidationJudgment,
		Now:       t.now(),
	})
	if out.Refused() {
		return p.refuse(ctx, t, l, out, aside)
	}

	next, ok := l.NextMissing()
	if !ok {
		return p.complete(ctx, t, l, aside)
	}

	resp := p.ask(t, l, next, out, aside)
	if err := s.Set(ctx, session.KeyAskedType, string(next.Type)); err != nil {
		return nil, err
	}
	if err := saveLedger(ctx, s, l); err != nil {
		return nil, err
	}
	return resp, nil
}

// takeAside collects the aside text for this turn: one stored by an
// earlier turn, one supplied by the host, and the model's reply when chat
// responses are enabled. A stored aside is consumed.
func (p *Programmatic) takeAside(ctx context.Context, t *Turn) (string, error) {
	stored, err := t.Session.Get(ctx, session.KeyAsideResponse)
	if err != nil {
		return "", err
	}
	if stored != "" {
		if err := t.Session.Delete(ctx, session.KeyAsideResponse); err != nil {
			return "", err
		}
	}
	var chat string
	if cr := t.Request.Attributes.ChatResult; p.d.Settings.UseChatResponse && cr != nil {
		chat = cr.Text
	}
	return joinText(stored, t.Request.Attributes.Aside, chat), nil
}

func (p *Programmatic) ask(t *Turn, l *ledger.Ledger, next *ledger.RuntimeDescriptor, out ledger.Outcome, aside string) *Response {
	d := p.d
	item, tag, _ := d.text(content.QuestionTag(next.Type))

	reprompt := item.Reprompt
	if reprompt == "" {
		reprompt = item.Speech
	}
	question := item.Speech
	if next.Type == t.AskedType {
		question = reprompt
	}

	state := StateAsking
	switch out.Decision.Verdict {
	case ledger.VerdictInvalid:
		question = joinText(out.Decision.SuggestedResponse, reprompt)
	case ledger.VerdictQuestion:
		state = StateAwaitingAside
	}

	hints := []string{string(next.Type)}
	var greeting string
	if !l.Started {
		l.Started = true
		startTag := content.TagStart
		if contact.IsHelp(t.Request.Kind) {
			startTag = content.TagStartHelp
		}
		if g, ok := d.optional(startTag); ok {
			greeting = g.Speech
		}
		hints = hints[:0]
		for _, typ := range l.Types() {
			hints = append(hints, string(typ))
		}
		if state == StateAsking {
			state = StateFirstTurn
		}
	}

	return &Response{
		OutputSpeech: joinText(aside, greeting, question),
		Reprompt:     reprompt,
		Displays:     d.displays(item),
		Context:      hints,
		Tag:          tag,
		State:        state,
	}
}

// refuse records the refusal and answers it. Nothing is submitted; the
// skipped field is not asked again.
func (p *Programmatic) refuse(ctx context.Context, t *Turn, l *ledger.Ledger, out ledger.Outcome, aside string) (*Response, error) {
	s := t.Session
	item, tag, _ := p.d.text(content.RefusedTag(out.Judged.Type), content.TagRefused)

	if err := s.SetBool(ctx, session.KeyRefused, true); err != nil {
		return nil, err
	}
	if err := s.Set(ctx, session.KeyRefusalType, out.Decision.RefusalType); err != nil {
		return nil, err
	}
	if err := s.SetJSON(ctx, session.KeyRefusalLedger, l); err != nil {
		return nil, err
	}
	if err := saveLedger(ctx, s, l); err != nil {
		return nil, err
	}
	if err := s.Delete(ctx, session.KeyAskedType); err != nil {
		return nil, err
	}

	p.d.log().Info("field refused", "session_id", s.ID(), "type", out.Judged.Type, "refusal_type", out.Decision.RefusalType)
	return &Response{
		OutputSpeech: joinText(aside, item.Speech),
		Displays:     p.d.displays(item),
		Tag:          tag,
		State:        StateRefused,
	}, nil
}

func (p *Programmatic) complete(ctx context.Context, t *Turn, l *ledger.Ledger, aside string) (*Response, error) {
	s := t.Session
	item, tag, _ := p.d.text(content.TagComplete)

	res, err := p.d.submitLead(ctx, t, l, item.Speech, false)
	if err != nil {
		return nil, err
	}
	if err := saveLedger(ctx, s, l); err != nil {
		return nil, err
	}
	if err := s.Delete(ctx, session.KeyAskedType); err != nil {
		return nil, err
	}

	resp := &Response{
		OutputSpeech: joinText(aside, item.Speech),
		Displays:     p.d.displays(item),
		Tag:          tag,
		State:        StateReady,
	}
	if res.Success {
		resp.State = StateSubmitted
		resp.RefID = res.ID
	}
	return resp, nil
}

// afterSent handles turns after the lead went out. Values that changed this
// turn are folded into the record and resubmitted under the same ref id.
func (p *Programmatic) afterSent(ctx context.Context, t *Turn, l *ledger.Ledger, aside string) (*Response, error) {
	s := t.Session
	refID, err := s.Get(ctx, session.KeyRefID)
	if err != nil {
		return nil, err
	}

	if len(lateSlots(t)) == 0 {
		delivered, err := s.Bool(ctx, session.KeyDelivered)
		if err != nil {
			return nil, err
		}
		item, tag, _ := p.d.text(content.TagComplete)
		resp := &Response{OutputSpeech: joinText(aside, item.Speech), Tag: tag, State: StateReady}
		if delivered {
			resp.State = StateSubmitted
			resp.RefID = refID
		}
		return resp, nil
	}

	l.Advance(ledger.AdvanceInput{Slots: t.Slots, Now: t.now()})
	item, tag, _ := p.d.text(content.TagAlreadySent)
	res, err := p.d.submitLead(ctx, t, l, item.Speech, false)
	if err != nil {
		return nil, err
	}
	if err := saveLedger(ctx, s, l); err != nil {
		return nil, err
	}
	resp := &Response{
		OutputSpeech: joinText(aside, item.Speech),
		Displays:     p.d.displays(item),
		Tag:          tag,
		State:        StateReady,
	}
	if res.Success {
		resp.State = StateSubmitted
		resp.RefID = res.ID
	}
	return resp, nil
}

// lateSlots returns the non-empty slots whose value differs from the
// session snapshot the turn started from.
func lateSlots(t *Turn) []string {
	var out []string
	for _, name := range t.Slots.Names() {
		v := t.Slots.Get(name)
		if v != "" && t.Previous.Get(name) != v {
			out = append(out, name)
		}
	}
	return out
}

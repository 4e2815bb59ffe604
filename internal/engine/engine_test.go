package engine

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/leadcap/internal/config"
	"github.com/hpungsan/leadcap/internal/contact"
	"github.com/hpungsan/leadcap/internal/content"
	"github.com/hpungsan/leadcap/internal/errors"
	"github.com/hpungsan/leadcap/internal/ledger"
	"github.com/hpungsan/leadcap/internal/session"
	"github.com/hpungsan/leadcap/internal/strategy"
	"github.com/hpungsan/leadcap/internal/submit"
)

type recordingSink struct {
	leads []*contact.Lead
	fail  bool
	n     int
}

func (s *recordingSink) Send(_ context.Context, l *contact.Lead, _ submit.Extras) (submit.SinkResult, error) {
	s.leads = append(s.leads, l)
	if s.fail {
		return submit.SinkResult{Status: "Error", Message: "crm down"}, nil
	}
	id := l.RefID
	if id == "" {
		s.n++
		id = fmt.Sprintf("ref-%d", s.n)
	}
	return submit.SinkResult{Status: submit.StatusSuccess, RefID: id}, nil
}

type clock struct{ t time.Time }

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func startClock() *clock {
	return &clock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func slotValues(kv ...string) map[string]string {
	m := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		m[kv[i]] = kv[i+1]
	}
	return m
}

func testSettings() config.Settings {
	return config.Settings{
		BusinessName: "Acme",
		Source:       "test",
		CaptureLead:  true,
		Responses:    config.ResponsesProgrammatic,
		StaleAfter:   15 * time.Minute,
		Descriptors: []contact.Descriptor{
			{SlotName: "first_name", Type: contact.TypeFirstName, Required: true, Active: true},
			{SlotName: "last_name", Type: contact.TypeLastName, Active: true},
			{SlotName: "phone", Type: contact.TypePhone, Required: true, Active: true},
			{SlotName: "zip", Type: contact.TypeZip, Active: true, Channel: contact.ChannelChat},
			{SlotName: "fax", Type: contact.TypePhone, Active: false},
		},
	}
}

type harness struct {
	eng      *Engine
	sink     *recordingSink
	sessions *session.MemoryBackend
	clock    *clock
}

func newHarness(t *testing.T, mutate func(*Options)) *harness {
	t.Helper()
	h := &harness{sink: &recordingSink{}, sessions: session.NewMemoryBackend(), clock: startClock()}
	opts := Options{
		Settings: testSettings(),
		Sessions: h.sessions,
		Sink:     h.sink,
		Now:      h.clock.Now,
	}
	if mutate != nil {
		mutate(&opts)
	}
	eng, err := New(opts)
	require.NoError(t, err)
	h.eng = eng
	return h
}

func (h *harness) turn(t *testing.T, req Request) *Response {
	t.Helper()
	if req.SessionID == "" {
		req.SessionID = "s1"
	}
	if req.Channel == "" {
		req.Channel = "web"
	}
	resp, err := h.eng.Handle(context.Background(), &req)
	require.NoError(t, err)
	return resp
}

func (h *harness) ledger(t *testing.T) *ledger.Ledger {
	t.Helper()
	var l ledger.Ledger
	ok, err := session.Open(h.sessions, "s1").GetJSON(context.Background(), session.KeyLedger, &l)
	require.NoError(t, err)
	require.True(t, ok, "ledger not persisted")
	return &l
}

func TestHandle_CaptureFlow(t *testing.T) {
	h := newHarness(t, nil)

	resp := h.turn(t, Request{Kind: contact.KindLaunch, RawUtterance: "hi"})
	require.Equal(t, strategy.StateFirstTurn, resp.State)
	require.Equal(t, "CAPTURE_FIRST_NAME", resp.Tag)
	require.Contains(t, resp.OutputSpeech, "someone from Acme")
	require.True(t, strings.HasSuffix(resp.OutputSpeech, "What is your first name?"), resp.OutputSpeech)
	require.Equal(t, []string{"FIRST_NAME", "LAST_NAME", "PHONE", "ZIP"}, resp.Context)
	require.Equal(t, "s1", resp.SessionID)

	resp = h.turn(t, Request{Kind: "ProvideInfoIntent", Slots: slotValues("first_name", "Ann")})
	require.Equal(t, strategy.StateAsking, resp.State)
	require.Equal(t, "CAPTURE_LAST_NAME", resp.Tag)
	require.Equal(t, []string{"LAST_NAME"}, resp.Context)
	require.NotContains(t, resp.OutputSpeech, "Acme", "greeting must only be spoken once")

	resp = h.turn(t, Request{Kind: "ProvideInfoIntent", Slots: slotValues("last_name", "Lee", "zip", "02139")})
	require.Equal(t, "CAPTURE_PHONE", resp.Tag)

	// A bare number while asking for the phone is taken as the phone.
	resp = h.turn(t, Request{Kind: "ProvideInfoIntent", Slots: slotValues("number", "5551234567")})
	require.Equal(t, strategy.StateSubmitted, resp.State)
	require.Equal(t, content.TagComplete, resp.Tag)
	require.Equal(t, "ref-1", resp.RefID)

	require.Len(t, h.sink.leads, 1)
	lead := h.sink.leads[0]
	require.True(t, lead.IsComplete)
	require.False(t, lead.IsAbandoned)
	require.Equal(t, "test", lead.Source)
	require.Equal(t, "s1", lead.SessionID)
	for name, want := range map[string]string{"FIRST_NAME": "Ann", "LAST_NAME": "Lee", "PHONE": "5551234567", "ZIP": "02139", "FULL_NAME": "Ann Lee"} {
		got, ok := lead.Field(name)
		require.True(t, ok, "missing field %s in %v", name, lead.Fields)
		require.Equal(t, want, got, name)
	}
	_, hasNumber := lead.Field("NUMBER")
	require.False(t, hasNumber)
	require.Equal(t, "hi", lead.Transcript[0].Text)
	require.Equal(t, resp.OutputSpeech, lead.Transcript[len(lead.Transcript)-1].Text)

	// Nothing new: no resubmission.
	resp = h.turn(t, Request{RawUtterance: "thanks"})
	require.Equal(t, strategy.StateSubmitted, resp.State)
	require.Equal(t, "ref-1", resp.RefID)
	require.Len(t, h.sink.leads, 1)

	// Late data is resubmitted under the same ref id.
	resp = h.turn(t, Request{Slots: slotValues("email", "ann@example.com")})
	require.Equal(t, content.TagAlreadySent, resp.Tag)
	require.Len(t, h.sink.leads, 2)
	require.Equal(t, "ref-1", h.sink.leads[1].RefID)
	email, _ := h.sink.leads[1].Field("EMAIL")
	require.Equal(t, "ann@example.com", email)

	msgs, err := h.eng.Transcript(context.Background(), "s1")
	require.NoError(t, err)
	require.Equal(t, contact.RoleUser, msgs[0].Role)
	require.Equal(t, contact.RoleAssistant, msgs[len(msgs)-1].Role)
	require.Equal(t, resp.OutputSpeech, msgs[len(msgs)-1].Text)
}

func TestHandle_ChannelFilter(t *testing.T) {
	h := newHarness(t, nil)
	h.turn(t, Request{Kind: contact.KindLaunch})

	l := h.ledger(t)
	var names []string
	for _, d := range l.Data {
		names = append(names, d.SlotName)
	}
	require.Equal(t, []string{"first_name", "last_name", "phone", "zip"}, names)
	require.Equal(t, h.clock.Now().UnixMilli(), l.LastModifiedMs)
}

func TestHandle_StaleLedgerSubmitsOnce(t *testing.T) {
	h := newHarness(t, nil)
	h.turn(t, Request{Kind: contact.KindLaunch})
	h.turn(t, Request{Slots: slotValues("first_name", "Ann")})

	h.clock.Advance(16 * time.Minute)
	resp := h.turn(t, Request{Slots: slotValues("phone", "5550001111")})

	require.Len(t, h.sink.leads, 1, "stale generation must be submitted exactly once")
	partial := h.sink.leads[0]
	require.False(t, partial.IsComplete)
	require.False(t, partial.IsAbandoned)
	first, _ := partial.Field("FIRST_NAME")
	require.Equal(t, "Ann", first)

	// The new generation starts from this turn's slots only.
	require.Equal(t, strategy.StateFirstTurn, resp.State)
	require.Equal(t, "CAPTURE_FIRST_NAME", resp.Tag)
	l := h.ledger(t)
	require.Equal(t, h.clock.Now().UnixMilli(), l.LastModifiedMs)
	phone, ok := l.Find(contact.TypePhone)
	require.True(t, ok)
	require.Equal(t, "5550001111", phone.CollectedValue)

	// Further turns in the new generation do not resubmit.
	h.turn(t, Request{Slots: slotValues("first_name", "Bo")})
	require.Len(t, h.sink.leads, 1)
}

func TestHandle_StaleEmptyLedgerNotSubmitted(t *testing.T) {
	h := newHarness(t, nil)
	h.turn(t, Request{Kind: contact.KindLaunch})
	h.clock.Advance(time.Hour)
	resp := h.turn(t, Request{Kind: contact.KindLaunch})
	require.Empty(t, h.sink.leads)
	require.Equal(t, strategy.StateFirstTurn, resp.State)
}

func TestHandle_RefusalShortCircuits(t *testing.T) {
	h := newHarness(t, nil)
	h.turn(t, Request{Kind: contact.KindLaunch})

	resp := h.turn(t, Request{
		RawUtterance: "I'd rather not say",
		Attributes: strategy.Attributes{ValidationJudgment: &ledger.Judgment{
			Field: "FIRST_NAME", RefusedToProvide: true, RefusalType: "PRIVACY",
		}},
	})
	require.Equal(t, strategy.StateRefused, resp.State)
	require.Equal(t, content.TagRefused, resp.Tag)
	require.Empty(t, h.sink.leads)

	l := h.ledger(t)
	require.True(t, l.Data[0].UserSkipped)
	require.Equal(t, "PRIVACY", l.Data[0].RefusalType)
	require.False(t, l.Data[0].Filled())

	s := session.Open(h.sessions, "s1")
	refused, err := s.Bool(context.Background(), session.KeyRefused)
	require.NoError(t, err)
	require.True(t, refused)
	typ, _ := s.Get(context.Background(), session.KeyRefusalType)
	require.Equal(t, "PRIVACY", typ)
	var snapshot ledger.Ledger
	ok, err := s.GetJSON(context.Background(), session.KeyRefusalLedger, &snapshot)
	require.NoError(t, err)
	require.True(t, ok, "refusal ledger is published for the host")
	require.True(t, snapshot.Data[0].UserSkipped)

	// The skipped field is not asked again.
	resp = h.turn(t, Request{RawUtterance: "ok"})
	require.Equal(t, "CAPTURE_LAST_NAME", resp.Tag)
	require.Equal(t, strategy.StateAsking, resp.State)
}

func TestHandle_RefusalPrefersTypedContent(t *testing.T) {
	store := content.Layered{
		content.Table{"CAPTURE_REFUSED_FIRST_NAME": {Speech: "We can skip your name."}},
		content.Defaults(),
	}
	h := newHarness(t, func(o *Options) { o.Content = store })
	h.turn(t, Request{Kind: contact.KindLaunch})
	resp := h.turn(t, Request{Attributes: strategy.Attributes{ValidationJudgment: &ledger.Judgment{
		Field: "first_name", RefusedToProvide: true,
	}}})
	require.Equal(t, "CAPTURE_REFUSED_FIRST_NAME", resp.Tag)
	require.Equal(t, "We can skip your name.", resp.OutputSpeech)
}

func TestHandle_Reprompts(t *testing.T) {
	h := newHarness(t, nil)
	h.turn(t, Request{Kind: contact.KindLaunch})

	resp := h.turn(t, Request{Kind: "ProvideInfoIntent", RawUtterance: "um"})
	require.Equal(t, "Sorry, what was your first name?", resp.OutputSpeech)
	require.Equal(t, "Sorry, what was your first name?", resp.Reprompt)

	resp = h.turn(t, Request{
		RawUtterance: "blue",
		Attributes: strategy.Attributes{ValidationJudgment: &ledger.Judgment{
			Field: "FIRST_NAME", SuggestedResponse: "That didn't sound like a name.",
		}},
	})
	require.Equal(t, "That didn't sound like a name. Sorry, what was your first name?", resp.OutputSpeech)
	require.Equal(t, "CAPTURE_FIRST_NAME", resp.Tag)
}

func TestHandle_QuestionAside(t *testing.T) {
	h := newHarness(t, nil)
	h.turn(t, Request{Kind: contact.KindLaunch})

	resp := h.turn(t, Request{
		RawUtterance: "are you open on sunday?",
		Attributes: strategy.Attributes{
			Aside:              "We are closed on Sundays.",
			ValidationJudgment: &ledger.Judgment{Field: "FIRST_NAME", IsQuestion: true},
		},
	})
	require.Equal(t, strategy.StateAwaitingAside, resp.State)
	require.True(t, strings.HasPrefix(resp.OutputSpeech, "We are closed on Sundays."), resp.OutputSpeech)
	require.Contains(t, resp.OutputSpeech, "first name")
	require.False(t, h.ledger(t).Data[0].Filled())
}

func TestHandle_StoredAsideIsConsumed(t *testing.T) {
	h := newHarness(t, nil)
	s := session.Open(h.sessions, "s1")
	require.NoError(t, s.Set(context.Background(), session.KeyAsideResponse, "Happy to help."))

	resp := h.turn(t, Request{Kind: contact.KindHelp})
	require.True(t, strings.HasPrefix(resp.OutputSpeech, "Happy to help. I can help with that."), resp.OutputSpeech)

	resp = h.turn(t, Request{RawUtterance: "uh"})
	require.NotContains(t, resp.OutputSpeech, "Happy to help.")
}

func TestHandle_AcceptedJudgmentAndFallbackWord(t *testing.T) {
	h := newHarness(t, nil)
	h.turn(t, Request{Kind: contact.KindLaunch})

	resp := h.turn(t, Request{Kind: contact.KindFallback, RawUtterance: "michael"})
	require.Equal(t, "CAPTURE_LAST_NAME", resp.Tag)
	require.Equal(t, "Michael", h.ledger(t).Data[0].CollectedValue)

	h.turn(t, Request{Slots: slotValues("last_name", "Myers")})
	resp = h.turn(t, Request{
		RawUtterance: "five five five one two three four",
		Attributes: strategy.Attributes{ValidationJudgment: &ledger.Judgment{
			Field: "PHONE", IsValid: true, Confidence: 0.9, NormalizedValue: "+15551234",
		}},
	})
	require.Equal(t, "CAPTURE_ZIP", resp.Tag)
	phone, _ := h.ledger(t).Find(contact.TypePhone)
	require.Equal(t, "+15551234", phone.CollectedValue)
	require.InDelta(t, 0.9, phone.ValidationConfidence, 1e-9)
}

func TestHandle_SubmissionFailureIsNotRetried(t *testing.T) {
	h := newHarness(t, nil)
	h.sink.fail = true

	h.turn(t, Request{Kind: contact.KindLaunch})
	resp := h.turn(t, Request{Slots: slotValues("first_name", "Ann", "last_name", "Lee", "phone", "555", "zip", "02139")})
	require.Equal(t, strategy.StateReady, resp.State)
	require.Empty(t, resp.RefID)
	require.Len(t, h.sink.leads, 1)

	h.turn(t, Request{RawUtterance: "hello?"})
	require.Len(t, h.sink.leads, 1)
}

func TestHandle_ExplicitCaptureStartsNewGeneration(t *testing.T) {
	h := newHarness(t, nil)
	h.turn(t, Request{Kind: contact.KindLaunch})
	h.turn(t, Request{Slots: slotValues("first_name", "Ann", "last_name", "Lee", "phone", "555", "zip", "02139")})
	require.Len(t, h.sink.leads, 1)

	resp := h.turn(t, Request{Kind: contact.KindCapture})
	require.Equal(t, strategy.StateFirstTurn, resp.State)
	require.Equal(t, "CAPTURE_FIRST_NAME", resp.Tag)
	require.False(t, h.ledger(t).HasData())
	require.Len(t, h.sink.leads, 1)
}

func TestHandle_SessionEndSubmitsAbandoned(t *testing.T) {
	h := newHarness(t, nil)
	h.turn(t, Request{Kind: contact.KindLaunch})
	h.turn(t, Request{Slots: slotValues("first_name", "Ann")})

	resp := h.turn(t, Request{Kind: contact.KindSessionEnded})
	require.Equal(t, strategy.StateSubmitted, resp.State)
	require.Len(t, h.sink.leads, 1)
	require.True(t, h.sink.leads[0].IsAbandoned)

	abandoned, err := session.Open(h.sessions, "s1").Bool(context.Background(), session.KeyAbandoned)
	require.NoError(t, err)
	require.True(t, abandoned)

	h.turn(t, Request{Kind: contact.KindSessionEnded})
	require.Len(t, h.sink.leads, 1)
}

func TestHandle_SessionEndWithoutDataIsQuiet(t *testing.T) {
	h := newHarness(t, nil)
	h.turn(t, Request{Kind: contact.KindLaunch})
	resp := h.turn(t, Request{Kind: contact.KindSessionEnded})
	require.Equal(t, strategy.StateEnded, resp.State)
	require.Empty(t, h.sink.leads)
}

func TestHandle_NoCapture(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.Settings.CaptureLead = false })
	resp := h.turn(t, Request{Kind: contact.KindLaunch, Attributes: strategy.Attributes{Aside: "We open at 9."}})
	require.Equal(t, strategy.StateNotCapturing, resp.State)
	require.Equal(t, content.TagNoCapture, resp.Tag)
	require.True(t, strings.HasPrefix(resp.OutputSpeech, "We open at 9."))
	require.Contains(t, resp.OutputSpeech, "Acme")
}

func TestHandle_MissingContentIsVisible(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.Content = content.Table{} })
	resp := h.turn(t, Request{Kind: contact.KindLaunch})
	require.Equal(t, content.ConfigErrorText, resp.OutputSpeech)
	require.Equal(t, content.TagConfigError, resp.Tag)
}

func TestHandle_Generative(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.Settings.Responses = config.ResponsesGenerative })

	resp := h.turn(t, Request{Attributes: strategy.Attributes{ChatResult: &strategy.ChatResult{Text: "Sure, what's your name?"}}})
	require.Equal(t, strategy.TagGenerative, resp.Tag)
	require.Equal(t, "Sure, what's your name?", resp.OutputSpeech)

	resp = h.turn(t, Request{RawUtterance: "hi"})
	require.Equal(t, content.ConfigErrorText, resp.OutputSpeech)
}

func TestHandle_UseChatResponseAsAside(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.Settings.UseChatResponse = true })
	h.turn(t, Request{Kind: contact.KindLaunch})
	resp := h.turn(t, Request{
		RawUtterance: "do you fix sinks?",
		Attributes:   strategy.Attributes{ChatResult: &strategy.ChatResult{Text: "Yes, we fix sinks."}},
	})
	require.True(t, strings.HasPrefix(resp.OutputSpeech, "Yes, we fix sinks."), resp.OutputSpeech)
}

func TestHandle_Form(t *testing.T) {
	h := newHarness(t, nil)

	resp := h.turn(t, Request{Channel: contact.FormWidgetChannel})
	require.Equal(t, strategy.TagForm, resp.Tag)
	require.Len(t, resp.Displays, 1)
	def := resp.Displays[0].Form
	require.NotNil(t, def)
	require.Equal(t, strategy.DefaultFormName, def.Name)
	require.Len(t, def.Steps, 1)
	require.True(t, def.Steps[0].Submit)
	var fields []string
	for _, f := range def.Steps[0].Fields {
		fields = append(fields, f.Name)
	}
	require.Equal(t, []string{"first_name", "last_name", "phone"}, fields, "chat-only fields stay off the form")
	require.Empty(t, h.sink.leads)

	resp = h.turn(t, Request{
		Channel: contact.FormWidgetChannel,
		Attributes: strategy.Attributes{
			FormStep: "contact",
			FormData: slotValues("first_name", "ann", "last_name", "lee", "phone", "5551234567"),
		},
	})
	require.Equal(t, strategy.StateSubmitted, resp.State)
	require.Len(t, h.sink.leads, 1)
	first, _ := h.sink.leads[0].Field("FIRST_NAME")
	require.Equal(t, "ann", first, "form values are taken verbatim")
}

func TestHandle_FormErrors(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.eng.Handle(context.Background(), &Request{
		SessionID: "s1", Channel: contact.FormWidgetChannel,
		Attributes: strategy.Attributes{FormName: "booking", FormStep: "one"},
	})
	require.True(t, errors.Is(err, errors.ErrUnknownForm), "got %v", err)

	_, err = h.eng.Handle(context.Background(), &Request{
		SessionID: "s1", Channel: contact.FormWidgetChannel,
		Attributes: strategy.Attributes{FormStep: "payment"},
	})
	require.True(t, errors.Is(err, errors.ErrUnknownFormStep), "got %v", err)
}

type fakeCRM struct {
	jobCalls, availCalls int
}

func (f *fakeCRM) GetJobType(_ context.Context, desc string) (*submit.JobType, error) {
	f.jobCalls++
	return &submit.JobType{ID: "jt-1", ClassID: "plumbing", Name: desc}, nil
}

func (f *fakeCRM) GetAvailability(_ context.Context, _ submit.DateRange, opts submit.AvailabilityOptions) ([]string, error) {
	f.availCalls++
	if opts.ClassID == "plumbing" {
		return []string{"2026-03-04"}, nil
	}
	return []string{}, nil
}

func TestHandle_FormAvailability(t *testing.T) {
	crm := &fakeCRM{}
	h := newHarness(t, func(o *Options) {
		o.Availability = crm
		o.JobTypes = crm
		o.Settings.Descriptors = append(o.Settings.Descriptors,
			contact.Descriptor{SlotName: "message", Type: contact.TypeMessage, Active: true})
	})

	resp := h.turn(t, Request{Channel: contact.FormWidgetChannel})
	require.NotNil(t, resp.Availability)
	require.Nil(t, resp.Availability.JobType)
	require.Equal(t, 0, crm.jobCalls)

	step := Request{
		Channel: contact.FormWidgetChannel,
		Attributes: strategy.Attributes{
			FormStep: "contact",
			FormData: slotValues("message", "leaky faucet"),
		},
	}
	resp = h.turn(t, step)
	require.NotNil(t, resp.Availability)
	require.Equal(t, "jt-1", resp.Availability.JobType.ID)
	require.Equal(t, []string{"2026-03-04"}, resp.Availability.BusyDays)

	h.turn(t, step)
	require.Equal(t, 1, crm.jobCalls, "job type cached per description")
	require.Equal(t, 2, crm.availCalls, "busy days cached per class and day")

	require.NotEmpty(t, h.sink.leads)
	require.Equal(t, "jt-1", h.sink.leads[0].JobTypeID)
	require.Equal(t, "plumbing", h.sink.leads[0].AvailabilityClassID)
}

func TestHandle_GeneratesSessionID(t *testing.T) {
	h := newHarness(t, nil)
	resp, err := h.eng.Handle(context.Background(), &Request{Channel: "web", Kind: contact.KindLaunch})
	require.NoError(t, err)
	require.Len(t, resp.SessionID, 26)
}

func TestHandle_InvalidRequests(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.eng.Handle(context.Background(), nil)
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = h.eng.Handle(ctx, &Request{SessionID: "s1"})
	require.True(t, errors.Is(err, errors.ErrCancelled))

	_, err = h.eng.Transcript(context.Background(), " ")
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))

	_, err = New(Options{})
	require.True(t, errors.Is(err, errors.ErrNotConfigured))
}

package strategy

import (
	"context"
	"strings"
	"time"

	"github.com/hpungsan/leadcap/internal/contact"
	"github.com/hpungsan/leadcap/internal/content"
	"github.com/hpungsan/leadcap/internal/errors"
	"github.com/hpungsan/leadcap/internal/ledger"
	"github.com/hpungsan/leadcap/internal/session"
	"github.com/hpungsan/leadcap/internal/slots"
	"github.com/hpungsan/leadcap/internal/submit"
)

// DefaultFormName names the form built from the blueprint descriptors when
// the host does not ask for a custom one.
const DefaultFormName = "default"

// Step names of the default form.
const (
	StepContact  = "contact"
	StepSchedule = "schedule"
)

// availabilityWindow is how far ahead busy days are looked up.
const availabilityWindow = 30 * 24 * time.Hour

// scheduleFields are synthesized when the blueprint has no descriptor of
// the type.
var scheduleFields = []contact.Descriptor{
	{SlotName: "date_time", Type: contact.TypeDateTime, Label: "Preferred Date", Required: true},
	{SlotName: "preferred_time", Type: contact.TypePreferredTime, Label: "Preferred Time"},
}

// Form serves the hosted form widget. The widget renders the definition
// returned on the first turn and posts each step's values back; the ledger
// is filled from those values and submitted on a submitting step.
type Form struct {
	d *Deps
}

func (f *Form) Kind() Kind { return KindForm }

func (f *Form) Run(ctx context.Context, t *Turn) (*Response, error) {
	d := f.d
	attrs := t.Request.Attributes

	form, err := f.lookup(attrs.FormName, t.now())
	if err != nil {
		return nil, err
	}
	avail, err := f.availability(ctx, t)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(attrs.FormStep) == "" {
		return &Response{
			Displays:     []Display{{Type: DisplayForm, Form: f.definition(form)}},
			Tag:          TagForm,
			State:        StateForm,
			Availability: avail,
		}, nil
	}

	step, ok := form.Step(attrs.FormStep)
	if !ok {
		return nil, errors.NewUnknownFormStep(form.Name, attrs.FormStep)
	}

	l, err := d.ensureLedger(ctx, t, contact.ChannelForm)
	if err != nil {
		return nil, err
	}
	l.Advance(ledger.AdvanceInput{Slots: t.Slots, Now: t.now()})
	l.Started = true
	if err := saveLedger(ctx, t.Session, l); err != nil {
		return nil, err
	}

	resp := &Response{Tag: TagForm, State: StateForm, Availability: avail}
	if !step.Submit {
		return resp, nil
	}

	item, tag, _ := d.text(content.TagComplete)
	res, err := d.submitLead(ctx, t, l, item.Speech, false)
	if err != nil {
		return nil, err
	}
	resp.OutputSpeech = item.Speech
	resp.Tag = tag
	resp.State = StateReady
	if res.Success {
		resp.State = StateSubmitted
		resp.RefID = res.ID
	}
	return resp, nil
}

// lookup returns the named custom form, or the default form for an empty
// name.
func (f *Form) lookup(name string, now time.Time) (contact.Form, error) {
	name = strings.TrimSpace(name)
	for key, form := range f.d.Settings.Forms {
		if strings.EqualFold(key, name) {
			return form, nil
		}
	}
	if name == "" || strings.EqualFold(name, DefaultFormName) {
		return f.defaultForm(now), nil
	}
	return contact.Form{}, errors.NewUnknownForm(name)
}

// defaultForm puts every form-channel field on a contact step. With
// scheduling enabled a schedule step follows and submits instead.
func (f *Form) defaultForm(now time.Time) contact.Form {
	s := f.d.Settings
	l := ledger.New(s.Descriptors, contact.ChannelForm, now)

	contactStep := contact.FormStep{Name: StepContact, Title: "Contact", Submit: !s.EnableFormScheduling}
	for _, d := range l.Data {
		if isScheduling(d.Type) {
			continue
		}
		contactStep.Fields = append(contactStep.Fields, d.SlotName)
	}
	form := contact.Form{Name: DefaultFormName, Steps: []contact.FormStep{contactStep}}
	if !s.EnableFormScheduling {
		return form
	}

	schedule := contact.FormStep{Name: StepSchedule, Title: "Schedule", Submit: true}
	schedule.Fields = append(schedule.Fields, schedulingSlots(l, contact.TypeDateTime)...)
	if s.EnablePreferredTime {
		schedule.Fields = append(schedule.Fields, schedulingSlots(l, contact.TypePreferredTime)...)
	}
	form.Steps = append(form.Steps, schedule)
	return form
}

func isScheduling(t contact.DataType) bool {
	return t == contact.TypeDateTime || t == contact.TypePreferredTime
}

func schedulingSlots(l *ledger.Ledger, t contact.DataType) []string {
	var out []string
	for _, d := range l.Data {
		if d.Type == t {
			out = append(out, d.SlotName)
		}
	}
	if len(out) > 0 {
		return out
	}
	for _, d := range scheduleFields {
		if d.Type == t {
			out = append(out, d.SlotName)
		}
	}
	return out
}

// definition expands a form's slot names into field shapes.
func (f *Form) definition(form contact.Form) *FormDefinition {
	def := &FormDefinition{Name: form.Name, Title: form.Title}
	for _, step := range form.Steps {
		shape := FormStepShape{Name: step.Name, Title: step.Title, Submit: step.Submit, Fields: []FormField{}}
		for _, name := range step.Fields {
			d := f.descriptor(name)
			shape.Fields = append(shape.Fields, FormField{
				Name:     d.SlotName,
				Label:    d.DisplayLabel(),
				Type:     d.Type,
				Required: d.Required,
				Enums:    d.Enums,
			})
		}
		def.Steps = append(def.Steps, shape)
	}
	return def
}

func (f *Form) descriptor(slotName string) contact.Descriptor {
	for _, d := range f.d.Settings.Descriptors {
		if d.SlotName == slotName {
			return d
		}
	}
	for _, d := range scheduleFields {
		if d.SlotName == slotName {
			return d
		}
	}
	return contact.Descriptor{SlotName: slotName}
}

// busyDaysCache is the availability lookup cached in the session.
type busyDaysCache struct {
	ClassID string   `json:"classId"`
	Day     string   `json:"day"`
	Days    []string `json:"days"`
}

// availability resolves the job type from the described need, then the
// busy days for the job type's class. Both lookups are optional and cached
// in the session; a failed lookup is logged and skipped.
func (f *Form) availability(ctx context.Context, t *Turn) (*Availability, error) {
	d := f.d
	if d.JobTypes == nil && d.Availability == nil {
		return nil, nil
	}

	jt, err := f.jobType(ctx, t)
	if err != nil {
		return nil, err
	}
	var days []string
	if d.Availability != nil {
		if days, err = f.busyDays(ctx, t, jt); err != nil {
			return nil, err
		}
	}
	if jt == nil && days == nil {
		return nil, nil
	}
	return &Availability{JobType: jt, BusyDays: days}, nil
}

func (f *Form) jobType(ctx context.Context, t *Turn) (*submit.JobType, error) {
	s := t.Session
	var cached *submit.JobType
	var jt submit.JobType
	if ok, err := s.GetJSON(ctx, session.KeyJobType, &jt); err != nil {
		return nil, err
	} else if ok {
		cached = &jt
	}

	desc := describe(t.Slots)
	if f.d.JobTypes == nil || desc == "" {
		return cached, nil
	}
	prev, err := s.Get(ctx, session.KeyDescription)
	if err != nil {
		return nil, err
	}
	if desc == prev {
		return cached, nil
	}

	found, err := f.d.JobTypes.GetJobType(ctx, desc)
	if err != nil {
		f.d.log().Warn("job type lookup failed", "error", err, "session_id", s.ID())
		return cached, nil
	}
	if err := s.Set(ctx, session.KeyDescription, desc); err != nil {
		return nil, err
	}
	if found == nil {
		return nil, s.Delete(ctx, session.KeyJobType)
	}
	return found, s.SetJSON(ctx, session.KeyJobType, found)
}

func (f *Form) busyDays(ctx context.Context, t *Turn, jt *submit.JobType) ([]string, error) {
	s := t.Session
	var classID string
	if jt != nil {
		classID = jt.ClassID
	}
	now := t.now()
	today := now.Format(time.DateOnly)

	var cache busyDaysCache
	ok, err := s.GetJSON(ctx, session.KeyBusyDays, &cache)
	if err != nil {
		return nil, err
	}
	if ok && cache.ClassID == classID && cache.Day == today {
		return cache.Days, nil
	}

	days, err := f.d.Availability.GetAvailability(ctx,
		submit.DateRange{From: now, To: now.Add(availabilityWindow)},
		submit.AvailabilityOptions{ClassID: classID},
	)
	if err != nil {
		f.d.log().Warn("availability lookup failed", "error", err, "session_id", s.ID())
		if ok {
			return cache.Days, nil
		}
		return nil, nil
	}
	if days == nil {
		days = []string{}
	}
	return days, s.SetJSON(ctx, session.KeyBusyDays, busyDaysCache{ClassID: classID, Day: today, Days: days})
}

// describe returns the free-text description of the user's need.
func describe(m slots.Map) string {
	for _, name := range []string{"description", slots.Message, slots.Note} {
		if v := m.Get(name); v != "" {
			return v
		}
	}
	return ""
}

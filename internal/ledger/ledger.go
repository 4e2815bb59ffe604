// Package ledger tracks which contact fields have been collected in the
// current capture generation and decides which field to ask for next.
package ledger

import (
	"strings"
	"time"

	"github.com/hpungsan/leadcap/internal/contact"
	"github.com/hpungsan/leadcap/internal/slots"
)

// DefaultStaleAfter is how long a ledger may sit untouched before the
// generation is considered abandoned.
const DefaultStaleAfter = 15 * time.Minute

// RuntimeDescriptor is a blueprint descriptor plus what this generation
// learned about it. A descriptor is filled at most once.
type RuntimeDescriptor struct {
	contact.Descriptor
	CollectedValue       string  `json:"collectedValue,omitempty"`
	UserSkipped          bool    `json:"userSkipped,omitempty"`
	RefusalType          string  `json:"refusalType,omitempty"`
	ValidationConfidence float64 `json:"validationConfidence,omitempty"`
}

// Filled reports whether a value has been collected.
func (d *RuntimeDescriptor) Filled() bool {
	return d.CollectedValue != ""
}

// Pending reports whether the descriptor still needs asking.
func (d *RuntimeDescriptor) Pending() bool {
	return !d.Filled() && !d.UserSkipped
}

func (d *RuntimeDescriptor) fill(value string, now time.Time, l *Ledger) {
	d.CollectedValue = value
	l.LastModifiedMs = now.UnixMilli()
}

// Ledger is the ordered set of fields for one capture generation.
type Ledger struct {
	Data           []RuntimeDescriptor `json:"data"`
	LastModifiedMs int64               `json:"lastModifiedMs"`
	Started        bool                `json:"started,omitempty"`
}

// New builds a ledger from the active blueprint descriptors collected on
// channel, preserving blueprint order. An empty channel keeps every active
// descriptor.
func New(blueprint []contact.Descriptor, channel contact.Channel, now time.Time) *Ledger {
	l := &Ledger{
		Data:           make([]RuntimeDescriptor, 0, len(blueprint)),
		LastModifiedMs: now.UnixMilli(),
	}
	for _, d := range blueprint {
		if !d.Active || !d.MatchesChannel(channel) {
			continue
		}
		l.Data = append(l.Data, RuntimeDescriptor{Descriptor: d})
	}
	return l
}

// AdvanceInput is what a turn offers the ledger.
type AdvanceInput struct {
	Slots     slots.Map
	Utterance string
	AskedType contact.DataType
	Judgment  *Judgment
	Now       time.Time
}

// Outcome reports what Advance did.
type Outcome struct {
	// Decision is the gate's verdict for the asked descriptor. It is
	// VerdictNotApplicable when no judgment applied.
	Decision Decision
	// Judged is the descriptor the decision was made for, if any.
	Judged *RuntimeDescriptor
	// Filled lists the slot names collected this turn, in ledger order.
	Filled []string
}

// Refused reports whether the user declined to provide the asked field.
func (o Outcome) Refused() bool {
	return o.Decision.Verdict == VerdictRefused
}

// Advance fills every pending descriptor it can from the turn, in place.
// For the asked descriptor an applicable judgment is consulted first. Other
// descriptors take the slot named by their SlotName, or the raw utterance
// when they accept any input and are the asked type. A refusal stops the
// scan.
func (l *Ledger) Advance(in AdvanceInput) Outcome {
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}

	out := Outcome{Decision: Decision{Verdict: VerdictNotApplicable}}
	judged := false

	for i := range l.Data {
		d := &l.Data[i]
		if !d.Pending() {
			continue
		}
		slotValue := in.Slots.Get(d.SlotName)

		if !judged {
			decision := Gate(in.Judgment, d, in.AskedType, slotValue, in.Utterance)
			if decision.Verdict != VerdictNotApplicable {
				judged = true
				out.Decision = decision
				out.Judged = d
				switch decision.Verdict {
				case VerdictRefused:
					d.UserSkipped = true
					d.RefusalType = decision.RefusalType
					return out
				case VerdictAccepted:
					d.fill(decision.Value, now, l)
					d.ValidationConfidence = decision.Confidence
					out.Filled = append(out.Filled, d.SlotName)
				}
				continue
			}
		}

		switch {
		case slotValue != "":
			d.fill(slotValue, now, l)
			out.Filled = append(out.Filled, d.SlotName)
		case d.AcceptAnyInput && d.Type == in.AskedType && strings.TrimSpace(in.Utterance) != "":
			d.fill(strings.TrimSpace(in.Utterance), now, l)
			out.Filled = append(out.Filled, d.SlotName)
		}
	}
	return out
}

// NextMissing returns the first descriptor that is neither collected nor
// skipped. ok is false when the ledger is ready to submit.
func (l *Ledger) NextMissing() (*RuntimeDescriptor, bool) {
	for i := range l.Data {
		if l.Data[i].Pending() {
			return &l.Data[i], true
		}
	}
	return nil, false
}

// Find returns the first descriptor of type t.
func (l *Ledger) Find(t contact.DataType) (*RuntimeDescriptor, bool) {
	for i := range l.Data {
		if l.Data[i].Type == t {
			return &l.Data[i], true
		}
	}
	return nil, false
}

// Stale reports whether the ledger has gone untouched for longer than ttl.
func (l *Ledger) Stale(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = DefaultStaleAfter
	}
	return now.UnixMilli()-l.LastModifiedMs > ttl.Milliseconds()
}

// HasData reports whether any descriptor has been collected.
func (l *Ledger) HasData() bool {
	for i := range l.Data {
		if l.Data[i].Filled() {
			return true
		}
	}
	return false
}

// Collected returns the collected descriptors in ledger order.
func (l *Ledger) Collected() []RuntimeDescriptor {
	var out []RuntimeDescriptor
	for _, d := range l.Data {
		if d.Filled() {
			out = append(out, d)
		}
	}
	return out
}

// Types returns the data type of every descriptor, in ledger order, without
// duplicates.
func (l *Ledger) Types() []contact.DataType {
	seen := make(map[contact.DataType]bool, len(l.Data))
	out := make([]contact.DataType, 0, len(l.Data))
	for _, d := range l.Data {
		if !seen[d.Type] {
			seen[d.Type] = true
			out = append(out, d.Type)
		}
	}
	return out
}

// Complete reports whether every required descriptor has been collected.
func (l *Ledger) Complete() bool {
	for _, d := range l.Data {
		if d.Required && !d.Filled() {
			return false
		}
	}
	return true
}

// Skipped returns the descriptors the user declined to provide.
func (l *Ledger) Skipped() []RuntimeDescriptor {
	var out []RuntimeDescriptor
	for _, d := range l.Data {
		if d.UserSkipped {
			out = append(out, d)
		}
	}
	return out
}

// Clone returns a deep copy of l.
func (l *Ledger) Clone() *Ledger {
	if l == nil {
		return nil
	}
	c := *l
	c.Data = make([]RuntimeDescriptor, len(l.Data))
	for i, d := range l.Data {
		d.Enums = append([]string(nil), d.Enums...)
		c.Data[i] = d
	}
	return &c
}

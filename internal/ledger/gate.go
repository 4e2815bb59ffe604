package ledger

import (
	"strings"

	"github.com/hpungsan/leadcap/internal/contact"
)

// Judgment is an upstream assessment of the user's last utterance with
// respect to the field that was asked.
type Judgment struct {
	Field             string  `json:"field"`
	IsValid           bool    `json:"isValid"`
	IsQuestion        bool    `json:"isQuestion"`
	RefusedToProvide  bool    `json:"refusedToProvide"`
	Confidence        float64 `json:"confidence,omitempty"`
	NormalizedValue   string  `json:"normalizedValue,omitempty"`
	ExtractedValue    string  `json:"extractedValue,omitempty"`
	RefusalType       string  `json:"refusalType,omitempty"`
	SuggestedResponse string  `json:"suggestedResponse,omitempty"`
}

// Verdict is the gate's decision for one descriptor.
type Verdict string

const (
	VerdictNotApplicable Verdict = "NOT_APPLICABLE"
	VerdictRefused       Verdict = "REFUSED"
	VerdictAccepted      Verdict = "ACCEPTED"
	VerdictQuestion      Verdict = "QUESTION"
	VerdictInvalid       Verdict = "INVALID"
)

// Decision is the result of running a judgment through the gate.
type Decision struct {
	Verdict           Verdict
	Value             string
	Confidence        float64
	RefusalType       string
	SuggestedResponse string
}

// Gate applies j to descriptor d. The judgment is only considered when d is
// the descriptor being asked and j names the asked field, by type or slot
// name. A refusal outranks every other signal.
func Gate(j *Judgment, d *RuntimeDescriptor, askedType contact.DataType, slotValue, raw string) Decision {
	if j == nil || d == nil || askedType == "" || d.Type != askedType {
		return Decision{Verdict: VerdictNotApplicable}
	}
	if !judges(j, d) {
		return Decision{Verdict: VerdictNotApplicable}
	}

	switch {
	case j.RefusedToProvide:
		return Decision{Verdict: VerdictRefused, RefusalType: j.RefusalType}
	case j.IsValid && !j.IsQuestion:
		value := firstNonEmpty(j.NormalizedValue, j.ExtractedValue, slotValue, raw)
		if value == "" {
			return Decision{Verdict: VerdictInvalid, SuggestedResponse: j.SuggestedResponse}
		}
		return Decision{Verdict: VerdictAccepted, Value: value, Confidence: j.Confidence}
	case j.IsQuestion:
		return Decision{Verdict: VerdictQuestion}
	default:
		return Decision{Verdict: VerdictInvalid, SuggestedResponse: j.SuggestedResponse}
	}
}

func judges(j *Judgment, d *RuntimeDescriptor) bool {
	field := strings.TrimSpace(j.Field)
	return strings.EqualFold(field, string(d.Type)) || strings.EqualFold(field, d.SlotName)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

package slots

import "github.com/hpungsan/leadcap/internal/contact"

// MergeInput carries the slot sources for one turn.
type MergeInput struct {
	Session     Map
	Request     Map
	Form        Map
	Utterance   string
	RequestKind string
	AskedType   contact.DataType
	// Heuristics enables the alternative-slot table. Form turns disable it:
	// submitted form values are authoritative.
	Heuristics bool
}

// MergeResult is the authoritative slot set for a turn.
type MergeResult struct {
	Slots        Map
	Alternatives Map
	Pseudo       Map
}

// Merge combines the turn's slot sources. Precedence, lowest to highest:
// request < session < pseudo < alternative < form. Merge is pure; the caller
// persists the result.
func Merge(in MergeInput) MergeResult {
	base := Overlay(in.Request, in.Session)

	alternatives := Map{}
	if in.Heuristics {
		alternatives = Alternatives(AltInput{
			AskedType:   in.AskedType,
			Session:     in.Session,
			Request:     in.Request,
			Utterance:   in.Utterance,
			RequestKind: in.RequestKind,
		})
	}

	corrected := Overlay(base, alternatives, in.Form)
	pseudo := Derive(corrected)
	for name := range pseudo {
		if in.Request.Has(name) || in.Form.Has(name) {
			delete(pseudo, name)
		}
	}

	return MergeResult{
		Slots:        Overlay(base, pseudo, alternatives, in.Form),
		Alternatives: alternatives,
		Pseudo:       pseudo,
	}
}

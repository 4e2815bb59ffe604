package slots

import (
	"github.com/hpungsan/leadcap/internal/contact"
)

// Pattern names a presence pattern over the name and number slots known for
// the current turn.
type Pattern string

const (
	// PatternNumberForEmptyTarget: a generic "number" slot exists while the
	// slot for the asked type is still empty.
	PatternNumberForEmptyTarget Pattern = "number_for_empty_target"
	// PatternTurnFirstOverSessionFirst: this turn filled first_name, no
	// last_name is known anywhere, and the session already has a first name.
	PatternTurnFirstOverSessionFirst Pattern = "turn_first_over_session_first"
	// PatternLastWithoutFirst: a last name is known but no title or first name.
	PatternLastWithoutFirst Pattern = "last_without_first"
	// PatternLastInitialOnly: no last name, but a last initial is known.
	PatternLastInitialOnly Pattern = "last_initial_only"
	// PatternNoNames: no title, first, last, last initial or full name known.
	PatternNoNames Pattern = "no_names"
	// PatternNoTurnNames: this turn carries no title, first, last, last
	// initial or full name. The session is not consulted.
	PatternNoTurnNames Pattern = "no_turn_names"
)

// RequestKind narrows a rule to particular kinds of requests.
type RequestKind string

const (
	KindAny                RequestKind = "any"
	KindFallbackSingleWord RequestKind = "fallback_single_word"
)

// AltInput is everything the alternative-slot table looks at.
type AltInput struct {
	AskedType   contact.DataType
	Session     Map
	Request     Map
	Utterance   string
	RequestKind string
}

// presence is the evaluated view of AltInput the rules match against.
type presence struct {
	in           AltInput
	target       string
	number       string
	word         string
	fallbackWord bool
}

func (p presence) known(name string) bool {
	return p.in.Request.Has(name) || p.in.Session.Has(name)
}

// value returns the session value of name, falling back to the request.
func (p presence) value(name string) string {
	if v := p.in.Session.Get(name); v != "" {
		return v
	}
	return p.in.Request.Get(name)
}

var nameSlots = []string{Title, FirstName, LastName, LastInitial, FullName}

func (p presence) noNames(has func(string) bool) bool {
	for _, name := range nameSlots {
		if has(name) {
			return false
		}
	}
	return true
}

func (pt Pattern) matches(p presence) bool {
	switch pt {
	case PatternNumberForEmptyTarget:
		return p.target != "" && p.number != "" && !p.known(p.target)
	case PatternTurnFirstOverSessionFirst:
		return p.in.Request.Has(FirstName) && !p.known(LastName) && p.in.Session.Has(FirstName)
	case PatternLastWithoutFirst:
		return !p.known(Title) && !p.known(FirstName) && p.known(LastName)
	case PatternLastInitialOnly:
		return !p.known(LastName) && p.known(LastInitial)
	case PatternNoNames:
		return p.noNames(p.known)
	case PatternNoTurnNames:
		return p.noNames(p.in.Request.Has)
	}
	return false
}

func (k RequestKind) matches(p presence) bool {
	switch k {
	case KindAny:
		return true
	case KindFallbackSingleWord:
		return p.fallbackWord
	}
	return false
}

// AltRule is one row of the correction table.
type AltRule struct {
	Name    string
	Asked   []contact.DataType
	Pattern Pattern
	Kind    RequestKind
	apply   func(p presence) Map
}

func (r AltRule) asks(t contact.DataType) bool {
	for _, a := range r.Asked {
		if a == t {
			return true
		}
	}
	return false
}

var nameTypes = []contact.DataType{contact.TypeFirstName, contact.TypeFullName}

// AltRules is the alternative-slot decision table. Rows are evaluated in
// order and the first match wins.
var AltRules = []AltRule{
	{
		Name:    "phone_from_number",
		Asked:   []contact.DataType{contact.TypePhone},
		Pattern: PatternNumberForEmptyTarget,
		Kind:    KindAny,
		apply:   func(p presence) Map { return single(Phone, p.number) },
	},
	{
		Name:    "zip_from_number",
		Asked:   []contact.DataType{contact.TypeZip},
		Pattern: PatternNumberForEmptyTarget,
		Kind:    KindAny,
		apply:   func(p presence) Map { return single(Zip, p.number) },
	},
	{
		Name:    "surname_tagged_as_first_name",
		Asked:   []contact.DataType{contact.TypeLastName},
		Pattern: PatternTurnFirstOverSessionFirst,
		Kind:    KindAny,
		apply: func(p presence) Map {
			return Map{
				FirstName: {Name: FirstName, Value: p.in.Session.Get(FirstName)},
				LastName:  {Name: LastName, Value: p.in.Request.Get(FirstName)},
			}
		},
	},
	{
		Name:    "last_name_from_fallback_word",
		Asked:   []contact.DataType{contact.TypeLastName},
		Pattern: PatternNoTurnNames,
		Kind:    KindFallbackSingleWord,
		apply:   func(p presence) Map { return single(LastName, Capitalize(p.word)) },
	},
	{
		Name:    "given_name_tagged_as_last_name",
		Asked:   nameTypes,
		Pattern: PatternLastWithoutFirst,
		Kind:    KindAny,
		apply: func(p presence) Map {
			return Map{
				FirstName: {Name: FirstName, Value: p.value(LastName)},
				LastName:  {Name: LastName, Value: ""},
			}
		},
	},
	{
		Name:    "last_initial_promoted",
		Asked:   nameTypes,
		Pattern: PatternLastInitialOnly,
		Kind:    KindAny,
		apply:   func(p presence) Map { return single(LastName, p.value(LastInitial)) },
	},
	{
		Name:    "first_name_from_fallback_word",
		Asked:   nameTypes,
		Pattern: PatternNoNames,
		Kind:    KindFallbackSingleWord,
		apply:   func(p presence) Map { return single(FirstName, Capitalize(p.word)) },
	},
}

// targetSlots maps an asked type to the slot a bare number should fill.
var targetSlots = map[contact.DataType]string{
	contact.TypePhone: Phone,
	contact.TypeZip:   Zip,
}

// Alternatives returns the corrective slot reassignments for a turn. An
// entry with an empty value clears that slot when merged. The result is
// empty when no rule applies.
func Alternatives(in AltInput) Map {
	rule, p, ok := matchRule(in)
	if !ok {
		return Map{}
	}
	return rule.apply(p)
}

// MatchRule returns the first table row matching in.
func MatchRule(in AltInput) (AltRule, bool) {
	rule, _, ok := matchRule(in)
	return rule, ok
}

func matchRule(in AltInput) (AltRule, presence, bool) {
	p := evaluate(in)
	for _, rule := range AltRules {
		if rule.asks(in.AskedType) && rule.Pattern.matches(p) && rule.Kind.matches(p) {
			return rule, p, true
		}
	}
	return AltRule{}, p, false
}

func evaluate(in AltInput) presence {
	p := presence{
		in:     in,
		target: targetSlots[in.AskedType],
		number: in.Request.Get(Number),
	}
	if p.number == "" {
		p.number = in.Session.Get(Number)
	}
	if contact.IsFallback(in.RequestKind) {
		p.word, p.fallbackWord = SingleWord(in.Utterance)
	}
	return p
}

func single(name, value string) Map {
	if value == "" {
		return Map{}
	}
	return Map{name: {Name: name, Value: value}}
}

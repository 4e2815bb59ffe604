package slots

import "strings"

// pseudoRule derives one slot from others. build returns "" when the rule's
// required inputs are missing.
type pseudoRule struct {
	name  string
	build func(m Map) string
}

var pseudoRules = []pseudoRule{
	{name: FullName, build: buildFullName},
	{name: Address, build: buildAddress},
	{name: DateTime, build: buildDateTime},
	{name: Note, build: buildNote},
}

// Derive computes the pseudo slots available from m. It never fails; rules
// whose inputs are absent are skipped.
func Derive(m Map) Map {
	out := Map{}
	for _, rule := range pseudoRules {
		if v := rule.build(m); v != "" {
			out.Set(rule.name, v)
		}
	}
	return out
}

func buildFullName(m Map) string {
	if !m.Has(FirstName) && !m.Has(LastName) {
		return ""
	}
	return joinNonEmpty(" ", m.Get(Title), m.Get(FirstName), m.Get(MiddleName), m.Get(LastName))
}

func buildAddress(m Map) string {
	if !m.Has(StreetNumber) || !m.Has(StreetName) {
		return ""
	}
	return m.Get(StreetNumber) + " " + m.Get(StreetName)
}

func buildDateTime(m Map) string {
	if !m.Has(Day) {
		return ""
	}
	if m.Has(Time) {
		return m.Get(Day) + " at " + m.Get(Time)
	}
	return m.Get(Day)
}

func buildNote(m Map) string {
	lines := make([]string, 0, len(NoteComponents))
	for _, name := range NoteComponents {
		if v := m.Get(name); v != "" {
			lines = append(lines, noteLabel(name)+": "+v)
		}
	}
	return strings.Join(lines, "\n")
}

func noteLabel(name string) string {
	words := strings.Split(name, "_")
	for i, w := range words {
		words[i] = Capitalize(w)
	}
	return strings.Join(words, " ")
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}

// Package slots merges the competing sources of slot data a turn receives
// into one authoritative map: request-native slots, slots persisted in the
// session, derived pseudo slots, heuristic alternative slots, and values
// submitted through a form.
package slots

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Well-known slot names produced by the upstream recognizer.
const (
	FirstName    = "first_name"
	LastName     = "last_name"
	MiddleName   = "middle_name"
	LastInitial  = "last_initial"
	Title        = "title"
	FullName     = "full_name"
	Phone        = "phone"
	Zip          = "zip"
	Number       = "number"
	StreetNumber = "street_number"
	StreetName   = "street_name"
	Address      = "address"
	Day          = "day"
	Time         = "time"
	DateTime     = "dateTime"
	Note         = "note"
	Email        = "email"
	Message      = "message"
)

// NoteComponents are the topical slots folded into the note pseudo slot,
// in the order they appear in the note.
var NoteComponents = []string{"service", "issue", "case_type", "practice_area", "product", "urgency"}

// Slot is one named value.
type Slot struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Map holds slots keyed by name.
type Map map[string]Slot

// FromValues builds a Map from plain name/value pairs.
func FromValues(values map[string]string) Map {
	m := make(Map, len(values))
	for name, value := range values {
		m[name] = Slot{Name: name, Value: value}
	}
	return m
}

// Get returns the trimmed value of name, or "" when absent.
func (m Map) Get(name string) string {
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[name].Value)
}

// Has reports whether name carries a non-empty value.
func (m Map) Has(name string) bool {
	return m.Get(name) != ""
}

// Present reports whether name is a key, even with an empty value.
func (m Map) Present(name string) bool {
	if m == nil {
		return false
	}
	_, ok := m[name]
	return ok
}

// Set stores value under name.
func (m Map) Set(name, value string) {
	m[name] = Slot{Name: name, Value: value}
}

// Clone returns a shallow copy of m.
func (m Map) Clone() Map {
	out := make(Map, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Overlay layers sources over m in order. Later sources win for every key
// they contain, even when the value is empty.
func Overlay(sources ...Map) Map {
	out := Map{}
	for _, src := range sources {
		for k, v := range src {
			if v.Name == "" {
				v.Name = k
			}
			out[k] = v
		}
	}
	return out
}

// Compact returns a copy of m without empty-valued slots.
func (m Map) Compact() Map {
	out := make(Map, len(m))
	for k, v := range m {
		if strings.TrimSpace(v.Value) != "" {
			out[k] = v
		}
	}
	return out
}

// Values flattens m to name/value pairs, skipping empty values.
func (m Map) Values() map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		if strings.TrimSpace(v.Value) != "" {
			out[k] = v.Value
		}
	}
	return out
}

// Names returns the slot names in m, sorted.
func (m Map) Names() []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

var whitespaceRegex = regexp.MustCompile(`\s+`)

// Normalize trims, lowercases and collapses internal whitespace.
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ToLower(s)
	return whitespaceRegex.ReplaceAllString(s, " ")
}

// Capitalize upper-cases the first letter of s and lower-cases the rest.
func Capitalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}

// SingleWord returns the utterance when it consists of exactly one word.
func SingleWord(utterance string) (string, bool) {
	fields := strings.Fields(utterance)
	if len(fields) != 1 {
		return "", false
	}
	word := strings.TrimFunc(fields[0], func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\'' && r != '-'
	})
	return word, word != ""
}

// Package contact defines the lead data model shared by the capture engine:
// the closed set of contact data types, descriptor channels, and the request
// kinds the engine reacts to.
package contact

import (
	"fmt"
	"strings"
)

// DataType identifies the kind of contact field a descriptor collects.
type DataType string

const (
	TypeFirstName     DataType = "FIRST_NAME"
	TypeLastName      DataType = "LAST_NAME"
	TypeFullName      DataType = "FULL_NAME"
	TypePhone         DataType = "PHONE"
	TypeZip           DataType = "ZIP"
	TypeAddress       DataType = "ADDRESS"
	TypeCity          DataType = "CITY"
	TypeState         DataType = "STATE"
	TypeEmail         DataType = "EMAIL"
	TypeSelection     DataType = "SELECTION"
	TypeOrganization  DataType = "ORGANIZATION"
	TypeMessage       DataType = "MESSAGE"
	TypeDateTime      DataType = "DATE_TIME"
	TypePreferredTime DataType = "PREFERRED_TIME"
)

// AllTypes lists every known data type in declaration order.
var AllTypes = []DataType{
	TypeFirstName, TypeLastName, TypeFullName, TypePhone, TypeZip,
	TypeAddress, TypeCity, TypeState, TypeEmail, TypeSelection,
	TypeOrganization, TypeMessage, TypeDateTime, TypePreferredTime,
}

// ParseDataType parses a data type name case-insensitively.
func ParseDataType(s string) (DataType, error) {
	norm := DataType(strings.ToUpper(strings.TrimSpace(s)))
	for _, t := range AllTypes {
		if t == norm {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown contact data type %q", s)
}

// Valid reports whether t is one of the known data types.
func (t DataType) Valid() bool {
	_, err := ParseDataType(string(t))
	return err == nil
}

// Channel restricts a descriptor to one capture surface.
type Channel string

const (
	ChannelChat Channel = "CHAT"
	ChannelForm Channel = "FORM"
	ChannelAll  Channel = "ALL"
)

// FormWidgetChannel is the request channel reported by the hosted form widget.
const FormWidgetChannel = "form-widget"

// LedgerChannel maps a host request channel onto a descriptor channel.
func LedgerChannel(requestChannel string) Channel {
	if strings.EqualFold(strings.TrimSpace(requestChannel), FormWidgetChannel) {
		return ChannelForm
	}
	return ChannelChat
}

// Request kinds recognised by the engine. Hosts may send any other kind;
// unknown kinds are treated as ordinary capture turns.
const (
	KindLaunch       = "LaunchRequest"
	KindCapture      = "LeadCaptureIntent"
	KindHelp         = "HelpIntent"
	KindFallback     = "FallbackIntent"
	KindSessionEnded = "SessionEndedRequest"
)

var fallbackKinds = map[string]bool{
	"fallbackintent":          true,
	"amazon.fallbackintent":   true,
	"default fallback intent": true,
	"unknowninput":            true,
}

// IsFallback reports whether kind is an "unrecognized utterance" request.
func IsFallback(kind string) bool {
	return fallbackKinds[strings.ToLower(strings.TrimSpace(kind))]
}

// IsHelp reports whether kind is a help request.
func IsHelp(kind string) bool {
	k := strings.ToLower(strings.TrimSpace(kind))
	return k == "helpintent" || k == "amazon.helpintent"
}

// Descriptor is one field to collect, as declared in the blueprint.
type Descriptor struct {
	SlotName       string   `json:"slotName" yaml:"slot_name"`
	Type           DataType `json:"type" yaml:"type"`
	Label          string   `json:"label,omitempty" yaml:"label,omitempty"`
	Enums          []string `json:"enums,omitempty" yaml:"enums,omitempty"`
	AcceptAnyInput bool     `json:"acceptAnyInput,omitempty" yaml:"accept_any_input,omitempty"`
	Required       bool     `json:"required,omitempty" yaml:"required,omitempty"`
	Active         bool     `json:"active,omitempty" yaml:"active,omitempty"`
	Channel        Channel  `json:"channel,omitempty" yaml:"channel,omitempty"`
}

// MatchesChannel reports whether the descriptor is collected on channel.
// An empty channel argument matches every descriptor.
func (d Descriptor) MatchesChannel(channel Channel) bool {
	if channel == "" || d.Channel == "" {
		return true
	}
	return d.Channel == channel || d.Channel == ChannelAll
}

// DisplayLabel returns the configured label or a title-cased slot name.
func (d Descriptor) DisplayLabel() string {
	if d.Label != "" {
		return d.Label
	}
	words := strings.FieldsFunc(d.SlotName, func(r rune) bool { return r == '_' || r == '-' || r == ' ' })
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}

// Role is the author of a transcript message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one transcript entry.
type Message struct {
	Role      Role   `json:"role"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// Form is a multi-step form declared in the blueprint and rendered by the
// host widget.
type Form struct {
	Name  string     `json:"name" yaml:"name"`
	Title string     `json:"title,omitempty" yaml:"title,omitempty"`
	Steps []FormStep `json:"steps" yaml:"steps"`
}

// FormStep is one page of a form. Fields name descriptor slot names.
type FormStep struct {
	Name   string   `json:"name" yaml:"name"`
	Title  string   `json:"title,omitempty" yaml:"title,omitempty"`
	Fields []string `json:"fields" yaml:"fields"`
	Submit bool     `json:"submit,omitempty" yaml:"submit,omitempty"`
}

// Step returns the step called name.
func (f Form) Step(name string) (FormStep, bool) {
	for _, s := range f.Steps {
		if strings.EqualFold(s.Name, name) {
			return s, true
		}
	}
	return FormStep{}, false
}

// LeadField is one name/value pair of a submitted lead.
type LeadField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Lead is the record handed to a submission sink.
type Lead struct {
	Fields              []LeadField `json:"fields"`
	Transcript          []Message   `json:"transcript"`
	RefID               string      `json:"refId,omitempty"`
	JobTypeID           string      `json:"jobTypeId,omitempty"`
	AvailabilityClassID string      `json:"availabilityClassId,omitempty"`
	UserID              string      `json:"userId,omitempty"`
	SessionID           string      `json:"sessionId,omitempty"`
	Source              string      `json:"source,omitempty"`
	IsAbandoned         bool        `json:"isAbandoned"`
	IsComplete          bool        `json:"isComplete"`
	SubmittedAt         int64       `json:"submittedAt"`
}

// Field returns the value of the named field, matched case-insensitively.
func (l Lead) Field(name string) (string, bool) {
	for _, f := range l.Fields {
		if strings.EqualFold(f.Name, name) {
			return f.Value, true
		}
	}
	return "", false
}

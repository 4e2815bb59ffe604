package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hpungsan/leadcap/internal/contact"
)

// ResponseMode selects how capture responses are produced.
type ResponseMode string

const (
	ResponsesProgrammatic ResponseMode = "PROGRAMMATIC"
	ResponsesGenerative   ResponseMode = "GENERATIVE_AI"
)

// Blueprint is the YAML document describing what to collect and how.
type Blueprint struct {
	BusinessName         string                  `yaml:"business_name,omitempty"`
	Source               string                  `yaml:"source,omitempty"`
	CaptureLead          *bool                   `yaml:"capture_lead,omitempty"`
	Responses            ResponseMode            `yaml:"responses,omitempty"`
	UseChatResponse      bool                    `yaml:"use_chat_response,omitempty"`
	EnableFormScheduling bool                    `yaml:"enable_form_scheduling,omitempty"`
	EnablePreferredTime  bool                    `yaml:"enable_preferred_time,omitempty"`
	StaleAfter           string                  `yaml:"stale_after,omitempty"`
	Descriptors          []contact.Descriptor    `yaml:"descriptors"`
	Forms                map[string]contact.Form `yaml:"forms,omitempty"`
}

// Settings is the resolved engine configuration. It is built once and
// passed into the engine; nothing downstream reads the environment.
type Settings struct {
	BusinessName         string
	Source               string
	CaptureLead          bool
	Responses            ResponseMode
	UseChatResponse      bool
	EnableFormScheduling bool
	EnablePreferredTime  bool
	StaleAfter           time.Duration
	Descriptors          []contact.Descriptor
	Forms                map[string]contact.Form
}

// DefaultStaleAfter is the idle time after which a capture generation restarts.
const DefaultStaleAfter = 15 * time.Minute

// DefaultBlueprint returns the blueprint used when none is configured.
func DefaultBlueprint() *Blueprint {
	return &Blueprint{
		Responses: ResponsesProgrammatic,
		Descriptors: []contact.Descriptor{
			{SlotName: "first_name", Type: contact.TypeFirstName, Required: true, Active: true},
			{SlotName: "last_name", Type: contact.TypeLastName, Active: true},
			{SlotName: "phone", Type: contact.TypePhone, Required: true, Active: true},
			{SlotName: "email", Type: contact.TypeEmail, Active: true},
			{SlotName: "zip", Type: contact.TypeZip, Active: true, Label: "ZIP Code"},
			{SlotName: "message", Type: contact.TypeMessage, AcceptAnyInput: true, Active: true, Label: "How can we help?"},
		},
	}
}

// LoadBlueprint reads a YAML blueprint. An empty path returns the default.
func LoadBlueprint(path string) (*Blueprint, error) {
	if path == "" {
		return DefaultBlueprint(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("blueprint not found: %s", path)
		}
		return nil, err
	}
	return ParseBlueprint(data)
}

// ParseBlueprint decodes and validates a YAML blueprint.
func ParseBlueprint(data []byte) (*Blueprint, error) {
	bp := &Blueprint{}
	if err := yaml.Unmarshal(data, bp); err != nil {
		return nil, fmt.Errorf("parse blueprint: %w", err)
	}
	if err := bp.normalize(); err != nil {
		return nil, err
	}
	return bp, nil
}

func (b *Blueprint) normalize() error {
	seen := make(map[string]bool, len(b.Descriptors))
	for i := range b.Descriptors {
		d := &b.Descriptors[i]
		d.SlotName = strings.TrimSpace(d.SlotName)
		if d.SlotName == "" {
			return fmt.Errorf("descriptor %d: slot_name is required", i)
		}
		if seen[d.SlotName] {
			return fmt.Errorf("descriptor %d: duplicate slot_name %q", i, d.SlotName)
		}
		seen[d.SlotName] = true

		t, err := contact.ParseDataType(string(d.Type))
		if err != nil {
			return fmt.Errorf("descriptor %q: %w", d.SlotName, err)
		}
		d.Type = t

		switch ch := contact.Channel(strings.ToUpper(string(d.Channel))); ch {
		case "", contact.ChannelChat, contact.ChannelForm, contact.ChannelAll:
			d.Channel = ch
		default:
			return fmt.Errorf("descriptor %q: unknown channel %q", d.SlotName, d.Channel)
		}
	}

	b.Responses = ResponseMode(strings.ToUpper(strings.TrimSpace(string(b.Responses))))
	switch b.Responses {
	case "":
		b.Responses = ResponsesProgrammatic
	case ResponsesProgrammatic, ResponsesGenerative:
	default:
		return fmt.Errorf("unknown responses mode %q", b.Responses)
	}

	for key, form := range b.Forms {
		if form.Name == "" {
			form.Name = key
		}
		if len(form.Steps) == 0 {
			return fmt.Errorf("form %q declares no steps", key)
		}
		b.Forms[key] = form
	}

	if b.StaleAfter != "" {
		if _, err := time.ParseDuration(b.StaleAfter); err != nil {
			return fmt.Errorf("stale_after: %w", err)
		}
	}
	return nil
}

// Settings converts the blueprint into engine settings.
func (b *Blueprint) Settings() Settings {
	s := Settings{
		BusinessName:         b.BusinessName,
		Source:               b.Source,
		CaptureLead:          true,
		Responses:            b.Responses,
		UseChatResponse:      b.UseChatResponse,
		EnableFormScheduling: b.EnableFormScheduling,
		EnablePreferredTime:  b.EnablePreferredTime,
		StaleAfter:           DefaultStaleAfter,
		Descriptors:          append([]contact.Descriptor(nil), b.Descriptors...),
		Forms:                make(map[string]contact.Form, len(b.Forms)),
	}
	if b.CaptureLead != nil {
		s.CaptureLead = *b.CaptureLead
	}
	if s.Responses == "" {
		s.Responses = ResponsesProgrammatic
	}
	if d, err := time.ParseDuration(b.StaleAfter); err == nil && d > 0 {
		s.StaleAfter = d
	}
	for k, f := range b.Forms {
		s.Forms[k] = f
	}
	return s
}

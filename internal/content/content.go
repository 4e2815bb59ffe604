// Package content resolves response tags to the text the engine speaks.
// Tags come from a YAML table layered over built-in defaults.
package content

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/renderer/html"
	"gopkg.in/yaml.v3"

	"github.com/hpungsan/leadcap/internal/contact"
)

// ConfigErrorText is spoken when no content exists for a required tag.
const ConfigErrorText = "ERROR: I am not configured correctly"

// Tags used by the capture flow. Question tags are built with QuestionTag.
const (
	TagStart       = "CAPTURE_START"
	TagStartHelp   = "CAPTURE_START_HELP"
	TagNoCapture   = "NO_CAPTURE"
	TagComplete    = "CAPTURE_COMPLETE"
	TagRefused     = "CAPTURE_REFUSED"
	TagAlreadySent = "CAPTURE_ALREADY_SENT"
	TagConfigError = "CONFIG_ERROR"
)

// QuestionTag is the tag asking for a field of type t.
func QuestionTag(t contact.DataType) string {
	return "CAPTURE_" + string(t)
}

// RefusedTag is the refusal response tag for a field of type t.
func RefusedTag(t contact.DataType) string {
	return TagRefused + "_" + string(t)
}

// Item is the content stored under one tag. Display is markdown.
type Item struct {
	Speech   string `yaml:"speech" json:"speech"`
	Reprompt string `yaml:"reprompt,omitempty" json:"reprompt,omitempty"`
	Display  string `yaml:"display,omitempty" json:"display,omitempty"`
}

// Store looks content up by tag.
type Store interface {
	Lookup(tag string) (Item, bool)
}

// Table is an in-memory Store keyed by upper-case tag.
type Table map[string]Item

func (t Table) Lookup(tag string) (Item, bool) {
	it, ok := t[strings.ToUpper(strings.TrimSpace(tag))]
	if !ok || it.Speech == "" {
		return Item{}, false
	}
	return it, true
}

// Layered consults each store in order and returns the first hit.
type Layered []Store

func (l Layered) Lookup(tag string) (Item, bool) {
	for _, s := range l {
		if s == nil {
			continue
		}
		if it, ok := s.Lookup(tag); ok {
			return it, true
		}
	}
	return Item{}, false
}

// Load reads the content table at path layered over Defaults. An empty path
// returns Defaults alone.
func Load(path string) (Store, error) {
	if path == "" {
		return Defaults(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("content not found: %s", path)
		}
		return nil, err
	}
	t, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return Layered{t, Defaults()}, nil
}

// Parse decodes a YAML content table. A bare string value is shorthand for
// an item with only speech.
func Parse(data []byte) (Table, error) {
	var raw map[string]yaml.Node
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse content: %w", err)
	}
	t := make(Table, len(raw))
	for tag, node := range raw {
		var it Item
		if node.Kind == yaml.ScalarNode {
			it.Speech = node.Value
		} else if err := node.Decode(&it); err != nil {
			return nil, fmt.Errorf("content %s: %w", tag, err)
		}
		t[strings.ToUpper(strings.TrimSpace(tag))] = it
	}
	return t, nil
}

// Resolve returns the first tag that has content.
func Resolve(s Store, tags ...string) (Item, bool) {
	for _, tag := range tags {
		if it, ok := s.Lookup(tag); ok {
			return it, true
		}
	}
	return Item{}, false
}

var varPattern = regexp.MustCompile(`\$\{([A-Z_]+)\}`)

// Expand substitutes ${NAME} references from vars. Unknown names are left
// as written.
func Expand(s string, vars map[string]string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return varPattern.ReplaceAllStringFunc(s, func(m string) string {
		if v, ok := vars[m[2:len(m)-1]]; ok {
			return v
		}
		return m
	})
}

// Personalize expands every text of it.
func (it Item) Personalize(vars map[string]string) Item {
	return Item{
		Speech:   Expand(it.Speech, vars),
		Reprompt: Expand(it.Reprompt, vars),
		Display:  Expand(it.Display, vars),
	}
}

var md = goldmark.New(goldmark.WithRendererOptions(html.WithHardWraps()))

// RenderDisplay converts display markdown to HTML.
func RenderDisplay(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(markdown), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

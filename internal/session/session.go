// Package session stores per-conversation engine state: a small set of
// namespaced values plus the transcript. Backends are interchangeable; the
// engine only sees a Session bound to one id.
package session

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/hpungsan/leadcap/internal/contact"
	"github.com/hpungsan/leadcap/internal/errors"
)

// Backend is a key/value store partitioned by session id.
type Backend interface {
	// Get returns the value under key. ok is false when the key is unset.
	Get(ctx context.Context, sessionID string, key Key) (value string, ok bool, err error)
	Set(ctx context.Context, sessionID string, key Key, value string) error
	Delete(ctx context.Context, sessionID string, key Key) error
	Append(ctx context.Context, sessionID string, m contact.Message) error
	Transcript(ctx context.Context, sessionID string) ([]contact.Message, error)
}

// Session is a Backend bound to one session id.
type Session struct {
	id      string
	backend Backend
}

// Open binds backend to id.
func Open(backend Backend, id string) *Session {
	return &Session{id: id, backend: backend}
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Get returns the raw value under key, or "" when unset.
func (s *Session) Get(ctx context.Context, key Key) (string, error) {
	v, _, err := s.backend.Get(ctx, s.id, key)
	if err != nil {
		return "", wrap(err)
	}
	return v, nil
}

// Set stores value under key.
func (s *Session) Set(ctx context.Context, key Key, value string) error {
	return wrap(s.backend.Set(ctx, s.id, key, value))
}

// Delete removes key.
func (s *Session) Delete(ctx context.Context, key Key) error {
	return wrap(s.backend.Delete(ctx, s.id, key))
}

// GetJSON decodes the value under key into v. ok is false when the key is
// unset or empty; v is left untouched.
func (s *Session) GetJSON(ctx context.Context, key Key, v any) (bool, error) {
	raw, ok, err := s.backend.Get(ctx, s.id, key)
	if err != nil {
		return false, wrap(err)
	}
	if !ok || raw == "" {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, errors.NewInternal(err)
	}
	return true, nil
}

// SetJSON encodes v and stores it under key.
func (s *Session) SetJSON(ctx context.Context, key Key, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.NewInternal(err)
	}
	return s.Set(ctx, key, string(data))
}

// Bool reads a flag. Unset or unparsable values are false.
func (s *Session) Bool(ctx context.Context, key Key) (bool, error) {
	v, err := s.Get(ctx, key)
	if err != nil || v == "" {
		return false, err
	}
	b, _ := strconv.ParseBool(v)
	return b, nil
}

// SetBool writes a flag.
func (s *Session) SetBool(ctx context.Context, key Key, b bool) error {
	return s.Set(ctx, key, strconv.FormatBool(b))
}

// Clear removes every engine key. The transcript is kept.
func (s *Session) Clear(ctx context.Context) error {
	for _, k := range AllKeys {
		if err := s.Delete(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

// Append adds a message to the transcript.
func (s *Session) Append(ctx context.Context, m contact.Message) error {
	return wrap(s.backend.Append(ctx, s.id, m))
}

// Transcript returns the messages appended so far, oldest first.
func (s *Session) Transcript(ctx context.Context) ([]contact.Message, error) {
	msgs, err := s.backend.Transcript(ctx, s.id)
	if err != nil {
		return nil, wrap(err)
	}
	return msgs, nil
}

// wrap reports backend failures as internal errors unless the backend
// already returned a coded one.
func wrap(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := errors.As(err); ok {
		return err
	}
	return errors.NewInternal(err)
}

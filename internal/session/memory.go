package session

import (
	"context"
	"sync"
	"time"

	"github.com/hpungsan/leadcap/internal/contact"
)

// MemoryBackend keeps sessions in process memory. State is lost on exit.
type MemoryBackend struct {
	mu          sync.Mutex
	values      map[string]map[Key]string
	transcripts map[string][]contact.Message
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		values:      make(map[string]map[Key]string),
		transcripts: make(map[string][]contact.Message),
	}
}

func (b *MemoryBackend) Get(_ context.Context, sessionID string, key Key) (string, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.values[sessionID][key]
	return v, ok, nil
}

func (b *MemoryBackend) Set(_ context.Context, sessionID string, key Key, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.values[sessionID]
	if !ok {
		m = make(map[Key]string)
		b.values[sessionID] = m
	}
	m[key] = value
	return nil
}

func (b *MemoryBackend) Delete(_ context.Context, sessionID string, key Key) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.values[sessionID], key)
	return nil
}

func (b *MemoryBackend) Append(_ context.Context, sessionID string, m contact.Message) error {
	if m.Timestamp == 0 {
		m.Timestamp = time.Now().UnixMilli()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transcripts[sessionID] = append(b.transcripts[sessionID], m)
	return nil
}

func (b *MemoryBackend) Transcript(_ context.Context, sessionID string) ([]contact.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]contact.Message{}, b.transcripts[sessionID]...), nil
}

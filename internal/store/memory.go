package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process Store. Nothing survives a restart; it backs tests
// and the "memory" backend for throwaway sessions.
type Memory struct {
	mu      sync.RWMutex
	phrases map[string]Phrase
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{phrases: make(map[string]Phrase)}
}

func (m *Memory) Lookup(_ context.Context, trigger string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.phrases[trigger]
	return p.Expansion, ok, nil
}

func (m *Memory) Insert(_ context.Context, trigger, expansion string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.phrases[trigger]; ok {
		return ErrExists
	}
	m.phrases[trigger] = Phrase{Trigger: trigger, Expansion: expansion, CreatedAt: time.Now()}
	return nil
}

func (m *Memory) Put(_ context.Context, trigger, expansion string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.phrases[trigger]
	if !ok {
		p = Phrase{Trigger: trigger, CreatedAt: time.Now()}
	}
	p.Expansion = expansion
	m.phrases[trigger] = p
	return nil
}

func (m *Memory) Delete(_ context.Context, trigger string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.phrases[trigger]; !ok {
		return ErrNotFound
	}
	delete(m.phrases, trigger)
	return nil
}

func (m *Memory) List(_ context.Context) ([]Phrase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Phrase, 0, len(m.phrases))
	for _, p := range m.phrases {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Trigger < out[j].Trigger })
	return out, nil
}

func (m *Memory) Close() error { return nil }

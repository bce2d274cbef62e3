package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/kozaktomas/pawtrail/internal/identity"
)

// Memory is an in-process IdentityStore and SearchLog.
type Memory struct {
	mu        sync.RWMutex
	records   map[string]identity.Record
	searches  []SearchRecord
	trailHits map[string]int
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		records:   make(map[string]identity.Record),
		trailHits: make(map[string]int),
	}
}

func cloneRecord(rec identity.Record) identity.Record {
	out := rec
	out.Vector = make([]float32, len(rec.Vector))
	copy(out.Vector, rec.Vector)
	return out
}

func (m *Memory) Insert(_ context.Context, rec identity.Record) (identity.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[rec.Key]; ok {
		return identity.Record{}, ErrDuplicateIdentity
	}
	rec.Version = 1
	stored := cloneRecord(rec)
	m.records[rec.Key] = stored
	return cloneRecord(stored), nil
}

func (m *Memory) Replace(_ context.Context, rec identity.Record) (identity.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.records[rec.Key]; ok {
		rec.Version = prev.Version + 1
	} else {
		rec.Version = 1
	}
	stored := cloneRecord(rec)
	m.records[rec.Key] = stored
	return cloneRecord(stored), nil
}

func (m *Memory) Get(_ context.Context, key string) (identity.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[key]
	if !ok {
		return identity.Record{}, ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[key]; !ok {
		return ErrNotFound
	}
	delete(m.records, key)
	return nil
}

func (m *Memory) List(_ context.Context) ([]identity.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]identity.Record, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, cloneRecord(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *Memory) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records), nil
}

func (m *Memory) Record(_ context.Context, rec SearchRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	m.searches = append(m.searches, rec)
	m.trailHits[rec.Trail]++
	return nil
}

func (m *Memory) Stats(_ context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byTrail := make(map[string]int, len(m.trailHits))
	for k, v := range m.trailHits {
		byTrail[k] = v
	}
	return Stats{
		Identities: len(m.records),
		Searches:   len(m.searches),
		ByTrail:    byTrail,
	}, nil
}

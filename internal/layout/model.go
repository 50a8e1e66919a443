package layout

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Reader is the read side of the layout state.
// Both *Model and Snapshot satisfy it, so guards can run against live or frozen state.
type Reader interface {
	Get(kind Kind, id string) (Entity, bool)
	List(kind Kind) []Entity
	Count(kind Kind) int
	Clock() Clock
}

// Model is the live, versioned layout state.
//
// Writers replace the stored entity with a freshly built copy under the write
// lock; readers receive deep copies under the read lock. A reader therefore
// never observes a half-merged attribute map.
type Model struct {
	mu       sync.RWMutex
	entities map[Kind]map[string]*Entity
	clock    Clock
	now      func() time.Time
}

// NewModel creates an empty model with a bucket for every tracked kind.
func NewModel() *Model {
	m := &Model{
		entities: make(map[Kind]map[string]*Entity, len(kindNames)),
		now:      time.Now,
	}
	for _, k := range AllKinds() {
		m.entities[k] = make(map[string]*Entity)
	}
	return m
}

// Apply inserts or merges attributes into the entity identified by (kind, id)
// and bumps its version. The returned Entity is a copy of the stored state.
func (m *Model) Apply(kind Kind, id string, attrs map[string]any) (Entity, error) {
	if !kind.Valid() {
		return Entity{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if strings.TrimSpace(id) == "" {
		return Entity{}, ErrInvalidID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	bucket := m.entities[kind]
	next := &Entity{
		Kind:       kind,
		ID:         id,
		Attributes: make(Attributes, len(attrs)),
		Version:    1,
		UpdatedAt:  m.now().UTC(),
	}
	if prev, ok := bucket[id]; ok {
		for k, v := range prev.Attributes {
			next.Attributes[k] = deepCopyValue(v)
		}
		next.Version = prev.Version + 1
	}
	for k, v := range attrs {
		next.Attributes[k] = deepCopyValue(v)
	}
	bucket[id] = next

	return next.DeepCopy(), nil
}

// Get returns a copy of the entity, or false when it has never been reported.
func (m *Model) Get(kind Kind, id string) (Entity, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entities[kind][id]
	if !ok {
		return Entity{}, false
	}
	return e.DeepCopy(), true
}

// List returns copies of every entity of a kind, sorted by id.
func (m *Model) List(kind Kind) []Entity {
	m.mu.RLock()
	defer m.mu.RUnlock()

	bucket := m.entities[kind]
	out := make([]Entity, 0, len(bucket))
	for _, e := range bucket {
		out = append(out, e.DeepCopy())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count returns the number of entities of a kind.
func (m *Model) Count(kind Kind) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entities[kind])
}

// SetClock stores the latest clock report.
func (m *Model) SetClock(c Clock) {
	m.mu.Lock()
	m.clock = c
	m.mu.Unlock()
}

// Clock returns the latest clock report.
func (m *Model) Clock() Clock {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.clock
}

// Export captures every entity of every kind plus the clock in one consistent view.
func (m *Model) Export() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := Snapshot{
		ExportedAt: m.now().UTC(),
		ClockState: m.clock,
		Entities:   make(map[Kind]map[string]Entity, len(m.entities)),
	}
	for kind, bucket := range m.entities {
		copied := make(map[string]Entity, len(bucket))
		for id, e := range bucket {
			copied[id] = e.DeepCopy()
		}
		snap.Entities[kind] = copied
	}
	return snap
}

package semgraph

import (
	"context"
	"sync"
)

// MemoryStore is an indexed in-memory triple set. Match results follow
// insertion order. It is safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	triples []Triple
	seen    map[Triple]struct{}
	byS     map[Term][]int
	byP     map[Term][]int
	byO     map[Term][]int
}

// NewMemoryStore returns a store holding ts, duplicates dropped.
func NewMemoryStore(ts ...Triple) *MemoryStore {
	m := &MemoryStore{
		seen: make(map[Triple]struct{}),
		byS:  make(map[Term][]int),
		byP:  make(map[Term][]int),
		byO:  make(map[Term][]int),
	}
	m.Add(ts...)
	return m
}

// Add inserts triples that are not already present.
func (m *MemoryStore) Add(ts ...Triple) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range ts {
		if _, dup := m.seen[t]; dup {
			continue
		}
		m.seen[t] = struct{}{}
		i := len(m.triples)
		m.triples = append(m.triples, t)
		m.byS[t.S] = append(m.byS[t.S], i)
		m.byP[t.P] = append(m.byP[t.P], i)
		m.byO[t.O] = append(m.byO[t.O], i)
	}
}

// Len returns the number of triples held.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.triples)
}

// Match implements Store.
func (m *MemoryStore) Match(ctx context.Context, p Pattern) ([]Triple, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var candidates []int
	all := true
	narrow := func(idx map[Term][]int, t Term) {
		if t.IsZero() {
			return
		}
		ids := idx[t]
		if all || len(ids) < len(candidates) {
			candidates, all = ids, false
		}
	}
	narrow(m.byS, p.S)
	narrow(m.byP, p.P)
	narrow(m.byO, p.O)

	if all {
		return append([]Triple(nil), m.triples...), nil
	}
	var out []Triple
	for _, i := range candidates {
		if t := m.triples[i]; p.Matches(t) {
			out = append(out, t)
		}
	}
	return out, nil
}

// Package index keeps the searchable corpus of canonical identity vectors in
// memory. Queries below the configured corpus size run an exact linear scan;
// above it an HNSW graph supplies candidates which are rescored exactly, so
// reported similarity scores never come from the approximate structure.
package index

import (
	"errors"
	"sort"
	"sync"

	"github.com/coder/hnsw"

	"github.com/kozaktomas/pawtrail/internal/vector"
)

const hnswMaxNeighbors = 16

// ErrDuplicateIdentity is returned when inserting a key that is already
// indexed. Callers that mean to overwrite use Replace.
var ErrDuplicateIdentity = errors.New("identity already indexed")

// Match is one ranked search result.
type Match struct {
	Key   string  `json:"identity_key"`
	Score float64 `json:"similarity_score"`
}

// Entry is one identity vector for bulk building.
type Entry struct {
	Key    string
	Vector []float32
}

// Index is safe for concurrent use. The entries map is authoritative; the
// HNSW graph only accelerates candidate generation once the corpus passes
// hnswThreshold (0 disables the graph entirely).
type Index struct {
	mu            sync.RWMutex
	entries       map[string][]float32
	graph         *hnsw.Graph[string]
	hnswThreshold int
}

// New creates an empty index.
func New(hnswThreshold int) *Index {
	idx := &Index{
		entries:       make(map[string][]float32),
		hnswThreshold: hnswThreshold,
	}
	if hnswThreshold > 0 {
		idx.graph = newGraph()
	}
	return idx
}

func newGraph() *hnsw.Graph[string] {
	g := hnsw.NewGraph[string]()
	g.M = hnswMaxNeighbors
	g.Ml = 1.0 / float64(hnswMaxNeighbors)
	g.Distance = hnsw.CosineDistance
	return g
}

// Build replaces the whole index with the given entries. Used at startup to
// hydrate from the store.
func (idx *Index) Build(entries []Entry) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	m := make(map[string][]float32, len(entries))
	var g *hnsw.Graph[string]
	if idx.hnswThreshold > 0 {
		g = newGraph()
	}

	for _, e := range entries {
		if len(e.Vector) == 0 {
			continue
		}
		if _, ok := m[e.Key]; ok {
			return ErrDuplicateIdentity
		}
		v := make([]float32, len(e.Vector))
		copy(v, e.Vector)
		m[e.Key] = v
		if g != nil {
			g.Add(hnsw.MakeNode(e.Key, v))
		}
	}

	idx.entries = m
	idx.graph = g
	return nil
}

// Insert adds a new identity vector. The vector is copied so later caller
// mutations cannot reach the index.
func (idx *Index) Insert(key string, vec []float32) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, ok := idx.entries[key]; ok {
		return ErrDuplicateIdentity
	}
	idx.set(key, vec)
	return nil
}

// Replace stores the vector for key, overwriting any previous one.
func (idx *Index) Replace(key string, vec []float32) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.set(key, vec)
}

func (idx *Index) set(key string, vec []float32) {
	v := make([]float32, len(vec))
	copy(v, vec)
	idx.entries[key] = v
	if idx.graph != nil {
		// Adding an existing key replaces its node.
		idx.graph.Add(hnsw.MakeNode(key, v))
	}
}

// Remove deletes a key from the index. The HNSW graph keeps the node, which
// is harmless since results are filtered against the entries map.
func (idx *Index) Remove(key string) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, ok := idx.entries[key]; !ok {
		return false
	}
	delete(idx.entries, key)
	return true
}

// Len returns the number of indexed identities.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}

// Query returns up to k matches ranked by similarity, highest first. Equal
// scores order by key so results are stable. An empty index returns nil.
func (idx *Index) Query(query []float32, k int) []Match {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if k <= 0 || len(idx.entries) == 0 {
		return nil
	}

	var matches []Match
	if idx.graph != nil && len(idx.entries) >= idx.hnswThreshold {
		matches = idx.queryGraph(query, k)
	} else {
		matches = idx.scan(query)
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Key < matches[j].Key
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches
}

func (idx *Index) scan(query []float32) []Match {
	matches := make([]Match, 0, len(idx.entries))
	for key, vec := range idx.entries {
		matches = append(matches, Match{Key: key, Score: vector.Dot(query, vec)})
	}
	return matches
}

// queryGraph asks HNSW for a candidate set larger than k to absorb
// approximation error, then rescores candidates against the authoritative
// vectors. Stale graph nodes whose key was removed are dropped.
func (idx *Index) queryGraph(query []float32, k int) []Match {
	neighbors := idx.graph.Search(query, k*2)
	matches := make([]Match, 0, len(neighbors))
	seen := make(map[string]bool, len(neighbors))
	for _, n := range neighbors {
		vec, ok := idx.entries[n.Key]
		if !ok || seen[n.Key] {
			continue
		}
		seen[n.Key] = true
		matches = append(matches, Match{Key: n.Key, Score: vector.Dot(query, vec)})
	}
	return matches
}

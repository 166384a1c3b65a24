package index

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Entry is one embedded chunk.
type Entry struct {
	ID        string            `json:"id"`
	Text      string            `json:"text"`
	Embedding []float32         `json:"embedding"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// File is the persisted index format: one JSON file per indexed root.
type File struct {
	Dimension  int      `json:"dimension"`
	Embeddings []*Entry `json:"embeddings"`
}

// Store holds the index in memory and persists it as a single JSON file.
type Store struct {
	mu        sync.RWMutex
	path      string
	dimension int
	entries   []*Entry
}

// NewStore creates an empty store that persists at path.
func NewStore(path string, dimension int) *Store {
	return &Store{path: path, dimension: dimension}
}

// LoadStore reads an existing index file.
func LoadStore(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}
	var file File
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse index: %w", err)
	}
	return &Store{path: path, dimension: file.Dimension, entries: file.Embeddings}, nil
}

// Add appends one entry, enforcing the dimension.
func (s *Store) Add(entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension > 0 && len(entry.Embedding) != s.dimension {
		return fmt.Errorf("embedding dimension %d does not match index dimension %d",
			len(entry.Embedding), s.dimension)
	}
	s.entries = append(s.entries, entry)
	return nil
}

// Len returns the entry count.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Save writes the index file.
func (s *Store) Save() error {
	s.mu.RLock()
	file := File{Dimension: s.dimension, Embeddings: s.entries}
	data, err := json.Marshal(file)
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o644)
}

// Match is one search hit.
type Match struct {
	Entry *Entry
	Score float32
}

// Search returns the top-k entries by cosine similarity to the query
// vector.
func (s *Store) Search(query []float32, k int) []Match {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]Match, 0, len(s.entries))
	for _, entry := range s.entries {
		matches = append(matches, Match{Entry: entry, Score: Cosine(query, entry.Embedding)})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches
}

// SearchText embeds the query and searches.
func (s *Store) SearchText(ctx context.Context, embedder Embedder, query string, k int) ([]Match, error) {
	vector, err := embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return s.Search(vector, k), nil
}

// Cosine computes the cosine similarity of two vectors. Mismatched or
// zero-magnitude vectors score zero.
func Cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// Package memstore provides the in-memory vector store used by tests and
// local development.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/teamindigo/ragline/internal/pipeline"
	"github.com/teamindigo/ragline/internal/store"
)

// Store implements pipeline.VectorStore with mutex-guarded maps. One record
// is kept per content hash; each source referencing the hash records its own
// sequence position, and the record lives until its last source releases it.
// Replace operations hold the write lock for their duration, so a concurrent
// read sees either all old or all new entries for a source, never a mix.
type Store struct {
	mu       sync.RWMutex
	entries  map[string]pipeline.IndexEntry
	bySource map[string]map[string]int
	refs     map[string]map[string]struct{}
}

// New builds an empty Store.
func New() *Store {
	return &Store{
		entries:  make(map[string]pipeline.IndexEntry),
		bySource: make(map[string]map[string]int),
		refs:     make(map[string]map[string]struct{}),
	}
}

// Upsert inserts or overwrites entries keyed by content hash.
func (s *Store) Upsert(_ context.Context, entries []pipeline.IndexEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		s.put(e)
	}
	return nil
}

func (s *Store) put(e pipeline.IndexEntry) {
	if _, ok := s.entries[e.ContentHash]; !ok {
		s.entries[e.ContentHash] = e
	}
	seqs, ok := s.bySource[e.SourceURL]
	if !ok {
		seqs = make(map[string]int)
		s.bySource[e.SourceURL] = seqs
	}
	seqs[e.ContentHash] = e.Sequence

	sources, ok := s.refs[e.ContentHash]
	if !ok {
		sources = make(map[string]struct{})
		s.refs[e.ContentHash] = sources
	}
	sources[e.SourceURL] = struct{}{}
}

// release drops one source's claim on a hash. The record itself survives
// until no source references it.
func (s *Store) release(contentHash, sourceURL string) {
	sources, ok := s.refs[contentHash]
	if !ok {
		return
	}
	delete(sources, sourceURL)
	if len(sources) == 0 {
		delete(s.refs, contentHash)
		delete(s.entries, contentHash)
	}
}

// QueryNearest returns up to k entries ranked by descending cosine
// similarity to the query embedding.
func (s *Store) QueryNearest(_ context.Context, embedding []float32, k int) ([]pipeline.ScoredEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	scored := make([]pipeline.ScoredEntry, 0, len(s.entries))
	for _, e := range s.entries {
		scored = append(scored, pipeline.ScoredEntry{
			Entry: e,
			Score: store.Cosine(embedding, e.Embedding),
		})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		// Deterministic order for equal scores.
		return scored[i].Entry.ContentHash < scored[j].Entry.ContentHash
	})
	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

// GetByHash returns the live record for a content hash, whichever source
// produced it.
func (s *Store) GetByHash(_ context.Context, contentHash string) (pipeline.IndexEntry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[contentHash]
	return e, ok, nil
}

// Delete removes one entry by content hash, clearing every source's claim.
func (s *Store) Delete(_ context.Context, contentHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sourceURL := range s.refs[contentHash] {
		seqs := s.bySource[sourceURL]
		delete(seqs, contentHash)
		if len(seqs) == 0 {
			delete(s.bySource, sourceURL)
		}
	}
	delete(s.refs, contentHash)
	delete(s.entries, contentHash)
	return nil
}

// ListBySource returns the live entries for a source, ordered by that
// source's sequence positions.
func (s *Store) ListBySource(_ context.Context, sourceURL string) ([]pipeline.IndexEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listLocked(sourceURL), nil
}

func (s *Store) listLocked(sourceURL string) []pipeline.IndexEntry {
	seqs, ok := s.bySource[sourceURL]
	if !ok {
		return nil
	}
	out := make([]pipeline.IndexEntry, 0, len(seqs))
	for h, seq := range seqs {
		e := s.entries[h]
		e.SourceURL = sourceURL
		e.Sequence = seq
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out
}

// ReplaceSource atomically swaps a source's entries under one lock. Hashes
// the source no longer produces are released; records still referenced by
// another source stay live for that source.
func (s *Store) ReplaceSource(_ context.Context, sourceURL string, entries []pipeline.IndexEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		kept[e.ContentHash] = struct{}{}
	}
	for h := range s.bySource[sourceURL] {
		if _, ok := kept[h]; !ok {
			s.release(h, sourceURL)
		}
	}
	delete(s.bySource, sourceURL)

	for _, e := range entries {
		s.put(e)
	}
	return nil
}

// Len reports how many records are live.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

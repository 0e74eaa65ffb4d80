// Package badgerstore persists the vector index in BadgerDB. Badger's
// transactional snapshot isolation is what makes the per-source replace
// atomic with respect to concurrent retrieval reads.
//
// One record is stored per content hash. Sources sharing identical text
// reference the same record through per-source index rows, and the record is
// deleted only when its last source releases it, so superseding one source
// never disturbs another source's live entries.
package badgerstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	badger "github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/teamindigo/ragline/internal/pipeline"
	"github.com/teamindigo/ragline/internal/store"
)

const (
	entryPrefix  = "ent:"
	sourcePrefix = "src:"
	refPrefix    = "ref:"
)

// Store implements pipeline.VectorStore on a Badger database.
type Store struct {
	db     *badger.DB
	logger *zap.Logger
}

// Open opens or creates the index database at path.
func Open(path string, logger *zap.Logger) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", path, err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close badger: %w", err)
	}
	return nil
}

func entryKey(contentHash string) []byte {
	return []byte(entryPrefix + contentHash)
}

// sourceKey indexes a source's claim on a hash under a digest of the source
// URL; URLs contain the key separator so they cannot be embedded raw. The
// row value holds the source's sequence position for the hash.
func sourceKey(sourceURL, contentHash string) []byte {
	return []byte(sourcePrefix + sourceDigest(sourceURL) + ":" + contentHash)
}

func sourceScanPrefix(sourceURL string) []byte {
	return []byte(sourcePrefix + sourceDigest(sourceURL) + ":")
}

// refKey is the reverse claim, hash first, so releasing a source can check
// whether any other source still references the record.
func refKey(contentHash, digest string) []byte {
	return []byte(refPrefix + contentHash + ":" + digest)
}

func refScanPrefix(contentHash string) []byte {
	return []byte(refPrefix + contentHash + ":")
}

func sourceDigest(sourceURL string) string {
	sum := sha256.Sum256([]byte(sourceURL))
	return hex.EncodeToString(sum[:16])
}

// Upsert writes entries in one transaction.
func (s *Store) Upsert(_ context.Context, entries []pipeline.IndexEntry) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, e := range entries {
			if err := putEntry(txn, e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("upsert %d entries: %w", len(entries), err)
	}
	return nil
}

func putEntry(txn *badger.Txn, e pipeline.IndexEntry) error {
	// The record is shared across sources; the first writer's copy stands.
	if _, err := txn.Get(entryKey(e.ContentHash)); err == badger.ErrKeyNotFound {
		value, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode entry %s: %w", e.ContentHash, err)
		}
		if err := txn.Set(entryKey(e.ContentHash), value); err != nil {
			return fmt.Errorf("set entry %s: %w", e.ContentHash, err)
		}
	} else if err != nil {
		return fmt.Errorf("check entry %s: %w", e.ContentHash, err)
	}

	seq := []byte(strconv.Itoa(e.Sequence))
	if err := txn.Set(sourceKey(e.SourceURL, e.ContentHash), seq); err != nil {
		return fmt.Errorf("set source index %s: %w", e.ContentHash, err)
	}
	if err := txn.Set(refKey(e.ContentHash, sourceDigest(e.SourceURL)), nil); err != nil {
		return fmt.Errorf("set ref index %s: %w", e.ContentHash, err)
	}
	return nil
}

// releaseEntry drops one source's claim on a hash and deletes the record
// when no claims remain.
func releaseEntry(txn *badger.Txn, sourceURL, contentHash string) error {
	if err := txn.Delete(sourceKey(sourceURL, contentHash)); err != nil {
		return fmt.Errorf("delete source index %s: %w", contentHash, err)
	}
	if err := txn.Delete(refKey(contentHash, sourceDigest(sourceURL))); err != nil {
		return fmt.Errorf("delete ref index %s: %w", contentHash, err)
	}
	live, err := hasRefs(txn, contentHash)
	if err != nil {
		return err
	}
	if !live {
		if err := txn.Delete(entryKey(contentHash)); err != nil {
			return fmt.Errorf("delete entry %s: %w", contentHash, err)
		}
	}
	return nil
}

func hasRefs(txn *badger.Txn, contentHash string) (bool, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = refScanPrefix(contentHash)
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()
	it.Rewind()
	return it.Valid(), nil
}

// QueryNearest scans live entries and returns the k most similar. The scan
// runs inside a read transaction, observing a consistent snapshot even
// while ingestion writes concurrently.
func (s *Store) QueryNearest(_ context.Context, embedding []float32, k int) ([]pipeline.ScoredEntry, error) {
	var scored []pipeline.ScoredEntry
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(entryPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var e pipeline.IndexEntry
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			})
			if err != nil {
				return fmt.Errorf("decode entry %s: %w", it.Item().Key(), err)
			}
			scored = append(scored, pipeline.ScoredEntry{
				Entry: e,
				Score: store.Cosine(embedding, e.Embedding),
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("query nearest: %w", err)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
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
	var e pipeline.IndexEntry
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(entryKey(contentHash))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get entry: %w", err)
		}
		found = true
		return item.Value(func(val []byte) error { return json.Unmarshal(val, &e) })
	})
	if err != nil {
		return pipeline.IndexEntry{}, false, fmt.Errorf("get by hash %s: %w", contentHash, err)
	}
	return e, found, nil
}

// Delete removes one entry and every source's claim on it.
func (s *Store) Delete(_ context.Context, contentHash string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		digests, err := refDigests(txn, contentHash)
		if err != nil {
			return err
		}
		for _, d := range digests {
			key := []byte(sourcePrefix + d + ":" + contentHash)
			if err := txn.Delete(key); err != nil {
				return fmt.Errorf("delete source index: %w", err)
			}
			if err := txn.Delete(refKey(contentHash, d)); err != nil {
				return fmt.Errorf("delete ref index: %w", err)
			}
		}
		if err := txn.Delete(entryKey(contentHash)); err != nil {
			return fmt.Errorf("delete entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", contentHash, err)
	}
	return nil
}

func refDigests(txn *badger.Txn, contentHash string) ([]string, error) {
	prefix := refScanPrefix(contentHash)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	var digests []string
	for it.Rewind(); it.Valid(); it.Next() {
		key := it.Item().Key()
		digests = append(digests, string(key[len(prefix):]))
	}
	return digests, nil
}

// ListBySource returns the live entries for one source in that source's
// sequence order.
func (s *Store) ListBySource(_ context.Context, sourceURL string) ([]pipeline.IndexEntry, error) {
	var entries []pipeline.IndexEntry
	err := s.db.View(func(txn *badger.Txn) error {
		claims, err := sourceClaims(txn, sourceURL)
		if err != nil {
			return err
		}
		for _, c := range claims {
			item, err := txn.Get(entryKey(c.hash))
			if err == badger.ErrKeyNotFound {
				continue
			}
			if err != nil {
				return fmt.Errorf("get entry %s: %w", c.hash, err)
			}
			var e pipeline.IndexEntry
			if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &e) }); err != nil {
				return fmt.Errorf("decode entry %s: %w", c.hash, err)
			}
			e.SourceURL = sourceURL
			e.Sequence = c.seq
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list by source: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Sequence < entries[j].Sequence })
	return entries, nil
}

type sourceClaim struct {
	hash string
	seq  int
}

func sourceClaims(txn *badger.Txn, sourceURL string) ([]sourceClaim, error) {
	prefix := sourceScanPrefix(sourceURL)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	var claims []sourceClaim
	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		hash := string(item.Key()[len(prefix):])
		var seq int
		err := item.Value(func(val []byte) error {
			n, convErr := strconv.Atoi(string(val))
			if convErr != nil {
				return fmt.Errorf("decode sequence for %s: %w", hash, convErr)
			}
			seq = n
			return nil
		})
		if err != nil {
			return nil, err
		}
		claims = append(claims, sourceClaim{hash: hash, seq: seq})
	}
	return claims, nil
}

// ReplaceSource swaps one source's entries inside a single transaction, so
// retrieval never observes a mix of old and new chunks for a re-crawled
// page. Hashes the source no longer produces are released; records another
// source still claims stay live.
func (s *Store) ReplaceSource(_ context.Context, sourceURL string, entries []pipeline.IndexEntry) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		claims, err := sourceClaims(txn, sourceURL)
		if err != nil {
			return err
		}
		kept := make(map[string]struct{}, len(entries))
		for _, e := range entries {
			kept[e.ContentHash] = struct{}{}
		}
		for _, c := range claims {
			if _, ok := kept[c.hash]; ok {
				continue
			}
			if err := releaseEntry(txn, sourceURL, c.hash); err != nil {
				return err
			}
		}
		for _, e := range entries {
			if err := putEntry(txn, e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("replace source %s: %w", sourceURL, err)
	}
	return nil
}

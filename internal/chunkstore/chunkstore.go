// Package chunkstore is the durable keyed store for raw chunk payloads,
// backed by badger. Chunk metadata lives in Postgres; only the audio bytes
// and the minimal listing info needed for reassembly live here.
package chunkstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dgraph-io/badger/v3"
)

var ErrChunkNotFound = errors.New("chunk not found")

// Entry is one listed chunk: its seq, the storage ref returned by Put,
// and the duration recorded at upload time.
type Entry struct {
	Seq        int    `json:"seq"`
	Ref        string `json:"ref"`
	DurationMs int64  `json:"duration_ms"`
	Size       int64  `json:"size"`
}

type Store struct {
	db *badger.DB
}

func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create chunk data dir: %w", err)
	}

	opts := badger.DefaultOptions(filepath.Join(dir, "badger"))
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Keys are zero-padded so badger's lexicographic iteration order is seq order.
func payloadKey(sessionID string, seq int) []byte {
	return []byte(fmt.Sprintf("chunk/%s/%010d", sessionID, seq))
}

// Ref is the storage ref Put will return for (sessionID, seq), computable
// without a write. Callers that record the ref before storing the payload
// use this to keep the two in agreement.
func Ref(sessionID string, seq int) string {
	return string(payloadKey(sessionID, seq))
}

func metaKey(sessionID string, seq int) []byte {
	return []byte(fmt.Sprintf("meta/%s/%010d", sessionID, seq))
}

// Put stores the payload bytes for (sessionID, seq) and returns the storage
// ref. Re-uploading the same seq overwrites in place: badger Set within one
// transaction is an upsert, so retries and duplicate deliveries leave exactly
// one record and last writer wins. Writes for distinct seq values touch
// distinct keys and never interfere.
func (s *Store) Put(sessionID string, seq int, data []byte, durationMs int64) (string, error) {
	pk := payloadKey(sessionID, seq)
	meta, err := json.Marshal(Entry{
		Seq:        seq,
		Ref:        string(pk),
		DurationMs: durationMs,
		Size:       int64(len(data)),
	})
	if err != nil {
		return "", fmt.Errorf("marshal chunk meta: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(pk, data); err != nil {
			return err
		}
		return txn.Set(metaKey(sessionID, seq), meta)
	})
	if err != nil {
		return "", fmt.Errorf("store chunk %s/%d: %w", sessionID, seq, err)
	}
	return string(pk), nil
}

// Read returns the payload bytes for (sessionID, seq), or ErrChunkNotFound.
func (s *Store) Read(sessionID string, seq int) ([]byte, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(payloadKey(sessionID, seq))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrChunkNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read chunk %s/%d: %w", sessionID, seq, err)
	}
	return data, nil
}

// List returns the stored entries for a session ordered by seq. The listing
// is a single snapshot read: a badger View sees a consistent view even while
// concurrent Puts land.
func (s *Store) List(sessionID string) ([]Entry, error) {
	prefix := []byte(fmt.Sprintf("meta/%s/", sessionID))
	entries := []Entry{}

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var e Entry
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			})
			if err != nil {
				return err
			}
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list chunks %s: %w", sessionID, err)
	}
	return entries, nil
}

// DeleteSession removes every payload and meta record for a session.
// Used by session cleanup after the Postgres rows are gone.
func (s *Store) DeleteSession(sessionID string) error {
	prefixes := [][]byte{
		[]byte(fmt.Sprintf("chunk/%s/", sessionID)),
		[]byte(fmt.Sprintf("meta/%s/", sessionID)),
	}

	return s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false

		for _, prefix := range prefixes {
			it := txn.NewIterator(opts)
			var keys [][]byte
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				keys = append(keys, it.Item().KeyCopy(nil))
			}
			it.Close()

			for _, k := range keys {
				if err := txn.Delete(k); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

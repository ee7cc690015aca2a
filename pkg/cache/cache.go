// Package cache provides a TTL result cache for retrieval with per-namespace
// epoch invalidation. Consolidation bumps a namespace epoch instead of
// scanning for stale keys; old entries become unreachable and age out.
package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/soundprediction/consolidato/pkg/utils"
)

const epochPrefix = "epoch:"

// ResultCache is a badger-backed cache for fused retrieval results.
type ResultCache struct {
	db  *badger.DB
	ttl time.Duration

	mu     sync.Mutex
	epochs map[string]uint64
}

// New opens a result cache. An empty path uses an in-memory badger instance.
func New(path string, ttl time.Duration) (*ResultCache, error) {
	if ttl <= 0 {
		ttl = time.Minute
	}
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open result cache: %w", err)
	}
	return &ResultCache{
		db:     db,
		ttl:    ttl,
		epochs: make(map[string]uint64),
	}, nil
}

// Key derives the cache key for a query in a namespace. The query text is
// normalized so trivially different spellings share an entry, and the weight
// vector participates so reweighted queries never collide.
func (c *ResultCache) Key(namespace, query string, vectorWeight, graphWeight float64) string {
	h := sha256.New()
	h.Write([]byte(utils.NormalizeName(query)))
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(vectorWeight*1e6))
	h.Write(buf[:])
	binary.BigEndian.PutUint64(buf[:], uint64(graphWeight*1e6))
	h.Write(buf[:])
	return fmt.Sprintf("result:%s:%d:%s", namespace, c.epoch(namespace), hex.EncodeToString(h.Sum(nil)))
}

// Get returns the cached payload for the key, or ok=false on a miss.
func (c *ResultCache) Get(key string) ([]byte, bool, error) {
	var payload []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		payload, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache read failed: %w", err)
	}
	return payload, true, nil
}

// Set stores a payload under the key with the cache TTL.
func (c *ResultCache) Set(key string, payload []byte) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), payload).WithTTL(c.ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("cache write failed: %w", err)
	}
	return nil
}

// Invalidate bumps the namespace epoch so all cached results for the
// namespace miss from now on.
func (c *ResultCache) Invalidate(namespace string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.epochs[namespace] + 1
	c.epochs[namespace] = next

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], next)
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(epochPrefix+namespace), buf[:])
	})
	if err != nil {
		return fmt.Errorf("epoch bump failed: %w", err)
	}
	return nil
}

// epoch returns the current epoch for a namespace, loading the persisted
// value on first use.
func (c *ResultCache) epoch(namespace string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.epochs[namespace]; ok {
		return e
	}
	var e uint64
	_ = c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(epochPrefix + namespace))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) == 8 {
				e = binary.BigEndian.Uint64(val)
			}
			return nil
		})
	})
	c.epochs[namespace] = e
	return e
}

// Close releases the cache.
func (c *ResultCache) Close() error {
	return c.db.Close()
}

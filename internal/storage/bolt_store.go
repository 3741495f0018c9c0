package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	rowBucket         = []byte("exported_rows")
	errBucketMissing  = errors.New("exported_rows bucket missing")
	expiryEncodedSize = 8
)

// boltStore maps row fingerprints to the unix second they stop counting as exported.
type boltStore struct {
	db       *bolt.DB
	ttl      time.Duration
	interval time.Duration
	clock    func() time.Time

	mu        sync.Mutex
	nextSweep time.Time
}

func openBolt(path string, opts Options) (*boltStore, error) {
	opts = normalizeOptions(opts)
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(rowBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create %s bucket: %w", rowBucket, err)
	}

	return &boltStore{
		db:        db,
		ttl:       opts.RowTTL,
		interval:  opts.CleanupInterval,
		clock:     opts.Now,
		nextSweep: opts.Now().Add(opts.CleanupInterval),
	}, nil
}

func (b *boltStore) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

// SeenRow reports whether fingerprint was marked within the TTL. An expired entry is
// deleted on the way.
func (b *boltStore) SeenRow(fingerprint string) (bool, error) {
	now := b.clock()
	if err := b.sweep(now); err != nil {
		return false, err
	}

	var live bool
	err := b.update(func(rows *bolt.Bucket) error {
		key := []byte(fingerprint)
		expiry, ok := expiryOf(rows.Get(key))
		if ok && expiry.After(now) {
			live = true
			return nil
		}
		if rows.Get(key) != nil {
			return rows.Delete(key)
		}
		return nil
	})
	return live, err
}

// MarkRow records fingerprint as exported until now+TTL.
func (b *boltStore) MarkRow(fingerprint string) error {
	now := b.clock()
	if err := b.sweep(now); err != nil {
		return err
	}
	return b.update(func(rows *bolt.Bucket) error {
		return rows.Put([]byte(fingerprint), encodeExpiry(now.Add(b.ttl)))
	})
}

func (b *boltStore) update(fn func(rows *bolt.Bucket) error) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		rows := tx.Bucket(rowBucket)
		if rows == nil {
			return errBucketMissing
		}
		return fn(rows)
	})
}

// sweep drops expired fingerprints, at most once per cleanup interval.
func (b *boltStore) sweep(now time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if now.Before(b.nextSweep) {
		return nil
	}

	err := b.update(func(rows *bolt.Bucket) error {
		c := rows.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if expiry, ok := expiryOf(v); ok && expiry.After(now) {
				continue
			}
			if err := c.Delete(); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("sweep expired rows: %w", err)
	}
	b.nextSweep = now.Add(b.interval)
	return nil
}

// count returns the number of stored fingerprints, expired or not.
func (b *boltStore) count() (int, error) {
	var n int
	err := b.db.View(func(tx *bolt.Tx) error {
		rows := tx.Bucket(rowBucket)
		if rows == nil {
			return errBucketMissing
		}
		n = rows.Stats().KeyN
		return nil
	})
	return n, err
}

func encodeExpiry(t time.Time) []byte {
	buf := make([]byte, expiryEncodedSize)
	binary.BigEndian.PutUint64(buf, uint64(t.Unix()))
	return buf
}

func expiryOf(v []byte) (time.Time, bool) {
	if len(v) != expiryEncodedSize {
		return time.Time{}, false
	}
	unix := int64(binary.BigEndian.Uint64(v))
	if unix <= 0 {
		return time.Time{}, false
	}
	return time.Unix(unix, 0), true
}

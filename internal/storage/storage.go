// Package storage remembers which ClearBooks rows have already been exported.
package storage

import (
	"fmt"
	"strings"
	"time"
)

// Store tracks exported row fingerprints.
type Store interface {
	Close() error
	SeenRow(fingerprint string) (bool, error)
	MarkRow(fingerprint string) error
}

// Options controls how long fingerprints are kept.
type Options struct {
	RowTTL          time.Duration
	CleanupInterval time.Duration
	// Now is the store's clock; time.Now when nil.
	Now func() time.Time
}

const (
	defaultRowTTL          = 400 * 24 * time.Hour
	defaultCleanupInterval = 24 * time.Hour
)

// NewStore creates the configured storage backend.
func NewStore(typ, path string, opts Options) (Store, error) {
	typ = strings.TrimSpace(strings.ToLower(typ))
	opts = normalizeOptions(opts)

	switch typ {
	case "", "none", "disabled":
		return noopStore{}, nil
	case "bbolt":
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("bbolt storage requires a path")
		}
		store, err := openBolt(path, opts)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported storage type %q", typ)
	}
}

func normalizeOptions(opts Options) Options {
	if opts.RowTTL <= 0 {
		opts.RowTTL = defaultRowTTL
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = defaultCleanupInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return opts
}

type noopStore struct{}

func (noopStore) Close() error                 { return nil }
func (noopStore) SeenRow(string) (bool, error) { return false, nil }
func (noopStore) MarkRow(string) error         { return nil }

// Package persist saves and loads the inventory store. Trees are written in
// their forward-only shape (parent to children) and back-references are
// rebuilt on load, so every backend works with plain nested records.
package persist

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	jsoniter "github.com/json-iterator/go"
	"github.com/zeebo/xxh3"

	"inventoryview/inventory"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	// ErrNoData is returned by a backend that has never been written.
	ErrNoData = errors.New("persist: nothing saved yet")
	// ErrUnknownBackend is returned by Open for an unsupported backend name.
	ErrUnknownBackend = errors.New("persist: unknown backend")
)

// Backend stores forward-only snapshots.
type Backend interface {
	Name() string
	Read() ([]*inventory.Snapshot, error)
	Write(snaps []*inventory.Snapshot) error
	Close() error
}

// Open returns the backend called kind rooted at path.
func Open(kind, path string) (Backend, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("persist: storage path is empty")
	}
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "yaml":
		return NewYAMLFile(path), nil
	case "plist":
		return NewPlistFile(path), nil
	case "sqlite":
		return OpenSQLite(path)
	case "pebble":
		return OpenPebble(path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, kind)
	}
}

// Codec saves the store through a backend and skips writes whose content has
// not changed since the last save or load.
type Codec struct {
	backend Backend

	mu         sync.Mutex
	lastDigest uint64
	haveDigest bool
}

// NewCodec wraps backend.
func NewCodec(backend Backend) *Codec {
	return &Codec{backend: backend}
}

// Backend returns the underlying backend.
func (c *Codec) Backend() Backend {
	return c.backend
}

// Save writes every snapshot in store. Live trees are never modified: the
// backend receives a detached copy without back-references.
func (c *Codec) Save(store *inventory.Store) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	snaps := store.Forward()
	digest, err := Digest(snaps)
	if err != nil {
		return fmt.Errorf("persist: digest: %w", err)
	}
	if c.haveDigest && digest == c.lastDigest {
		log.Printf("Persist: %s unchanged; skipping write", c.backend.Name())
		return nil
	}
	if err := c.backend.Write(snaps); err != nil {
		return fmt.Errorf("persist: write %s: %w", c.backend.Name(), err)
	}
	c.lastDigest = digest
	c.haveDigest = true
	log.Printf("Persist: saved %s snapshots (%s items) to %s",
		humanize.Comma(int64(len(snaps))), humanize.Comma(int64(countItems(snaps))), c.backend.Name())
	return nil
}

// Load replaces the contents of store with what the backend holds. When the
// backend has nothing saved, or reading fails, store is left untouched; only
// the failure is reported.
func (c *Codec) Load(store *inventory.Store) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	snaps, err := c.backend.Read()
	if errors.Is(err, ErrNoData) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("persist: read %s: %w", c.backend.Name(), err)
	}
	for _, snap := range snaps {
		inventory.RestoreBackRefs(snap.Items, nil)
	}
	if digest, err := Digest(snaps); err == nil {
		c.lastDigest = digest
		c.haveDigest = true
	}
	store.Replace(snaps)
	return nil
}

// Close releases the backend.
func (c *Codec) Close() error {
	return c.backend.Close()
}

// Digest hashes the forward-only encoding of snaps.
func Digest(snaps []*inventory.Snapshot) (uint64, error) {
	bs, err := json.Marshal(snaps)
	if err != nil {
		return 0, err
	}
	return xxh3.Hash(bs), nil
}

func countItems(snaps []*inventory.Snapshot) int {
	n := 0
	for _, snap := range snaps {
		n += snap.Count()
	}
	return n
}

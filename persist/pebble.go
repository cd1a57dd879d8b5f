package persist

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cockroachdb/pebble"

	"inventoryview/inventory"
)

const (
	snapPrefix   = "snap|"
	metaSavedKey = "meta|saved_at"
)

// Pebble stores one JSON-encoded snapshot per key, ordered by position.
type Pebble struct {
	path string
	db   *pebble.DB
}

// OpenPebble opens (or creates) the Pebble directory at path.
func OpenPebble(path string) (*Pebble, error) {
	if info, err := os.Stat(path); err == nil {
		if !info.IsDir() {
			return nil, fmt.Errorf("persist: %s exists and is not a directory", path)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("persist: stat path: %w", err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("persist: ensure directory: %w", err)
	}
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("persist: pebble open: %w", err)
	}
	return &Pebble{path: path, db: db}, nil
}

func (p *Pebble) Name() string {
	return "pebble " + p.path
}

func (p *Pebble) Read() ([]*inventory.Snapshot, error) {
	_, closer, err := p.db.Get([]byte(metaSavedKey))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNoData
	}
	if err != nil {
		return nil, err
	}
	closer.Close()

	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(snapPrefix),
		UpperBound: snapUpperBound(),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var snaps []*inventory.Snapshot
	for iter.First(); iter.Valid(); iter.Next() {
		var snap inventory.Snapshot
		if err := json.Unmarshal(iter.Value(), &snap); err != nil {
			return nil, fmt.Errorf("decode %s: %w", iter.Key(), err)
		}
		snaps = append(snaps, &snap)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	return snaps, nil
}

func (p *Pebble) Write(snaps []*inventory.Snapshot) error {
	batch := p.db.NewBatch()
	defer batch.Close()
	if err := batch.DeleteRange([]byte(snapPrefix), snapUpperBound(), nil); err != nil {
		return err
	}
	for i, snap := range snaps {
		val, err := json.Marshal(snap)
		if err != nil {
			return err
		}
		if err := batch.Set(snapKey(i), val, nil); err != nil {
			return err
		}
	}
	if err := batch.Set([]byte(metaSavedKey), []byte(time.Now().UTC().Format(time.RFC3339)), nil); err != nil {
		return err
	}
	return batch.Commit(pebble.Sync)
}

func (p *Pebble) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

func snapKey(pos int) []byte {
	return []byte(fmt.Sprintf("%s%08d", snapPrefix, pos))
}

func snapUpperBound() []byte {
	upper := []byte(snapPrefix)
	upper[len(upper)-1]++
	return upper
}

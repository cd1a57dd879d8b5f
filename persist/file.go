package persist

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
	"howett.net/plist"

	"inventoryview/inventory"
)

const documentVersion = 1

type yamlDocument struct {
	Version   int                   `yaml:"version"`
	Snapshots []*inventory.Snapshot `yaml:"snapshots"`
}

type plistDocument struct {
	Version   int                   `plist:"version"`
	Snapshots []*inventory.Snapshot `plist:"snapshots"`
}

// fileBackend keeps the whole store in one document on disk.
type fileBackend struct {
	path   string
	format string
	encode func([]*inventory.Snapshot) ([]byte, error)
	decode func([]byte) ([]*inventory.Snapshot, error)
}

// NewYAMLFile stores snapshots in a YAML document at path.
func NewYAMLFile(path string) Backend {
	return &fileBackend{
		path:   path,
		format: "yaml",
		encode: func(snaps []*inventory.Snapshot) ([]byte, error) {
			return yaml.Marshal(yamlDocument{Version: documentVersion, Snapshots: snaps})
		},
		decode: func(bs []byte) ([]*inventory.Snapshot, error) {
			var doc yamlDocument
			if err := yaml.Unmarshal(bs, &doc); err != nil {
				return nil, err
			}
			return doc.Snapshots, nil
		},
	}
}

// NewPlistFile stores snapshots in an XML property list at path.
func NewPlistFile(path string) Backend {
	return &fileBackend{
		path:   path,
		format: "plist",
		encode: func(snaps []*inventory.Snapshot) ([]byte, error) {
			if snaps == nil {
				snaps = []*inventory.Snapshot{}
			}
			return plist.MarshalIndent(plistDocument{Version: documentVersion, Snapshots: snaps}, plist.XMLFormat, "\t")
		},
		decode: func(bs []byte) ([]*inventory.Snapshot, error) {
			var doc plistDocument
			if _, err := plist.Unmarshal(bs, &doc); err != nil {
				return nil, err
			}
			return doc.Snapshots, nil
		},
	}
}

func (b *fileBackend) Name() string {
	return fmt.Sprintf("%s file %s", b.format, b.path)
}

func (b *fileBackend) Read() ([]*inventory.Snapshot, error) {
	bs, err := os.ReadFile(b.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoData
	}
	if err != nil {
		return nil, err
	}
	return b.decode(bs)
}

// Write replaces the document atomically: a temp file in the same directory
// is renamed over the old one.
func (b *fileBackend) Write(snaps []*inventory.Snapshot) error {
	bs, err := b.encode(snaps)
	if err != nil {
		return err
	}
	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(b.path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(bs); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, b.path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

func (b *fileBackend) Close() error {
	return nil
}

package pack

import (
	"os"
	"path/filepath"

	"golang.org/x/sync/singleflight"

	"github.com/hoardstore/hoard/digest"
	"github.com/hoardstore/hoard/herr"
)

// Collection is an ordered union of opened packfile readers, grounded on
// the teacher's multi-backend-lookup idiom (registry/storage/driver/factory
// registers many storage backends and resolves one by name; Collection
// generalizes that "many candidates, first usable one wins" shape to many
// packfiles searched in order for a single digest). Readers inside a
// Collection are independently safe for concurrent use, and the
// Collection itself is not mutated once construction (Add calls) has
// finished.
type Collection struct {
	readers []*Reader
	group   singleflight.Group
}

// NewCollection returns an empty Collection.
func NewCollection() *Collection {
	return &Collection{}
}

// Add opens path as a packfile and appends it to the collection. If path
// is a directory, every entry under it is considered recursively;
// unreadable or invalid files are silently skipped, matching spec.md
// §4.6.
func (c *Collection) Add(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return nil
	}
	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil
		}
		for _, e := range entries {
			_ = c.Add(filepath.Join(path, e.Name()))
		}
		return nil
	}
	r, err := Open(path)
	if err != nil {
		return nil
	}
	c.readers = append(c.readers, r)
	return nil
}

// Read probes each reader in the order they were added and returns the
// first non-absent result. Concurrent identical lookups are collapsed
// into a single underlying scan via singleflight, avoiding redundant
// binary searches/IO for a hot digest without changing the semantics of
// any individual Reader.
func (c *Collection) Read(d digest.Digest) ([]byte, bool, error) {
	v, err, _ := c.group.Do(d.String(), func() (interface{}, error) {
		for _, r := range c.readers {
			p, ok, err := r.Read(d)
			if err != nil {
				if herr.Recoverable(err) {
					continue
				}
				return nil, err
			}
			if ok {
				return p, nil
			}
		}
		return nil, nil
	})
	if err != nil {
		return nil, false, err
	}
	if v == nil {
		return nil, false, nil
	}
	return v.([]byte), true, nil
}

// Contains reports whether any reader in the collection has d, short-
// circuiting on the first match.
func (c *Collection) Contains(d digest.Digest) (bool, error) {
	for _, r := range c.readers {
		ok, err := r.Contains(d)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// Close closes every reader in the collection.
func (c *Collection) Close() error {
	var first error
	for _, r := range c.readers {
		if err := r.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Len returns the number of readers held by the collection.
func (c *Collection) Len() int {
	return len(c.readers)
}

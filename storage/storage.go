// Package storage persists the decoded message cache across restarts so
// the manager does not come up empty and re-decode everything.
package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/traffxml/traff-go/tiles"
	"github.com/traffxml/traff-go/traff"
)

// Store reads and writes the message cache at a fixed path.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore returns a store backed by the file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Save writes the cache atomically: the document goes to a temporary file in
// the same directory first and replaces the old one by rename. provider
// supplies the current data version per tile; colorings of tiles the
// provider does not know are not persisted.
func (s *Store) Save(messages map[string]traff.Message, provider tiles.Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := traff.MarshalCache(messages, provider.TileVersion)
	if err != nil {
		return fmt.Errorf("save cache: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("save cache: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp*")
	if err != nil {
		return fmt.Errorf("save cache: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("save cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("save cache: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("save cache: %w", err)
	}
	return nil
}

// Load restores the cache. Messages come back in two groups: ready messages
// keep their decoded coloring, needsDecode messages lost it because a tile's
// data version changed since the save; only the stale tile's portion is
// dropped, the rest of the message's coloring survives. A missing cache file
// is not an error.
func (s *Store) Load(provider tiles.Provider) (ready map[string]traff.Message, needsDecode traff.Feed, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]traff.Message{}, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load cache: %w", err)
	}

	cached, err := traff.ParseCache(data)
	if err != nil {
		return nil, nil, fmt.Errorf("load cache: %w", err)
	}

	ready = make(map[string]traff.Message, len(cached))
	for _, cm := range cached {
		msg := cm.Message
		stale := false
		for tile, savedVersion := range cm.TileVersions {
			current, ok := provider.TileVersion(tile)
			if ok && current == savedVersion {
				continue
			}
			log.Printf("cache: tile %s changed since save (version %d), re-decoding message %s",
				tile, savedVersion, msg.ID)
			delete(msg.Decoded, tile)
			stale = true
		}
		if stale {
			needsDecode = append(needsDecode, msg)
			continue
		}
		ready[msg.ID] = msg
	}
	return ready, needsDecode, nil
}

// Reset removes the persisted cache.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("reset cache: %w", err)
	}
	return nil
}

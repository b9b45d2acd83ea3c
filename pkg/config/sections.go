package config

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

// BotSection is the store section holding the bot's own settings.
const BotSection = "simplebot"

// Store is a persistent key/value store grouped into named sections. Plugins
// use it for their settings; the file is rewritten atomically on Save.
type Store struct {
	path string

	// saveMu orders whole saves so an older snapshot never replaces a newer file.
	saveMu sync.Mutex

	mu       sync.RWMutex
	sections map[string]map[string]string
}

// Section is a live view of one store section.
type Section struct {
	store *Store
	name  string
}

// OpenStore loads path if it exists. An empty path yields an in-memory store.
func OpenStore(path string) (*Store, error) {
	store := &Store{
		path:     strings.TrimSpace(path),
		sections: make(map[string]map[string]string),
	}
	if store.path == "" {
		return store, nil
	}

	payload, err := os.ReadFile(store.path)
	if err != nil {
		if os.IsNotExist(err) {
			return store, nil
		}
		return nil, fmt.Errorf("read config store: %w", err)
	}
	if len(strings.TrimSpace(string(payload))) == 0 {
		return store, nil
	}

	if err := json.Unmarshal(payload, &store.sections); err != nil {
		return nil, fmt.Errorf("parse config store: %w", err)
	}
	for name, values := range store.sections {
		if values == nil {
			store.sections[name] = make(map[string]string)
		}
	}

	return store, nil
}

// Section returns the named section, creating it when absent.
func (s *Store) Section(name string) *Section {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sections[name]; !ok {
		s.sections[name] = make(map[string]string)
	}
	return &Section{store: s, name: name}
}

// Sections lists section names in sorted order.
func (s *Store) Sections() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.sections))
}

// Save writes every section to disk via a temp file and rename.
func (s *Store) Save() error {
	if s.path == "" {
		return nil
	}

	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.RLock()
	payload, err := json.MarshalIndent(s.sections, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode config store: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config store dir: %w", err)
	}

	tempFile, err := os.CreateTemp(dir, "sections-*.tmp")
	if err != nil {
		return fmt.Errorf("create config store temp file: %w", err)
	}

	tmpPath := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tempFile.Write(append(payload, '\n')); err != nil {
		_ = tempFile.Close()
		return err
	}
	if err := tempFile.Chmod(0o600); err != nil {
		_ = tempFile.Close()
		return err
	}
	if err := tempFile.Sync(); err != nil {
		_ = tempFile.Close()
		return err
	}
	if err := tempFile.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("replace config store: %w", err)
	}

	cleanup = false
	return nil
}

// Name returns the section name.
func (sec *Section) Name() string {
	return sec.name
}

// Get returns the value stored under key.
func (sec *Section) Get(key string) (string, bool) {
	sec.store.mu.RLock()
	defer sec.store.mu.RUnlock()
	value, ok := sec.store.sections[sec.name][key]
	return value, ok
}

// Value returns the value under key or fallback when absent.
func (sec *Section) Value(key, fallback string) string {
	if value, ok := sec.Get(key); ok {
		return value
	}
	return fallback
}

// Set stores value under key. The change is persisted on the next Save.
func (sec *Section) Set(key, value string) {
	sec.store.mu.Lock()
	defer sec.store.mu.Unlock()
	sec.values()[key] = value
}

// SetDefault stores value only when key is absent and returns the effective value.
func (sec *Section) SetDefault(key, value string) string {
	sec.store.mu.Lock()
	defer sec.store.mu.Unlock()

	values := sec.values()
	if current, ok := values[key]; ok {
		return current
	}
	values[key] = value
	return value
}

// Delete removes key from the section.
func (sec *Section) Delete(key string) {
	sec.store.mu.Lock()
	defer sec.store.mu.Unlock()
	delete(sec.store.sections[sec.name], key)
}

// All returns a copy of the section's values.
func (sec *Section) All() map[string]string {
	sec.store.mu.RLock()
	defer sec.store.mu.RUnlock()
	return maps.Clone(sec.store.sections[sec.name])
}

// values must be called with the store lock held.
func (sec *Section) values() map[string]string {
	values, ok := sec.store.sections[sec.name]
	if !ok {
		values = make(map[string]string)
		sec.store.sections[sec.name] = values
	}
	return values
}

// ApplyBotDefaults fills the bot section with its default settings and
// returns it.
func ApplyBotDefaults(store *Store) *Section {
	section := store.Section(BotSection)
	section.SetDefault("displayname", "SimpleBot🤖")
	section.SetDefault("locale", "en")
	return section
}

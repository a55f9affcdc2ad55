// Package convo persists per-user conversation history to a flat JSON
// file. The file maps a namespaced user key to an ordered list of
// role/content entries, capped at a fixed length per user with FIFO
// eviction. History is folded into outbound prompts so follow-up
// questions ("tell me more about the first one") resolve correctly.
package convo

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Roles for conversation entries.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// MaxEntries caps the stored history per user; the oldest entries are
// evicted first.
const MaxEntries = 20

// keyPrefix namespaces user keys in the memory file. Retained for
// on-disk compatibility with earlier deployments; a per-responder
// namespace would be needed to keep separate histories per agent type.
const keyPrefix = "movie_"

// Entry is one conversation turn.
type Entry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Store reads and writes the conversation memory file. Each operation
// loads the whole file and rewrites it; the interior mutex serializes
// writers within the process, and the rewrite goes through a temp file
// plus rename so a crash mid-write cannot corrupt existing history.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore creates a store backed by the JSON file at path. The file
// is created lazily on first append.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// History returns the most recent n entries for userID, oldest first.
// A missing file or unknown user yields an empty slice.
func (s *Store) History(userID string, n int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mem, err := s.load()
	if err != nil {
		return nil, err
	}

	entries := mem[keyPrefix+userID]
	if n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return entries, nil
}

// Append adds an entry to userID's history, evicting the oldest
// entries beyond [MaxEntries], and rewrites the file.
func (s *Store) Append(userID, role, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mem, err := s.load()
	if err != nil {
		return err
	}

	key := keyPrefix + userID
	entries := append(mem[key], Entry{Role: role, Content: content})
	if len(entries) > MaxEntries {
		entries = entries[len(entries)-MaxEntries:]
	}
	mem[key] = entries

	return s.save(mem)
}

// load reads the whole memory file. A missing file is an empty map; a
// corrupt file is an error so a bad deploy doesn't silently wipe
// everyone's history.
func (s *Store) load() (map[string][]Entry, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return make(map[string][]Entry), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read memory file: %w", err)
	}

	mem := make(map[string][]Entry)
	if err := json.Unmarshal(data, &mem); err != nil {
		return nil, fmt.Errorf("parse memory file %s: %w", s.path, err)
	}
	return mem, nil
}

// save rewrites the whole memory file atomically.
func (s *Store) save(mem map[string][]Entry) error {
	data, err := json.MarshalIndent(mem, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal memory: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".memory-*.json")
	if err != nil {
		return fmt.Errorf("create temp memory file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write memory file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close memory file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace memory file: %w", err)
	}
	return nil
}

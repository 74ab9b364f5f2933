package statestore

import (
	"fmt"
	"os"
	"strings"
	"sync"
)

// EnvFileStore keeps pointers in a flat KEY=VALUE file (conventionally .env).
// Writes update matching keys in place and append missing ones; comments and
// unrelated lines are preserved byte-for-byte.
type EnvFileStore struct {
	path string
	mu   sync.Mutex
}

// NewEnvFileStore creates a store backed by the given file. The file does not
// need to exist yet; the first write creates it.
func NewEnvFileStore(path string) *EnvFileStore {
	return &EnvFileStore{path: path}
}

func (s *EnvFileStore) Get(role string) (string, error) {
	return s.lookup(envKey(role, suffixDevboxID))
}

func (s *EnvFileStore) Set(role, id string) error {
	return s.update(envKey(role, suffixDevboxID), id)
}

func (s *EnvFileStore) GetURL(role string) (string, error) {
	return s.lookup(envKey(role, suffixDevboxURL))
}

func (s *EnvFileStore) SetURL(role, url string) error {
	return s.update(envKey(role, suffixDevboxURL), url)
}

func (s *EnvFileStore) GetBlueprintID(role string) (string, error) {
	return s.lookup(envKey(role, suffixBlueprintID))
}

func (s *EnvFileStore) SetBlueprintID(role, id string) error {
	return s.update(envKey(role, suffixBlueprintID), id)
}

func (s *EnvFileStore) lookup(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", s.path, err)
	}

	prefix := key + "="
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, prefix) {
			return unquote(strings.TrimPrefix(line, prefix)), nil
		}
	}
	return "", nil
}

func (s *EnvFileStore) update(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var lines []string
	data, err := os.ReadFile(s.path)
	switch {
	case err == nil:
		lines = strings.Split(string(data), "\n")
		// Drop a single trailing empty element so rewriting does not grow
		// the file by one blank line per update.
		if n := len(lines); n > 0 && lines[n-1] == "" {
			lines = lines[:n-1]
		}
	case os.IsNotExist(err):
		lines = nil
	default:
		return fmt.Errorf("reading %s: %w", s.path, err)
	}

	prefix := key + "="
	updated := false
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), prefix) {
			lines[i] = prefix + value
			updated = true
		}
	}
	if !updated {
		lines = append(lines, prefix+value)
	}

	out := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(s.path, []byte(out), 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", s.path, err)
	}
	return nil
}

// unquote strips one level of surrounding quotes, tolerating files written
// by hand or by other tooling.
func unquote(v string) string {
	v = strings.TrimSpace(v)
	if len(v) >= 2 {
		if (v[0] == '"' && v[len(v)-1] == '"') || (v[0] == '\'' && v[len(v)-1] == '\'') {
			return v[1 : len(v)-1]
		}
	}
	return v
}

// Package config persists user settings and resolves the effective settings
// for one invocation.
//
// Settings live in a small YAML file, by default
// $XDG_CONFIG_HOME/unreviewed/config.yaml. Only a fixed set of keys is
// recognised; some hold a single string and some hold a list.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Recognised keys.
const (
	KeyAuthors   = "githubAuthors"
	KeyOrg       = "githubOrg"
	KeyToken     = "githubAuthToken"
	KeyExpiry    = "cacheExpiry"
	KeyAllRepos  = "allGithubRepos"
	appDirectory = "unreviewed"
	fileName     = "config.yaml"
)

// listKeys maps every recognised key to whether it holds a list.
var listKeys = map[string]bool{
	KeyAuthors:  true,
	KeyOrg:      false,
	KeyToken:    false,
	KeyExpiry:   false,
	KeyAllRepos: true,
}

// ErrValueCount is returned when a scalar key is given other than one value.
var ErrValueCount = errors.New("scalar setting takes exactly one value")

// KeyError reports an unrecognised configuration key.
type KeyError struct {
	Key string
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("unknown configuration key %q (valid keys: %s)", e.Key, strings.Join(Keys(), ", "))
}

// Keys returns every recognised key, sorted.
func Keys() []string {
	keys := make([]string, 0, len(listKeys))
	for k := range listKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IsList reports whether key holds a list. Unknown keys yield a *KeyError.
func IsList(key string) (bool, error) {
	list, ok := listKeys[key]
	if !ok {
		return false, &KeyError{Key: key}
	}
	return list, nil
}

// Value is the stored value of one key.
type Value struct {
	Key    string
	Values []string
	List   bool
}

// String renders the value the way it is entered on the command line.
func (v Value) String() string {
	return strings.Join(v.Values, ",")
}

// Masked returns the value with secrets hidden.
func (v Value) Masked() string {
	if v.Key == KeyToken {
		return Mask(v.String())
	}
	return v.String()
}

// Mask hides all but the last four characters of a secret.
func Mask(secret string) string {
	if len(secret) <= 4 {
		return strings.Repeat("*", len(secret))
	}
	return strings.Repeat("*", len(secret)-4) + secret[len(secret)-4:]
}

// DefaultPath returns the per-user configuration file path.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locating config directory: %w", err)
	}
	return filepath.Join(dir, appDirectory, fileName), nil
}

// Store reads and writes the configuration file.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore returns a Store backed by the file at path. The file need not exist.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Get returns the stored value of key. The bool is false when key is unset.
func (s *Store) Get(key string) (Value, bool, error) {
	list, err := IsList(key)
	if err != nil {
		return Value{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return Value{}, false, err
	}
	raw, ok := doc[key]
	if !ok {
		return Value{}, false, nil
	}
	return Value{Key: key, Values: normalize(raw), List: list}, true, nil
}

// Set stores values under key. List values may also be given comma-separated.
func (s *Store) Set(key string, values ...string) error {
	list, err := IsList(key)
	if err != nil {
		return err
	}
	values = splitValues(values)
	if !list && len(values) != 1 {
		return fmt.Errorf("%s: got %d values: %w", key, len(values), ErrValueCount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	if list {
		doc[key] = values
	} else {
		doc[key] = values[0]
	}
	return s.save(doc)
}

// Delete removes key. Deleting an unset key is not an error.
func (s *Store) Delete(key string) error {
	if _, err := IsList(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := doc[key]; !ok {
		return nil
	}
	delete(doc, key)
	return s.save(doc)
}

// List returns every stored recognised key. Unrecognised keys found in the
// file are skipped with a warning.
func (s *Store) List() (map[string]Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make(map[string]Value, len(doc))
	for key, raw := range doc {
		list, ok := listKeys[key]
		if !ok {
			slog.Warn("Ignoring unknown key in config file", "component", "config", "key", key, "path", s.path)
			continue
		}
		out[key] = Value{Key: key, Values: normalize(raw), List: list}
	}
	return out, nil
}

// load reads the file. A missing file is an empty document.
func (s *Store) load() (map[string]any, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string]any), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	doc := make(map[string]any)
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", s.path, err)
	}
	if doc == nil {
		doc = make(map[string]any)
	}
	return doc, nil
}

// save writes doc to a temporary file and renames it into place.
func (s *Store) save(doc map[string]any) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp config: %w", err)
	}
	tmpName := tmp.Name()
	if err := writeAndClose(tmp, data); err != nil {
		if rmErr := os.Remove(tmpName); rmErr != nil {
			slog.Debug("Failed to remove temp config", "component", "config", "path", tmpName, "error", rmErr)
		}
		return err
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		if rmErr := os.Remove(tmpName); rmErr != nil {
			slog.Debug("Failed to remove temp config", "component", "config", "path", tmpName, "error", rmErr)
		}
		return fmt.Errorf("replacing config: %w", err)
	}
	slog.Debug("Saved config", "component", "config", "path", s.path)
	return nil
}

func writeAndClose(f *os.File, data []byte) error {
	if err := f.Chmod(0o600); err != nil {
		_ = f.Close() //nolint:errcheck // already failing
		return fmt.Errorf("setting config permissions: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close() //nolint:errcheck // already failing
		return fmt.Errorf("writing config: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing config: %w", err)
	}
	return nil
}

// normalize converts a decoded YAML value to strings.
func normalize(raw any) []string {
	switch v := raw.(type) {
	case nil:
		return nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
		return out
	case []string:
		return v
	default:
		return []string{fmt.Sprint(v)}
	}
}

// splitValues expands comma-separated arguments and drops empty items.
func splitValues(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

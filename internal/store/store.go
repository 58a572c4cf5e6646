// Package store provides the resume-safe artifact store every pipeline phase
// reads from and writes to. Keys are slash-separated paths relative to the
// result root; writes go to a temp file and are renamed into place so readers
// never observe a partial payload.
package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNotFound is returned by Read when the key has no payload.
var ErrNotFound = errors.New("store: artifact not found")

// Store manages artifact IO rooted at one result directory.
type Store struct {
	root string
}

// New builds a store rooted at dir. The directory is created lazily on write.
func New(dir string) *Store {
	return &Store{root: filepath.Clean(dir)}
}

// Root returns the filesystem root of the store.
func (s *Store) Root() string {
	return s.root
}

// Path resolves a key to its filesystem path.
func (s *Store) Path(key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(key)), nil
}

// Has reports whether a payload exists for key.
func (s *Store) Has(key string) (bool, error) {
	p, err := s.Path(key)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("store: stat %s: %w", key, err)
	}
	if info.IsDir() {
		return false, fmt.Errorf("store: %s is a directory", key)
	}
	return true, nil
}

// Read returns the payload stored under key.
func (s *Store) Read(key string) ([]byte, error) {
	p, err := s.Path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("store: read %s: %w", key, err)
	}
	return data, nil
}

// Write atomically replaces the payload under key. Writing a payload that is
// byte-identical to the current one leaves the file untouched.
func (s *Store) Write(key string, payload []byte) error {
	p, err := s.Path(key)
	if err != nil {
		return err
	}
	if current, err := os.ReadFile(p); err == nil && bytes.Equal(current, payload) {
		return nil
	}
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("store: create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(p)+".tmp-*")
	if err != nil {
		return fmt.Errorf("store: temp for %s: %w", key, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("store: write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("store: close %s: %w", key, err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("store: rename %s: %w", key, err)
	}
	return nil
}

// Delete removes the payload under key. Deleting a missing key is a no-op.
func (s *Store) Delete(key string) error {
	p, err := s.Path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("store: delete %s: %w", key, err)
	}
	return nil
}

// List returns every key under prefix in lexicographic order. Temp files of
// in-flight writes are never listed.
func (s *Store) List(prefix string) ([]string, error) {
	dir := s.root
	if prefix != "" {
		if err := validateKey(strings.TrimSuffix(prefix, "/")); err != nil {
			return nil, err
		}
		dir = filepath.Join(s.root, filepath.FromSlash(strings.TrimSuffix(prefix, "/")))
	}
	var keys []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && p == dir {
				return fs.SkipDir
			}
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: list %s: %w", prefix, err)
	}
	sort.Strings(keys)
	return keys, nil
}

// ReadJSON decodes the payload under key into v.
func (s *Store) ReadJSON(key string, v any) error {
	data, err := s.Read(key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &CorruptError{Key: key, Err: err}
	}
	return nil
}

// WriteJSON encodes v with stable indentation and writes it under key.
func (s *Store) WriteJSON(key string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("store: encode %s: %w", key, err)
	}
	return s.Write(key, buf.Bytes())
}

// Missing filters keys down to those without a payload, preserving order.
func (s *Store) Missing(keys []string) ([]string, error) {
	var missing []string
	for _, k := range keys {
		ok, err := s.Has(k)
		if err != nil {
			return nil, err
		}
		if !ok {
			missing = append(missing, k)
		}
	}
	return missing, nil
}

// CorruptError reports a persisted artifact that no longer parses.
type CorruptError struct {
	Key string
	Err error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("store: %s does not parse: %v", e.Key, e.Err)
}

func (e *CorruptError) Unwrap() error {
	return e.Err
}

func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("store: empty key")
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return fmt.Errorf("store: key %q must be relative and slash-separated", key)
	}
	clean := path.Clean(key)
	if clean != key || clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("store: key %q is not canonical", key)
	}
	return nil
}

package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// FileStore persists settings as a JSON object. Every write rewrites the
// file through a temp file and rename, so readers never see a partial file.
//
// Suitable for single-instance deployments only.
type FileStore struct {
	path   string
	mu     sync.RWMutex
	values map[string]bool
}

// fileData is the on-disk layout.
type fileData struct {
	Settings map[string]bool `json:"settings"`
}

// NewFileStore opens or creates the JSON file at path.
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	s := &FileStore{path: path, values: make(map[string]bool)}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) load() error {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read settings file: %w", err)
	}
	if len(raw) == 0 {
		return nil
	}
	var data fileData
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("parse settings file: %w", err)
	}
	if data.Settings != nil {
		s.values = data.Settings
	}
	return nil
}

// flush must be called with the write lock held.
func (s *FileStore) flush() error {
	raw, err := json.MarshalIndent(fileData{Settings: s.values}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".settings-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace settings file: %w", err)
	}
	return nil
}

func (s *FileStore) GetBool(_ context.Context, key string, def bool) (bool, error) {
	if err := checkKey(key); err != nil {
		return def, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok {
		return def, nil
	}
	return v, nil
}

func (s *FileStore) SetBool(_ context.Context, key string, v bool) error {
	if err := checkKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, had := s.values[key]
	s.values[key] = v
	if err := s.flush(); err != nil {
		if had {
			s.values[key] = prev
		} else {
			delete(s.values, key)
		}
		return err
	}
	return nil
}

func (s *FileStore) AddBool(_ context.Context, key string, v bool) (bool, error) {
	if err := checkKey(key); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; ok {
		return false, nil
	}
	s.values[key] = v
	if err := s.flush(); err != nil {
		delete(s.values, key)
		return false, err
	}
	return true, nil
}

func (s *FileStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := make(map[string]bool)
	for _, k := range keys {
		if v, ok := s.values[k]; ok {
			removed[k] = v
			delete(s.values, k)
		}
	}
	if len(removed) == 0 {
		return nil
	}
	if err := s.flush(); err != nil {
		for k, v := range removed {
			s.values[k] = v
		}
		return err
	}
	return nil
}

func (s *FileStore) Keys(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *FileStore) Close() error { return nil }

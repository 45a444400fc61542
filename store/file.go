package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/vapvarun/fymodules"
)

// Format is the encoding of a state file.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatFor picks the format from the file extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

type fileDocument struct {
	Modules map[string]fymodules.Record `json:"modules" yaml:"modules" toml:"modules"`
}

// FileStore keeps every module record in one JSON, YAML or TOML file.
// Writes replace the file atomically through a rename.
//
// Without Watch the file is read on every Get. While Watch runs the decoded
// document is cached and dropped whenever the file changes on disk.
type FileStore struct {
	path   string
	format Format
	logger fymodules.Logger

	mu       sync.Mutex
	watching bool
	cache    map[string]fymodules.Record
}

// NewFileStore creates a store over path. The file need not exist yet.
func NewFileStore(path string, logger fymodules.Logger) (*FileStore, error) {
	format, err := FormatFor(path)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve store path: %w", err)
	}
	if logger == nil {
		logger = fymodules.NopLogger()
	}
	return &FileStore{path: abs, format: format, logger: logger}, nil
}

// Path returns the absolute path of the state file.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Get(_ context.Context, id string) (fymodules.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.readLocked()
	if err != nil {
		return fymodules.Record{}, false, err
	}
	rec, ok := records[id]
	if !ok {
		return fymodules.Record{}, false, nil
	}
	return rec.Clone(), true, nil
}

func (s *FileStore) Put(_ context.Context, id string, rec fymodules.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.readLocked()
	if err != nil {
		return err
	}
	next := maps.Clone(records)
	next[id] = rec.Clone()

	if err := s.writeLocked(next); err != nil {
		return err
	}
	if s.watching {
		s.cache = next
	}
	return nil
}

// Watch caches the document and invalidates the cache on every change to
// the file until ctx is done. onChange, when set, runs after each change,
// including the store's own writes. Watch returns once the watcher is
// installed.
func (s *FileStore) Watch(ctx context.Context, onChange func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	// Watch the directory so atomic renames over the file are seen.
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		_ = w.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(s.path), err)
	}

	s.mu.Lock()
	s.watching = true
	s.cache = nil
	s.mu.Unlock()

	go func() {
		defer func() {
			_ = w.Close()
			s.mu.Lock()
			s.watching = false
			s.cache = nil
			s.mu.Unlock()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != s.path {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
					continue
				}
				s.mu.Lock()
				s.cache = nil
				s.mu.Unlock()
				s.logger.Debug("Module state file changed", "path", s.path, "op", ev.Op.String())
				if onChange != nil {
					onChange()
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				s.logger.Error("Module state file watcher error", "path", s.path, "error", err)
			}
		}
	}()
	return nil
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) readLocked() (map[string]fymodules.Record, error) {
	if s.watching && s.cache != nil {
		return s.cache, nil
	}

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]fymodules.Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}

	var doc fileDocument
	if len(bytes.TrimSpace(data)) > 0 {
		if err := s.decode(data, &doc); err != nil {
			return nil, fmt.Errorf("decode %s: %w", s.path, err)
		}
	}
	if doc.Modules == nil {
		doc.Modules = map[string]fymodules.Record{}
	}
	if s.watching {
		s.cache = doc.Modules
	}
	return doc.Modules, nil
}

func (s *FileStore) decode(data []byte, doc *fileDocument) error {
	switch s.format {
	case FormatYAML:
		return yaml.Unmarshal(data, doc)
	case FormatTOML:
		_, err := toml.Decode(string(data), doc)
		return err
	default:
		return json.Unmarshal(data, doc)
	}
}

func (s *FileStore) encode(doc fileDocument) ([]byte, error) {
	switch s.format {
	case FormatYAML:
		return yaml.Marshal(doc)
	case FormatTOML:
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(doc); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return json.MarshalIndent(doc, "", "  ")
	}
}

func (s *FileStore) writeLocked(records map[string]fymodules.Record) error {
	data, err := s.encode(fileDocument{Modules: records})
	if err != nil {
		return fmt.Errorf("encode %s: %w", s.path, err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace %s: %w", s.path, err)
	}
	return nil
}

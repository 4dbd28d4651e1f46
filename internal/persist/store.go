// Package persist stores the local participant's preferences between runs.
package persist

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"pkt.systems/codesync/schema"
	"pkt.systems/pslog"
)

// Backend names accepted by Open.
const (
	BackendFile = "file"
	BackendBolt = "bolt"
)

// ErrUnknownBackend is returned by Open for an unsupported backend name.
var ErrUnknownBackend = errors.New("unknown prefs backend")

// Prefs is the persisted local identity and appearance.
type Prefs struct {
	ParticipantID schema.ParticipantID `json:"participant_id,omitempty"`
	DisplayName   schema.DisplayName   `json:"display_name,omitempty"`
	Theme         schema.ThemeName     `json:"theme,omitempty"`
}

// Store loads and saves Prefs.
type Store interface {
	Load() (Prefs, bool, error)
	Save(prefs Prefs) error
	Close() error
}

// Open returns the store for backend rooted at dir. An empty backend selects
// the file store.
func Open(backend, dir string, logger pslog.Logger) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendFile:
		return NewFileStoreWithLogger(dir, logger)
	case BackendBolt:
		return NewBoltStoreWithLogger(dir, logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}

// FileStore persists prefs as a JSON document.
type FileStore struct {
	path string
	log  pslog.Logger
}

// NewFileStore constructs a file store in dir.
func NewFileStore(dir string) (*FileStore, error) {
	return NewFileStoreWithLogger(dir, nil)
}

// NewFileStoreWithLogger constructs a file store with logging.
func NewFileStoreWithLogger(dir string, logger pslog.Logger) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("state directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	if logger != nil {
		logger = logger.With("state_dir", dir, "backend", BackendFile)
	}
	return &FileStore{path: filepath.Join(dir, "prefs.json"), log: logger}, nil
}

// Load reads prefs from disk. A missing file reports ok=false.
func (s *FileStore) Load() (Prefs, bool, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.debug("prefs load miss")
			return Prefs{}, false, nil
		}
		s.warn("prefs load failed", err)
		return Prefs{}, false, err
	}
	var prefs Prefs
	if err := json.Unmarshal(data, &prefs); err != nil {
		s.warn("prefs load failed", err)
		return Prefs{}, false, err
	}
	s.debug("prefs load ok", "participant", prefs.ParticipantID)
	return prefs, true, nil
}

// Save writes prefs atomically.
func (s *FileStore) Save(prefs Prefs) error {
	data, err := json.MarshalIndent(prefs, "", "  ")
	if err != nil {
		s.warn("prefs save failed", err)
		return err
	}
	if err := writeAtomic(s.path, data); err != nil {
		s.warn("prefs save failed", err)
		return err
	}
	if s.log != nil {
		s.log.Trace("prefs save ok", "participant", prefs.ParticipantID)
	}
	return nil
}

// Close is a no-op for the file store.
func (s *FileStore) Close() error { return nil }

func (s *FileStore) debug(msg string, kv ...any) {
	if s.log != nil {
		s.log.Debug(msg, kv...)
	}
}

func (s *FileStore) warn(msg string, err error) {
	if s.log != nil {
		s.log.Warn(msg, "err", err)
	}
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "prefs-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

package persist

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"pkt.systems/codesync/schema"
	"pkt.systems/pslog"
)

var prefsBucket = []byte("prefs")

const (
	keyParticipant = "participant_id"
	keyDisplayName = "display_name"
	keyTheme       = "theme"
)

// BoltStore persists prefs as keys in a bbolt database.
type BoltStore struct {
	db  *bolt.DB
	log pslog.Logger
}

// NewBoltStore opens prefs.db in dir.
func NewBoltStore(dir string) (*BoltStore, error) {
	return NewBoltStoreWithLogger(dir, nil)
}

// NewBoltStoreWithLogger opens prefs.db in dir with logging.
func NewBoltStoreWithLogger(dir string, logger pslog.Logger) (*BoltStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("state directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	db, err := bolt.Open(filepath.Join(dir, "prefs.db"), 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(prefsBucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	if logger != nil {
		logger = logger.With("state_dir", dir, "backend", BackendBolt)
	}
	return &BoltStore{db: db, log: logger}, nil
}

// Load reads prefs. An empty bucket reports ok=false.
func (s *BoltStore) Load() (Prefs, bool, error) {
	var prefs Prefs
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(prefsBucket)
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(keyParticipant)); v != nil {
			prefs.ParticipantID = schema.ParticipantID(v)
			found = true
		}
		if v := b.Get([]byte(keyDisplayName)); v != nil {
			prefs.DisplayName = schema.DisplayName(v)
			found = true
		}
		if v := b.Get([]byte(keyTheme)); v != nil {
			prefs.Theme = schema.ThemeName(v)
			found = true
		}
		return nil
	})
	if err != nil {
		if s.log != nil {
			s.log.Warn("prefs load failed", "err", err)
		}
		return Prefs{}, false, err
	}
	if s.log != nil {
		s.log.Debug("prefs load ok", "found", found, "participant", prefs.ParticipantID)
	}
	return prefs, found, nil
}

// Save writes every field in one transaction. Empty fields are deleted.
func (s *BoltStore) Save(prefs Prefs) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(prefsBucket)
		if err != nil {
			return err
		}
		for key, value := range map[string]string{
			keyParticipant: string(prefs.ParticipantID),
			keyDisplayName: string(prefs.DisplayName),
			keyTheme:       string(prefs.Theme),
		} {
			if value == "" {
				if err := b.Delete([]byte(key)); err != nil {
					return err
				}
				continue
			}
			if err := b.Put([]byte(key), []byte(value)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if s.log != nil {
			s.log.Warn("prefs save failed", "err", err)
		}
		return err
	}
	if s.log != nil {
		s.log.Trace("prefs save ok", "participant", prefs.ParticipantID)
	}
	return nil
}

// Close releases the database file lock.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

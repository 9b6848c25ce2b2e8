// Package selection persists the confirmed input device.
package selection

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/yok-tottii/mic-calibrator/internal/audio"
)

// ErrNotFound indicates no selection has been saved yet.
var ErrNotFound = errors.New("no saved selection")

// ErrIO indicates the selection could not be read or written.
var ErrIO = errors.New("selection store I/O error")

// Record is the persisted device choice
type Record struct {
	DeviceID    int       `json:"device_id"`
	DeviceName  string    `json:"device_name"`
	ConfirmedAt time.Time `json:"confirmed_at"`
	Machine     string    `json:"machine,omitempty"`
}

// NewRecord builds a record for device stamped with the local host name
func NewRecord(device audio.Device, confirmedAt time.Time) Record {
	host, err := os.Hostname()
	if err != nil {
		host = ""
	}
	return Record{
		DeviceID:    device.ID,
		DeviceName:  device.Name,
		ConfirmedAt: confirmedAt.UTC(),
		Machine:     host,
	}
}

// Store loads and saves the selection record
type Store interface {
	Load() (Record, error)
	Save(Record) error
}

// FileStore keeps the record in a JSON file.
// Save replaces the file atomically so readers see either the old or
// the new record.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a store at path
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the file location
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the saved record
func (s *FileStore) Load() (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("%w: %v", ErrIO, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("%w: failed to decode %s: %v", ErrIO, s.path, err)
	}
	return rec, nil
}

// Save overwrites the record
func (s *FileStore) Save(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeAtomic(s.path, rec); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	return nil
}

// writeAtomic encodes data to a temp file beside fname, syncs it and
// renames it over fname. The temp file is removed on any failure.
func writeAtomic(fname string, data any) error {
	dir := filepath.Dir(fname)
	tempFname := filepath.Join(dir, "."+filepath.Base(fname)+".new")

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("unable to create dest dir: %w", err)
	}

	f, err := os.Create(tempFname)
	if err != nil {
		return fmt.Errorf("unable to create temp file: %w", err)
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	err = enc.Encode(data)
	if err != nil {
		err = fmt.Errorf("unable to encode json contents: %w", err)
	}
	if err == nil {
		if err = f.Sync(); err != nil {
			err = fmt.Errorf("unable to fsync temp file: %w", err)
		}
	}
	if err == nil {
		err = f.Close()
		f = nil
		if err != nil {
			err = fmt.Errorf("unable to close temp file: %w", err)
		}
	}
	if err == nil {
		if err = os.Rename(tempFname, fname); err != nil {
			err = fmt.Errorf("unable to rename temp file to final file: %w", err)
		}
	}
	if err != nil {
		if f != nil {
			f.Close()
		}
		os.Remove(tempFname)
	}
	return err
}

// MatchKind describes how a saved record resolved against the current devices
type MatchKind string

const (
	// MatchExact means the id and name both still match
	MatchExact MatchKind = "exact"
	// MatchByName means the device is present under a different id
	MatchByName MatchKind = "by_name"
	// MatchNone means no present device corresponds to the record
	MatchNone MatchKind = "none"
)

// Match resolves rec against devices. Device ids are only stable for one
// OS session, so the name is used to find the device after a restart.
func Match(rec Record, devices []audio.Device) (audio.Device, MatchKind) {
	for _, d := range devices {
		if d.ID == rec.DeviceID && d.Name == rec.DeviceName {
			return d, MatchExact
		}
	}
	for _, d := range devices {
		if d.Name == rec.DeviceName {
			return d, MatchByName
		}
	}
	return audio.Device{}, MatchNone
}

package selection

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/yok-tottii/mic-calibrator/internal/audio"
)

func TestLoadNotFound(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "selection.json"))

	if _, err := store.Load(); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "selection.json")
	store := NewFileStore(path)

	confirmed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := Record{DeviceID: 3, DeviceName: "USB Mic", ConfirmedAt: confirmed, Machine: "den"}
	if err := store.Save(rec); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.DeviceID != 3 || loaded.DeviceName != "USB Mic" || !loaded.ConfirmedAt.Equal(confirmed) || loaded.Machine != "den" {
		t.Errorf("Unexpected record: %+v", loaded)
	}

	if _, err := os.Stat(filepath.Join(filepath.Dir(path), ".selection.json.new")); !os.IsNotExist(err) {
		t.Error("Expected temp file to be gone after Save")
	}
}

func TestSaveOverwrites(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "selection.json"))

	store.Save(Record{DeviceID: 1, DeviceName: "First"})
	store.Save(Record{DeviceID: 2, DeviceName: "Second"})

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.DeviceID != 2 || loaded.DeviceName != "Second" {
		t.Errorf("Expected second record, got %+v", loaded)
	}
}

func TestSaveFileFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "selection.json")
	store := NewFileStore(path)
	store.Save(Record{DeviceID: 5, DeviceName: "Desk"})

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Failed to decode file: %v", err)
	}
	for _, key := range []string{"device_id", "device_name", "confirmed_at"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("Expected key %q in saved file", key)
		}
	}
}

func TestSaveIOError(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("Failed to create blocker: %v", err)
	}

	store := NewFileStore(filepath.Join(blocker, "selection.json"))
	if err := store.Save(Record{DeviceID: 1}); !errors.Is(err, ErrIO) {
		t.Errorf("Expected ErrIO, got %v", err)
	}
}

func TestLoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "selection.json")
	os.WriteFile(path, []byte("{not json"), 0o644)

	if _, err := NewFileStore(path).Load(); !errors.Is(err, ErrIO) {
		t.Errorf("Expected ErrIO, got %v", err)
	}
}

func TestConcurrentReadersSeeWholeRecords(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "selection.json"))
	store.Save(Record{DeviceID: 0, DeviceName: "Device 0"})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 1; i <= 50; i++ {
			store.Save(Record{DeviceID: i, DeviceName: "Device"})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			if _, err := store.Load(); err != nil {
				t.Errorf("Load during writes failed: %v", err)
				return
			}
		}
	}()
	wg.Wait()
}

func TestNewRecord(t *testing.T) {
	now := time.Now()
	rec := NewRecord(audio.Device{ID: 4, Name: "Array"}, now)

	if rec.DeviceID != 4 || rec.DeviceName != "Array" {
		t.Errorf("Unexpected record: %+v", rec)
	}
	if !rec.ConfirmedAt.Equal(now) {
		t.Errorf("Expected confirmedAt %v, got %v", now, rec.ConfirmedAt)
	}
}

func TestMatch(t *testing.T) {
	devices := []audio.Device{
		{ID: 1, Name: "Built-in"},
		{ID: 4, Name: "USB Mic"},
	}

	tests := []struct {
		name     string
		rec      Record
		kind     MatchKind
		expected int
	}{
		{"same id and name", Record{DeviceID: 4, DeviceName: "USB Mic"}, MatchExact, 4},
		{"renumbered after restart", Record{DeviceID: 2, DeviceName: "USB Mic"}, MatchByName, 4},
		{"id reused by another device", Record{DeviceID: 1, DeviceName: "Headset"}, MatchNone, 0},
	}

	for _, test := range tests {
		d, kind := Match(test.rec, devices)
		if kind != test.kind {
			t.Errorf("%s: expected %s, got %s", test.name, test.kind, kind)
		}
		if kind != MatchNone && d.ID != test.expected {
			t.Errorf("%s: expected device %d, got %d", test.name, test.expected, d.ID)
		}
	}
}

package mute

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rogpeppe/go-internal/lockedfile"
)

// FlagFileSuspender marks speech as suspended by the presence of a file.
// The speech process polls the file. Ownership across processes is a
// lockedfile lock on "<path>.lock" held from Suspend until Resume; the OS
// drops it if the holder dies.
type FlagFileSuspender struct {
	path string
	now  func() time.Time
	wait time.Duration

	mu   sync.Mutex
	lock *lockedfile.File
}

// defaultLockWait bounds how long Suspend waits for another holder
const defaultLockWait = 200 * time.Millisecond

// NewFlagFileSuspender creates a suspender using the flag file at path
func NewFlagFileSuspender(path string) *FlagFileSuspender {
	return &FlagFileSuspender{path: path, now: time.Now, wait: defaultLockWait}
}

type flagRecord struct {
	PID         int       `json:"pid"`
	SuspendedAt time.Time `json:"suspended_at"`
}

// Suspend takes the lock and writes the flag file.
// It returns ErrAlreadyHeld when another process or suspender holds the lock.
func (s *FlagFileSuspender) Suspend(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lock != nil {
		return ErrAlreadyHeld
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create flag directory: %w", err)
	}

	lock, err := lockFlag(ctx, s.path+".lock", s.wait)
	if err != nil {
		return err
	}

	data, err := json.Marshal(flagRecord{PID: os.Getpid(), SuspendedAt: s.now().UTC()})
	if err == nil {
		err = lockedfile.Write(s.path, bytes.NewReader(data), 0o644)
	}
	if err != nil {
		lock.Close()
		return fmt.Errorf("failed to write flag file: %w", err)
	}

	s.lock = lock
	return nil
}

// Resume removes the flag file and drops the lock.
// Without the lock it does nothing, so it never clears another holder's flag.
func (s *FlagFileSuspender) Resume(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lock == nil {
		return nil
	}
	defer func() {
		s.lock.Close()
		s.lock = nil
	}()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove flag file: %w", err)
	}
	return nil
}

// lockFlag locks path, waiting at most wait for a current holder to let go
func lockFlag(ctx context.Context, path string, wait time.Duration) (*lockedfile.File, error) {
	wctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	cf := make(chan *lockedfile.File)
	cerr := make(chan error)
	go func() {
		f, err := lockedfile.Create(path)
		if err != nil {
			cerr <- err
		} else {
			cf <- f
		}
	}()

	select {
	case f := <-cf:
		host, _ := os.Hostname()
		fmt.Fprintf(f, "PID=%d\nHost=%q\n", os.Getpid(), host)
		return f, nil

	case err := <-cerr:
		return nil, fmt.Errorf("failed to lock flag file: %w", err)

	case <-wctx.Done():
		// The lock may still be granted later; close it when it is.
		go func() {
			select {
			case <-cerr:
			case f := <-cf:
				f.Close()
			}
		}()
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, ErrAlreadyHeld
	}
}

// Suspended reports whether the flag file is present
func (s *FlagFileSuspender) Suspended() (bool, error) {
	if _, err := lockedfile.Read(s.path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read flag file: %w", err)
	}
	return true, nil
}

// HTTPSuspender asks the assistant daemon to pause and resume speech
type HTTPSuspender struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSuspender creates a suspender for the daemon at baseURL
func NewHTTPSuspender(baseURL string, client *http.Client) *HTTPSuspender {
	if client == nil {
		client = &http.Client{Timeout: 3 * time.Second}
	}
	return &HTTPSuspender{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// Suspend calls POST /tts/suspend
func (s *HTTPSuspender) Suspend(ctx context.Context) error {
	return s.post(ctx, "/tts/suspend")
}

// Resume calls POST /tts/resume
func (s *HTTPSuspender) Resume(ctx context.Context) error {
	return s.post(ctx, "/tts/resume")
}

func (s *HTTPSuspender) post(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("%s returned status %d", path, resp.StatusCode)
	}
	return nil
}

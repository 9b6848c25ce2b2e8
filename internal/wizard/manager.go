package wizard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/yok-tottii/mic-calibrator/internal/audio"
	"github.com/yok-tottii/mic-calibrator/internal/selection"
)

// DefaultRetention is how long finished sessions stay queryable
const DefaultRetention = 10 * time.Minute

// Manager owns the calibration sessions and serves the inbound operations
type Manager struct {
	deps      Deps
	retention time.Duration

	mu   sync.RWMutex
	opts Options

	sessions *xsync.MapOf[string, *Session]
}

// NewManager creates a session manager
func NewManager(deps Deps, opts Options, retention time.Duration) *Manager {
	deps.normalize()
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Manager{
		deps:      deps,
		retention: retention,
		opts:      opts,
		sessions:  xsync.NewMapOf[string, *Session](),
	}
}

// SetOptions replaces the options used by sessions started afterwards
func (m *Manager) SetOptions(opts Options) error {
	if err := opts.Weights.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opts = opts
	return nil
}

// Options returns the options for the next session
func (m *Manager) Options() Options {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.opts
}

// StartSession begins a calibration session.
// ErrAlreadyHeld is returned while another session holds the mute flag.
func (m *Manager) StartSession(ctx context.Context) (Snapshot, error) {
	m.prune()

	s, err := Start(ctx, m.deps, m.Options())
	if s == nil {
		return Snapshot{}, err
	}
	m.sessions.Store(s.ID(), s)
	return s.Snapshot(), err
}

// Session returns the session with id
func (m *Manager) Session(id string) (*Session, error) {
	s, ok := m.sessions.Load(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// GetStatus returns the snapshot of session id
func (m *Manager) GetStatus(id string) (Snapshot, error) {
	s, err := m.Session(id)
	if err != nil {
		return Snapshot{}, err
	}
	return s.Snapshot(), nil
}

// Subscribe streams the snapshots of session id
func (m *Manager) Subscribe(id string) (<-chan Snapshot, func(), error) {
	s, err := m.Session(id)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := s.Subscribe()
	return ch, cancel, nil
}

// Confirm confirms deviceID for session id
func (m *Manager) Confirm(ctx context.Context, id string, deviceID int) (Snapshot, error) {
	s, err := m.Session(id)
	if err != nil {
		return Snapshot{}, err
	}
	return s.Confirm(ctx, deviceID)
}

// Retest re-runs the device tests of session id
func (m *Manager) Retest(ctx context.Context, id string, reenumerate bool) (Snapshot, error) {
	s, err := m.Session(id)
	if err != nil {
		return Snapshot{}, err
	}
	return s.Retest(ctx, reenumerate)
}

// Abort aborts session id
func (m *Manager) Abort(ctx context.Context, id string) (Snapshot, error) {
	s, err := m.Session(id)
	if err != nil {
		return Snapshot{}, err
	}
	return s.Abort(ctx)
}

// Active returns the session that has not reached a terminal state, if any
func (m *Manager) Active() (*Session, bool) {
	var active *Session
	m.sessions.Range(func(_ string, s *Session) bool {
		if !s.Snapshot().State.Terminal() {
			active = s
			return false
		}
		return true
	})
	return active, active != nil
}

// AbortActive aborts the active session if there is one
func (m *Manager) AbortActive(ctx context.Context) (Snapshot, bool, error) {
	s, ok := m.Active()
	if !ok {
		return Snapshot{}, false, nil
	}
	snap, err := s.Abort(ctx)
	return snap, true, err
}

// Devices lists the current input devices
func (m *Manager) Devices(ctx context.Context) ([]audio.Device, error) {
	return m.deps.Catalog.List(ctx)
}

// Selection returns the saved selection
func (m *Manager) Selection() (selection.Record, error) {
	return m.deps.Store.Load()
}

// UseDevice saves deviceID as the selection without calibrating.
// It is refused while a session is running.
func (m *Manager) UseDevice(ctx context.Context, deviceID int) (selection.Record, error) {
	if _, ok := m.Active(); ok {
		return selection.Record{}, ErrSessionBusy
	}

	devices, err := m.deps.Catalog.List(ctx)
	if err != nil {
		return selection.Record{}, fmt.Errorf("failed to list devices: %w", err)
	}

	for _, d := range devices {
		if d.ID != deviceID {
			continue
		}
		rec := selection.NewRecord(d, m.deps.Now())
		if err := m.deps.Store.Save(rec); err != nil {
			return selection.Record{}, fmt.Errorf("%w: %w", ErrPersist, err)
		}
		m.deps.Logger.Info("manually selected device %d (%s)", d.ID, d.Name)
		return rec, nil
	}

	return selection.Record{}, fmt.Errorf("%w: device %d is not a present input device", ErrInvalidSelection, deviceID)
}

// Close aborts every running session
func (m *Manager) Close(ctx context.Context) {
	m.sessions.Range(func(_ string, s *Session) bool {
		s.Abort(ctx)
		return true
	})
}

// prune drops finished sessions older than the retention period
func (m *Manager) prune() {
	cutoff := m.deps.Now().Add(-m.retention)
	m.sessions.Range(func(id string, s *Session) bool {
		snap := s.Snapshot()
		if snap.State.Terminal() && snap.CompletedAt != nil && snap.CompletedAt.Before(cutoff) {
			m.sessions.Delete(id)
		}
		return true
	})
}

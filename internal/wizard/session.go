package wizard

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yok-tottii/mic-calibrator/internal/audio"
	"github.com/yok-tottii/mic-calibrator/internal/logger"
	"github.com/yok-tottii/mic-calibrator/internal/measure"
	"github.com/yok-tottii/mic-calibrator/internal/metrics"
	"github.com/yok-tottii/mic-calibrator/internal/mute"
	"github.com/yok-tottii/mic-calibrator/internal/selection"
)

// releaseTimeout bounds the mute release on every exit path
const releaseTimeout = 3 * time.Second

// advisoryTolerance is the score gap above which a service score is logged
const advisoryTolerance = 0.05

// DeviceLister returns the normalized input devices
type DeviceLister interface {
	List(ctx context.Context) ([]audio.Device, error)
}

// MuteResource grants exclusive ownership of the speech suspended flag
type MuteResource interface {
	Acquire(ctx context.Context) (mute.Token, error)
	Release(ctx context.Context, token mute.Token) error
}

// Deps are the collaborators of a session
type Deps struct {
	Catalog DeviceLister
	Client  measure.Client
	Mute    MuteResource
	Store   selection.Store
	Logger  *logger.Logger
	Metrics *metrics.Calibration
	Now     func() time.Time
}

func (d *Deps) normalize() {
	if d.Logger == nil {
		d.Logger = logger.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
}

// Options tune a single session
type Options struct {
	Budget      time.Duration
	Weights     Weights
	AutoConfirm bool
}

// DefaultOptions returns the stock session options
func DefaultOptions() Options {
	return Options{
		Budget:  measure.DefaultBudget,
		Weights: DefaultWeights(),
	}
}

// Session is one run of the calibration wizard.
// All transitions are serialized by mu; device tests run on a single
// goroutine owned by the session.
type Session struct {
	id   string
	deps Deps
	opts Options
	log  *logger.Logger

	mu          sync.Mutex
	state       State
	confirming  bool
	gen         uint64
	cancelRun   context.CancelFunc
	devices     []audio.Device
	results     map[int]Result
	ranked      []ScoredDevice
	chosen      *int
	previous    *selection.Record
	abortReason AbortReason
	lastErr     string
	startedAt   time.Time
	completedAt time.Time
	token       mute.Token
	muteHeld    bool

	subs   map[int]chan Snapshot
	nextID int
}

// Start runs Preflight and Enumerating and launches device testing.
// A mute acquisition failure returns a nil session. When enumeration
// finds nothing, the aborted session is returned with ErrNoInputDevices.
func Start(ctx context.Context, deps Deps, opts Options) (*Session, error) {
	deps.normalize()
	if opts.Budget <= 0 {
		opts.Budget = measure.DefaultBudget
	}
	if err := opts.Weights.Validate(); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	s := &Session{
		id:        id,
		deps:      deps,
		opts:      opts,
		log:       deps.Logger.Named("wizard").With("session", id),
		state:     Preflight,
		results:   make(map[int]Result),
		startedAt: deps.Now(),
		subs:      make(map[int]chan Snapshot),
	}

	token, err := deps.Mute.Acquire(ctx)
	if err != nil {
		s.log.Warn("preflight failed: %v", err)
		return nil, fmt.Errorf("preflight: %w", err)
	}
	s.token = token
	s.muteHeld = true
	deps.Metrics.SessionStarted()
	s.log.Info("calibration started")

	if rec, err := deps.Store.Load(); err == nil {
		s.previous = &rec
	} else if !errors.Is(err, selection.ErrNotFound) {
		s.log.Warn("failed to load previous selection: %v", err)
	}

	s.mu.Lock()
	s.state = Enumerating
	gen := s.gen
	s.mu.Unlock()

	if err := s.enumerate(ctx, gen); err != nil {
		return s, err
	}
	return s, nil
}

// ID returns the session id
func (s *Session) ID() string {
	return s.id
}

// Snapshot returns the current state of the session
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// enumerate lists devices and starts testing. The session must be in
// Enumerating with generation gen; mu must not be held.
func (s *Session) enumerate(ctx context.Context, gen uint64) error {
	devices, listErr := s.deps.Catalog.List(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen != gen || s.state != Enumerating {
		return ErrSessionClosed
	}

	if listErr != nil && ctx.Err() != nil {
		err := fmt.Errorf("%w: %w", ErrAborted, ctx.Err())
		s.abortLocked(ctx, ReasonCancelled, err)
		return err
	}
	if listErr != nil || len(devices) == 0 {
		err := ErrNoInputDevices
		if listErr != nil {
			err = fmt.Errorf("%w: %w", ErrNoInputDevices, listErr)
		}
		s.abortLocked(ctx, ReasonNoInputDevices, err)
		return err
	}

	s.devices = devices
	s.log.Info("found %d input devices", len(devices))
	s.startTestingLocked()
	return nil
}

// startTestingLocked launches the testing goroutine. s.mu must be held.
func (s *Session) startTestingLocked() {
	s.gen++
	s.state = Testing
	s.results = make(map[int]Result, len(s.devices))
	s.ranked = nil
	s.chosen = nil
	s.lastErr = ""

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancelRun = cancel
	devices := append([]audio.Device(nil), s.devices...)
	go s.run(runCtx, s.gen, devices)

	s.publishLocked()
}

// run tests devices one after another in catalog order
func (s *Session) run(ctx context.Context, gen uint64, devices []audio.Device) {
	for _, d := range devices {
		if ctx.Err() != nil {
			return
		}

		started := s.deps.Now()
		tctx, cancel := context.WithTimeout(ctx, s.opts.Budget)
		m, err := s.deps.Client.Test(tctx, d.ID, s.opts.Budget)
		timedOut := errors.Is(tctx.Err(), context.DeadlineExceeded)
		cancel()

		if ctx.Err() != nil {
			// aborted; the result is stale
			return
		}

		var res Result
		outcome := "ok"
		if err != nil {
			reason := measure.Classify(err)
			if timedOut {
				reason = measure.ReasonTimeout
			}
			res = Failed{DeviceID: d.ID, Reason: reason, Detail: err.Error()}
			outcome = string(reason)
			s.log.Warn("device %d (%s) failed: %v", d.ID, d.Name, err)
		} else {
			m.DeviceID = d.ID
			res = Measured{Metrics: m}
			s.log.Debug("device %d (%s) measured: %+v", d.ID, d.Name, m)
		}
		s.deps.Metrics.DeviceTested(outcome, s.deps.Now().Sub(started))

		if !s.record(gen, d.ID, res) {
			return
		}
	}

	s.finishTesting(gen)
}

// record stores a result unless the run was superseded
func (s *Session) record(gen uint64, deviceID int, res Result) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen != gen || s.state != Testing {
		return false
	}
	if _, dup := s.results[deviceID]; dup {
		return true
	}
	s.results[deviceID] = res
	s.publishLocked()
	return true
}

// finishTesting scores the run and moves to Scored or Aborted
func (s *Session) finishTesting(gen uint64) {
	s.mu.Lock()
	if s.gen != gen || s.state != Testing {
		s.mu.Unlock()
		return
	}
	s.cancelRun = nil

	ranked := Rank(s.devices, s.results, s.opts.Weights)
	if len(ranked) == 0 {
		s.abortLocked(context.Background(), ReasonAllDevicesFailed, ErrAllDevicesFailed)
		s.mu.Unlock()
		return
	}

	for _, r := range ranked {
		if adv := r.Metrics.AdvisoryScore; adv != nil && math.Abs(*adv-r.Score) > advisoryTolerance {
			s.log.Debug("device %d: service score %.3f differs from computed %.3f", r.Device.ID, *adv, r.Score)
		}
	}

	s.ranked = ranked
	best := ranked[0].Device.ID
	s.chosen = &best
	s.state = Scored
	s.log.Info("scored %d devices, suggesting device %d (%.3f)", len(ranked), best, ranked[0].Score)
	s.publishLocked()
	auto := s.opts.AutoConfirm
	s.mu.Unlock()

	if auto {
		if _, err := s.Confirm(context.Background(), best); err != nil {
			s.log.Error("auto-confirm failed: %v", err)
		}
	}
}

// Confirm persists deviceID as the selection.
// Confirming the already confirmed device again is a no-op.
func (s *Session) Confirm(ctx context.Context, deviceID int) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.confirming:
		return s.snapshotLocked(), ErrSessionBusy
	case s.state == Confirmed:
		if s.chosen != nil && *s.chosen == deviceID {
			return s.snapshotLocked(), nil
		}
		return s.snapshotLocked(), fmt.Errorf("%w: device %d already confirmed", ErrSessionClosed, *s.chosen)
	case s.state == Aborted:
		return s.snapshotLocked(), ErrSessionClosed
	case s.state != Scored:
		return s.snapshotLocked(), ErrSessionBusy
	}

	if _, ok := s.results[deviceID].(Measured); !ok {
		return s.snapshotLocked(), fmt.Errorf("%w: device %d has no successful result", ErrInvalidSelection, deviceID)
	}
	var device audio.Device
	for _, d := range s.devices {
		if d.ID == deviceID {
			device = d
			break
		}
	}

	s.confirming = true
	now := s.deps.Now()
	rec := selection.NewRecord(device, now)
	s.mu.Unlock()

	saveErr := s.deps.Store.Save(rec)

	s.mu.Lock()
	s.confirming = false
	if saveErr != nil {
		s.lastErr = saveErr.Error()
		s.log.Error("failed to save selection: %v", saveErr)
		s.publishLocked()
		return s.snapshotLocked(), fmt.Errorf("%w: %w", ErrPersist, saveErr)
	}

	s.chosen = &deviceID
	s.state = Confirmed
	s.completedAt = now
	s.lastErr = ""
	s.releaseMuteLocked(ctx)
	s.deps.Metrics.SessionFinished(Confirmed.String(), "")
	s.log.Info("confirmed device %d (%s)", device.ID, device.Name)
	s.publishLocked()
	return s.snapshotLocked(), nil
}

// Retest discards results and tests again. With reenumerate the device
// list is refreshed first.
func (s *Session) Retest(ctx context.Context, reenumerate bool) (Snapshot, error) {
	s.mu.Lock()

	switch {
	case s.state.Terminal():
		defer s.mu.Unlock()
		return s.snapshotLocked(), ErrSessionClosed
	case s.confirming, s.state != Scored:
		defer s.mu.Unlock()
		return s.snapshotLocked(), ErrSessionBusy
	}

	s.log.Info("retest requested (reenumerate: %v)", reenumerate)
	if !reenumerate {
		s.startTestingLocked()
		defer s.mu.Unlock()
		return s.snapshotLocked(), nil
	}

	s.gen++
	s.state = Enumerating
	s.results = make(map[int]Result)
	s.ranked = nil
	s.chosen = nil
	gen := s.gen
	s.publishLocked()
	s.mu.Unlock()

	err := s.enumerate(ctx, gen)
	return s.Snapshot(), err
}

// Abort ends the session and releases the mute flag before returning.
// Aborting an aborted session is a no-op.
func (s *Session) Abort(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.state == Aborted:
		return s.snapshotLocked(), nil
	case s.state == Confirmed:
		return s.snapshotLocked(), ErrSessionClosed
	case s.confirming:
		return s.snapshotLocked(), ErrSessionBusy
	}

	s.abortLocked(ctx, ReasonCancelled, nil)
	return s.snapshotLocked(), nil
}

// abortLocked moves to Aborted. s.mu must be held.
func (s *Session) abortLocked(ctx context.Context, reason AbortReason, cause error) {
	s.gen++
	if s.cancelRun != nil {
		s.cancelRun()
		s.cancelRun = nil
	}
	s.state = Aborted
	s.abortReason = reason
	s.chosen = nil
	s.completedAt = s.deps.Now()
	if cause != nil {
		s.lastErr = cause.Error()
	}
	s.releaseMuteLocked(ctx)
	s.deps.Metrics.SessionFinished(Aborted.String(), string(reason))
	s.log.Info("calibration aborted: %s", reason)
	s.publishLocked()
}

// releaseMuteLocked releases the mute flag at most once. s.mu must be held.
func (s *Session) releaseMuteLocked(ctx context.Context) {
	if !s.muteHeld {
		return
	}
	s.muteHeld = false

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := s.deps.Mute.Release(rctx, s.token); err != nil {
		s.log.Error("failed to release mute: %v", err)
	}
}

// Subscribe returns a channel receiving a snapshot after every change.
// The channel holds only the latest snapshot; slow readers skip
// intermediate ones. The current snapshot is delivered immediately.
func (s *Session) Subscribe() (<-chan Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan Snapshot, 1)
	ch <- s.snapshotLocked()
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if _, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(ch)
			}
		})
	}
}

// publishLocked sends the current snapshot to subscribers. s.mu must be held.
func (s *Session) publishLocked() {
	if len(s.subs) == 0 {
		return
	}
	snap := s.snapshotLocked()
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}

// WaitSettled blocks until the session is Scored, Confirmed or Aborted
func (s *Session) WaitSettled(ctx context.Context) (Snapshot, error) {
	ch, cancel := s.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return s.Snapshot(), ctx.Err()
		case snap := <-ch:
			if snap.Settled() {
				return snap, nil
			}
		}
	}
}

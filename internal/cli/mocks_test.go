package cli

import (
	"context"
	"sync"
	"time"

	"github.com/yok-tottii/mic-calibrator/internal/audio"
	"github.com/yok-tottii/mic-calibrator/internal/config"
	"github.com/yok-tottii/mic-calibrator/internal/logger"
	"github.com/yok-tottii/mic-calibrator/internal/measure"
	"github.com/yok-tottii/mic-calibrator/internal/mute"
	"github.com/yok-tottii/mic-calibrator/internal/selection"
)

// ---------------------------------------------------------------------------
// Mock ConfigLoader
// ---------------------------------------------------------------------------

type mockConfigLoader struct {
	LoadFunc  func(path string) (*config.Config, error)
	WatchFunc func(log *logger.Logger, onChange func(*config.Config)) error

	mu         sync.Mutex
	loadCalls  int
	watchCalls int
}

func (m *mockConfigLoader) Load(path string) (*config.Config, error) {
	m.mu.Lock()
	m.loadCalls++
	m.mu.Unlock()

	if m.LoadFunc != nil {
		return m.LoadFunc(path)
	}
	return config.DefaultConfig(), nil
}

func (m *mockConfigLoader) Watch(log *logger.Logger, onChange func(*config.Config)) error {
	m.mu.Lock()
	m.watchCalls++
	m.mu.Unlock()

	if m.WatchFunc != nil {
		return m.WatchFunc(log, onChange)
	}
	return nil
}

func (m *mockConfigLoader) WatchCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.watchCalls
}

// ---------------------------------------------------------------------------
// Mock LoggerFactory
// ---------------------------------------------------------------------------

type mockLoggerFactory struct{}

func (mockLoggerFactory) NewLogger(cfg logger.Config) (*logger.Logger, error) {
	return logger.NewNop(), nil
}

// ---------------------------------------------------------------------------
// Mock ListerFactory
// ---------------------------------------------------------------------------

type staticLister []audio.RawDevice

func (l staticLister) ListDevices(ctx context.Context) ([]audio.RawDevice, error) {
	return l, nil
}

type mockListerFactory struct {
	Devices []audio.RawDevice
	Err     error

	mu       sync.Mutex
	closed   int
	received *config.Config
}

func (m *mockListerFactory) NewLister(cfg *config.Config) (audio.Lister, func(), error) {
	m.mu.Lock()
	m.received = cfg
	m.mu.Unlock()

	if m.Err != nil {
		return nil, nil, m.Err
	}
	return staticLister(m.Devices), func() {
		m.mu.Lock()
		m.closed++
		m.mu.Unlock()
	}, nil
}

func (m *mockListerFactory) Closed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// ---------------------------------------------------------------------------
// Mock ClientFactory + measure.Client
// ---------------------------------------------------------------------------

type mockClient struct {
	TestFunc func(ctx context.Context, deviceID int, budget time.Duration) (measure.Metrics, error)

	mu    sync.Mutex
	calls []int
}

func (m *mockClient) Test(ctx context.Context, deviceID int, budget time.Duration) (measure.Metrics, error) {
	m.mu.Lock()
	m.calls = append(m.calls, deviceID)
	m.mu.Unlock()

	if m.TestFunc != nil {
		return m.TestFunc(ctx, deviceID, budget)
	}
	return measure.Metrics{DeviceID: deviceID, SignalToNoiseDB: float64(10 * deviceID), VoicedRatio: 0.9, StartDelayMs: 100}, nil
}

func (m *mockClient) Calls() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.calls...)
}

type mockClientFactory struct {
	client *mockClient
}

func (m *mockClientFactory) NewClient(cfg *config.Config) measure.Client {
	return m.client
}

// ---------------------------------------------------------------------------
// Mock MuteFactory + mute.Suspender
// ---------------------------------------------------------------------------

type mockSuspender struct {
	mu       sync.Mutex
	suspends int
	resumes  int
}

func (m *mockSuspender) Suspend(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.suspends++
	return nil
}

func (m *mockSuspender) Resume(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resumes++
	return nil
}

func (m *mockSuspender) Counts() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.suspends, m.resumes
}

type mockMuteFactory struct {
	suspender *mockSuspender
	Err       error
}

func (m *mockMuteFactory) NewSuspender(cfg *config.Config) (mute.Suspender, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.suspender, nil
}

// ---------------------------------------------------------------------------
// Mock StoreFactory + selection.Store
// ---------------------------------------------------------------------------

type memStore struct {
	mu      sync.Mutex
	rec     *selection.Record
	SaveErr error
}

func (s *memStore) Load() (selection.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rec == nil {
		return selection.Record{}, selection.ErrNotFound
	}
	return *s.rec, nil
}

func (s *memStore) Save(rec selection.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		return s.SaveErr
	}
	s.rec = &rec
	return nil
}

func (s *memStore) Saved() (selection.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rec == nil {
		return selection.Record{}, false
	}
	return *s.rec, true
}

type mockStoreFactory struct {
	store *memStore
}

func (m *mockStoreFactory) NewStore(cfg *config.Config) (selection.Store, error) {
	return m.store, nil
}

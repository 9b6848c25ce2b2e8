package cli

import (
	"bytes"
	"io"
	"strings"
	"sync"

	"github.com/yok-tottii/mic-calibrator/internal/audio"
)

// ---------------------------------------------------------------------------
// syncBuffer - thread-safe bytes.Buffer for concurrent test output
// ---------------------------------------------------------------------------

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (n int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Compile-time check that syncBuffer implements io.Writer.
var _ io.Writer = (*syncBuffer)(nil)

// ---------------------------------------------------------------------------
// testMocks - convenience struct for grouping all mocks
// ---------------------------------------------------------------------------

type testMocks struct {
	config    *mockConfigLoader
	lister    *mockListerFactory
	client    *mockClient
	suspender *mockSuspender
	store     *memStore
	stdout    *syncBuffer
	stderr    *syncBuffer
}

func intPtr(v int) *int { return &v }

// rawDevices is the catalog used by most tests: three microphones, an
// output and an excluded loopback input.
func rawDevices() []audio.RawDevice {
	return []audio.RawDevice{
		{ID: 1, Name: "Built-in Microphone", MaxInputChannels: intPtr(1), IsDefault: true},
		{ID: 2, Name: "USB Mic", MaxInputChannels: intPtr(2)},
		{ID: 3, Name: "Headset", Channels: intPtr(1)},
		{ID: 4, Name: "Speakers", MaxInputChannels: intPtr(0)},
		{ID: 5, Name: "Stereo Mix", MaxInputChannels: intPtr(2)},
	}
}

func newTestMocks() *testMocks {
	return &testMocks{
		config:    &mockConfigLoader{},
		lister:    &mockListerFactory{Devices: rawDevices()},
		client:    &mockClient{},
		suspender: &mockSuspender{},
		store:     &memStore{},
		stdout:    &syncBuffer{},
		stderr:    &syncBuffer{},
	}
}

// env builds an Env reading stdin as terminal input.
func (m *testMocks) env(stdin string) *Env {
	return &Env{
		Stdin:         strings.NewReader(stdin),
		Stdout:        m.stdout,
		Stderr:        m.stderr,
		ConfigLoader:  m.config,
		LoggerFactory: mockLoggerFactory{},
		ListerFactory: m.lister,
		ClientFactory: &mockClientFactory{client: m.client},
		MuteFactory:   &mockMuteFactory{suspender: m.suspender},
		StoreFactory:  &mockStoreFactory{store: m.store},
	}
}

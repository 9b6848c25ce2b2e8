package hotkey

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.design/x/hotkey"
)

// DefaultAbort is the default shortcut that aborts a running calibration
const DefaultAbort = "ctrl+shift+m"

// ErrInvalidShortcut is returned for shortcuts that cannot be parsed
var ErrInvalidShortcut = errors.New("invalid shortcut")

// Config holds hotkey configuration
type Config struct {
	Modifiers []hotkey.Modifier
	Key       hotkey.Key
}

var modifierNames = map[string]hotkey.Modifier{
	"ctrl":    hotkey.ModCtrl,
	"control": hotkey.ModCtrl,
	"shift":   hotkey.ModShift,
}

var keyNames = map[string]hotkey.Key{
	"space": hotkey.KeySpace, "escape": hotkey.KeyEscape, "return": hotkey.KeyReturn, "tab": hotkey.KeyTab,
	"a": hotkey.KeyA, "b": hotkey.KeyB, "c": hotkey.KeyC, "d": hotkey.KeyD, "e": hotkey.KeyE,
	"f": hotkey.KeyF, "g": hotkey.KeyG, "h": hotkey.KeyH, "i": hotkey.KeyI, "j": hotkey.KeyJ,
	"k": hotkey.KeyK, "l": hotkey.KeyL, "m": hotkey.KeyM, "n": hotkey.KeyN, "o": hotkey.KeyO,
	"p": hotkey.KeyP, "q": hotkey.KeyQ, "r": hotkey.KeyR, "s": hotkey.KeyS, "t": hotkey.KeyT,
	"u": hotkey.KeyU, "v": hotkey.KeyV, "w": hotkey.KeyW, "x": hotkey.KeyX, "y": hotkey.KeyY,
	"z": hotkey.KeyZ,
	"0": hotkey.Key0, "1": hotkey.Key1, "2": hotkey.Key2, "3": hotkey.Key3, "4": hotkey.Key4,
	"5": hotkey.Key5, "6": hotkey.Key6, "7": hotkey.Key7, "8": hotkey.Key8, "9": hotkey.Key9,
}

// Parse reads a shortcut such as "ctrl+shift+m".
// Only ctrl and shift are accepted as modifiers so the shortcut works on
// every platform; at least one modifier is required.
func Parse(shortcut string) (Config, error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(shortcut)), "+")
	if len(parts) < 2 {
		return Config{}, fmt.Errorf("%w: %q needs a modifier and a key", ErrInvalidShortcut, shortcut)
	}

	var cfg Config
	seen := make(map[hotkey.Modifier]bool)
	for _, name := range parts[:len(parts)-1] {
		mod, ok := modifierNames[strings.TrimSpace(name)]
		if !ok {
			return Config{}, fmt.Errorf("%w: unknown modifier %q", ErrInvalidShortcut, name)
		}
		if !seen[mod] {
			seen[mod] = true
			cfg.Modifiers = append(cfg.Modifiers, mod)
		}
	}

	keyName := strings.TrimSpace(parts[len(parts)-1])
	key, ok := keyNames[keyName]
	if !ok {
		return Config{}, fmt.Errorf("%w: unknown key %q", ErrInvalidShortcut, keyName)
	}
	cfg.Key = key
	return cfg, nil
}

// Manager manages global hotkey registration and events
type Manager struct {
	hk        *hotkey.Hotkey
	config    Config
	eventChan chan struct{}
	stopChan  chan struct{}
	wg        sync.WaitGroup
	mu        sync.Mutex
	running   bool
}

// New creates a new hotkey manager
func New() *Manager {
	return &Manager{}
}

// Register registers the shortcut with the system
func (m *Manager) Register(config Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("hotkey is already running, call Close() first")
	}

	m.config = config
	m.stopChan = make(chan struct{})
	m.eventChan = make(chan struct{}, 1)

	hk := hotkey.New(m.config.Modifiers, m.config.Key)
	if err := hk.Register(); err != nil {
		return fmt.Errorf("failed to register hotkey: %w", err)
	}

	m.hk = hk
	m.running = true

	m.wg.Add(1)
	go m.listen(hk, m.eventChan, m.stopChan)
	return nil
}

// listen forwards key presses; presses arriving while one is pending are dropped
func (m *Manager) listen(hk *hotkey.Hotkey, events chan<- struct{}, stop <-chan struct{}) {
	defer m.wg.Done()

	for {
		select {
		case <-hk.Keydown():
			select {
			case events <- struct{}{}:
			default:
			}
		case <-stop:
			return
		}
	}
}

// Pressed returns the channel receiving a value on every press
func (m *Manager) Pressed() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.eventChan
}

// Close unregisters the hotkey and stops listening
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}

	close(m.stopChan)
	m.wg.Wait()

	var unregisterErr error
	if m.hk != nil {
		if err := m.hk.Unregister(); err != nil {
			unregisterErr = fmt.Errorf("failed to unregister hotkey: %w", err)
		}
	}

	close(m.eventChan)
	m.running = false
	return unregisterErr
}

// IsRunning returns whether the hotkey is currently registered and running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// GetConfig returns a copy of the registered configuration
func (m *Manager) GetConfig() Config {
	m.mu.Lock()
	defer m.mu.Unlock()

	configCopy := m.config
	if m.config.Modifiers != nil {
		configCopy.Modifiers = append([]hotkey.Modifier(nil), m.config.Modifiers...)
	}
	return configCopy
}

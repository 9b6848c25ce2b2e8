package tray

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/getlantern/systray"

	"github.com/yok-tottii/mic-calibrator/internal/i18n"
	"github.com/yok-tottii/mic-calibrator/internal/logger"
	"github.com/yok-tottii/mic-calibrator/internal/selection"
	"github.com/yok-tottii/mic-calibrator/internal/wizard"
)

const title = "Mic Calibrator"

// Phase is what the tray icon shows
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseTesting
	PhaseChoosing
)

// PhaseOf maps a session state to the icon phase
func PhaseOf(state wizard.State) Phase {
	switch state {
	case wizard.Preflight, wizard.Enumerating, wizard.Testing:
		return PhaseTesting
	case wizard.Scored:
		return PhaseChoosing
	default:
		return PhaseIdle
	}
}

// Entry is one row of the device submenu
type Entry struct {
	ID    int
	Label string
}

// Config holds tray manager configuration
type Config struct {
	Translator  *i18n.Translator
	Logger      *logger.Logger
	IconDir     string // defaults to assets/icon next to the executable
	OnReady     func() // Called when systray is ready for initialization
	OnCalibrate func()
	OnAbort     func()
	OnConfirm   func(deviceID int) // Called when user picks a ranked device
	OnQuit      func()
}

// Manager manages the system tray icon and menu
type Manager struct {
	config Config
	tr     *i18n.Translator
	log    *logger.Logger

	mu      sync.Mutex
	ready   bool
	phase   Phase
	tooltip string
	current string
	entries []Entry

	menuCalibrate     *systray.MenuItem
	menuAbort         *systray.MenuItem
	menuDevices       *systray.MenuItem
	menuCurrent       *systray.MenuItem
	menuQuit          *systray.MenuItem
	deviceMenuItems   []*systray.MenuItem
	deviceCancelFuncs []context.CancelFunc

	icons map[Phase][]byte
}

// NewManager creates a new tray manager
func NewManager(config Config) *Manager {
	tr := config.Translator
	if tr == nil {
		tr = i18n.New(i18n.LanguageEnglish)
	}
	log := config.Logger
	if log == nil {
		log = logger.NewNop()
	}

	m := &Manager{
		config:  config,
		tr:      tr,
		log:     log.Named("tray"),
		phase:   PhaseIdle,
		tooltip: title,
		current: tr.Translate("menu.none"),
	}

	dir := config.IconDir
	if dir == "" {
		dir = m.defaultIconDir()
	}
	m.icons = map[Phase][]byte{
		PhaseIdle:     m.loadIconData(dir, "mic_idle.png", idleFallback()),
		PhaseTesting:  m.loadIconData(dir, "mic_testing.png", testingFallback()),
		PhaseChoosing: m.loadIconData(dir, "mic_choosing.png", choosingFallback()),
	}
	return m
}

// Run starts the system tray (blocking call)
func (m *Manager) Run() {
	systray.Run(m.onReady, m.onExit)
}

// Quit quits the system tray
func (m *Manager) Quit() {
	systray.Quit()
}

func (m *Manager) onReady() {
	m.menuCalibrate = systray.AddMenuItem(m.tr.Translate("menu.calibrate"), "Test every microphone")
	m.menuAbort = systray.AddMenuItem(m.tr.Translate("menu.abort"), "Stop the running calibration")
	m.menuDevices = systray.AddMenuItem(m.tr.Translate("menu.devices"), "Choose from the ranked devices")
	systray.AddSeparator()
	m.menuCurrent = systray.AddMenuItem("", "Saved input device")
	m.menuCurrent.Disable()
	systray.AddSeparator()
	m.menuQuit = systray.AddMenuItem(m.tr.Translate("menu.quit"), "Quit the application")

	m.mu.Lock()
	m.ready = true
	m.applyLocked()
	m.mu.Unlock()

	go m.handleMenuEvents()

	if m.config.OnReady != nil {
		m.config.OnReady()
	}
}

func (m *Manager) onExit() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ready = false
	m.clearDeviceItemsLocked()
}

// handleMenuEvents handles menu item clicks
func (m *Manager) handleMenuEvents() {
	for {
		select {
		case <-m.menuCalibrate.ClickedCh:
			if m.config.OnCalibrate != nil {
				m.config.OnCalibrate()
			}
		case <-m.menuAbort.ClickedCh:
			if m.config.OnAbort != nil {
				m.config.OnAbort()
			}
		case <-m.menuQuit.ClickedCh:
			if m.config.OnQuit != nil {
				m.config.OnQuit()
			}
			systray.Quit()
			return
		}
	}
}

// Update reflects a session snapshot in the icon, tooltip and device menu
func (m *Manager) Update(snap wizard.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.phase = PhaseOf(snap.State)
	m.tooltip = Tooltip(m.tr, snap)
	m.entries = DeviceEntries(snap)
	if snap.State == wizard.Confirmed {
		if d, ok := snap.Chosen(); ok {
			m.current = m.tr.TranslateWithFormat("menu.current", map[string]string{"device": d.Name})
		}
	}
	m.applyLocked()
}

// SetSelection shows the persisted device, or none when rec is nil
func (m *Manager) SetSelection(rec *selection.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec == nil {
		m.current = m.tr.Translate("menu.none")
	} else {
		m.current = m.tr.TranslateWithFormat("menu.current", map[string]string{"device": rec.DeviceName})
	}
	m.applyLocked()
}

// Phase returns the phase currently shown
func (m *Manager) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// applyLocked pushes the cached state to systray. m.mu must be held.
func (m *Manager) applyLocked() {
	if !m.ready {
		return
	}

	systray.SetIcon(m.icons[m.phase])
	systray.SetTooltip(m.tooltip)
	m.menuCurrent.SetTitle(m.current)

	if m.phase == PhaseIdle {
		m.menuCalibrate.Enable()
		m.menuAbort.Disable()
	} else {
		m.menuCalibrate.Disable()
		m.menuAbort.Enable()
	}

	m.clearDeviceItemsLocked()
	if len(m.entries) == 0 {
		m.menuDevices.Disable()
		return
	}
	m.menuDevices.Enable()

	for _, entry := range m.entries {
		item := m.menuDevices.AddSubMenuItem(entry.Label, "")
		m.deviceMenuItems = append(m.deviceMenuItems, item)

		ctx, cancel := context.WithCancel(context.Background())
		m.deviceCancelFuncs = append(m.deviceCancelFuncs, cancel)

		go func(id int, item *systray.MenuItem, ctx context.Context) {
			for {
				select {
				case <-ctx.Done():
					return
				case <-item.ClickedCh:
					if m.config.OnConfirm != nil {
						m.config.OnConfirm(id)
					}
				}
			}
		}(entry.ID, item, ctx)
	}
}

func (m *Manager) clearDeviceItemsLocked() {
	for _, cancel := range m.deviceCancelFuncs {
		cancel()
	}
	m.deviceCancelFuncs = nil

	for _, item := range m.deviceMenuItems {
		item.Hide()
	}
	m.deviceMenuItems = nil
}

// Tooltip describes the session in one line
func Tooltip(tr *i18n.Translator, snap wizard.Snapshot) string {
	switch snap.State {
	case wizard.Testing:
		if d, ok := snap.Current(); ok {
			return title + " - " + tr.TranslateWithFormat("progress.testing", map[string]string{"device": d.Name})
		}
	case wizard.Scored:
		if len(snap.Ranked) > 0 {
			return title + " - " + tr.TranslateWithFormat("progress.suggested", map[string]string{"device": snap.Ranked[0].Device.Name})
		}
	case wizard.Confirmed:
		if d, ok := snap.Chosen(); ok {
			return title + " - " + tr.TranslateWithFormat("progress.saved", map[string]string{"device": d.Name})
		}
	case wizard.Aborted:
		if reason := tr.AbortReason(snap.AbortReason); reason != "" {
			return title + " - " + reason
		}
	}
	return title + " - " + tr.State(snap.State)
}

// DeviceEntries lists the ranked devices while a choice is pending.
// The suggested device is marked with a check.
func DeviceEntries(snap wizard.Snapshot) []Entry {
	if snap.State != wizard.Scored {
		return nil
	}

	entries := make([]Entry, 0, len(snap.Ranked))
	for _, r := range snap.Ranked {
		prefix := "   "
		if snap.ChosenDeviceID != nil && *snap.ChosenDeviceID == r.Device.ID {
			prefix = "✓ "
		}
		entries = append(entries, Entry{
			ID:    r.Device.ID,
			Label: fmt.Sprintf("%s%s (%.0f%%)", prefix, r.Device.Name, r.Score*100),
		})
	}
	return entries
}

func (m *Manager) defaultIconDir() string {
	exe, err := os.Executable()
	if err != nil {
		m.log.Warn("Cannot resolve executable path: %v", err)
		return ""
	}
	return filepath.Join(filepath.Dir(exe), "assets", "icon")
}

// loadIconData loads an icon from dir, falling back to a placeholder
func (m *Manager) loadIconData(dir, filename string, fallback []byte) []byte {
	if dir == "" {
		return fallback
	}
	iconPath := filepath.Join(dir, filename)
	data, err := os.ReadFile(iconPath)
	if err != nil {
		m.log.Debug("Using built-in icon, cannot read %s: %v", iconPath, err)
		return fallback
	}
	return data
}

// idleFallback returns the fallback icon data for the idle state
func idleFallback() []byte {
	return []byte{
		0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a,
		0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52,
		0x00, 0x00, 0x00, 0x10, 0x00, 0x00, 0x00, 0x10,
		0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0xf3, 0xff,
		0x61, 0x00, 0x00, 0x00, 0x19, 0x74, 0x45, 0x58,
		0x74, 0x53, 0x6f, 0x66, 0x74, 0x77, 0x61, 0x72,
		0x65, 0x00, 0x41, 0x64, 0x6f, 0x62, 0x65, 0x20,
		0x49, 0x6d, 0x61, 0x67, 0x65, 0x52, 0x65, 0x61,
		0x64, 0x79, 0x71, 0xc9, 0x65, 0x3c, 0x00, 0x00,
		0x00, 0x18, 0x49, 0x44, 0x41, 0x54, 0x78, 0xda,
		0x62, 0xfc, 0xff, 0xff, 0x3f, 0x03, 0x00, 0x00,
		0x00, 0xff, 0xff, 0x03, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x49, 0x45, 0x4e, 0x44, 0xae, 0x42, 0x60,
		0x82,
	}
}

// testingFallback returns the fallback icon data while devices are tested
func testingFallback() []byte {
	return []byte{
		0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a,
		0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52,
		0x00, 0x00, 0x00, 0x10, 0x00, 0x00, 0x00, 0x10,
		0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0xf3, 0xff,
		0x61, 0x00, 0x00, 0x00, 0x19, 0x74, 0x45, 0x58,
		0x74, 0x53, 0x6f, 0x66, 0x74, 0x77, 0x61, 0x72,
		0x65, 0x00, 0x41, 0x64, 0x6f, 0x62, 0x65, 0x20,
		0x49, 0x6d, 0x61, 0x67, 0x65, 0x52, 0x65, 0x61,
		0x64, 0x79, 0x71, 0xc9, 0x65, 0x3c, 0x00, 0x00,
		0x00, 0x20, 0x49, 0x44, 0x41, 0x54, 0x78, 0xda,
		0x62, 0xfc, 0xcf, 0xc0, 0xc0, 0xc0, 0xf0, 0x9f,
		0x81, 0x81, 0x81, 0x81, 0xff, 0x19, 0x18, 0x18,
		0x18, 0x00, 0x00, 0x00, 0x00, 0xff, 0xff, 0x03,
		0x00, 0x0c, 0x10, 0x02, 0x01, 0x8b, 0xd5, 0xf8,
		0x23, 0x00, 0x00, 0x00, 0x00, 0x49, 0x45, 0x4e,
		0x44, 0xae, 0x42, 0x60, 0x82,
	}
}

// choosingFallback returns the fallback icon data while a choice is pending
func choosingFallback() []byte {
	return []byte{
		0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a,
		0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52,
		0x00, 0x00, 0x00, 0x10, 0x00, 0x00, 0x00, 0x10,
		0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0xf3, 0xff,
		0x61, 0x00, 0x00, 0x00, 0x19, 0x74, 0x45, 0x58,
		0x74, 0x53, 0x6f, 0x66, 0x74, 0x77, 0x61, 0x72,
		0x65, 0x00, 0x41, 0x64, 0x6f, 0x62, 0x65, 0x20,
		0x49, 0x6d, 0x61, 0x67, 0x65, 0x52, 0x65, 0x61,
		0x64, 0x79, 0x71, 0xc9, 0x65, 0x3c, 0x00, 0x00,
		0x00, 0x20, 0x49, 0x44, 0x41, 0x54, 0x78, 0xda,
		0x62, 0xfc, 0xcf, 0xf0, 0x9f, 0xc1, 0xc8, 0xc0,
		0xc0, 0xc0, 0xff, 0x0c, 0x0c, 0x0c, 0xfc, 0xcf,
		0xc0, 0xc0, 0xc0, 0x00, 0x00, 0x00, 0x00, 0xff,
		0xff, 0x03, 0x00, 0x0c, 0x50, 0x02, 0x01, 0x3e,
		0x0a, 0xe4, 0x5b, 0x00, 0x00, 0x00, 0x00, 0x49,
		0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
	}
}

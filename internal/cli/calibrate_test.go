package cli

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/yok-tottii/mic-calibrator/internal/config"
	"github.com/yok-tottii/mic-calibrator/internal/measure"
	"github.com/yok-tottii/mic-calibrator/internal/wizard"
)

// busyHeadset fails device 3 and scores the rest by id
func busyHeadset(ctx context.Context, deviceID int, budget time.Duration) (measure.Metrics, error) {
	if deviceID == 3 {
		return measure.Metrics{}, measure.ErrDeviceBusy
	}
	return measure.Metrics{DeviceID: deviceID, SignalToNoiseDB: float64(10 * deviceID), VoicedRatio: 0.9, StartDelayMs: 100}, nil
}

func TestRunCalibrate_AutoConfirm(t *testing.T) {
	t.Parallel()

	m := newTestMocks()
	m.client.TestFunc = busyHeadset

	err := runCalibrate(context.Background(), m.env(""), calibrateOptions{autoConfirm: true, device: -1})
	if err != nil {
		t.Fatalf("runCalibrate() unexpected error: %v", err)
	}

	rec, ok := m.store.Saved()
	if !ok || rec.DeviceID != 2 || rec.DeviceName != "USB Mic" {
		t.Errorf("expected USB Mic saved, got %+v (saved=%v)", rec, ok)
	}

	if calls := m.client.Calls(); len(calls) != 3 {
		t.Errorf("expected 3 device tests (outputs and excluded names skipped), got %v", calls)
	}

	out := m.stdout.String()
	for _, want := range []string{"USB Mic", "Built-in Microphone", "Device in use"} {
		if !strings.Contains(out, want) {
			t.Errorf("ranking missing %q: %q", want, out)
		}
	}
	if !strings.Contains(m.stderr.String(), "Saved USB Mic") {
		t.Errorf("expected saved message, got %q", m.stderr.String())
	}

	if s, r := m.suspender.Counts(); s != 1 || r != 1 {
		t.Errorf("expected one suspend and one resume, got %d/%d", s, r)
	}
	if m.lister.Closed() != 1 {
		t.Errorf("expected lister closed once, got %d", m.lister.Closed())
	}
}

func TestRunCalibrate_AutoConfirmFromConfig(t *testing.T) {
	t.Parallel()

	m := newTestMocks()
	m.config.LoadFunc = func(path string) (*config.Config, error) {
		cfg := config.DefaultConfig()
		cfg.Wizard.AutoConfirm = true
		return cfg, nil
	}

	err := runCalibrate(context.Background(), m.env(""), calibrateOptions{device: -1})
	if err != nil {
		t.Fatalf("runCalibrate() unexpected error: %v", err)
	}
	if rec, ok := m.store.Saved(); !ok || rec.DeviceID != 3 {
		t.Errorf("expected the best device (3) saved, got %+v", rec)
	}
}

func TestRunCalibrate_DeviceFlag(t *testing.T) {
	t.Parallel()

	m := newTestMocks()
	m.client.TestFunc = busyHeadset

	err := runCalibrate(context.Background(), m.env(""), calibrateOptions{device: 1})
	if err != nil {
		t.Fatalf("runCalibrate() unexpected error: %v", err)
	}
	if rec, _ := m.store.Saved(); rec.DeviceID != 1 {
		t.Errorf("expected device 1 saved, got %+v", rec)
	}
}

func TestRunCalibrate_DeviceFlagFailedDevice(t *testing.T) {
	t.Parallel()

	m := newTestMocks()
	m.client.TestFunc = busyHeadset

	err := runCalibrate(context.Background(), m.env(""), calibrateOptions{device: 3})
	if !errors.Is(err, wizard.ErrInvalidSelection) {
		t.Fatalf("expected ErrInvalidSelection, got %v", err)
	}
	if _, ok := m.store.Saved(); ok {
		t.Error("expected nothing saved")
	}
	if _, r := m.suspender.Counts(); r != 1 {
		t.Errorf("expected mute released on exit, got %d resumes", r)
	}
}

func TestRunCalibrate_Interactive(t *testing.T) {
	t.Parallel()

	m := newTestMocks()
	m.client.TestFunc = busyHeadset

	// junk, a failed device, then Enter for the suggestion
	err := runCalibrate(context.Background(), m.env("abc\n3\n\n"), calibrateOptions{device: -1})
	if err != nil {
		t.Fatalf("runCalibrate() unexpected error: %v", err)
	}

	stderr := m.stderr.String()
	if !strings.Contains(stderr, ErrInvalidDeviceID.Error()) {
		t.Errorf("expected invalid id message, got %q", stderr)
	}
	if !strings.Contains(stderr, "no successful test result") {
		t.Errorf("expected invalid selection message, got %q", stderr)
	}
	if rec, _ := m.store.Saved(); rec.DeviceID != 2 {
		t.Errorf("expected suggested device 2 saved, got %+v", rec)
	}
}

func TestRunCalibrate_InteractivePickID(t *testing.T) {
	t.Parallel()

	m := newTestMocks()

	err := runCalibrate(context.Background(), m.env("1\n"), calibrateOptions{device: -1})
	if err != nil {
		t.Fatalf("runCalibrate() unexpected error: %v", err)
	}
	if rec, _ := m.store.Saved(); rec.DeviceID != 1 {
		t.Errorf("expected device 1 saved, got %+v", rec)
	}
}

func TestRunCalibrate_Retest(t *testing.T) {
	t.Parallel()

	m := newTestMocks()

	err := runCalibrate(context.Background(), m.env("r\n\n"), calibrateOptions{device: -1})
	if err != nil {
		t.Fatalf("runCalibrate() unexpected error: %v", err)
	}
	if calls := m.client.Calls(); len(calls) != 6 {
		t.Errorf("expected two rounds of 3 tests, got %v", calls)
	}
	if _, ok := m.store.Saved(); !ok {
		t.Error("expected a selection saved after retest")
	}
}

func TestRunCalibrate_Quit(t *testing.T) {
	t.Parallel()

	m := newTestMocks()

	err := runCalibrate(context.Background(), m.env("q\n"), calibrateOptions{device: -1})
	if !errors.Is(err, wizard.ErrAborted) {
		t.Fatalf("expected ErrAborted, got %v", err)
	}
	if _, ok := m.store.Saved(); ok {
		t.Error("expected nothing saved")
	}
	if !strings.Contains(m.stderr.String(), "Calibration was cancelled.") {
		t.Errorf("expected cancel message, got %q", m.stderr.String())
	}
}

func TestRunCalibrate_NoTerminalKeepsSuggestion(t *testing.T) {
	t.Parallel()

	m := newTestMocks()

	err := runCalibrate(context.Background(), m.env(""), calibrateOptions{device: -1})
	if err != nil {
		t.Fatalf("runCalibrate() unexpected error: %v", err)
	}
	if rec, _ := m.store.Saved(); rec.DeviceID != 3 {
		t.Errorf("expected best device 3 saved, got %+v", rec)
	}
}

func TestRunCalibrate_SaveFailsWithoutTerminal(t *testing.T) {
	t.Parallel()

	m := newTestMocks()
	m.store.SaveErr = errors.New("disk full")

	err := runCalibrate(context.Background(), m.env(""), calibrateOptions{device: -1})
	if !errors.Is(err, wizard.ErrPersist) {
		t.Fatalf("expected ErrPersist, got %v", err)
	}
}

func TestRunCalibrate_NoInputDevices(t *testing.T) {
	t.Parallel()

	m := newTestMocks()
	m.lister.Devices = rawDevices()[3:]

	err := runCalibrate(context.Background(), m.env(""), calibrateOptions{device: -1})
	if !errors.Is(err, wizard.ErrNoInputDevices) {
		t.Fatalf("expected ErrNoInputDevices, got %v", err)
	}
	if !strings.Contains(m.stderr.String(), "No microphone was found") {
		t.Errorf("expected no devices message, got %q", m.stderr.String())
	}
	if s, r := m.suspender.Counts(); s != r {
		t.Errorf("expected mute released, got %d suspends and %d resumes", s, r)
	}
}

func TestRunCalibrate_AllDevicesFailed(t *testing.T) {
	t.Parallel()

	m := newTestMocks()
	m.client.TestFunc = func(ctx context.Context, deviceID int, budget time.Duration) (measure.Metrics, error) {
		return measure.Metrics{}, measure.ErrTimeout
	}

	err := runCalibrate(context.Background(), m.env(""), calibrateOptions{device: -1})
	if !errors.Is(err, wizard.ErrAllDevicesFailed) {
		t.Fatalf("expected ErrAllDevicesFailed, got %v", err)
	}
	if !strings.Contains(m.stderr.String(), "Every microphone failed") {
		t.Errorf("expected all failed message, got %q", m.stderr.String())
	}
}

func TestRunCalibrate_Interrupt(t *testing.T) {
	t.Parallel()

	m := newTestMocks()
	started := make(chan struct{}, 1)
	m.client.TestFunc = func(ctx context.Context, deviceID int, budget time.Duration) (measure.Metrics, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		return measure.Metrics{}, ctx.Err()
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- runCalibrate(ctx, m.env(""), calibrateOptions{device: -1})
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("device test never started")
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("runCalibrate did not return after interrupt")
	}

	if s, r := m.suspender.Counts(); s != 1 || r != 1 {
		t.Errorf("expected mute released after interrupt, got %d/%d", s, r)
	}
}

func TestRunCalibrate_ConfigError(t *testing.T) {
	t.Parallel()

	m := newTestMocks()
	m.config.LoadFunc = func(path string) (*config.Config, error) {
		return nil, errors.New("invalid server.port")
	}

	err := runCalibrate(context.Background(), m.env(""), calibrateOptions{device: -1})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestCalibrateCmd_Flags(t *testing.T) {
	t.Parallel()

	m := newTestMocks()
	cmd := CalibrateCmd(m.env(""))

	cmd.SetArgs([]string{"--auto-confirm", "--device", "2"})
	cmd.SetOut(m.stdout)
	cmd.SetErr(m.stderr)
	if err := cmd.ExecuteContext(context.Background()); err == nil ||
		!strings.Contains(err.Error(), "if any flags in the group") {
		t.Errorf("expected mutually exclusive flag error, got %v", err)
	}
}

func TestCalibrateCmd_NegativeDevice(t *testing.T) {
	t.Parallel()

	m := newTestMocks()
	cmd := CalibrateCmd(m.env(""))

	cmd.SetArgs([]string{"--device=-1"})
	cmd.SetOut(m.stdout)
	cmd.SetErr(m.stderr)
	if err := cmd.ExecuteContext(context.Background()); !errors.Is(err, ErrInvalidDeviceID) {
		t.Errorf("expected ErrInvalidDeviceID, got %v", err)
	}
}

package cli

import (
	"fmt"
	"io"

	"github.com/yok-tottii/mic-calibrator/internal/audio"
	"github.com/yok-tottii/mic-calibrator/internal/i18n"
	"github.com/yok-tottii/mic-calibrator/internal/selection"
	"github.com/yok-tottii/mic-calibrator/internal/wizard"
)

// progress prints each device test once as snapshots arrive
type progress struct {
	w       io.Writer
	tr      *i18n.Translator
	current int
	printed map[int]bool
	state   wizard.State
}

func newProgress(w io.Writer, tr *i18n.Translator) *progress {
	return &progress{w: w, tr: tr, current: -1, printed: make(map[int]bool), state: -1}
}

func (p *progress) update(snap wizard.Snapshot) {
	if snap.State != p.state {
		p.state = snap.State
		if snap.State == wizard.Testing || snap.State == wizard.Enumerating {
			// a retest starts over
			p.printed = make(map[int]bool)
			p.current = -1
			_, _ = fmt.Fprintln(p.w, p.tr.State(snap.State)+"...")
		}
	}

	for _, r := range snap.Results {
		if p.printed[r.DeviceID] {
			continue
		}
		p.printed[r.DeviceID] = true
		_, _ = fmt.Fprintln(p.w, resultLine(p.tr, deviceName(snap.Devices, r.DeviceID), r))
	}

	if d, ok := snap.Current(); ok && d.ID != p.current {
		p.current = d.ID
		_, _ = fmt.Fprintf(p.w, "  %s\n", p.tr.TranslateWithFormat("progress.testing", map[string]string{"device": d.Name}))
	}
}

func resultLine(tr *i18n.Translator, name string, r wizard.ResultView) string {
	if r.Status == wizard.StatusFailed {
		return fmt.Sprintf("  ✗ %s: %s", name, tr.Failure(r.Reason))
	}
	if r.Metrics == nil {
		return fmt.Sprintf("  ✓ %s", name)
	}
	return fmt.Sprintf("  ✓ %s: %.1f dB SNR, %.0f%% voiced, %d ms delay",
		name, r.Metrics.SignalToNoiseDB, r.Metrics.VoicedRatio*100, r.Metrics.StartDelayMs)
}

func deviceName(devices []audio.Device, id int) string {
	for _, d := range devices {
		if d.ID == id {
			return d.Name
		}
	}
	return fmt.Sprintf("device %d", id)
}

// printRanked writes the ranking table with failed devices at the end
func printRanked(w io.Writer, tr *i18n.Translator, snap wizard.Snapshot) {
	_, _ = fmt.Fprintf(w, "%-3s %-4s %-32s %6s %8s %7s %7s\n", "", "ID", "DEVICE", "SCORE", "SNR", "VOICED", "DELAY")
	for i, r := range snap.Ranked {
		mark := ""
		if snap.ChosenDeviceID != nil && *snap.ChosenDeviceID == r.Device.ID {
			mark = "*"
		}
		_, _ = fmt.Fprintf(w, "%-3s %-4d %-32s %6.3f %5.1f dB %6.0f%% %4d ms\n",
			fmt.Sprintf("%d%s", i+1, mark), r.Device.ID, truncate(r.Device.Name, 32), r.Score,
			r.Metrics.SignalToNoiseDB, r.Metrics.VoicedRatio*100, r.Metrics.StartDelayMs)
	}
	for _, r := range snap.Results {
		if r.Status != wizard.StatusFailed {
			continue
		}
		_, _ = fmt.Fprintf(w, "%-3s %-4d %-32s %s\n", "-", r.DeviceID,
			truncate(deviceName(snap.Devices, r.DeviceID), 32), tr.Failure(r.Reason))
	}
}

// printDevices writes one line per device, marking the system default
func printDevices(w io.Writer, devices []audio.Device) {
	for _, d := range devices {
		def := ""
		if d.IsDefault {
			def = " (default)"
		}
		_, _ = fmt.Fprintf(w, "%4d  %s  [%d ch]%s\n", d.ID, d.Name, d.ChannelCount, def)
	}
}

// printRecord writes a saved selection
func printRecord(w io.Writer, rec selection.Record) {
	_, _ = fmt.Fprintf(w, "%s (id %d), confirmed %s", rec.DeviceName, rec.DeviceID,
		rec.ConfirmedAt.Local().Format("2006-01-02 15:04"))
	if rec.Machine != "" {
		_, _ = fmt.Fprintf(w, " on %s", rec.Machine)
	}
	_, _ = fmt.Fprintln(w)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

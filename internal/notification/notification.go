package notification

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/yok-tottii/mic-calibrator/internal/i18n"
	"github.com/yok-tottii/mic-calibrator/internal/wizard"
)

// ErrUnsupported is returned on platforms without a notification command
var ErrUnsupported = errors.New("desktop notifications not supported on this platform")

// NotificationType represents the type of notification
type NotificationType string

const (
	// TypeInfo is an informational notification
	TypeInfo NotificationType = "info"
	// TypeError is an error notification
	TypeError NotificationType = "error"
	// TypeSuccess is a success notification
	TypeSuccess NotificationType = "success"
)

// Notification represents a desktop notification
type Notification struct {
	Title   string
	Message string
	Type    NotificationType
}

// runner executes a command; replaced in tests
type runner func(ctx context.Context, name string, args ...string) error

func execRunner(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}

// NotificationManager handles sending notifications to the user
type NotificationManager struct {
	appName string
	goos    string
	run     runner
}

// NewNotificationManager creates a new notification manager
func NewNotificationManager(appName string) *NotificationManager {
	return &NotificationManager{
		appName: appName,
		goos:    runtime.GOOS,
		run:     execRunner,
	}
}

// Send posts a notification through osascript on macOS and notify-send on Linux
func (nm *NotificationManager) Send(ctx context.Context, n *Notification) error {
	if n == nil {
		return fmt.Errorf("notification cannot be nil")
	}

	name, args, err := command(nm.goos, n)
	if err != nil {
		return err
	}
	if err := nm.run(ctx, name, args...); err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	return nil
}

// command builds the platform command for n
func command(goos string, n *Notification) (string, []string, error) {
	switch goos {
	case "darwin":
		script := fmt.Sprintf(`display notification "%s" with title "%s"`,
			escapeAppleScript(n.Message), escapeAppleScript(n.Title))
		return "osascript", []string{"-e", script}, nil
	case "linux":
		urgency := "normal"
		if n.Type == TypeError {
			urgency = "critical"
		}
		return "notify-send", []string{"--urgency", urgency, n.Title, n.Message}, nil
	default:
		return "", nil, ErrUnsupported
	}
}

// escapeAppleScript quotes s for use inside an AppleScript string literal
func escapeAppleScript(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}

// SessionFinished announces a terminal session.
// Other states are ignored and nil is returned.
func (nm *NotificationManager) SessionFinished(ctx context.Context, tr *i18n.Translator, snap wizard.Snapshot) error {
	n := SessionNotification(nm.appName, tr, snap)
	if n == nil {
		return nil
	}
	return nm.Send(ctx, n)
}

// SessionNotification describes how snap ended, or nil while it is still running
func SessionNotification(appName string, tr *i18n.Translator, snap wizard.Snapshot) *Notification {
	switch snap.State {
	case wizard.Confirmed:
		name := ""
		if d, ok := snap.Chosen(); ok {
			name = d.Name
		}
		return &Notification{
			Title:   appName,
			Message: tr.TranslateWithFormat("progress.saved", map[string]string{"device": name}),
			Type:    TypeSuccess,
		}
	case wizard.Aborted:
		typ := TypeError
		if snap.AbortReason == wizard.ReasonCancelled {
			typ = TypeInfo
		}
		return &Notification{
			Title:   appName,
			Message: tr.AbortReason(snap.AbortReason),
			Type:    typ,
		}
	default:
		return nil
	}
}

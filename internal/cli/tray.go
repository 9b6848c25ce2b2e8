package cli

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/yok-tottii/mic-calibrator/internal/hotkey"
	"github.com/yok-tottii/mic-calibrator/internal/i18n"
	"github.com/yok-tottii/mic-calibrator/internal/logger"
	"github.com/yok-tottii/mic-calibrator/internal/notification"
	"github.com/yok-tottii/mic-calibrator/internal/selection"
	"github.com/yok-tottii/mic-calibrator/internal/tray"
	"github.com/yok-tottii/mic-calibrator/internal/wizard"
)

// notifyTimeout bounds a desktop notification command
const notifyTimeout = 5 * time.Second

// TrayCmd creates the tray command.
func TrayCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "tray",
		Short: "Run the calibration wizard from the system tray",
		Long: `Run the calibration wizard from the system tray.

The abort shortcut (hotkey.abort, default ctrl+shift+m) stops a running
calibration from anywhere.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTray(cmd.Context(), env)
		},
	}
}

func runTray(ctx context.Context, env *Env) error {
	rt, err := newRuntime(env, true)
	if err != nil {
		return err
	}
	defer rt.Close()

	var ctl *trayController
	menu := tray.NewManager(tray.Config{
		Translator:  rt.tr,
		Logger:      rt.log,
		OnCalibrate: func() { ctl.calibrate(ctx) },
		OnAbort:     func() { ctl.abort(ctx) },
		OnConfirm:   func(id int) { ctl.confirm(ctx, id) },
		OnQuit:      func() { ctl.abort(ctx) },
		OnReady: func() {
			ctl.showSelection()
		},
	})
	ctl = newTrayController(rt.manager, menu, rt.log)
	ctl.notify = notifierFor(notification.NewNotificationManager("Mic Calibrator"), rt.tr)

	hk := hotkey.New()
	if shortcut, err := hotkey.Parse(rt.cfg.Hotkey.Abort); err != nil {
		rt.log.Warn("abort shortcut disabled: %v", err)
	} else {
		for _, c := range hotkey.CheckConflicts(shortcut) {
			rt.log.Warn("abort shortcut %s conflicts with %s (%s)", hotkey.Format(shortcut), c.Name, c.Description)
		}
		if err := hk.Register(shortcut); err != nil {
			rt.log.Warn("abort shortcut disabled: %v", err)
		} else {
			rt.log.Info("press %s to abort a calibration", hotkey.Format(shortcut))
			go ctl.abortOnPress(ctx, hk.Pressed())
		}
	}
	defer hk.Close()

	go func() {
		<-ctx.Done()
		ctl.abort(context.WithoutCancel(ctx))
		menu.Quit()
	}()

	menu.Run()
	return nil
}

// trayView is the part of the tray the controller drives
type trayView interface {
	Update(snap wizard.Snapshot)
	SetSelection(rec *selection.Record)
}

// notifierFor announces finished sessions on the desktop
func notifierFor(nm *notification.NotificationManager, tr *i18n.Translator) func(context.Context, wizard.Snapshot) error {
	return func(ctx context.Context, snap wizard.Snapshot) error {
		return nm.SessionFinished(ctx, tr, snap)
	}
}

// trayController maps tray clicks and the abort shortcut onto the manager
type trayController struct {
	manager *wizard.Manager
	view    trayView
	log     *logger.Logger
	notify  func(context.Context, wizard.Snapshot) error

	mu      sync.Mutex
	current string
}

func newTrayController(manager *wizard.Manager, view trayView, log *logger.Logger) *trayController {
	if log == nil {
		log = logger.NewNop()
	}
	return &trayController{manager: manager, view: view, log: log}
}

func (c *trayController) showSelection() {
	rec, err := c.manager.Selection()
	if err != nil {
		if !errors.Is(err, selection.ErrNotFound) {
			c.log.Warn("failed to load selection: %v", err)
		}
		c.view.SetSelection(nil)
		return
	}
	c.view.SetSelection(&rec)
}

// calibrate starts a session and mirrors it in the view until it ends
func (c *trayController) calibrate(ctx context.Context) {
	snap, err := c.manager.StartSession(ctx)
	if err != nil {
		c.log.Warn("calibration not started: %v", err)
		if snap.SessionID != "" {
			c.view.Update(snap)
		}
		return
	}

	updates, unsubscribe, err := c.manager.Subscribe(snap.SessionID)
	if err != nil {
		c.log.Error("failed to follow session: %v", err)
		return
	}

	c.mu.Lock()
	c.current = snap.SessionID
	c.mu.Unlock()

	go func() {
		defer unsubscribe()
		for snap := range updates {
			c.view.Update(snap)
			if snap.State.Terminal() {
				c.announce(ctx, snap)
				return
			}
		}
	}()
}

func (c *trayController) announce(ctx context.Context, snap wizard.Snapshot) {
	if c.notify == nil {
		return
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := c.notify(nctx, snap); err != nil {
		c.log.Debug("desktop notification: %v", err)
	}
}

func (c *trayController) sessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *trayController) confirm(ctx context.Context, deviceID int) {
	id := c.sessionID()
	if id == "" {
		return
	}
	if _, err := c.manager.Confirm(ctx, id, deviceID); err != nil {
		c.log.Warn("confirm device %d: %v", deviceID, err)
	}
}

func (c *trayController) abort(ctx context.Context) {
	if _, aborted, err := c.manager.AbortActive(ctx); err != nil {
		c.log.Warn("abort: %v", err)
	} else if aborted {
		c.log.Info("calibration aborted from the tray")
	}
}

// abortOnPress aborts the active session on every shortcut press
func (c *trayController) abortOnPress(ctx context.Context, pressed <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-pressed:
			if !ok {
				return
			}
			c.abort(ctx)
		}
	}
}

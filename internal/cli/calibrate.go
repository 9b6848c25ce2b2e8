package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yok-tottii/mic-calibrator/internal/wizard"
)

// calibrateOptions holds validated flags for the calibrate command.
type calibrateOptions struct {
	autoConfirm bool
	device      int // -1 when not set
}

// CalibrateCmd creates the calibrate command.
func CalibrateCmd(env *Env) *cobra.Command {
	var (
		autoConfirm bool
		device      int
	)

	cmd := &cobra.Command{
		Use:   "calibrate",
		Short: "Test every microphone and save the best one",
		Long: `Test every input device one after another and rank them.

Speech output is suspended while devices are tested. When the ranking is
ready you are asked which device to keep; press Enter for the suggestion.
Press Ctrl+C at any time to abort.`,
		Example: `  mic-calibrator calibrate
  mic-calibrator calibrate --auto-confirm
  mic-calibrator calibrate --device 3`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := calibrateOptions{autoConfirm: autoConfirm, device: -1}
			if cmd.Flags().Changed("device") {
				if device < 0 {
					return fmt.Errorf("%w: %d", ErrInvalidDeviceID, device)
				}
				opts.device = device
			}
			return runCalibrate(cmd.Context(), env, opts)
		},
	}

	cmd.Flags().BoolVar(&autoConfirm, "auto-confirm", false, "Save the suggested device without asking")
	cmd.Flags().IntVar(&device, "device", 0, "Save this device id if its test succeeds")
	cmd.MarkFlagsMutuallyExclusive("auto-confirm", "device")

	return cmd
}

// runCalibrate runs one session in the terminal until it is confirmed or aborted.
func runCalibrate(ctx context.Context, env *Env, opts calibrateOptions) error {
	rt, err := newRuntime(env, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	// the terminal confirms on its own so failures can be reported
	sessionOpts := rt.manager.Options()
	opts.autoConfirm = opts.autoConfirm || sessionOpts.AutoConfirm
	sessionOpts.AutoConfirm = false
	if err := rt.manager.SetOptions(sessionOpts); err != nil {
		return err
	}

	snap, err := rt.manager.StartSession(ctx)
	if err != nil {
		if snap.State == wizard.Aborted {
			_, _ = fmt.Fprintln(env.Stderr, rt.tr.AbortReason(snap.AbortReason))
		}
		return err
	}

	// leaving early must not keep speech suspended
	defer func() {
		if _, err := rt.manager.Abort(context.WithoutCancel(ctx), snap.SessionID); err != nil &&
			!errors.Is(err, wizard.ErrSessionClosed) {
			rt.log.Warn("failed to end session: %v", err)
		}
	}()

	updates, unsubscribe, err := rt.manager.Subscribe(snap.SessionID)
	if err != nil {
		return err
	}
	defer unsubscribe()

	c := &terminalSession{
		env:     env,
		rt:      rt,
		id:      snap.SessionID,
		opts:    opts,
		lines:   readLines(env.Stdin),
		display: newProgress(env.Stderr, rt.tr),
	}
	return c.loop(ctx, updates)
}

// terminalSession drives one calibration from terminal input
type terminalSession struct {
	env     *Env
	rt      *runtime
	id      string
	opts    calibrateOptions
	lines   <-chan string
	display *progress
}

func (c *terminalSession) loop(ctx context.Context, updates <-chan wizard.Snapshot) error {
	for {
		select {
		case <-ctx.Done():
			return c.abort(ctx)
		case snap, ok := <-updates:
			if !ok {
				return wizard.ErrSessionClosed
			}
			c.display.update(snap)

			switch snap.State {
			case wizard.Scored:
				_, _ = fmt.Fprintln(c.env.Stdout)
				printRanked(c.env.Stdout, c.rt.tr, snap)
				_, _ = fmt.Fprintln(c.env.Stdout)
				if err := c.decide(ctx, snap); err != nil {
					return err
				}
			case wizard.Confirmed:
				if d, ok := snap.Chosen(); ok {
					_, _ = fmt.Fprintln(c.env.Stderr, c.rt.tr.TranslateWithFormat("progress.saved", map[string]string{"device": d.Name}))
				}
				return nil
			case wizard.Aborted:
				_, _ = fmt.Fprintln(c.env.Stderr, c.rt.tr.AbortReason(snap.AbortReason))
				return snap.Err()
			}
		}
	}
}

// abort ends the session after an interrupt; the mute flag is released
// before this returns.
func (c *terminalSession) abort(ctx context.Context) error {
	if _, err := c.rt.manager.Abort(context.WithoutCancel(ctx), c.id); err != nil {
		c.rt.log.Warn("abort after interrupt: %v", err)
	}
	_, _ = fmt.Fprintln(c.env.Stderr, "\n"+c.rt.tr.AbortReason(wizard.ReasonCancelled))
	return ctx.Err()
}

// decide issues one accepted action for a Scored snapshot. Rejected input
// is reported and asked again. Every accepted action publishes a newer
// snapshot, which the loop picks up.
func (c *terminalSession) decide(ctx context.Context, snap wizard.Snapshot) error {
	suggested, _ := snap.Chosen()

	switch {
	case c.opts.device >= 0:
		_, err := c.rt.manager.Confirm(ctx, c.id, c.opts.device)
		return err
	case c.opts.autoConfirm:
		_, err := c.rt.manager.Confirm(ctx, c.id, suggested.ID)
		return err
	}

	for {
		_, _ = fmt.Fprintf(c.env.Stderr, "Press Enter to keep %s, type a device id, r to retest or q to quit: ", suggested.Name)

		var (
			line string
			eof  bool
		)
		select {
		case <-ctx.Done():
			return c.abort(ctx)
		case l, ok := <-c.lines:
			if !ok {
				// no terminal attached: keep the suggestion
				_, _ = fmt.Fprintln(c.env.Stderr)
				eof = true
			}
			line = strings.ToLower(strings.TrimSpace(l))
		}

		var err error
		switch line {
		case "":
			_, err = c.rt.manager.Confirm(ctx, c.id, suggested.ID)
		case "r", "retest":
			_, err = c.rt.manager.Retest(ctx, c.id, false)
		case "q", "quit":
			_, err = c.rt.manager.Abort(ctx, c.id)
		default:
			id, convErr := strconv.Atoi(line)
			if convErr != nil || id < 0 {
				_, _ = fmt.Fprintf(c.env.Stderr, "%v: %q\n", ErrInvalidDeviceID, line)
				continue
			}
			_, err = c.rt.manager.Confirm(ctx, c.id, id)
		}

		switch {
		case err == nil:
			return nil
		case !eof && (errors.Is(err, wizard.ErrInvalidSelection) || errors.Is(err, wizard.ErrPersist)):
			_, _ = fmt.Fprintln(c.env.Stderr, c.rt.tr.Error(err))
		default:
			return err
		}
	}
}

// readLines delivers input lines until EOF, then closes the channel
func readLines(r io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		if r == nil {
			return
		}
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			ch <- scanner.Text()
		}
	}()
	return ch
}

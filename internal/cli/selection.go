package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/yok-tottii/mic-calibrator/internal/selection"
)

// SelectionCmd creates the selection command.
func SelectionCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "selection",
		Short: "Show the saved microphone",
		Long: `Show the saved microphone and whether it is still connected.

Device ids can change after a restart, so a device with the same name
under a different id still counts as present.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShowSelection(cmd.Context(), env)
		},
	}
}

// UseCmd creates the use command.
func UseCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "use <device-id>",
		Short: "Save a microphone without calibrating",
		Example: `  mic-calibrator devices
  mic-calibrator use 3`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil || id < 0 {
				return fmt.Errorf("%w: %q", ErrInvalidDeviceID, args[0])
			}
			return runUseDevice(cmd.Context(), env, id)
		},
	}
}

func runShowSelection(ctx context.Context, env *Env) error {
	rt, err := newRuntime(env, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	rec, err := rt.manager.Selection()
	if errors.Is(err, selection.ErrNotFound) {
		fmt.Fprintln(env.Stdout, rt.tr.Translate("menu.none"))
		return nil
	}
	if err != nil {
		return err
	}
	printRecord(env.Stdout, rec)

	devices, err := rt.manager.Devices(ctx)
	if err != nil {
		fmt.Fprintf(env.Stderr, "Warning: cannot check connected devices: %v\n", err)
		return nil
	}

	switch d, kind := selection.Match(rec, devices); kind {
	case selection.MatchExact:
		fmt.Fprintf(env.Stdout, "Connected as device %d\n", d.ID)
	case selection.MatchByName:
		fmt.Fprintf(env.Stdout, "Connected under a new id: %d\n", d.ID)
	default:
		fmt.Fprintln(env.Stdout, "Not connected")
	}
	return nil
}

func runUseDevice(ctx context.Context, env *Env, id int) error {
	rt, err := newRuntime(env, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	rec, err := rt.manager.UseDevice(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintln(env.Stderr, rt.tr.TranslateWithFormat("progress.saved", map[string]string{"device": rec.DeviceName}))
	return nil
}

package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yok-tottii/mic-calibrator/internal/wizard"
)

// DevicesCmd creates the devices command.
// Lists the input devices that a calibration would test.
func DevicesCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List the input devices eligible for calibration",
		Long: `List the input devices eligible for calibration.

Outputs, virtual loopback inputs and names matching catalog.exclude are
left out. Use the id with "use" or "calibrate --device".`,
		Example: `  mic-calibrator devices
  mic-calibrator use 3`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runListDevices(cmd.Context(), env)
		},
	}
}

// runListDevices prints the normalized catalog.
func runListDevices(ctx context.Context, env *Env) error {
	rt, err := newRuntime(env, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	devices, err := rt.manager.Devices(ctx)
	if err != nil {
		return err
	}

	if len(devices) == 0 {
		fmt.Fprintln(env.Stderr, rt.tr.AbortReason(wizard.ReasonNoInputDevices))
		return nil
	}

	printDevices(env.Stdout, devices)
	return nil
}

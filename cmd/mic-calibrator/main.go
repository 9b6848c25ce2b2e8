package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/yok-tottii/mic-calibrator/internal/cli"
	"github.com/yok-tottii/mic-calibrator/internal/wizard"
)

// Injected at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

// Exit codes.
const (
	ExitOK          = 0
	ExitGeneral     = 1
	ExitUsage       = 2
	ExitSetup       = 3
	ExitCalibration = 4
	ExitInterrupt   = 130
)

func init() {
	// the tray and the global shortcut need the main thread on macOS
	runtime.LockOSThread()
}

func main() {
	// Load .env file if present (ignore error if missing).
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	env := cli.DefaultEnv()

	rootCmd := &cobra.Command{
		Use:     "mic-calibrator",
		Short:   "Find the microphone that hears you best",
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
		// Silence Cobra's default error/usage printing; we handle it ourselves.
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	rootCmd.PersistentFlags().StringVar(&env.ConfigPath, "config", env.ConfigPath, "Config file")

	rootCmd.AddCommand(cli.CalibrateCmd(env))
	rootCmd.AddCommand(cli.DevicesCmd(env))
	rootCmd.AddCommand(cli.SelectionCmd(env))
	rootCmd.AddCommand(cli.UseCmd(env))
	rootCmd.AddCommand(cli.ServeCmd(env))
	rootCmd.AddCommand(cli.TrayCmd(env))

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps errors to exit codes.
func exitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	// Interrupted by a signal or quit at the prompt.
	if errors.Is(err, context.Canceled) || errors.Is(err, wizard.ErrAborted) {
		return ExitInterrupt
	}

	if isCobraUsageError(err) || errors.Is(err, cli.ErrInvalidDeviceID) {
		return ExitUsage
	}

	if errors.Is(err, wizard.ErrNoInputDevices) || errors.Is(err, wizard.ErrAlreadyHeld) ||
		errors.Is(err, cli.ErrInvalidConfig) || errors.Is(err, cli.ErrBackendUnavailable) {
		return ExitSetup
	}

	if errors.Is(err, wizard.ErrAllDevicesFailed) {
		return ExitCalibration
	}

	return ExitGeneral
}

// cobraUsageErrorPatterns contains error message substrings that indicate Cobra usage errors.
// Cobra doesn't expose typed errors, so string matching is the only reliable approach.
var cobraUsageErrorPatterns = []string{
	"required flag",
	"unknown flag",
	"unknown shorthand",
	"flag needs an argument",
	"invalid argument",
	"if any flags in the group",
	"unknown command",
	"accepts ",
	"requires at least",
	"requires at most",
}

// isCobraUsageError checks if an error is a Cobra usage/parsing error.
func isCobraUsageError(err error) bool {
	if err == nil {
		return false
	}
	errMsg := err.Error()
	for _, pattern := range cobraUsageErrorPatterns {
		if strings.Contains(errMsg, pattern) {
			return true
		}
	}
	return false
}

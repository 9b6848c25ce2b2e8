package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/yok-tottii/mic-calibrator/internal/api"
	"github.com/yok-tottii/mic-calibrator/internal/config"
	"github.com/yok-tottii/mic-calibrator/internal/server"
)

// shutdownGrace bounds the mute release of sessions still running at exit
const shutdownGrace = 5 * time.Second

// ServeCmd creates the serve command.
func ServeCmd(env *Env) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the calibration API on localhost",
		Long: `Serve the calibration HTTP API, live session events and metrics.

The listener only binds to 127.0.0.1. Edits to the config file apply to
sessions started afterwards.`,
		Example: `  mic-calibrator serve
  mic-calibrator serve --port 18800`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("port") {
				port = -1
			}
			return runServe(cmd.Context(), env, port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "Port to listen on (overrides server.port, 0 picks a free port)")
	return cmd
}

// runServe blocks until ctx is cancelled. port < 0 keeps the configured port.
func runServe(ctx context.Context, env *Env, port int) error {
	rt, err := newRuntime(env, true)
	if err != nil {
		return err
	}
	defer rt.Close()

	srvConfig := server.Config{
		Port:            rt.cfg.Server.Port,
		ReadTimeout:     rt.cfg.Server.ReadTimeout,
		WriteTimeout:    rt.cfg.Server.WriteTimeout,
		ShutdownTimeout: rt.cfg.Server.ShutdownTimeout,
	}
	if port >= 0 {
		srvConfig.Port = port
	}

	srv := server.New(srvConfig, rt.log)
	api.New(rt.manager, rt.tr, rt.log).RegisterRoutes(srv.GetMux())
	srv.Handle("GET /metrics", rt.metrics.Handler())

	if err := env.ConfigLoader.Watch(rt.log, func(cfg *config.Config) { rt.reload(cfg) }); err != nil {
		rt.log.Warn("config changes will not be applied: %v", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownGrace)
		defer cancel()
		rt.manager.Close(closeCtx)
		return nil
	})

	rt.log.Info("serving calibration API")
	return g.Wait()
}

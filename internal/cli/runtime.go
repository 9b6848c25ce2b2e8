package cli

import (
	"fmt"

	"github.com/yok-tottii/mic-calibrator/internal/audio"
	"github.com/yok-tottii/mic-calibrator/internal/config"
	"github.com/yok-tottii/mic-calibrator/internal/i18n"
	"github.com/yok-tottii/mic-calibrator/internal/logger"
	"github.com/yok-tottii/mic-calibrator/internal/metrics"
	"github.com/yok-tottii/mic-calibrator/internal/mute"
	"github.com/yok-tottii/mic-calibrator/internal/wizard"
)

// runtime is the wired application shared by every command
type runtime struct {
	cfg     *config.Config
	log     *logger.Logger
	tr      *i18n.Translator
	metrics *metrics.Calibration
	manager *wizard.Manager

	cleanup []func()
}

// newRuntime loads the configuration and wires the calibration manager.
// With console set, log lines are echoed to stderr as well as the file.
func newRuntime(env *Env, console bool) (*runtime, error) {
	cfg, err := env.ConfigLoader.Load(env.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	lc := cfg.LoggerConfig()
	lc.Console = console
	log, err := env.LoggerFactory.NewLogger(lc)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	rt := &runtime{
		cfg:     cfg,
		log:     log,
		tr:      i18n.New(i18n.Language(cfg.UI.Language)),
		metrics: metrics.New(),
	}
	rt.cleanup = append(rt.cleanup, func() { log.Close() })

	lister, closeLister, err := env.ListerFactory.NewLister(cfg)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("%w: device listing: %w", ErrBackendUnavailable, err)
	}
	rt.cleanup = append(rt.cleanup, closeLister)

	suspender, err := env.MuteFactory.NewSuspender(cfg)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("%w: mute: %w", ErrBackendUnavailable, err)
	}

	store, err := env.StoreFactory.NewStore(cfg)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("%w: selection store: %w", ErrBackendUnavailable, err)
	}

	rt.manager = wizard.NewManager(wizard.Deps{
		Catalog: audio.NewCatalog(lister, audio.WithExcludePatterns(cfg.Catalog.Exclude)),
		Client:  env.ClientFactory.NewClient(cfg),
		Mute:    mute.New(suspender, mute.WithOnChange(rt.metrics.MuteHolders)),
		Store:   store,
		Logger:  log,
		Metrics: rt.metrics,
		Now:     env.Now,
	}, cfg.WizardOptions(), cfg.Wizard.SessionRetention)

	log.Debug("runtime ready (catalog %s, mute %s, measurement %s)",
		cfg.Catalog.Backend, cfg.Mute.Backend, cfg.Measurement.URL)
	return rt, nil
}

// reload applies an edited configuration to the running application
func (rt *runtime) reload(cfg *config.Config) {
	if err := rt.manager.SetOptions(cfg.WizardOptions()); err != nil {
		rt.log.Error("ignoring new wizard options: %v", err)
	}
	if level, err := logger.ParseLevel(cfg.Log.Level); err == nil {
		rt.log.SetLevel(level)
	}
	rt.tr.SetLanguage(i18n.Language(cfg.UI.Language))
}

// Close releases backends in reverse order
func (rt *runtime) Close() {
	for i := len(rt.cleanup) - 1; i >= 0; i-- {
		rt.cleanup[i]()
	}
	rt.cleanup = nil
}

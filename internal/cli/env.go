package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/yok-tottii/mic-calibrator/internal/audio"
	"github.com/yok-tottii/mic-calibrator/internal/config"
	"github.com/yok-tottii/mic-calibrator/internal/logger"
	"github.com/yok-tottii/mic-calibrator/internal/measure"
	"github.com/yok-tottii/mic-calibrator/internal/mute"
	"github.com/yok-tottii/mic-calibrator/internal/selection"
)

// Env holds injectable dependencies for CLI commands.
//
// All fields have production defaults via DefaultEnv(). Tests override
// specific fields using the With* options or by building an Env directly.
type Env struct {
	// I/O and environment
	Stdin      io.Reader
	Stdout     io.Writer
	Stderr     io.Writer
	Now        func() time.Time
	ConfigPath string

	// Factories for domain objects
	ConfigLoader  ConfigLoader
	LoggerFactory LoggerFactory
	ListerFactory ListerFactory
	ClientFactory ClientFactory
	MuteFactory   MuteFactory
	StoreFactory  StoreFactory
}

// ConfigLoader loads the configuration and reports later edits.
type ConfigLoader interface {
	Load(path string) (*config.Config, error)
	// Watch calls onChange after every valid edit of the last loaded file.
	Watch(log *logger.Logger, onChange func(*config.Config)) error
}

// LoggerFactory creates the application logger.
type LoggerFactory interface {
	NewLogger(cfg logger.Config) (*logger.Logger, error)
}

// ListerFactory creates the device listing backend.
// The returned cleanup releases backend resources and is never nil.
type ListerFactory interface {
	NewLister(cfg *config.Config) (audio.Lister, func(), error)
}

// ClientFactory creates the measurement service client.
type ClientFactory interface {
	NewClient(cfg *config.Config) measure.Client
}

// MuteFactory creates the backend that suspends speech output.
type MuteFactory interface {
	NewSuspender(cfg *config.Config) (mute.Suspender, error)
}

// StoreFactory creates the selection store.
type StoreFactory interface {
	NewStore(cfg *config.Config) (selection.Store, error)
}

// EnvOption configures an Env.
type EnvOption func(*Env)

// WithStdin sets the reader used for interactive prompts.
func WithStdin(r io.Reader) EnvOption {
	return func(e *Env) {
		e.Stdin = r
	}
}

// WithStdout sets the stdout writer.
func WithStdout(w io.Writer) EnvOption {
	return func(e *Env) {
		e.Stdout = w
	}
}

// WithStderr sets the stderr writer.
func WithStderr(w io.Writer) EnvOption {
	return func(e *Env) {
		e.Stderr = w
	}
}

// WithNow sets the time provider.
func WithNow(fn func() time.Time) EnvOption {
	return func(e *Env) {
		e.Now = fn
	}
}

// WithConfigPath sets the configuration file path.
func WithConfigPath(path string) EnvOption {
	return func(e *Env) {
		e.ConfigPath = path
	}
}

// WithConfigLoader sets the config loader.
func WithConfigLoader(l ConfigLoader) EnvOption {
	return func(e *Env) {
		e.ConfigLoader = l
	}
}

// WithLoggerFactory sets the logger factory.
func WithLoggerFactory(f LoggerFactory) EnvOption {
	return func(e *Env) {
		e.LoggerFactory = f
	}
}

// WithListerFactory sets the device lister factory.
func WithListerFactory(f ListerFactory) EnvOption {
	return func(e *Env) {
		e.ListerFactory = f
	}
}

// WithClientFactory sets the measurement client factory.
func WithClientFactory(f ClientFactory) EnvOption {
	return func(e *Env) {
		e.ClientFactory = f
	}
}

// WithMuteFactory sets the mute backend factory.
func WithMuteFactory(f MuteFactory) EnvOption {
	return func(e *Env) {
		e.MuteFactory = f
	}
}

// WithStoreFactory sets the selection store factory.
func WithStoreFactory(f StoreFactory) EnvOption {
	return func(e *Env) {
		e.StoreFactory = f
	}
}

// DefaultEnv returns an Env with production defaults.
func DefaultEnv() *Env {
	return &Env{
		Stdin:         os.Stdin,
		Stdout:        os.Stdout,
		Stderr:        os.Stderr,
		Now:           time.Now,
		ConfigPath:    config.GetConfigPath(),
		ConfigLoader:  &defaultConfigLoader{},
		LoggerFactory: defaultLoggerFactory{},
		ListerFactory: defaultListerFactory{},
		ClientFactory: defaultClientFactory{},
		MuteFactory:   defaultMuteFactory{},
		StoreFactory:  defaultStoreFactory{},
	}
}

// NewEnv creates an Env with the given options applied to defaults.
func NewEnv(opts ...EnvOption) *Env {
	env := DefaultEnv()
	for _, opt := range opts {
		opt(env)
	}
	return env
}

// ---------------------------------------------------------------------------
// Default implementations - delegate to real packages
// ---------------------------------------------------------------------------

// defaultConfigLoader keeps the viper loader so the file can be watched later.
type defaultConfigLoader struct {
	loader *config.Loader
}

func (l *defaultConfigLoader) Load(path string) (*config.Config, error) {
	l.loader = config.NewLoader(path)
	return l.loader.Load()
}

func (l *defaultConfigLoader) Watch(log *logger.Logger, onChange func(*config.Config)) error {
	if l.loader == nil {
		return fmt.Errorf("config not loaded")
	}
	l.loader.OnChange(onChange)
	return l.loader.Watch(log)
}

type defaultLoggerFactory struct{}

func (defaultLoggerFactory) NewLogger(cfg logger.Config) (*logger.Logger, error) {
	return logger.New(cfg)
}

// defaultListerFactory picks PortAudio or the assistant daemon.
type defaultListerFactory struct{}

func (defaultListerFactory) NewLister(cfg *config.Config) (audio.Lister, func(), error) {
	switch cfg.Catalog.Backend {
	case "daemon":
		return audio.NewHTTPLister(cfg.Catalog.DaemonURL, nil), func() {}, nil
	default:
		l, err := audio.NewPortAudioLister()
		if err != nil {
			return nil, nil, err
		}
		return l, func() { l.Close() }, nil
	}
}

type defaultClientFactory struct{}

func (defaultClientFactory) NewClient(cfg *config.Config) measure.Client {
	return measure.NewHTTPClient(cfg.Measurement.URL, measure.WithRetry(cfg.RetryConfig()))
}

// defaultMuteFactory picks the daemon, the flag file, or nothing.
type defaultMuteFactory struct{}

func (defaultMuteFactory) NewSuspender(cfg *config.Config) (mute.Suspender, error) {
	switch cfg.Mute.Backend {
	case "daemon":
		return mute.NewHTTPSuspender(cfg.Mute.DaemonURL, nil), nil
	case "flagfile":
		path, err := cfg.FlagPath()
		if err != nil {
			return nil, err
		}
		return mute.NewFlagFileSuspender(path), nil
	default:
		return mute.NopSuspender{}, nil
	}
}

type defaultStoreFactory struct{}

func (defaultStoreFactory) NewStore(cfg *config.Config) (selection.Store, error) {
	path, err := cfg.SelectionPath()
	if err != nil {
		return nil, err
	}
	return selection.NewFileStore(path), nil
}

// Compile-time interface verification.
var (
	_ ConfigLoader  = (*defaultConfigLoader)(nil)
	_ LoggerFactory = defaultLoggerFactory{}
	_ ListerFactory = defaultListerFactory{}
	_ ClientFactory = defaultClientFactory{}
	_ MuteFactory   = defaultMuteFactory{}
	_ StoreFactory  = defaultStoreFactory{}
)

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/yok-tottii/mic-calibrator/internal/logger"
	"github.com/yok-tottii/mic-calibrator/internal/measure"
	"github.com/yok-tottii/mic-calibrator/internal/wizard"
)

// AppName names the config directory
const AppName = "mic-calibrator"

// EnvPrefix prefixes environment overrides, e.g. MICCAL_SERVER_PORT
const EnvPrefix = "MICCAL"

// Config holds application configuration
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Measurement MeasurementConfig `mapstructure:"measurement"`
	Catalog     CatalogConfig     `mapstructure:"catalog"`
	Mute        MuteConfig        `mapstructure:"mute"`
	Selection   SelectionConfig   `mapstructure:"selection"`
	Scoring     ScoringConfig     `mapstructure:"scoring"`
	Wizard      WizardConfig      `mapstructure:"wizard"`
	UI          UIConfig          `mapstructure:"ui"`
	Log         LogConfig         `mapstructure:"log"`
	Hotkey      HotkeyConfig      `mapstructure:"hotkey"`
}

// ServerConfig holds the HTTP listener settings
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// MeasurementConfig points at the measurement service
type MeasurementConfig struct {
	URL        string        `mapstructure:"url" validate:"required,url"`
	TestBudget time.Duration `mapstructure:"test_budget" validate:"gt=0"`
	MaxRetries int           `mapstructure:"max_retries" validate:"min=0,max=10"`
	RetryDelay time.Duration `mapstructure:"retry_delay" validate:"gte=0"`
}

// CatalogConfig selects where devices come from
type CatalogConfig struct {
	Backend   string   `mapstructure:"backend" validate:"oneof=portaudio daemon"`
	DaemonURL string   `mapstructure:"daemon_url" validate:"required_if=Backend daemon,omitempty,url"`
	Exclude   []string `mapstructure:"exclude"`
}

// MuteConfig selects how speech output is suspended
type MuteConfig struct {
	Backend   string `mapstructure:"backend" validate:"oneof=daemon flagfile none"`
	DaemonURL string `mapstructure:"daemon_url" validate:"required_if=Backend daemon,omitempty,url"`
	FlagPath  string `mapstructure:"flag_path" validate:"required_if=Backend flagfile"`
}

// SelectionConfig locates the persisted selection
type SelectionConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// ScoringConfig holds the score weights
type ScoringConfig struct {
	Weights WeightsConfig `mapstructure:"weights"`
}

// WeightsConfig mirrors wizard.Weights
type WeightsConfig struct {
	SNR   float64 `mapstructure:"snr" validate:"gte=0,lte=1"`
	Voice float64 `mapstructure:"voice" validate:"gte=0,lte=1"`
	Delay float64 `mapstructure:"delay" validate:"gte=0,lte=1"`
	Clip  float64 `mapstructure:"clip" validate:"gte=0,lte=1"`
	Drop  float64 `mapstructure:"drop" validate:"gte=0,lte=1"`
}

// WizardConfig tunes sessions
type WizardConfig struct {
	AutoConfirm      bool          `mapstructure:"auto_confirm"`
	SessionRetention time.Duration `mapstructure:"session_retention" validate:"gt=0"`
}

// UIConfig holds user interface settings
type UIConfig struct {
	Language string `mapstructure:"language" validate:"oneof=en ja"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Dir           string `mapstructure:"dir" validate:"required"`
	Level         string `mapstructure:"level"`
	RetentionDays int    `mapstructure:"retention_days" validate:"min=1"`
}

// HotkeyConfig holds the global shortcuts
type HotkeyConfig struct {
	Abort string `mapstructure:"abort"`
}

// Dir returns the configuration directory
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get config directory: %w", err)
	}
	return filepath.Join(base, AppName), nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	dir, err := Dir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(dir, "config.yaml")
}

// setDefaults registers every key so environment overrides apply to all of them
func setDefaults(v *viper.Viper, dir string) {
	v.SetDefault("server.port", 18765)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)

	v.SetDefault("measurement.url", "http://127.0.0.1:8765")
	v.SetDefault("measurement.test_budget", measure.DefaultBudget)
	v.SetDefault("measurement.max_retries", 2)
	v.SetDefault("measurement.retry_delay", 200*time.Millisecond)

	v.SetDefault("catalog.backend", "portaudio")
	v.SetDefault("catalog.daemon_url", "http://127.0.0.1:8765")
	v.SetDefault("catalog.exclude", []string{
		"sound mapper", "primary capture", "communications",
		"loopback", "stereo mix", "what u hear",
	})

	v.SetDefault("mute.backend", "flagfile")
	v.SetDefault("mute.daemon_url", "http://127.0.0.1:8765")
	v.SetDefault("mute.flag_path", filepath.Join(dir, "tts.suspended"))

	v.SetDefault("selection.path", filepath.Join(dir, "selection.json"))

	w := wizard.DefaultWeights()
	v.SetDefault("scoring.weights.snr", w.SNR)
	v.SetDefault("scoring.weights.voice", w.Voice)
	v.SetDefault("scoring.weights.delay", w.Delay)
	v.SetDefault("scoring.weights.clip", w.Clip)
	v.SetDefault("scoring.weights.drop", w.Drop)

	v.SetDefault("wizard.auto_confirm", false)
	v.SetDefault("wizard.session_retention", wizard.DefaultRetention)

	v.SetDefault("ui.language", "en")

	v.SetDefault("log.dir", filepath.Join(dir, "logs"))
	v.SetDefault("log.level", "info")
	v.SetDefault("log.retention_days", 7)

	v.SetDefault("hotkey.abort", "ctrl+shift+m")
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	cfg, err := NewLoader("").decode()
	if err != nil {
		panic(fmt.Sprintf("config: invalid defaults: %v", err))
	}
	return cfg
}

// Loader reads the configuration and keeps it current when the file changes
type Loader struct {
	v    *viper.Viper
	path string

	mu        sync.RWMutex
	current   *Config
	listeners []func(*Config)
}

// NewLoader prepares a loader for the file at path.
// An empty path uses defaults and the environment only.
func NewLoader(path string) *Loader {
	dir, err := Dir()
	if err != nil {
		dir = "."
	}

	v := viper.New()
	setDefaults(v, dir)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
	}
	return &Loader{v: v, path: path}
}

// Load reads the file, applies environment overrides and validates the result.
// A missing file is not an error.
func (l *Loader) Load() (*Config, error) {
	if l.path != "" {
		if err := l.v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	cfg, err := l.decode()
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.current = cfg
	l.mu.Unlock()
	return cfg, nil
}

func (l *Loader) decode() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Current returns the last successfully loaded configuration
func (l *Loader) Current() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// Path returns the file the loader reads
func (l *Loader) Path() string {
	return l.path
}

// OnChange registers fn to run after every successful reload
func (l *Loader) OnChange(fn func(*Config)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = append(l.listeners, fn)
}

// Watch reloads the configuration whenever the file changes.
// Invalid edits are logged and the previous configuration stays active.
func (l *Loader) Watch(log *logger.Logger) error {
	if l.path == "" {
		return errors.New("no config file to watch")
	}
	if _, err := os.Stat(l.path); err != nil {
		return fmt.Errorf("cannot watch config file: %w", err)
	}
	if log == nil {
		log = logger.NewNop()
	}

	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := l.decode()
		if err != nil {
			log.Error("ignoring invalid config change in %s: %v", e.Name, err)
			return
		}

		l.mu.Lock()
		l.current = cfg
		listeners := append([]func(*Config){}, l.listeners...)
		l.mu.Unlock()

		log.Info("configuration reloaded from %s", e.Name)
		for _, fn := range listeners {
			fn(cfg)
		}
	})
	l.v.WatchConfig()
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate validates all configuration fields
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid %s: %v (rule %s)", fe.Namespace(), fe.Value(), fe.Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := c.Weights().Validate(); err != nil {
		return fmt.Errorf("invalid scoring.weights: %w", err)
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log.level: %w", err)
	}
	return nil
}

// Weights returns the configured score weights
func (c *Config) Weights() wizard.Weights {
	w := c.Scoring.Weights
	return wizard.Weights{SNR: w.SNR, Voice: w.Voice, Delay: w.Delay, Clip: w.Clip, Drop: w.Drop}
}

// WizardOptions returns the session options
func (c *Config) WizardOptions() wizard.Options {
	return wizard.Options{
		Budget:      c.Measurement.TestBudget,
		Weights:     c.Weights(),
		AutoConfirm: c.Wizard.AutoConfirm,
	}
}

// RetryConfig returns the measurement retry policy
func (c *Config) RetryConfig() measure.RetryConfig {
	rc := measure.DefaultRetryConfig()
	rc.MaxRetries = c.Measurement.MaxRetries
	rc.BaseDelay = c.Measurement.RetryDelay
	return rc
}

// LoggerConfig returns the logger settings
func (c *Config) LoggerConfig() logger.Config {
	level, _ := logger.ParseLevel(c.Log.Level)
	dir, err := ExpandPath(c.Log.Dir)
	if err != nil {
		dir = c.Log.Dir
	}
	return logger.Config{
		LogDir:        dir,
		Level:         level,
		RetentionDays: c.Log.RetentionDays,
		Console:       true,
	}
}

// SelectionPath returns the expanded selection file path
func (c *Config) SelectionPath() (string, error) {
	return ExpandPath(c.Selection.Path)
}

// FlagPath returns the expanded mute flag path
func (c *Config) FlagPath() (string, error) {
	return ExpandPath(c.Mute.FlagPath)
}

// ExpandPath expands ~ to home directory in file paths
func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return filepath.Join(homeDir, path[2:]), nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}
	return absPath, nil
}

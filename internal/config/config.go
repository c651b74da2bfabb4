// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Check   CheckConfig   `mapstructure:"check" yaml:"check"`
	Report  ReportConfig  `mapstructure:"report" yaml:"report"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the headless browser process.
type BrowserConfig struct {
	Headless bool `mapstructure:"headless" yaml:"headless"`
	// ExecPath points at a specific Chrome/Chromium binary. Empty means chromedp's lookup.
	ExecPath          string        `mapstructure:"exec_path" yaml:"exec_path"`
	NoSandbox         bool          `mapstructure:"no_sandbox" yaml:"no_sandbox"`
	Args              []string      `mapstructure:"args" yaml:"args"`
	LaunchTimeout     time.Duration `mapstructure:"launch_timeout" yaml:"launch_timeout"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	ActionTimeout     time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
}

// ViewportConfig overrides a device profile's CSS viewport. Zero values keep the profile's own size.
type ViewportConfig struct {
	Width  int `mapstructure:"width" yaml:"width"`
	Height int `mapstructure:"height" yaml:"height"`
}

// SelectorConfig names the page hooks the check drives.
type SelectorConfig struct {
	// Input is a CSS selector; the first match is used.
	Input string `mapstructure:"input" yaml:"input"`
	// Slides is a CSS selector matching every scrollable question slide.
	Slides string `mapstructure:"slides" yaml:"slides"`
	// ContainerID is an element id, not a selector.
	ContainerID string `mapstructure:"container_id" yaml:"container_id"`
	Next        string `mapstructure:"next" yaml:"next"`
}

// CheckConfig configures a mobile check run.
type CheckConfig struct {
	Page              string         `mapstructure:"page" yaml:"page"`
	Devices           []string       `mapstructure:"devices" yaml:"devices"`
	Viewport          ViewportConfig `mapstructure:"viewport" yaml:"viewport"`
	Screenshot        string         `mapstructure:"screenshot" yaml:"screenshot"`
	FullPage          bool           `mapstructure:"full_page" yaml:"full_page"`
	Text              string         `mapstructure:"text" yaml:"text"`
	SettleDelay       time.Duration  `mapstructure:"settle_delay" yaml:"settle_delay"`
	ActionDelay       time.Duration  `mapstructure:"action_delay" yaml:"action_delay"`
	Strict            bool           `mapstructure:"strict" yaml:"strict"`
	Parallel          int            `mapstructure:"parallel" yaml:"parallel"`
	SkipPreflight     bool           `mapstructure:"skip_preflight" yaml:"skip_preflight"`
	VHVariable        string         `mapstructure:"vh_variable" yaml:"vh_variable"`
	SlideHeightGlobal string         `mapstructure:"slide_height_global" yaml:"slide_height_global"`
	Selectors         SelectorConfig `mapstructure:"selectors" yaml:"selectors"`
}

// ReportConfig controls the optional machine readable report.
type ReportConfig struct {
	// Path is empty when no report should be written.
	Path string `mapstructure:"path" yaml:"path"`
	// Format is "json" or "yaml". Empty means infer from the Path extension.
	Format string `mapstructure:"format" yaml:"format"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "mobilecheck")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 10)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 7)
	v.SetDefault("logger.compress", false)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.no_sandbox", true)
	v.SetDefault("browser.launch_timeout", "30s")
	v.SetDefault("browser.navigation_timeout", "30s")
	v.SetDefault("browser.action_timeout", "30s")

	// -- Check --
	v.SetDefault("check.page", "index.html")
	v.SetDefault("check.devices", []string{"iphone12"})
	v.SetDefault("check.viewport.width", 0)
	v.SetDefault("check.viewport.height", 0)
	v.SetDefault("check.screenshot", "mobile-test.png")
	v.SetDefault("check.full_page", false)
	v.SetDefault("check.text", "Test answer from mobile viewport")
	v.SetDefault("check.settle_delay", "1s")
	v.SetDefault("check.action_delay", "500ms")
	v.SetDefault("check.strict", false)
	v.SetDefault("check.parallel", 1)
	v.SetDefault("check.skip_preflight", false)
	v.SetDefault("check.vh_variable", "--vh")
	v.SetDefault("check.slide_height_global", "fixedSlideHeight")
	v.SetDefault("check.selectors.input", ".answer-input")
	v.SetDefault("check.selectors.slides", ".question-slide")
	v.SetDefault("check.selectors.container_id", "questionsContainer")
	v.SetDefault("check.selectors.next", "#nextBtn")

	// -- Report --
	v.SetDefault("report.path", "")
	v.SetDefault("report.format", "")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.Browser.Validate(); err != nil {
		return fmt.Errorf("browser: %w", err)
	}
	if err := c.Check.Validate(); err != nil {
		return fmt.Errorf("check: %w", err)
	}
	if err := c.Report.Validate(); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	return nil
}

// Validate checks the browser settings.
func (b *BrowserConfig) Validate() error {
	if b.LaunchTimeout <= 0 {
		return errors.New("launch_timeout must be a positive duration")
	}
	if b.NavigationTimeout <= 0 {
		return errors.New("navigation_timeout must be a positive duration")
	}
	if b.ActionTimeout <= 0 {
		return errors.New("action_timeout must be a positive duration")
	}
	return nil
}

// Validate checks the check run settings.
func (c *CheckConfig) Validate() error {
	if strings.TrimSpace(c.Page) == "" {
		return errors.New("page is required")
	}
	if len(c.Devices) == 0 {
		return errors.New("at least one device is required")
	}
	if c.Viewport.Width < 0 || c.Viewport.Height < 0 {
		return errors.New("viewport dimensions must not be negative")
	}
	// A half-specified viewport is almost always a typo.
	if (c.Viewport.Width == 0) != (c.Viewport.Height == 0) {
		return errors.New("viewport width and height must be set together")
	}
	if strings.TrimSpace(c.Screenshot) == "" {
		return errors.New("screenshot path is required")
	}
	if c.SettleDelay < 0 || c.ActionDelay < 0 {
		return errors.New("delays must not be negative")
	}
	if c.Parallel < 1 {
		return errors.New("parallel must be at least 1")
	}
	if c.Selectors.Input == "" || c.Selectors.Slides == "" || c.Selectors.ContainerID == "" || c.Selectors.Next == "" {
		return errors.New("all selectors (input, slides, container_id, next) are required")
	}
	return nil
}

// Validate checks the report settings.
func (r *ReportConfig) Validate() error {
	switch strings.ToLower(r.Format) {
	case "", "json", "yaml", "yml":
		return nil
	default:
		return fmt.Errorf("unsupported format %q (want json or yaml)", r.Format)
	}
}

// Package config handles configuration loading and validation for folio.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/colonyops/folio/internal/core/styles"
	"github.com/colonyops/folio/internal/data/db"
	"github.com/colonyops/folio/internal/viewer"
	"github.com/colonyops/folio/internal/viewer/layout"
	"github.com/colonyops/folio/internal/viewer/render"
	"github.com/colonyops/folio/internal/viewer/zoom"
)

// Preference store backends.
const (
	PrefsBackendFile   = "file"
	PrefsBackendSQLite = "sqlite"
)

// Config holds the application configuration.
type Config struct {
	Viewer   ViewerConfig   `yaml:"viewer"`
	Prefs    PrefsConfig    `yaml:"prefs"`
	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
	TUI      TUIConfig      `yaml:"tui"`
	DataDir  string         `yaml:"-"` // set by caller, not from config file
}

// ViewerConfig tunes the document pipeline.
type ViewerConfig struct {
	Zoom   ZoomConfig   `yaml:"zoom"`
	Render RenderConfig `yaml:"render"`
	Layout LayoutConfig `yaml:"layout"`
}

// ZoomConfig bounds the zoom multiplier.
type ZoomConfig struct {
	Min     float64 `yaml:"min"`
	Max     float64 `yaml:"max"`
	Step    float64 `yaml:"step"`
	Default float64 `yaml:"default"`
}

// RenderConfig holds the render engine's retry policy and scale floor.
type RenderConfig struct {
	RetryInterval time.Duration `yaml:"retry_interval"`
	MaxRetries    int           `yaml:"max_retries"`
	MinScale      float64       `yaml:"min_scale"`
}

// LayoutConfig holds page stacking and scrolling options.
type LayoutConfig struct {
	PageGap       int           `yaml:"page_gap"`
	Overscan      float64       `yaml:"overscan"`
	ScrollFrames  int           `yaml:"scroll_frames"`
	FrameInterval time.Duration `yaml:"frame_interval"`
	// ViewportHeight is the viewport used by headless hosts.
	ViewportHeight int `yaml:"viewport_height"`
}

// PrefsConfig selects where preferences such as the zoom level are kept.
type PrefsConfig struct {
	Backend string `yaml:"backend"` // file or sqlite
}

// DatabaseConfig holds SQLite connection pool settings.
type DatabaseConfig struct {
	MaxOpenConns int `yaml:"max_open_conns"`
	MaxIdleConns int `yaml:"max_idle_conns"`
	BusyTimeout  int `yaml:"busy_timeout"` // milliseconds
}

// ServerConfig configures `folio serve`.
type ServerConfig struct {
	Addr            string `yaml:"addr"`
	AllowAllOrigins bool   `yaml:"allow_all_origins"`
	Pprof           bool   `yaml:"pprof"`
}

// TUIConfig configures `folio view`.
type TUIConfig struct {
	// PageWidth is the render width in pixels. Zero follows the terminal.
	PageWidth int    `yaml:"page_width"`
	Theme     string `yaml:"theme"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	zo := zoom.DefaultOptions()
	ro := render.DefaultOptions()
	lo := layout.DefaultOptions()
	dbo := db.DefaultOpenOptions()

	return Config{
		Viewer: ViewerConfig{
			Zoom: ZoomConfig{Min: zo.Min, Max: zo.Max, Step: zo.Step, Default: zo.Default},
			Render: RenderConfig{
				RetryInterval: ro.RetryInterval,
				MaxRetries:    ro.MaxRetries,
				MinScale:      ro.MinScale,
			},
			Layout: LayoutConfig{
				PageGap:        lo.PageGap,
				Overscan:       lo.Overscan,
				ScrollFrames:   lo.ScrollFrames,
				FrameInterval:  lo.FrameInterval,
				ViewportHeight: 1024,
			},
		},
		Prefs: PrefsConfig{Backend: PrefsBackendFile},
		Database: DatabaseConfig{
			MaxOpenConns: dbo.MaxOpenConns,
			MaxIdleConns: dbo.MaxIdleConns,
			BusyTimeout:  dbo.BusyTimeout,
		},
		Server: ServerConfig{Addr: "127.0.0.1:7420"},
		TUI:    TUIConfig{Theme: styles.DefaultTheme},
	}
}

// Load reads configuration from the given path and sets the data directory.
// If configPath is empty or doesn't exist, returns defaults with the provided dataDir.
func Load(configPath, dataDir string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.DataDir = dataDir

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			data, err := os.ReadFile(configPath)
			if err != nil {
				return nil, fmt.Errorf("read config file: %w", err)
			}

			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}

			// Re-set dataDir since Unmarshal may have cleared it
			cfg.DataDir = dataDir
		}
	}

	// Apply defaults for zero values
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for any unset configuration options.
func (c *Config) applyDefaults() {
	d := DefaultConfig()

	z := &c.Viewer.Zoom
	if z.Min == 0 {
		z.Min = d.Viewer.Zoom.Min
	}
	if z.Max == 0 {
		z.Max = d.Viewer.Zoom.Max
	}
	if z.Step == 0 {
		z.Step = d.Viewer.Zoom.Step
	}
	if z.Default == 0 {
		z.Default = d.Viewer.Zoom.Default
	}

	r := &c.Viewer.Render
	if r.RetryInterval == 0 {
		r.RetryInterval = d.Viewer.Render.RetryInterval
	}
	if r.MinScale == 0 {
		r.MinScale = d.Viewer.Render.MinScale
	}

	l := &c.Viewer.Layout
	if l.ScrollFrames == 0 {
		l.ScrollFrames = d.Viewer.Layout.ScrollFrames
	}
	if l.FrameInterval == 0 {
		l.FrameInterval = d.Viewer.Layout.FrameInterval
	}
	if l.ViewportHeight == 0 {
		l.ViewportHeight = d.Viewer.Layout.ViewportHeight
	}

	if c.Prefs.Backend == "" {
		c.Prefs.Backend = d.Prefs.Backend
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = d.Database.MaxOpenConns
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = d.Database.MaxIdleConns
	}
	if c.Database.BusyTimeout == 0 {
		c.Database.BusyTimeout = d.Database.BusyTimeout
	}
	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}
	if c.TUI.Theme == "" {
		c.TUI.Theme = d.TUI.Theme
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data directory cannot be empty")
	}

	z := c.Viewer.Zoom
	if z.Min <= 0 {
		return fmt.Errorf("viewer.zoom.min must be positive")
	}
	if z.Max < z.Min {
		return fmt.Errorf("viewer.zoom.max must be at least viewer.zoom.min")
	}
	if z.Step <= 0 {
		return fmt.Errorf("viewer.zoom.step must be positive")
	}
	if z.Default < z.Min || z.Default > z.Max {
		return fmt.Errorf("viewer.zoom.default must be within [min, max]")
	}

	if c.Viewer.Render.MaxRetries < 0 {
		return fmt.Errorf("viewer.render.max_retries cannot be negative")
	}
	if c.Viewer.Render.MinScale <= 0 {
		return fmt.Errorf("viewer.render.min_scale must be positive")
	}

	if c.Viewer.Layout.PageGap < 0 {
		return fmt.Errorf("viewer.layout.page_gap cannot be negative")
	}
	if c.Viewer.Layout.ScrollFrames < 1 {
		return fmt.Errorf("viewer.layout.scroll_frames must be at least 1")
	}

	switch c.Prefs.Backend {
	case PrefsBackendFile, PrefsBackendSQLite:
	default:
		return fmt.Errorf("prefs.backend must be %q or %q, got %q", PrefsBackendFile, PrefsBackendSQLite, c.Prefs.Backend)
	}

	if c.Database.MaxOpenConns < 1 {
		return fmt.Errorf("database.max_open_conns must be at least 1")
	}

	if c.TUI.PageWidth < 0 {
		return fmt.Errorf("tui.page_width cannot be negative")
	}
	if _, ok := styles.GetPalette(c.TUI.Theme); !ok {
		return fmt.Errorf("tui.theme %q is not one of %s", c.TUI.Theme, strings.Join(styles.ThemeNames(), ", "))
	}

	return nil
}

// ViewerOptions converts the viewer section into viewer.Options.
func (c *Config) ViewerOptions() viewer.Options {
	opts := viewer.DefaultOptions()
	opts.Zoom = zoom.Options{
		Min:     c.Viewer.Zoom.Min,
		Max:     c.Viewer.Zoom.Max,
		Step:    c.Viewer.Zoom.Step,
		Default: c.Viewer.Zoom.Default,
	}
	opts.Render = render.Options{
		RetryInterval: c.Viewer.Render.RetryInterval,
		MaxRetries:    c.Viewer.Render.MaxRetries,
		MinScale:      c.Viewer.Render.MinScale,
	}
	opts.Layout = layout.Options{
		PageGap:       c.Viewer.Layout.PageGap,
		Overscan:      c.Viewer.Layout.Overscan,
		ScrollFrames:  c.Viewer.Layout.ScrollFrames,
		FrameInterval: c.Viewer.Layout.FrameInterval,
	}
	return opts
}

// DatabaseOptions converts the database section into db.OpenOptions.
func (c *Config) DatabaseOptions() db.OpenOptions {
	return db.OpenOptions{
		MaxOpenConns: c.Database.MaxOpenConns,
		MaxIdleConns: c.Database.MaxIdleConns,
		BusyTimeout:  c.Database.BusyTimeout,
	}
}

// PrefsDir returns the directory of the file preference store.
func (c *Config) PrefsDir() string {
	return filepath.Join(c.DataDir, "prefs")
}

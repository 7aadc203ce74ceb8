package app

import (
	"fmt"
	"image/color"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hamgrid/groundscope/internal/colormap"
	"github.com/hamgrid/groundscope/internal/metrics"
	"github.com/hamgrid/groundscope/internal/overlay"
	"github.com/hamgrid/groundscope/internal/spectrum"
)

// Config represents the main application configuration
type Config struct {
	Settings Settings             `yaml:"settings"`
	Feed     FeedConfig           `yaml:"feed"`
	Display  DisplayConfig        `yaml:"display"`
	Overlays OverlaysConfig       `yaml:"overlays"`
	Storage  StorageConfig        `yaml:"storage"`
	MQTT     metrics.BrokerConfig `yaml:"mqtt"`
	Server   ServerConfig         `yaml:"server"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel string `yaml:"logLevel"`
}

// SlogLevel maps the configured level name onto a slog level. Unknown
// names fall back to info.
func (s Settings) SlogLevel() slog.Level {
	switch strings.ToLower(s.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// FeedConfig describes the frame transport.
type FeedConfig struct {
	URL         string `yaml:"url"`
	RateCeiling int    `yaml:"rateCeiling"`
}

// DisplayConfig describes the render surfaces and the initial color
// mapping. Colors are "#RRGGBB" or "#RRGGBBAA" hex strings.
type DisplayConfig struct {
	Scheme     string  `yaml:"scheme"`
	RangeMinDb float64 `yaml:"rangeMinDb"`
	RangeMaxDb float64 `yaml:"rangeMaxDb"`
	FFTSize    int     `yaml:"fftSize"`
	FrameRate  int     `yaml:"frameRate"`

	ViewportWidth   int `yaml:"viewportWidth"`
	WaterfallWidth  int `yaml:"waterfallWidth"`
	WaterfallHeight int `yaml:"waterfallHeight"`
	BandscopeHeight int `yaml:"bandscopeHeight"`
	MarginWidth     int `yaml:"marginWidth"`
	AxisWidth       int `yaml:"axisWidth"`

	Background string `yaml:"background"`
	AxisColor  string `yaml:"axisColor"`
}

// Range returns the configured dynamic range.
func (d DisplayConfig) Range() spectrum.DynamicRange {
	return spectrum.DynamicRange{Min: d.RangeMinDb, Max: d.RangeMaxDb}
}

// OverlaysConfig lists the band-plan entries shown on the band strip. An
// empty list selects the built-in amateur satellite bands.
type OverlaysConfig struct {
	Bands []overlay.Band `yaml:"bands"`
}

// StorageConfig represents storage settings
type StorageConfig struct {
	DatabasePath      string `yaml:"databasePath"`
	SnapshotDirectory string `yaml:"snapshotDirectory"`
}

// ServerConfig describes the HTTP API listener.
type ServerConfig struct {
	Listen string `yaml:"listen"`
}

// LoadConfig reads, defaults and validates a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading configuration file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing configuration file: %w", err)
	}

	config.applyDefaults()
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Feed.RateCeiling == 0 {
		c.Feed.RateCeiling = 60
	}
	if c.Display.Scheme == "" {
		c.Display.Scheme = string(colormap.DefaultScheme)
	}
	if c.Display.RangeMinDb == 0 && c.Display.RangeMaxDb == 0 {
		c.Display.RangeMinDb = -120
		c.Display.RangeMaxDb = 0
	}
	if c.Display.FFTSize == 0 {
		c.Display.FFTSize = 1024
	}
	if c.Display.FrameRate == 0 {
		c.Display.FrameRate = 25
	}
	if c.Display.ViewportWidth == 0 {
		c.Display.ViewportWidth = 1200
	}
	if c.Display.WaterfallWidth == 0 {
		c.Display.WaterfallWidth = c.Display.FFTSize
	}
	if c.Display.WaterfallHeight == 0 {
		c.Display.WaterfallHeight = 600
	}
	if c.Display.BandscopeHeight == 0 {
		c.Display.BandscopeHeight = 100
	}
	if c.Display.MarginWidth == 0 {
		c.Display.MarginWidth = 48
	}
	if c.Display.AxisWidth == 0 {
		c.Display.AxisWidth = 24
	}
	if c.Display.Background == "" {
		c.Display.Background = "#000000"
	}
	if c.Display.AxisColor == "" {
		c.Display.AxisColor = "#eeeeee"
	}
	if len(c.Overlays.Bands) == 0 {
		c.Overlays.Bands = overlay.DefaultBands()
	}
	if c.Storage.DatabasePath == "" {
		c.Storage.DatabasePath = "groundscope.db"
	}
	if c.Storage.SnapshotDirectory == "" {
		c.Storage.SnapshotDirectory = "snapshots"
	}
	if c.Server.Listen == "" {
		c.Server.Listen = ":8080"
	}
}

func (c *Config) validate() error {
	if c.Feed.URL == "" {
		return fmt.Errorf("feed.url is required")
	}
	if c.Feed.RateCeiling < 0 {
		return fmt.Errorf("feed.rateCeiling must be positive, got %d", c.Feed.RateCeiling)
	}
	if err := c.Display.Range().Validate(); err != nil {
		return fmt.Errorf("display range: %w", err)
	}
	if c.Display.FFTSize <= 0 {
		return fmt.Errorf("display.fftSize must be positive, got %d", c.Display.FFTSize)
	}
	if c.Display.FrameRate <= 0 {
		return fmt.Errorf("display.frameRate must be positive, got %d", c.Display.FrameRate)
	}
	if _, err := parseHexColor(c.Display.Background); err != nil {
		return fmt.Errorf("display.background: %w", err)
	}
	if _, err := parseHexColor(c.Display.AxisColor); err != nil {
		return fmt.Errorf("display.axisColor: %w", err)
	}
	for _, band := range c.Overlays.Bands {
		if band.Low >= band.High {
			return fmt.Errorf("band %q: low edge %0.0f is not below high edge %0.0f", band.Name, band.Low, band.High)
		}
	}
	if c.MQTT.Enabled && c.MQTT.Host == "" {
		return fmt.Errorf("mqtt.host is required when mqtt is enabled")
	}
	return nil
}

func parseHexColor(s string) (color.RGBA, error) {
	hex, ok := strings.CutPrefix(s, "#")
	if !ok || (len(hex) != 6 && len(hex) != 8) {
		return color.RGBA{}, fmt.Errorf("invalid color %q, expected #RRGGBB or #RRGGBBAA", s)
	}

	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid color %q: %w", s, err)
	}

	if len(hex) == 6 {
		v = v<<8 | 0xff
	}
	return color.RGBA{
		R: uint8(v >> 24),
		G: uint8(v >> 16),
		B: uint8(v >> 8),
		A: uint8(v),
	}, nil
}

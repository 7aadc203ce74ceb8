package app

import (
	"image/color"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, "feed:\n  url: ws://localhost:9000/frames\n")

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if config.Feed.RateCeiling != 60 {
		t.Errorf("expected default rate ceiling 60, got %d", config.Feed.RateCeiling)
	}
	if config.Display.FFTSize != 1024 || config.Display.WaterfallWidth != 1024 {
		t.Errorf("expected waterfall width to follow FFT size, got %+v", config.Display)
	}
	if config.Display.RangeMinDb != -120 || config.Display.RangeMaxDb != 0 {
		t.Errorf("unexpected default range: %+v", config.Display)
	}
	if len(config.Overlays.Bands) == 0 {
		t.Error("expected built-in band plan")
	}
	if config.Server.Listen != ":8080" {
		t.Errorf("unexpected listen address: %s", config.Server.Listen)
	}
}

func TestLoadConfigRequiresFeedURL(t *testing.T) {
	path := writeConfig(t, "display:\n  fftSize: 512\n")

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for missing feed url")
	}
}

func TestLoadConfigRejectsInvalidRange(t *testing.T) {
	path := writeConfig(t, `
feed:
  url: ws://localhost:9000/frames
display:
  rangeMinDb: -20
  rangeMaxDb: -110
`)

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for inverted range")
	}
}

func TestLoadConfigRejectsInvalidBand(t *testing.T) {
	path := writeConfig(t, `
feed:
  url: ws://localhost:9000/frames
overlays:
  bands:
    - name: broken
      low: 146000000
      high: 144000000
`)

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for inverted band edges")
	}
}

func TestParseHexColor(t *testing.T) {
	tests := []struct {
		in      string
		want    color.RGBA
		wantErr bool
	}{
		{in: "#000000", want: color.RGBA{A: 0xff}},
		{in: "#eeeeee", want: color.RGBA{R: 0xee, G: 0xee, B: 0xee, A: 0xff}},
		{in: "#2a6fb860", want: color.RGBA{R: 0x2a, G: 0x6f, B: 0xb8, A: 0x60}},
		{in: "eeeeee", wantErr: true},
		{in: "#ee", wantErr: true},
		{in: "#gggggg", wantErr: true},
	}

	for _, tt := range tests {
		got, err := parseHexColor(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseHexColor(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseHexColor(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseHexColor(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		name string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := (Settings{LogLevel: tt.name}).SlogLevel(); got != tt.want {
			t.Errorf("SlogLevel(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

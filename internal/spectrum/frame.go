package spectrum

import (
	"fmt"
	"time"
)

// DynamicRange is the dB domain used for color mapping. Min must be
// strictly below Max.
type DynamicRange struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// Validate reports whether the range is usable for mapping.
func (r DynamicRange) Validate() error {
	if r.Min >= r.Max {
		return fmt.Errorf("invalid dynamic range: min=%0.1f, max=%0.1f", r.Min, r.Max)
	}
	return nil
}

// Span returns the width of the range in dB.
func (r DynamicRange) Span() float64 {
	return r.Max - r.Min
}

// PlaybackInfo carries timing metadata attached to frames sourced from a
// recorded file rather than a live radio. The pipeline passes it through
// untouched; only the status layer reads it.
type PlaybackInfo struct {
	Elapsed   float64 `json:"elapsed"`
	Remaining float64 `json:"remaining"`
	Total     float64 `json:"total"`
}

// Frame is one power-spectrum measurement: an ordered sequence of dB
// samples covering CenterFrequency ± SampleRate/2 at a single instant.
// FFT size and frequency range change only via explicit reconfiguration,
// never mid-frame.
type Frame struct {
	Timestamp       time.Time     // arrival time assigned by the transport
	Samples         []float64     // power per bin, dB
	CenterFrequency float64       // Hz
	SampleRate      float64       // Hz; span is [center-rate/2, center+rate/2]
	Playback        *PlaybackInfo // nil for live frames
}

// Size returns the FFT size (number of bins) of the frame.
func (f *Frame) Size() int {
	return len(f.Samples)
}

// FrequencyStart returns the low edge of the frame's span in Hz.
func (f *Frame) FrequencyStart() float64 {
	return f.CenterFrequency - f.SampleRate/2
}

// FrequencyEnd returns the high edge of the frame's span in Hz.
func (f *Frame) FrequencyEnd() float64 {
	return f.CenterFrequency + f.SampleRate/2
}

// FrameConfig describes the semantic shape of incoming frames. It is set
// by the device-management collaborator and applies to subsequent frames
// only.
type FrameConfig struct {
	FFTSize         int     `json:"fftSize" yaml:"fftSize"`
	CenterFrequency float64 `json:"centerFrequency" yaml:"centerFrequency"`
	SampleRate      float64 `json:"sampleRate" yaml:"sampleRate"`
}

// Validate checks the configuration for values the renderer cannot work with.
func (c FrameConfig) Validate() error {
	if c.FFTSize <= 0 {
		return fmt.Errorf("invalid FFT size: %d", c.FFTSize)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate: %0.1f", c.SampleRate)
	}
	return nil
}

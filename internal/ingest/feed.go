package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hamgrid/groundscope/internal/spectrum"
)

const reconnectDelay = 2 * time.Second

// wireFrame is the transport representation of one FFT frame.
type wireFrame struct {
	Timestamp       int64                  `json:"timestamp"` // ms since epoch, optional
	Samples         []float64              `json:"samples"`
	CenterFrequency float64                `json:"centerFrequency"`
	SampleRate      float64                `json:"sampleRate"`
	Playback        *spectrum.PlaybackInfo `json:"playback,omitempty"`
}

// WithFeedLogger sets the logger for the feed.
func WithFeedLogger(logger *slog.Logger) func(*Feed) {
	return func(f *Feed) {
		f.logger = logger.With(slog.String("component", "feed"))
	}
}

// WithGovernor replaces the default rate governor.
func WithGovernor(g *RateGovernor) func(*Feed) {
	return func(f *Feed) {
		f.governor = g
	}
}

// Feed connects to the radio backend over a websocket and pushes accepted
// frames into the pipeline. Frames carrying playback timing metadata pass
// it through unmodified.
type Feed struct {
	url      string
	governor *RateGovernor

	onFrame    func(*spectrum.Frame)
	onOverflow func(bool)

	logger *slog.Logger
}

// NewFeed creates a feed for the given websocket URL. onFrame receives
// every accepted frame; onOverflow fires once per overflow transition.
func NewFeed(url string, onFrame func(*spectrum.Frame), onOverflow func(bool), options ...func(*Feed)) *Feed {
	f := Feed{
		url:        url,
		governor:   NewRateGovernor(DefaultCeiling),
		onFrame:    onFrame,
		onOverflow: onOverflow,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&f)
	}

	return &f
}

// Run connects and consumes frames until the context is cancelled,
// reconnecting with a fixed delay on transport errors.
func (f *Feed) Run(ctx context.Context) error {
	for {
		if err := f.consume(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			f.logger.Warn("feed connection lost, reconnecting", slog.String("error", err.Error()))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(reconnectDelay):
		}
	}
}

func (f *Feed) consume(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("websocket dial failed: %w", err)
	}
	defer conn.Close()

	f.logger.Info("connected to frame feed", slog.String("url", f.url))

	// Unblock the read loop on cancellation.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("reading frame: %w", err)
		}

		var wf wireFrame
		if err := json.Unmarshal(data, &wf); err != nil {
			f.logger.Warn("dropping malformed frame", slog.String("error", err.Error()))
			continue
		}
		if len(wf.Samples) == 0 {
			continue
		}

		f.dispatch(&wf)
	}
}

// dispatch runs one frame through the governor and forwards it if accepted.
func (f *Feed) dispatch(wf *wireFrame) {
	arrival := time.Now()
	if wf.Timestamp > 0 {
		arrival = time.UnixMilli(wf.Timestamp)
	}

	decision := f.governor.Accept(arrival)
	if decision.OverflowChanged && f.onOverflow != nil {
		f.onOverflow(decision.Overflow)
	}
	if !decision.Accepted {
		return // rejected frames leave no trace
	}

	f.onFrame(&spectrum.Frame{
		Timestamp:       arrival,
		Samples:         wf.Samples,
		CenterFrequency: wf.CenterFrequency,
		SampleRate:      wf.SampleRate,
		Playback:        wf.Playback,
	})
}

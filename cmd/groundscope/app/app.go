package app

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"os"
	"sync"

	"github.com/hamgrid/groundscope/internal/colormap"
	"github.com/hamgrid/groundscope/internal/ingest"
	"github.com/hamgrid/groundscope/internal/metrics"
	"github.com/hamgrid/groundscope/internal/overlay"
	"github.com/hamgrid/groundscope/internal/render"
	"github.com/hamgrid/groundscope/internal/server"
	"github.com/hamgrid/groundscope/internal/snapshot"
	"github.com/hamgrid/groundscope/internal/spectrum"
	"github.com/hamgrid/groundscope/internal/store"
	"github.com/hamgrid/groundscope/internal/view"
)

// overlayStripHeight is the pixel height of each overlay band rendered
// into the composite snapshot.
const overlayStripHeight = 20

var (
	tickColor     = color.RGBA{R: 0xee, G: 0xee, B: 0xee, A: 0xff}
	labelColor    = color.RGBA{R: 0xcc, G: 0xcc, B: 0xcc, A: 0xff}
	bandTint      = color.NRGBA{R: 0x2a, G: 0x6f, B: 0xb8, A: 0x60}
	bookmarkColor = color.RGBA{R: 0xff, G: 0xb3, B: 0x00, A: 0xff}
	vfoActive     = color.RGBA{R: 0x00, G: 0xe6, B: 0x76, A: 0xff}
	vfoInactive   = color.RGBA{R: 0x66, G: 0x66, B: 0x66, A: 0xff}
)

// tuner tracks the frequency span of the most recent frame. Overlay
// rasters and snapshot file names read it; the feed goroutine writes it.
type tuner struct {
	mu     sync.Mutex
	start  float64
	end    float64
	center float64
	seen   bool
}

func (t *tuner) observe(f *spectrum.Frame) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.start = f.FrequencyStart()
	t.end = f.FrequencyEnd()
	t.center = f.CenterFrequency
	t.seen = true
}

func (t *tuner) bounds() (start, end float64, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.start, t.end, t.seen
}

func (t *tuner) centerFrequency() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.center
}

// Run wires the pipeline together and serves until ctx is cancelled or a
// component fails.
func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	st := store.New(config.Storage.DatabasePath)
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("failed to close store", slog.String("error", err.Error()))
		}
	}()

	if err := os.MkdirAll(config.Storage.SnapshotDirectory, 0o755); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}

	transform := view.NewTransform(float64(config.Display.ViewportWidth))
	if state, found, err := st.LoadViewState(); err != nil {
		logger.Warn("failed to load view state", slog.String("error", err.Error()))
	} else if found {
		transform.Restore(state)
	}

	persister := view.NewPersister(st, view.DefaultPersistDelay, logger)
	transform.OnChange(persister.Changed)
	defer persister.Close()

	engine := render.NewEngine(render.WithLogger(logger))
	defer engine.Release()

	settings, err := renderSettings(config.Display)
	if err != nil {
		return err
	}
	surfaces, err := buildSurfaces(config.Display)
	if err != nil {
		return err
	}
	if err := engine.Init(surfaces, settings); err != nil {
		return fmt.Errorf("initializing render engine: %w", err)
	}
	engine.Start()

	freqScale, err := overlay.NewFrequencyScale(tickColor, labelColor)
	if err != nil {
		return fmt.Errorf("creating frequency scale: %w", err)
	}
	bandPlan, err := overlay.NewBandPlan(config.Overlays.Bands, bandTint, labelColor)
	if err != nil {
		return fmt.Errorf("creating band plan: %w", err)
	}
	bookmarks, err := overlay.NewBookmarks(bookmarkColor, labelColor)
	if err != nil {
		return fmt.Errorf("creating bookmark layer: %w", err)
	}
	if marks, err := st.Bookmarks(ctx); err != nil {
		logger.Warn("failed to load bookmarks", slog.String("error", err.Error()))
	} else {
		bookmarks.Set(marks)
	}
	vfo, err := overlay.NewVFOMarkers(vfoActive, vfoInactive)
	if err != nil {
		return fmt.Errorf("creating vfo markers: %w", err)
	}
	overlays := overlay.NewManager(logger, freqScale, bandPlan, bookmarks, vfo)

	tn := &tuner{}

	compositor := snapshot.NewCompositor(engine, transform, snapshot.Layers{
		BandPlan:  overlayRaster(overlays, bandPlan, transform, tn),
		Bookmarks: overlayRaster(overlays, bookmarks, transform, tn),
		FreqScale: overlayRaster(overlays, freqScale, transform, tn),
	},
		snapshot.WithLogger(logger),
		snapshot.WithBackground(settings.Background),
	)

	collector := metrics.NewCollector()
	collector.SetRange(settings.Range)

	publisher := metrics.NewPublisher(config.MQTT, metrics.WithLogger(logger))
	defer publisher.Disconnect()
	if err := publisher.SubscribeRotator(engine.Annotate); err != nil {
		logger.Warn("rotator subscription failed", slog.String("error", err.Error()))
	}

	go consumeEvents(ctx, engine, collector, publisher, logger)

	feed := ingest.NewFeed(config.Feed.URL,
		func(f *spectrum.Frame) {
			tn.observe(f)
			collector.SetPlayback(f.Playback)
			engine.Submit(f)
		},
		collector.SetOverflow,
		ingest.WithFeedLogger(logger),
		ingest.WithGovernor(ingest.NewRateGovernor(config.Feed.RateCeiling)),
	)

	feedErr := make(chan error, 1)
	go func() {
		if err := feed.Run(ctx); err != nil {
			feedErr <- err
			cancel()
		}
	}()

	srv := server.New(config.Server.Listen, server.Deps{
		Engine:          engine,
		Transform:       transform,
		Gestures:        view.NewGestures(transform),
		Overlays:        overlays,
		Bookmarks:       bookmarks,
		VFO:             vfo,
		Collector:       collector,
		Compositor:      compositor,
		Store:           st,
		SnapshotDir:     config.Storage.SnapshotDirectory,
		CenterFrequency: tn.centerFrequency,
		Span:            visibleSpan(transform, tn),
	}, logger)

	if err := srv.Run(ctx); err != nil {
		return err
	}

	select {
	case err := <-feedErr:
		return fmt.Errorf("frame feed: %w", err)
	default:
	}
	return nil
}

// consumeEvents drains the engine event stream into the metrics
// collector and the broker until ctx is cancelled.
func consumeEvents(ctx context.Context, engine *render.Engine, collector *metrics.Collector, publisher *metrics.Publisher, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-engine.Events():
			if !ok {
				return
			}
			switch e := ev.(type) {
			case render.MetricsEvent:
				collector.ObserveMetrics(e)
				if err := publisher.PublishStatus(collector.Snapshot()); err != nil {
					logger.Warn("metrics publish failed", slog.String("error", err.Error()))
				}
			case render.AutoRangeEvent:
				collector.SetRange(e.Result.Range)
				logger.Debug("auto-range settled",
					slog.Float64("minDb", e.Result.Range.Min),
					slog.Float64("maxDb", e.Result.Range.Max))
			case render.StatusEvent:
				logger.Log(ctx, e.Level, e.Message)
			case render.StartedEvent:
				logger.Info("rendering started")
			case render.StoppedEvent:
				logger.Info("rendering paused")
			}
		}
	}
}

// overlayRaster returns a snapshot layer source: the layer drawn at
// viewport resolution over the full tuned span, or nil when the layer is
// disabled or no frame has arrived yet.
func overlayRaster(m *overlay.Manager, l overlay.Layer, transform *view.Transform, tn *tuner) func() *image.RGBA {
	return func() *image.RGBA {
		if !m.Enabled(l.Name()) {
			return nil
		}
		start, end, ok := tn.bounds()
		if !ok || end <= start {
			return nil
		}

		img := image.NewRGBA(image.Rect(0, 0, int(transform.ViewportWidth()), overlayStripHeight))
		if err := l.Draw(img, overlay.Span{Low: start, High: end}); err != nil {
			return nil
		}
		return img
	}
}

// visibleSpan maps the tuned frame span through the view transform onto
// the frequency interval the viewport currently shows.
func visibleSpan(transform *view.Transform, tn *tuner) func() (overlay.Span, bool) {
	return func() (overlay.Span, bool) {
		start, end, ok := tn.bounds()
		if !ok || end <= start {
			return overlay.Span{}, false
		}
		w := transform.ViewportWidth()
		return overlay.Span{
			Low:  transform.FrequencyAt(0, start, end),
			High: transform.FrequencyAt(w, start, end),
		}, true
	}
}

func renderSettings(d DisplayConfig) (render.Settings, error) {
	background, err := parseHexColor(d.Background)
	if err != nil {
		return render.Settings{}, fmt.Errorf("display.background: %w", err)
	}
	axisColor, err := parseHexColor(d.AxisColor)
	if err != nil {
		return render.Settings{}, fmt.Errorf("display.axisColor: %w", err)
	}

	return render.Settings{
		Scheme:     colormap.Parse(d.Scheme),
		Range:      d.Range(),
		FFTSize:    d.FFTSize,
		FrameRate:  d.FrameRate,
		Background: background,
		AxisColor:  axisColor,
	}, nil
}

func buildSurfaces(d DisplayConfig) (render.Surfaces, error) {
	waterfall, err := render.NewSurface(d.WaterfallWidth, d.WaterfallHeight)
	if err != nil {
		return render.Surfaces{}, fmt.Errorf("creating waterfall surface: %w", err)
	}
	bandscope, err := render.NewSurface(d.WaterfallWidth, d.BandscopeHeight)
	if err != nil {
		return render.Surfaces{}, fmt.Errorf("creating bandscope surface: %w", err)
	}
	dbAxis, err := render.NewSurface(d.AxisWidth, d.BandscopeHeight)
	if err != nil {
		return render.Surfaces{}, fmt.Errorf("creating dB axis surface: %w", err)
	}
	margin, err := render.NewSurface(d.MarginWidth, d.WaterfallHeight)
	if err != nil {
		return render.Surfaces{}, fmt.Errorf("creating margin surface: %w", err)
	}

	return render.Surfaces{
		Waterfall: render.NewHandle(waterfall),
		Bandscope: render.NewHandle(bandscope),
		DBAxis:    render.NewHandle(dbAxis),
		Margin:    render.NewHandle(margin),
	}, nil
}

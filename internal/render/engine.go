// Package render owns the raster surfaces of the waterfall display and
// performs all drawing inside one dedicated goroutine — the rendering
// context. The control context communicates with it exclusively through
// asynchronous, ordered messages; the only shared state is the one-time
// surface ownership transfer at initialization (see Handle).
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/hamgrid/groundscope/internal/colormap"
	"github.com/hamgrid/groundscope/internal/spectrum"
)

const (
	// DefaultFrameRate is the periodic draw tick rate when the
	// configuration does not name one.
	DefaultFrameRate = 25

	// bandscopeMinInterval throttles bandscope redraws independently of
	// the tick rate to bound CPU cost.
	bandscopeMinInterval = 100 * time.Millisecond

	// metricsInterval paces throughput metric events.
	metricsInterval = time.Second

	// autoRangeEvery recomputes the auto dynamic range after this many
	// drawn frames.
	autoRangeEvery = 30

	maxGridLines = 6
)

var (
	// ErrNotConfigured is returned for operations that need surfaces
	// before Init succeeded.
	ErrNotConfigured = errors.New("engine not configured")

	// ErrReleased is returned once the engine reached its terminal state.
	ErrReleased = errors.New("engine released")
)

// State is the engine lifecycle state.
type State int32

const (
	StateUninitialized State = iota
	StateConfigured
	StateRendering
	StatePaused
	StateReleased
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateConfigured:
		return "configured"
	case StateRendering:
		return "rendering"
	case StatePaused:
		return "paused"
	case StateReleased:
		return "released"
	default:
		return "unknown"
	}
}

// Settings are the drawing parameters. They apply to subsequent draws
// only; already-scrolled rows are never repainted.
type Settings struct {
	Scheme     colormap.Scheme
	Range      spectrum.DynamicRange
	FFTSize    int
	FrameRate  int
	Background color.RGBA
	AxisColor  color.RGBA
}

// Surfaces carries the ownership handles transferred into the engine at
// initialization. All four are required.
type Surfaces struct {
	Waterfall *Handle // scroll buffer, data resolution
	Bandscope *Handle // instantaneous line plot
	DBAxis    *Handle // dB scale strip
	Margin    *Handle // left-margin annotation strip
}

// ConfigUpdate changes a subset of the settings. Nil fields are left
// untouched.
type ConfigUpdate struct {
	Scheme    *colormap.Scheme
	Range     *spectrum.DynamicRange
	FFTSize   *int
	FrameRate *int
}

// Event is the tagged union of engine-to-control messages.
type Event interface{ event() }

// StartedEvent signals the transition into Rendering.
type StartedEvent struct{}

// StoppedEvent signals the transition into Paused.
type StoppedEvent struct{}

// MetricsEvent carries periodic throughput numbers.
type MetricsEvent struct {
	FramesPerSec   float64
	SamplesPerSec  float64
	RenderedPerSec float64
	TotalFrames    uint64
	Elapsed        time.Duration
}

// StatusEvent reports errors and notable conditions.
type StatusEvent struct {
	Level   slog.Level
	Message string
}

// AutoRangeEvent reports a settled auto-scale result.
type AutoRangeEvent struct {
	Result colormap.Result
}

func (StartedEvent) event()   {}
func (StoppedEvent) event()   {}
func (MetricsEvent) event()   {}
func (StatusEvent) event()    {}
func (AutoRangeEvent) event() {}

// commands, internal tagged union
type command interface{ command() }

type initCmd struct {
	surfaces Surfaces
	settings Settings
	reply    chan error
}

type configureCmd struct{ update ConfigUpdate }
type frameCmd struct{ frame *spectrum.Frame }
type startCmd struct{}
type stopCmd struct{}

type captureCmd struct{ reply chan captureResult }

type captureResult struct {
	png []byte
	err error
}

// Rasters are deep copies of the engine-owned surfaces, safe to use
// outside the rendering context.
type Rasters struct {
	Waterfall *image.RGBA
	Bandscope *image.RGBA
	DBAxis    *image.RGBA
	Margin    *image.RGBA
}

type rastersCmd struct{ reply chan rastersResult }

type rastersResult struct {
	rasters Rasters
	err     error
}

type autoRangeCmd struct {
	enabled *bool
	alpha   *float64
}

type releaseCmd struct{ reply chan struct{} }

func (initCmd) command()      {}
func (configureCmd) command() {}
func (frameCmd) command()     {}
func (startCmd) command()     {}
func (stopCmd) command()      {}
func (captureCmd) command()   {}
func (rastersCmd) command()   {}
func (autoRangeCmd) command() {}
func (releaseCmd) command()   {}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) func(*Engine) {
	return func(e *Engine) {
		e.logger = logger.With(slog.String("component", "render"))
	}
}

// Engine is the isolated rendering context.
type Engine struct {
	commands chan command
	events   chan Event
	state    atomic.Int32

	annotations *annotationQueue
	logger      *slog.Logger

	// Everything below is owned by the run goroutine.
	waterfall *Surface
	bandscope *Surface
	dbAxis    *Surface
	margin    *Surface

	settings Settings
	mapper   *colormap.Mapper
	text     *stamper

	auto        *colormap.AutoRange
	autoEnabled bool

	latest *spectrum.Frame

	tick  *time.Ticker
	tickC <-chan time.Time

	lastBandscope time.Time
	lastStamp     time.Time
	startTime     time.Time

	totalFrames    uint64
	windowFrames   uint64
	windowSamples  uint64
	windowRendered uint64
	framesSinceAR  int
}

// NewEngine creates the engine and starts its rendering goroutine. The
// engine begins Uninitialized; Init must succeed before frames can be
// drawn.
func NewEngine(options ...func(*Engine)) *Engine {
	e := &Engine{
		commands:    make(chan command, 64),
		events:      make(chan Event, 32),
		annotations: &annotationQueue{},
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		mapper:      colormap.NewMapper(),
	}

	for _, option := range options {
		option(e)
	}

	go e.run()
	return e
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Events exposes the engine's event stream. Events are dropped, not
// blocked on, when the consumer lags.
func (e *Engine) Events() <-chan Event {
	return e.events
}

// Init transfers surface ownership and applies initial settings,
// transitioning Uninitialized -> Configured. On any failure the engine
// remains Uninitialized and the error is also reported as a status event.
func (e *Engine) Init(surfaces Surfaces, settings Settings) error {
	if e.State() == StateReleased {
		return ErrReleased
	}

	reply := make(chan error, 1)
	e.commands <- initCmd{surfaces: surfaces, settings: settings, reply: reply}
	return <-reply
}

// Configure applies a settings update on the next draw.
func (e *Engine) Configure(update ConfigUpdate) {
	e.send(configureCmd{update: update})
}

// Submit hands a new frame to the renderer. While Rendering it triggers
// an immediate extra draw independent of the tick.
func (e *Engine) Submit(frame *spectrum.Frame) {
	e.send(frameCmd{frame: frame})
}

// Start transitions Configured/Paused -> Rendering and begins the
// periodic draw tick.
func (e *Engine) Start() {
	e.send(startCmd{})
}

// Stop halts the draw tick without releasing resources.
func (e *Engine) Stop() {
	e.send(stopCmd{})
}

// SetAutoRange toggles automatic dynamic-range tracking.
func (e *Engine) SetAutoRange(enabled bool) {
	e.send(autoRangeCmd{enabled: &enabled})
}

// SetAutoRangeAlpha selects the auto-scale smoothing preset.
func (e *Engine) SetAutoRangeAlpha(alpha float64) {
	e.send(autoRangeCmd{alpha: &alpha})
}

// Annotate queues a text event for the margin strip. At most one queued
// event is stamped per frame.
func (e *Engine) Annotate(text string) {
	e.annotations.push(text)
}

// Capture asks the rendering context for a PNG of the current waterfall
// raster. The wait is bounded by ctx; rendering continues uninterrupted.
func (e *Engine) Capture(ctx context.Context) ([]byte, error) {
	if e.State() == StateReleased {
		return nil, ErrReleased
	}

	reply := make(chan captureResult, 1)

	select {
	case e.commands <- captureCmd{reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-reply:
		return res.png, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Rasters asks the rendering context for deep copies of all of its
// surfaces. Like Capture, the wait is bounded by ctx.
func (e *Engine) Rasters(ctx context.Context) (Rasters, error) {
	if e.State() == StateReleased {
		return Rasters{}, ErrReleased
	}

	reply := make(chan rastersResult, 1)

	select {
	case e.commands <- rastersCmd{reply: reply}:
	case <-ctx.Done():
		return Rasters{}, ctx.Err()
	}

	select {
	case res := <-reply:
		return res.rasters, res.err
	case <-ctx.Done():
		return Rasters{}, ctx.Err()
	}
}

// Release terminates the rendering context. Terminal: the engine cannot
// be reused afterwards.
func (e *Engine) Release() {
	if e.State() == StateReleased {
		return
	}
	reply := make(chan struct{})
	e.commands <- releaseCmd{reply: reply}
	<-reply
}

// send enqueues a command without ever blocking the caller; the rate
// governor bounds inflow, so a full queue means the consumer died.
func (e *Engine) send(cmd command) {
	if e.State() == StateReleased {
		return
	}
	select {
	case e.commands <- cmd:
	default:
		e.logger.Warn("render command dropped, queue full")
	}
}

func (e *Engine) setState(s State) {
	e.state.Store(int32(s))
}

func (e *Engine) emit(ev Event) {
	select {
	case e.events <- ev:
	default:
		e.logger.Debug("render event dropped, consumer lagging")
	}
}

// run is the rendering context main loop. Draws are inherently
// serialized; nothing here runs concurrently with a draw.
func (e *Engine) run() {
	metrics := time.NewTicker(metricsInterval)
	defer metrics.Stop()

	for {
		select {
		case cmd := <-e.commands:
			if e.dispatch(cmd) {
				return
			}
		case <-e.tickC:
			e.guarded(func() { e.drawFrame(e.latest, time.Now()) })
		case <-metrics.C:
			e.emitMetrics()
		}
	}
}

// guarded runs fn and recovers panics: an uncaught panic inside the
// rendering context would silently kill rendering with no recovery path.
func (e *Engine) guarded(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("render operation panicked", slog.Any("panic", r))
			e.emit(StatusEvent{Level: slog.LevelError, Message: fmt.Sprintf("render panic: %v", r)})
		}
	}()
	fn()
}

func (e *Engine) dispatch(cmd command) (released bool) {
	switch c := cmd.(type) {
	case initCmd:
		// The reply must be sent even if the handler panics.
		err := errors.New("init did not complete")
		e.guarded(func() { err = e.handleInit(c) })
		c.reply <- err

	case configureCmd:
		e.guarded(func() { e.handleConfigure(c.update) })

	case frameCmd:
		e.guarded(func() { e.handleFrame(c.frame) })

	case startCmd:
		e.guarded(e.handleStart)

	case stopCmd:
		e.guarded(e.handleStop)

	case captureCmd:
		res := captureResult{err: errors.New("capture did not complete")}
		e.guarded(func() { res = e.handleCapture() })
		c.reply <- res

	case rastersCmd:
		res := rastersResult{err: errors.New("raster copy did not complete")}
		e.guarded(func() { res = e.handleRasters() })
		c.reply <- res

	case autoRangeCmd:
		e.guarded(func() { e.handleAutoRange(c) })

	case releaseCmd:
		e.handleRelease()
		close(c.reply)
		return true

	default:
		// Never throw across the context boundary on unknown input.
		e.logger.Warn("unknown render command ignored", slog.String("type", fmt.Sprintf("%T", cmd)))
	}
	return false
}

func (e *Engine) handleInit(c initCmd) error {
	if e.State() != StateUninitialized {
		return fmt.Errorf("init in state %s", e.State())
	}

	fail := func(err error) error {
		e.emit(StatusEvent{Level: slog.LevelError, Message: err.Error()})
		e.logger.Error("engine init failed", slog.String("error", err.Error()))
		return err
	}

	if err := c.settings.Range.Validate(); err != nil {
		return fail(err)
	}
	if c.settings.FFTSize <= 0 {
		return fail(fmt.Errorf("invalid FFT size: %d", c.settings.FFTSize))
	}
	if c.settings.FrameRate <= 0 {
		c.settings.FrameRate = DefaultFrameRate
	}

	handles := []struct {
		name   string
		handle *Handle
		dst    **Surface
	}{
		{"waterfall", c.surfaces.Waterfall, &e.waterfall},
		{"bandscope", c.surfaces.Bandscope, &e.bandscope},
		{"dbAxis", c.surfaces.DBAxis, &e.dbAxis},
		{"margin", c.surfaces.Margin, &e.margin},
	}
	for _, h := range handles {
		if h.handle == nil {
			e.dropSurfaces()
			return fail(fmt.Errorf("missing %s surface", h.name))
		}
		s, err := h.handle.Take()
		if err != nil {
			e.dropSurfaces()
			return fail(fmt.Errorf("acquiring %s surface: %w", h.name, err))
		}
		*h.dst = s
	}

	text, err := newStamper()
	if err != nil {
		e.dropSurfaces()
		return fail(fmt.Errorf("creating text stamper: %w", err))
	}

	e.settings = c.settings
	e.text = text
	e.auto = colormap.NewAutoRange(0.3, c.settings.Range)

	e.waterfall.Fill(c.settings.Background)
	e.bandscope.Fill(c.settings.Background)
	e.margin.Fill(c.settings.Background)
	e.drawDBAxis()

	e.setState(StateConfigured)
	e.logger.Info("engine configured",
		slog.Int("waterfallWidth", e.waterfall.Width()),
		slog.Int("waterfallHeight", e.waterfall.Height()),
		slog.Int("fftSize", c.settings.FFTSize),
		slog.Int("frameRate", c.settings.FrameRate))
	return nil
}

// dropSurfaces clears any partially acquired surfaces after a failed init.
func (e *Engine) dropSurfaces() {
	e.waterfall, e.bandscope, e.dbAxis, e.margin = nil, nil, nil, nil
}

func (e *Engine) handleConfigure(u ConfigUpdate) {
	if u.Scheme != nil {
		e.settings.Scheme = *u.Scheme
	}
	if u.Range != nil && u.Range.Validate() == nil {
		e.settings.Range = *u.Range
		if e.auto != nil {
			e.auto.Reset(*u.Range)
		}
		if e.dbAxis != nil {
			e.drawDBAxis()
		}
	}
	if u.FFTSize != nil && *u.FFTSize > 0 {
		// Applies from the next frame; in-flight frames carry their own
		// sample count and finish with it.
		e.settings.FFTSize = *u.FFTSize
	}
	if u.FrameRate != nil && *u.FrameRate > 0 {
		e.settings.FrameRate = *u.FrameRate
		if e.State() == StateRendering {
			e.tick.Reset(time.Second / time.Duration(e.settings.FrameRate))
		}
	}
}

func (e *Engine) handleFrame(f *spectrum.Frame) {
	if f == nil || len(f.Samples) == 0 {
		return
	}

	e.latest = f
	e.totalFrames++
	e.windowFrames++
	e.windowSamples += uint64(len(f.Samples))

	// Minimize latency for the newest data: draw now, leave the tick
	// cadence untouched.
	if e.State() == StateRendering {
		e.drawFrame(f, time.Now())
	}
}

func (e *Engine) handleStart() {
	switch e.State() {
	case StateConfigured, StatePaused:
	default:
		e.logger.Warn("start ignored", slog.String("state", e.State().String()))
		return
	}

	interval := time.Second / time.Duration(e.settings.FrameRate)
	if e.tick == nil {
		e.tick = time.NewTicker(interval)
	} else {
		e.tick.Reset(interval)
	}
	e.tickC = e.tick.C

	if e.startTime.IsZero() {
		e.startTime = time.Now()
	}

	e.setState(StateRendering)
	e.emit(StartedEvent{})
}

func (e *Engine) handleStop() {
	if e.State() != StateRendering {
		return
	}
	e.tick.Stop()
	e.tickC = nil
	e.setState(StatePaused)
	e.emit(StoppedEvent{})
}

func (e *Engine) handleCapture() captureResult {
	if e.waterfall == nil {
		return captureResult{err: ErrNotConfigured}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, e.waterfall.Snapshot()); err != nil {
		return captureResult{err: fmt.Errorf("encoding waterfall capture: %w", err)}
	}
	return captureResult{png: buf.Bytes()}
}

func (e *Engine) handleRasters() rastersResult {
	if e.waterfall == nil {
		return rastersResult{err: ErrNotConfigured}
	}
	return rastersResult{rasters: Rasters{
		Waterfall: e.waterfall.Snapshot(),
		Bandscope: e.bandscope.Snapshot(),
		DBAxis:    e.dbAxis.Snapshot(),
		Margin:    e.margin.Snapshot(),
	}}
}

func (e *Engine) handleAutoRange(c autoRangeCmd) {
	if e.auto == nil {
		return
	}
	if c.alpha != nil {
		e.auto.SetAlpha(*c.alpha)
	}
	if c.enabled != nil {
		e.autoEnabled = *c.enabled
		if e.autoEnabled {
			e.auto.Reset(e.settings.Range)
			e.framesSinceAR = 0
		}
	}
}

func (e *Engine) handleRelease() {
	if e.tick != nil {
		e.tick.Stop()
		e.tickC = nil
	}
	e.dropSurfaces()
	e.setState(StateReleased)
	e.logger.Info("engine released")
}

// drawFrame runs the full per-frame draw procedure.
func (e *Engine) drawFrame(f *spectrum.Frame, now time.Time) {
	if f == nil || len(f.Samples) == 0 || e.waterfall == nil {
		return
	}

	e.drawWaterfallRow(f)
	e.drawMarginRow(now)

	if now.Sub(e.lastBandscope) >= bandscopeMinInterval {
		e.drawBandscope(f)
		e.lastBandscope = now
	}

	if e.autoEnabled {
		e.auto.Observe(f.Samples)
		e.framesSinceAR++
		if e.framesSinceAR >= autoRangeEvery {
			e.framesSinceAR = 0
			if res, ok := e.auto.Update(); ok {
				e.settings.Range = res.Range
				e.drawDBAxis()
				e.emit(AutoRangeEvent{Result: res})
			}
		}
	}

	e.windowRendered++
}

// drawWaterfallRow scrolls the buffer one row and writes the newest
// frame into the top row, nearest-neighbor resampled across the full
// surface width.
func (e *Engine) drawWaterfallRow(f *spectrum.Frame) {
	e.waterfall.ScrollDown()

	w := e.waterfall.Width()
	n := len(f.Samples)
	img := e.waterfall.Image()

	for x := 0; x < w; x++ {
		idx := x * n / w
		img.SetRGBA(x, 0, e.mapper.ColorFor(f.Samples[idx], e.settings.Scheme, e.settings.Range))
	}
}

// drawMarginRow scrolls the annotation strip and stamps either one
// queued event or, failing that, a clock mark.
func (e *Engine) drawMarginRow(now time.Time) {
	e.margin.ScrollDown()
	e.margin.FillRow(0, e.settings.Background)

	if text, ok := e.annotations.pop(); ok {
		e.text.stamp(e.margin.Image(), 2, e.text.lineHeight(), text, e.settings.AxisColor)
		e.lastStamp = now
		return
	}

	if e.shouldStampClock(now) {
		e.text.stamp(e.margin.Image(), 2, e.text.lineHeight(), now.Format("15:04:05"), e.settings.AxisColor)
		e.lastStamp = now
	}
}

// shouldStampClock limits clock marks to one per second, on quarter-
// minute boundaries or whenever the minute or hour rolled over.
func (e *Engine) shouldStampClock(now time.Time) bool {
	if e.lastStamp.IsZero() {
		return true
	}
	if now.Truncate(time.Second).Equal(e.lastStamp.Truncate(time.Second)) {
		return false
	}
	return now.Second()%15 == 0 ||
		now.Minute() != e.lastStamp.Minute() ||
		now.Hour() != e.lastStamp.Hour()
}

// drawBandscope redraws the instantaneous line plot: background, dB grid,
// then the per-bin line with a filled area beneath it.
func (e *Engine) drawBandscope(f *spectrum.Frame) {
	s := e.bandscope
	w, h := s.Width(), s.Height()
	img := s.Image()
	rng := e.settings.Range

	s.Fill(e.settings.Background)

	// Grid lines at a step that keeps at most maxGridLines visible.
	grid := dimColor(e.settings.AxisColor)
	step := gridStep(rng.Span())
	for level := math.Ceil(rng.Min/step) * step; level <= rng.Max; level += step {
		y := yForPower(level, rng, h)
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, grid)
		}
	}

	// The line and fill colors come from two fixed intensity points of
	// the active scheme, not from the per-bin color map.
	lineColor := colormap.Sample(e.settings.Scheme, 0.85)
	fillColor := colormap.Sample(e.settings.Scheme, 0.40)

	n := len(f.Samples)
	prevY := -1
	for x := 0; x < w; x++ {
		idx := x * n / w
		y := yForPower(f.Samples[idx], rng, h)

		for fy := y + 1; fy < h; fy++ {
			img.SetRGBA(x, fy, fillColor)
		}

		// Stroke, connecting to the previous column so steep slopes stay
		// continuous.
		img.SetRGBA(x, y, lineColor)
		if prevY >= 0 && absInt(prevY-y) > 1 {
			lo, hi := min(prevY, y), max(prevY, y)
			for fy := lo + 1; fy < hi; fy++ {
				img.SetRGBA(x, fy, lineColor)
			}
		}
		prevY = y
	}
}

// drawDBAxis labels the dB scale strip for the current dynamic range.
func (e *Engine) drawDBAxis() {
	s := e.dbAxis
	h := s.Height()
	rng := e.settings.Range

	s.Fill(e.settings.Background)

	step := gridStep(rng.Span())
	for level := math.Ceil(rng.Min/step) * step; level <= rng.Max; level += step {
		y := yForPower(level, rng, h)
		label := fmt.Sprintf("%.0f", level)

		baseline := y + e.text.lineHeight()/2
		if baseline < e.text.lineHeight() {
			baseline = e.text.lineHeight()
		}
		if baseline > h-2 {
			baseline = h - 2
		}
		e.text.stamp(s.Image(), 2, baseline, label, e.settings.AxisColor)
	}
}

func (e *Engine) emitMetrics() {
	if e.State() != StateRendering {
		return
	}

	secs := metricsInterval.Seconds()
	ev := MetricsEvent{
		FramesPerSec:   float64(e.windowFrames) / secs,
		SamplesPerSec:  float64(e.windowSamples) / secs,
		RenderedPerSec: float64(e.windowRendered) / secs,
		TotalFrames:    e.totalFrames,
		Elapsed:        time.Since(e.startTime),
	}
	e.windowFrames, e.windowSamples, e.windowRendered = 0, 0, 0
	e.emit(ev)
}

// yForPower maps a dB level onto a surface row, top = range maximum.
func yForPower(p float64, rng spectrum.DynamicRange, height int) int {
	clamped := math.Max(rng.Min, math.Min(p, rng.Max))
	y := int((rng.Max - clamped) / rng.Span() * float64(height-1))
	if y < 0 {
		y = 0
	}
	if y > height-1 {
		y = height - 1
	}
	return y
}

// gridStep picks a standard dB step so that at most maxGridLines grid
// lines are shown for the given span.
func gridStep(span float64) float64 {
	steps := []float64{1, 2, 5, 10, 20, 25, 50, 100}
	for _, s := range steps {
		if span/s <= maxGridLines {
			return s
		}
	}
	return math.Ceil(span / maxGridLines)
}

func dimColor(c color.RGBA) color.RGBA {
	return color.RGBA{R: c.R / 3, G: c.G / 3, B: c.B / 3, A: 0xff}
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

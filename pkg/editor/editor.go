// Package editor holds one editing session: the uploaded image, its linear
// history, the filter settings and an optional crop interaction.
//
// Every change of the active image, whether a new commit or an undo, is
// reported to the Listener after the session lock has been released.
package editor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/menta2k/image-editor/internal/utils"
	"github.com/menta2k/image-editor/pkg/cropper"
	"github.com/menta2k/image-editor/pkg/history"
	"github.com/menta2k/image-editor/pkg/processing"
	"github.com/menta2k/image-editor/pkg/types"
)

var (
	// ErrCropInProgress is returned when an edit is attempted while a crop
	// session is open, or when a second crop session is started.
	ErrCropInProgress = errors.New("crop in progress")
	// ErrNoCropSession is returned by crop operations outside a crop session.
	ErrNoCropSession = errors.New("no crop in progress")
	// ErrNothingToUndo is returned by Undo at the first history entry.
	ErrNothingToUndo = errors.New("nothing to undo")
	// ErrUnchanged is returned when an edit produced the current image again.
	ErrUnchanged = errors.New("edit produced no change")
	// ErrNoLocator is returned by SuggestCrop when no subject locator is set.
	ErrNoLocator = errors.New("no subject locator configured")
)

// FilterSource selects which image the filter chain starts from.
type FilterSource int

const (
	// FilterSourceOriginal always filters the uploaded image, so filters
	// never compound and discard earlier crops or background removal.
	FilterSourceOriginal FilterSource = iota
	// FilterSourceCurrent filters the active image.
	FilterSourceCurrent
)

func (s FilterSource) String() string {
	if s == FilterSourceCurrent {
		return "current"
	}
	return "original"
}

// ParseFilterSource parses "original" or "current".
func ParseFilterSource(s string) (FilterSource, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "original":
		return FilterSourceOriginal, nil
	case "current":
		return FilterSourceCurrent, nil
	default:
		return FilterSourceOriginal, fmt.Errorf("unknown filter source %q", s)
	}
}

// Listener is told about changes the host cares about.
type Listener interface {
	ImageEdited(p types.Payload)
	ResetRequested()
}

// Logger is the leveled logger the editor reports failures to.
type Logger interface {
	Info(format string, v ...interface{})
	Warning(format string, v ...interface{})
	Error(format string, v ...interface{})
}

// Locator finds the main subject of an image as a normalized box.
type Locator interface {
	LocateSubject(ctx context.Context, img image.Image) (types.Box, error)
}

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})    {}
func (nopLogger) Warning(string, ...interface{}) {}
func (nopLogger) Error(string, ...interface{})   {}

// Config holds configuration for an editing session
type Config struct {
	FilterSource        FilterSource
	BackgroundThreshold uint8
	// HistoryLimit caps the number of kept entries; 0 keeps all.
	HistoryLimit int
	Crop         cropper.CropConfig
	Viewport     types.Viewport
	Processing   processing.Config
}

// DefaultConfig returns the stock session settings.
func DefaultConfig() Config {
	return Config{
		FilterSource:        FilterSourceOriginal,
		BackgroundThreshold: processing.DefaultBackgroundThreshold,
		Crop:                cropper.DefaultConfig(),
		Viewport:            types.DefaultViewport(),
		Processing:          processing.DefaultConfig(),
	}
}

// Option customizes an Editor.
type Option func(*Editor)

// WithListener sets the host listener.
func WithListener(l Listener) Option {
	return func(e *Editor) { e.listener = l }
}

// WithLogger sets the logger; the default discards everything.
func WithLogger(l Logger) Option {
	return func(e *Editor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithLocator sets the subject locator used by SuggestCrop.
func WithLocator(l Locator) Option {
	return func(e *Editor) { e.locator = l }
}

// Editor is one editing session. It is safe for concurrent use.
type Editor struct {
	config    Config
	processor *processing.Processor
	listener  Listener
	logger    Logger
	locator   Locator

	mu       sync.Mutex
	original types.Payload
	history  *history.Stack[types.Payload]
	filters  types.FilterParams
	metrics  types.DisplayMetrics
	crop     *cropper.Session
	pending  []func()
}

// New opens a session on the uploaded payload with default settings.
func New(original types.Payload, opts ...Option) (*Editor, error) {
	return NewWithConfig(DefaultConfig(), original, opts...)
}

// NewWithConfig opens a session on the uploaded payload.
func NewWithConfig(config Config, original types.Payload, opts ...Option) (*Editor, error) {
	e := &Editor{
		config:    config,
		processor: processing.NewProcessorWithConfig(config.Processing),
		logger:    nopLogger{},
		original:  original,
		filters:   types.DefaultFilters(),
	}
	for _, opt := range opts {
		opt(e)
	}

	metrics, err := e.layout(original)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	e.metrics = metrics

	var hopts []history.Option
	if config.HistoryLimit > 0 {
		hopts = append(hopts, history.WithLimit(config.HistoryLimit))
	}
	e.history = history.New(original, hopts...)
	return e, nil
}

// unlock releases the session lock and then runs queued notifications.
func (e *Editor) unlock() {
	pending := e.pending
	e.pending = nil
	e.mu.Unlock()
	for _, fn := range pending {
		fn()
	}
}

func (e *Editor) notifyEdited(p types.Payload) {
	if e.listener == nil {
		return
	}
	l := e.listener
	e.pending = append(e.pending, func() { l.ImageEdited(p) })
}

func (e *Editor) layout(p types.Payload) (types.DisplayMetrics, error) {
	img, _, err := e.processor.DecodePayload(p)
	if err != nil {
		return types.DisplayMetrics{}, err
	}
	b := img.Bounds()
	return e.config.Viewport.Layout(b.Dx(), b.Dy()), nil
}

// commit records p as the new active image. Called with the lock held.
func (e *Editor) commit(op string, p types.Payload) error {
	if p == e.history.Current() {
		return fmt.Errorf("%s: %w", op, ErrUnchanged)
	}
	metrics, err := e.layout(p)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	e.history.Commit(p)
	e.metrics = metrics
	e.logger.Info("%s: history %d/%d", op, e.history.Index()+1, e.history.Len())
	e.notifyEdited(p)
	return nil
}

func (e *Editor) fail(op string, err error) error {
	e.logger.Warning("%s failed: %v", op, err)
	return err
}

// Current returns the active image.
func (e *Editor) Current() types.Payload {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.Current()
}

// Original returns the uploaded image.
func (e *Editor) Original() types.Payload {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.original
}

// Index returns the history position of the active image.
func (e *Editor) Index() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.Index()
}

// Len returns the number of history entries.
func (e *Editor) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.Len()
}

// CanUndo reports whether Undo would change the active image.
func (e *Editor) CanUndo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.CanUndo()
}

// Metrics returns the display layout of the active image.
func (e *Editor) Metrics() types.DisplayMetrics {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.metrics
}

// Config returns the session configuration.
func (e *Editor) Config() Config {
	return e.config
}

// SetFilters stores new filter settings without applying them.
func (e *Editor) SetFilters(params types.FilterParams) error {
	if err := params.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.filters = params
	return nil
}

// Filters returns the stored filter settings.
func (e *Editor) Filters() types.FilterParams {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.filters
}

// ApplyFilters renders the stored filter settings and commits the result.
func (e *Editor) ApplyFilters() error {
	e.mu.Lock()
	defer e.unlock()

	if e.crop != nil {
		return e.fail("apply filters", ErrCropInProgress)
	}
	src := e.original
	if e.config.FilterSource == FilterSourceCurrent {
		src = e.history.Current()
	}
	out, err := e.processor.ApplyFilters(src, e.filters)
	if err != nil {
		return e.fail("apply filters", err)
	}
	if err := e.commit("apply filters "+e.filters.String(), out); err != nil {
		return e.fail("apply filters", err)
	}
	return nil
}

// RemoveBackground clears near-white pixels using the configured threshold.
func (e *Editor) RemoveBackground() error {
	return e.RemoveBackgroundWithThreshold(e.config.BackgroundThreshold)
}

// RemoveBackgroundWithThreshold clears every pixel whose channels all exceed
// threshold and commits the result.
func (e *Editor) RemoveBackgroundWithThreshold(threshold uint8) error {
	e.mu.Lock()
	defer e.unlock()

	if e.crop != nil {
		return e.fail("remove background", ErrCropInProgress)
	}
	out, err := e.processor.RemoveBackground(e.history.Current(), threshold)
	if err != nil {
		return e.fail("remove background", err)
	}
	if err := e.commit(fmt.Sprintf("remove background (threshold %d)", threshold), out); err != nil {
		return e.fail("remove background", err)
	}
	return nil
}

// StartCrop opens a crop session over the active image.
func (e *Editor) StartCrop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.crop != nil {
		return ErrCropInProgress
	}
	e.crop = cropper.NewSessionWithConfig(e.config.Crop, e.metrics)
	return nil
}

// Cropping reports whether a crop session is open.
func (e *Editor) Cropping() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.crop != nil
}

// CropRect returns the selection of the open crop session.
func (e *Editor) CropRect() (types.Rect, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.crop == nil {
		return types.Rect{}, ErrNoCropSession
	}
	return e.crop.Rect(), nil
}

// SetCropRect replaces the selection of the open crop session.
func (e *Editor) SetCropRect(r types.Rect) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.crop == nil {
		return ErrNoCropSession
	}
	e.crop.SetRect(r)
	return nil
}

// CropMode returns the interaction mode of the open crop session.
func (e *Editor) CropMode() (cropper.Mode, cropper.Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.crop == nil {
		return cropper.ModeIdle, cropper.HandleNone, ErrNoCropSession
	}
	return e.crop.Mode(), e.crop.Handle(), nil
}

// PointerDown forwards a press in container coordinates.
func (e *Editor) PointerDown(p types.Point) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.crop == nil {
		return ErrNoCropSession
	}
	e.crop.PointerDown(p)
	return nil
}

// PointerMove forwards a drag in container coordinates.
func (e *Editor) PointerMove(p types.Point) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.crop == nil {
		return ErrNoCropSession
	}
	e.crop.PointerMove(p)
	return nil
}

// PointerUp ends the current drag.
func (e *Editor) PointerUp() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.crop == nil {
		return ErrNoCropSession
	}
	e.crop.PointerUp()
	return nil
}

// Cursor returns the pointer shape for the crop surface.
func (e *Editor) Cursor() cropper.Cursor {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.crop == nil {
		return cropper.CursorDefault
	}
	return e.crop.Cursor()
}

// ApplyCrop cuts the selection out of the active image and commits it. The
// session closes whether or not the crop succeeds; a failed crop leaves the
// history untouched.
func (e *Editor) ApplyCrop() error {
	e.mu.Lock()
	defer e.unlock()

	if e.crop == nil {
		return ErrNoCropSession
	}
	rect := e.crop.Rect()
	e.crop = nil

	out, err := e.processor.CropTo(e.history.Current(), rect, e.metrics)
	if err != nil {
		return e.fail("crop "+rect.String(), err)
	}
	if err := e.commit("crop "+rect.String(), out); err != nil {
		return e.fail("crop", err)
	}
	return nil
}

// CancelCrop closes the crop session without touching the history.
func (e *Editor) CancelCrop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.crop == nil {
		return ErrNoCropSession
	}
	e.crop = nil
	return nil
}

// CropPreview renders the active image with the crop overlay.
func (e *Editor) CropPreview() (*image.NRGBA, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.crop == nil {
		return nil, ErrNoCropSession
	}
	img, _, err := e.processor.DecodePayload(e.history.Current())
	if err != nil {
		return nil, err
	}
	return processing.CropPreview(img, e.crop.Rect(), e.metrics), nil
}

// SuggestCrop asks the locator for the main subject and moves the selection
// onto it. The lock is not held while the locator runs; if the crop session
// was closed or replaced meanwhile the suggestion is dropped.
func (e *Editor) SuggestCrop(ctx context.Context) (types.Rect, error) {
	e.mu.Lock()
	session := e.crop
	current := e.history.Current()
	metrics := e.metrics
	e.mu.Unlock()

	if session == nil {
		return types.Rect{}, ErrNoCropSession
	}
	if e.locator == nil {
		return types.Rect{}, ErrNoLocator
	}

	img, _, err := e.processor.DecodePayload(current)
	if err != nil {
		return types.Rect{}, e.fail("suggest crop", err)
	}
	box, err := e.locator.LocateSubject(ctx, img)
	if err != nil {
		return types.Rect{}, e.fail("suggest crop", err)
	}

	bounds := metrics.ImageBounds()
	rect := types.Rect{
		X:      bounds.X + box.X*bounds.Width,
		Y:      bounds.Y + box.Y*bounds.Height,
		Width:  box.W * bounds.Width,
		Height: box.H * bounds.Height,
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.crop != session {
		return types.Rect{}, ErrNoCropSession
	}
	session.SetRect(rect)
	e.logger.Info("suggested crop %s", session.Rect())
	return session.Rect(), nil
}

// Undo steps back one history entry.
func (e *Editor) Undo() error {
	e.mu.Lock()
	defer e.unlock()

	if e.crop != nil {
		return ErrCropInProgress
	}
	if !e.history.CanUndo() {
		return ErrNothingToUndo
	}
	// Lay out the previous entry first so a failure leaves the index alone.
	prev := e.history.Entries()[e.history.Index()-1]
	metrics, err := e.layout(prev)
	if err != nil {
		return e.fail("undo", err)
	}
	p, _ := e.history.Undo()
	e.metrics = metrics
	e.notifyEdited(p)
	return nil
}

// ResetToOriginal commits the uploaded image as a new history entry, so the
// reset itself can be undone. Filter settings return to identity.
func (e *Editor) ResetToOriginal() error {
	e.mu.Lock()
	defer e.unlock()

	if e.crop != nil {
		return ErrCropInProgress
	}
	e.filters = types.DefaultFilters()
	return e.commit("reset to original", e.original)
}

// RequestNewImage asks the host to close this session and go back to upload.
func (e *Editor) RequestNewImage() {
	e.mu.Lock()
	e.crop = nil
	l := e.listener
	e.mu.Unlock()

	if l != nil {
		l.ResetRequested()
	}
}

// WriteTo writes the active image as PNG.
func (e *Editor) WriteTo(w io.Writer) (int64, error) {
	data, err := e.pngBytes()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(data)
	return int64(n), err
}

// Download saves the active image as edited-image.png in dir and returns
// the written path.
func (e *Editor) Download(dir string) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := utils.EnsureDir(dir); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	data, err := e.pngBytes()
	if err != nil {
		return "", err
	}
	path := utils.OutputPath(dir, utils.DownloadName)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	e.logger.Info("saved %s (%s)", path, utils.FormatFileSize(int64(len(data))))
	return path, nil
}

// pngBytes returns the active payload as PNG, re-encoding other formats.
func (e *Editor) pngBytes() ([]byte, error) {
	current := e.Current()
	data, err := processing.PayloadBytes(current)
	if err != nil {
		return nil, err
	}
	if current.MIMEType() == "image/png" {
		return data, nil
	}

	img, _, err := e.processor.DecodeBytes(data)
	if err != nil {
		return nil, err
	}
	png, err := e.processor.EncodePayload(img, processing.Encoding{Format: "png"})
	if err != nil {
		return nil, err
	}
	return processing.PayloadBytes(png)
}

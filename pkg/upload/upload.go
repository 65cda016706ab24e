// Package upload turns a picked or dropped file into an image payload.
//
// Decoding runs asynchronously. Every request is tagged with a sequence
// number; starting a new request cancels the previous one, and a request
// that finishes after a newer one started is reported as stale and never
// reaches the handler.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/menta2k/image-editor/internal/utils"
	"github.com/menta2k/image-editor/pkg/analyzer"
	"github.com/menta2k/image-editor/pkg/processing"
	"github.com/menta2k/image-editor/pkg/types"
)

// DefaultMaxBytes is the largest accepted upload (10 MiB).
const DefaultMaxBytes int64 = 10 << 20

var (
	// ErrNotImage is returned for dropped files without an image/* type.
	ErrNotImage = errors.New("dropped file is not an image")
	// ErrTooLarge is returned for files above the size limit.
	ErrTooLarge = errors.New("file exceeds upload size limit")
	// ErrEmpty is returned for files with no content.
	ErrEmpty = errors.New("file is empty")
	// ErrStale is returned for a request superseded by a newer one.
	ErrStale = errors.New("upload superseded by a newer request")
)

// Source says how the file arrived.
type Source int

const (
	SourcePicker Source = iota
	SourceDrop
)

func (s Source) String() string {
	if s == SourceDrop {
		return "drop"
	}
	return "picker"
}

// File is one user-selected file.
type File struct {
	Name        string
	ContentType string
	// Size is the declared size; <= 0 means unknown. The reader is still
	// limited, so a wrong declaration cannot bypass the limit.
	Size   int64
	Reader io.Reader
}

// Result is the outcome of one upload request.
type Result struct {
	Seq     uint64
	Name    string
	Format  string
	Payload types.Payload
	Info    analyzer.ImageInfo
	Err     error
}

// Handler receives fresh, successful results. It is called with the view's
// lock held and must not call back into the view.
type Handler func(Result)

// Config holds upload limits
type Config struct {
	MaxBytes int64
}

// View accepts files and hands decoded payloads to its handler.
type View struct {
	config   Config
	analyzer *analyzer.ImageAnalyzer
	handler  Handler

	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc
}

// NewView creates a view with the default size limit and formats.
func NewView(handler Handler) *View {
	return NewViewWithConfig(Config{MaxBytes: DefaultMaxBytes}, analyzer.New(), handler)
}

// NewViewWithConfig creates a view with custom limits and analyzer.
func NewViewWithConfig(config Config, a *analyzer.ImageAnalyzer, handler Handler) *View {
	if config.MaxBytes <= 0 {
		config.MaxBytes = DefaultMaxBytes
	}
	if a == nil {
		a = analyzer.New()
	}
	return &View{config: config, analyzer: a, handler: handler}
}

// Validate applies the checks that do not need the file content.
func (v *View) Validate(f File, src Source) error {
	if src == SourceDrop && !strings.HasPrefix(f.ContentType, "image/") {
		return fmt.Errorf("%w: %q has type %q", ErrNotImage, f.Name, f.ContentType)
	}
	if f.Size > v.config.MaxBytes {
		return fmt.Errorf("%w: %s > %s", ErrTooLarge,
			utils.FormatFileSize(f.Size), utils.FormatFileSize(v.config.MaxBytes))
	}
	return nil
}

// Accept starts decoding f and returns a channel that yields exactly one
// result. Files rejected by Validate fail immediately without disturbing a
// request already in flight.
func (v *View) Accept(ctx context.Context, f File, src Source) <-chan Result {
	out := make(chan Result, 1)

	if err := v.Validate(f, src); err != nil {
		out <- Result{Name: f.Name, Err: err}
		close(out)
		return out
	}

	v.mu.Lock()
	if v.cancel != nil {
		v.cancel()
	}
	v.seq++
	seq := v.seq
	reqCtx, cancel := context.WithCancel(ctx)
	v.cancel = cancel
	v.mu.Unlock()

	go func() {
		defer close(out)
		res := v.decode(reqCtx, f)
		res.Seq = seq
		out <- v.finish(reqCtx, seq, res)
	}()

	return out
}

// Cancel abandons any request in flight; its result will be stale.
func (v *View) Cancel() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.cancel != nil {
		v.cancel()
		v.cancel = nil
	}
	v.seq++
}

// Latest returns the sequence number of the newest request.
func (v *View) Latest() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.seq
}

func (v *View) decode(ctx context.Context, f File) Result {
	res := Result{Name: f.Name}

	limited := io.LimitReader(&ctxReader{ctx: ctx, r: f.Reader}, v.config.MaxBytes+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		res.Err = fmt.Errorf("failed to read %q: %w", f.Name, err)
		return res
	}
	if int64(len(data)) > v.config.MaxBytes {
		res.Err = fmt.Errorf("%w: more than %s", ErrTooLarge, utils.FormatFileSize(v.config.MaxBytes))
		return res
	}
	if len(data) == 0 {
		res.Err = ErrEmpty
		return res
	}

	img, format, err := v.analyzer.LoadImageFromBytes(data)
	if err != nil {
		res.Err = err
		return res
	}

	res.Format = format
	res.Info = v.analyzer.GetImageInfo(img)
	res.Payload = processing.NewPayload(processing.MIMEType(format), data)
	return res
}

// finish decides whether res is still current and delivers it.
func (v *View) finish(ctx context.Context, seq uint64, res Result) Result {
	v.mu.Lock()
	defer v.mu.Unlock()

	if seq != v.seq {
		res.Payload = ""
		res.Err = ErrStale
		return res
	}
	if res.Err == nil && ctx.Err() != nil {
		res.Err = ctx.Err()
	}
	if res.Err == nil && v.handler != nil {
		v.handler(res)
	}
	return res
}

// ctxReader stops reading once its context is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

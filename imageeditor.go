// Package imageeditor is a small image editor: upload an image, crop it
// interactively, adjust brightness, contrast and saturation, remove a white
// background, undo, and save the result.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"log"
//
//		"github.com/menta2k/image-editor"
//		"github.com/menta2k/image-editor/pkg/types"
//	)
//
//	func main() {
//		app := imageeditor.New()
//		if err := app.LoadFile(context.Background(), "photo.jpg"); err != nil {
//			log.Fatal(err)
//		}
//
//		ed := app.Editor()
//		ed.SetFilters(types.FilterParams{Brightness: 120, Contrast: 110, Saturation: 100})
//		if err := ed.ApplyFilters(); err != nil {
//			log.Fatal(err)
//		}
//		if _, err := ed.Download("./output"); err != nil {
//			log.Fatal(err)
//		}
//	}
//
// The application holds one of two states. In upload mode it waits for a
// file; a successful upload opens an editing session (pkg/editor) with a
// fresh history. The session reports every change of the active image back
// to the application, and asking for a new image drops the session and
// returns to upload mode.
package imageeditor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/menta2k/image-editor/internal/utils"
	"github.com/menta2k/image-editor/pkg/analyzer"
	"github.com/menta2k/image-editor/pkg/editor"
	"github.com/menta2k/image-editor/pkg/types"
	"github.com/menta2k/image-editor/pkg/upload"
)

var _ editor.Listener = (*App)(nil)

// Version of the image editor library
const Version = "1.0.0"

// ErrSessionOpen is returned by Upload while an image is being edited.
var ErrSessionOpen = errors.New("an image is already open; request a new image first")

// Mode is the top-level application state.
type Mode int

const (
	ModeUpload Mode = iota
	ModeEditing
)

func (m Mode) String() string {
	if m == ModeEditing {
		return "editing"
	}
	return "upload"
}

// Option customizes an App.
type Option func(*App)

// WithEditorConfig sets the configuration for every editing session.
func WithEditorConfig(cfg editor.Config) Option {
	return func(a *App) { a.editorConfig = cfg }
}

// WithUploadConfig sets upload limits and accepted formats.
func WithUploadConfig(cfg upload.Config, formats analyzer.Config) Option {
	return func(a *App) {
		a.uploadConfig = cfg
		a.analyzerConfig = &formats
	}
}

// WithLogger sets the logger shared with editing sessions.
func WithLogger(l editor.Logger) Option {
	return func(a *App) { a.logger = l }
}

// WithLocator sets the subject locator used for crop suggestions.
func WithLocator(l editor.Locator) Option {
	return func(a *App) { a.locator = l }
}

// App switches between upload mode and an editing session.
type App struct {
	editorConfig   editor.Config
	uploadConfig   upload.Config
	analyzerConfig *analyzer.Config
	logger         editor.Logger
	locator        editor.Locator
	view           *upload.View

	mu      sync.Mutex
	session *editor.Editor
	image   types.Payload
	edited  types.Payload
	openErr error
}

// New creates an application in upload mode.
func New(opts ...Option) *App {
	a := &App{
		editorConfig: editor.DefaultConfig(),
		uploadConfig: upload.Config{MaxBytes: upload.DefaultMaxBytes},
	}
	for _, opt := range opts {
		opt(a)
	}

	imgAnalyzer := analyzer.New()
	if a.analyzerConfig != nil {
		imgAnalyzer = analyzer.NewWithConfig(*a.analyzerConfig)
	}
	a.view = upload.NewViewWithConfig(a.uploadConfig, imgAnalyzer, a.open)
	return a
}

// UploadAsync starts an upload and returns its pending result. Only a fresh
// successful result opens an editing session.
func (a *App) UploadAsync(ctx context.Context, f upload.File, src upload.Source) (<-chan upload.Result, error) {
	if a.Mode() == ModeEditing {
		return nil, ErrSessionOpen
	}
	return a.view.Accept(ctx, f, src), nil
}

// Upload accepts a file and waits until it is decoded and opened.
func (a *App) Upload(ctx context.Context, f upload.File, src upload.Source) (upload.Result, error) {
	ch, err := a.UploadAsync(ctx, f, src)
	if err != nil {
		return upload.Result{Name: f.Name, Err: err}, err
	}

	var res upload.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return upload.Result{Name: f.Name, Err: ctx.Err()}, ctx.Err()
	}
	if res.Err != nil {
		a.logWarning("upload of %s failed: %v", f.Name, res.Err)
		return res, res.Err
	}

	a.mu.Lock()
	err = a.openErr
	a.openErr = nil
	a.mu.Unlock()
	return res, err
}

// LoadFile uploads a file from disk through the picker path.
func (a *App) LoadFile(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var size int64
	if st, err := f.Stat(); err == nil {
		size = st.Size()
	}
	_, err = a.Upload(ctx, upload.File{
		Name:        filepath.Base(path),
		ContentType: utils.ContentTypeFor(path),
		Size:        size,
		Reader:      f,
	}, upload.SourcePicker)
	return err
}

// open is the upload handler: it starts a fresh editing session.
func (a *App) open(res upload.Result) {
	opts := []editor.Option{editor.WithListener(a)}
	if a.logger != nil {
		opts = append(opts, editor.WithLogger(a.logger))
	}
	if a.locator != nil {
		opts = append(opts, editor.WithLocator(a.locator))
	}

	session, err := editor.NewWithConfig(a.editorConfig, res.Payload, opts...)

	a.mu.Lock()
	defer a.mu.Unlock()
	if err != nil {
		a.openErr = err
		return
	}
	a.session = session
	a.image = res.Payload
	a.edited = res.Payload
	a.openErr = nil
	if a.logger != nil {
		a.logger.Info("opened %s (%dx%d %s)", res.Name, res.Info.Width, res.Info.Height, res.Format)
	}
}

// ImageEdited records the session's active image.
func (a *App) ImageEdited(p types.Payload) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session != nil {
		a.edited = p
	}
}

// ResetRequested closes the session and returns to upload mode.
func (a *App) ResetRequested() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.session = nil
	a.image = ""
	a.edited = ""
}

// Mode reports whether the app is waiting for an upload or editing.
func (a *App) Mode() Mode {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session == nil {
		return ModeUpload
	}
	return ModeEditing
}

// Editor returns the open session, or nil in upload mode.
func (a *App) Editor() *editor.Editor {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session
}

// Image returns the uploaded image of the open session.
func (a *App) Image() types.Payload {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.image
}

// Edited returns the latest image reported by the session.
func (a *App) Edited() types.Payload {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.edited
}

func (a *App) logWarning(format string, v ...interface{}) {
	if a.logger != nil {
		a.logger.Warning(format, v...)
	}
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}

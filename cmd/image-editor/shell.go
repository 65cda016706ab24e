package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	imageeditor "github.com/menta2k/image-editor"
	"github.com/menta2k/image-editor/internal/config"
	"github.com/menta2k/image-editor/internal/utils"
	"github.com/menta2k/image-editor/pkg/editor"
	"github.com/menta2k/image-editor/pkg/processing"
	"github.com/menta2k/image-editor/pkg/types"
)

const helpText = `commands:
  load PATH                      open an image (upload mode only)
  info                           show the session state
  brightness|contrast|saturation N
                                 set one filter percentage (0-200)
  filters B C S                  set all three filter percentages
  apply-filters                  commit the filter settings
  removebg [T]                   clear near-white pixels (channel > T, default from config)
  crop                           start a crop session
  down X Y | move X Y | up       drive the crop selection with the pointer
  suggest                        move the selection onto the main subject
  check-model                    ask the suggestion model to describe the image
  preview PATH                   write the crop overlay as PNG
  apply | cancel                 finish the crop session
  undo                           step back one edit
  reset                          go back to the uploaded image (undoable)
  download [DIR]                 save edited-image.png
  new                            close the image and return to upload mode
  help                           show this text
  quit                           exit`

var (
	errNoImage = errors.New("no image open; use load PATH")
	errNoModel = errors.New("crop suggestions do not use a model (suggest.backend is saliency)")
)

// editCommands need an open image.
var editCommands = map[string]bool{
	"brightness": true, "contrast": true, "saturation": true,
	"filters": true, "apply-filters": true, "removebg": true,
	"crop": true, "down": true, "move": true, "up": true,
	"suggest": true, "check-model": true, "preview": true,
	"apply": true, "cancel": true, "undo": true, "reset": true,
	"download": true, "new": true,
}

// modelChecker is implemented by model-backed locators.
type modelChecker interface {
	TestVision(ctx context.Context, imageB64 string) (string, error)
}

// shell runs editor commands against one App.
type shell struct {
	app       *imageeditor.App
	cfg       *config.Config
	locator   editor.Locator
	processor *processing.Processor
	out       io.Writer
}

func newShell(app *imageeditor.App, cfg *config.Config, locator editor.Locator, out io.Writer) *shell {
	return &shell{
		app:       app,
		cfg:       cfg,
		locator:   locator,
		processor: processing.NewProcessor(),
		out:       out,
	}
}

// run reads commands line by line until EOF or quit. Command errors are
// printed and do not stop the loop.
func (s *shell) run(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for {
		fmt.Fprintf(s.out, "%s> ", s.app.Mode())
		if !scanner.Scan() {
			fmt.Fprintln(s.out)
			return scanner.Err()
		}
		done, err := s.executeLine(scanner.Text())
		if err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
		}
		if done {
			return nil
		}
	}
}

// executeLine runs one command. It reports done for quit.
func (s *shell) executeLine(line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
		return false, nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "quit", "exit":
		return true, nil
	case "help":
		fmt.Fprintln(s.out, helpText)
		return false, nil
	case "load":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: load PATH")
		}
		if !utils.IsImageFile(args[0]) {
			return false, fmt.Errorf("%s: not an image file (want %s)", args[0], strings.Join(utils.ImageExtensions, ", "))
		}
		if err := s.app.LoadFile(context.Background(), args[0]); err != nil {
			return false, err
		}
		return false, s.info()
	case "info":
		return false, s.info()
	}

	if !editCommands[cmd] {
		return false, fmt.Errorf("unknown command %q (try help)", cmd)
	}
	ed := s.app.Editor()
	if ed == nil {
		return false, errNoImage
	}

	switch cmd {
	case "brightness", "contrast", "saturation":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: %s N", cmd)
		}
		v, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return false, fmt.Errorf("%s: %w", cmd, err)
		}
		params := ed.Filters()
		switch cmd {
		case "brightness":
			params.Brightness = v
		case "contrast":
			params.Contrast = v
		default:
			params.Saturation = v
		}
		if err := ed.SetFilters(params); err != nil {
			return false, err
		}
		fmt.Fprintln(s.out, params)
	case "filters":
		params, err := parseFilters(args)
		if err != nil {
			return false, err
		}
		if err := ed.SetFilters(params); err != nil {
			return false, err
		}
		fmt.Fprintln(s.out, params)
	case "apply-filters":
		if err := ed.ApplyFilters(); err != nil {
			return false, err
		}
		s.printHistory(ed)
	case "removebg":
		var err error
		switch len(args) {
		case 0:
			err = ed.RemoveBackground()
		case 1:
			t, perr := strconv.ParseUint(args[0], 10, 8)
			if perr != nil {
				return false, fmt.Errorf("removebg: threshold must be 0-255")
			}
			err = ed.RemoveBackgroundWithThreshold(uint8(t))
		default:
			return false, fmt.Errorf("usage: removebg [T]")
		}
		if err != nil {
			return false, err
		}
		s.printHistory(ed)
	case "crop":
		if err := ed.StartCrop(); err != nil {
			return false, err
		}
		return false, s.printSelection(ed)
	case "down", "move":
		p, err := parsePoint(cmd, args)
		if err != nil {
			return false, err
		}
		if cmd == "down" {
			err = ed.PointerDown(p)
		} else {
			err = ed.PointerMove(p)
		}
		if err != nil {
			return false, err
		}
		return false, s.printSelection(ed)
	case "up":
		if err := ed.PointerUp(); err != nil {
			return false, err
		}
		return false, s.printSelection(ed)
	case "suggest":
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SuggestTimeout())
		defer cancel()
		if _, err := ed.SuggestCrop(ctx); err != nil {
			return false, err
		}
		return false, s.printSelection(ed)
	case "check-model":
		answer, err := s.checkModel(ed)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(s.out, "model: %s\n", answer)
	case "preview":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: preview PATH")
		}
		img, err := ed.CropPreview()
		if err != nil {
			return false, err
		}
		if err := s.processor.SaveImage(img, args[0], processing.Encoding{Format: "png"}); err != nil {
			return false, err
		}
		fmt.Fprintf(s.out, "wrote %s\n", args[0])
	case "apply":
		if err := ed.ApplyCrop(); err != nil {
			return false, err
		}
		s.printHistory(ed)
	case "cancel":
		if err := ed.CancelCrop(); err != nil {
			return false, err
		}
		fmt.Fprintln(s.out, "crop cancelled")
	case "undo":
		if err := ed.Undo(); err != nil {
			return false, err
		}
		s.printHistory(ed)
	case "reset":
		if err := ed.ResetToOriginal(); err != nil {
			return false, err
		}
		s.printHistory(ed)
	case "download":
		dir := s.cfg.Output.Dir
		if len(args) > 0 {
			dir = args[0]
		}
		path, err := ed.Download(dir)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(s.out, "saved %s\n", path)
	case "new":
		ed.RequestNewImage()
		fmt.Fprintln(s.out, "image closed")
	default:
		return false, fmt.Errorf("unknown command %q (try help)", cmd)
	}
	return false, nil
}

// checkModel sends the active image to the suggestion model with a plain
// description prompt, to confirm the model actually receives images.
func (s *shell) checkModel(ed *editor.Editor) (string, error) {
	checker, ok := s.locator.(modelChecker)
	if !ok {
		return "", errNoModel
	}
	img, _, err := s.processor.DecodePayload(ed.Current())
	if err != nil {
		return "", err
	}
	imgB64, err := s.processor.PrepareImageForModel(img, "jpeg", s.cfg.Suggest.MaxDimension, 85)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SuggestTimeout())
	defer cancel()
	return checker.TestVision(ctx, imgB64)
}

func (s *shell) info() error {
	ed := s.app.Editor()
	if ed == nil {
		fmt.Fprintln(s.out, "mode: upload")
		return nil
	}
	m := ed.Metrics()
	current := ed.Current()
	data, err := processing.PayloadBytes(current)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "mode: editing\nimage: %.0fx%.0f %s (%s)\n", m.Natural.Width, m.Natural.Height,
		current.MIMEType(), utils.FormatFileSize(int64(len(data))))
	fmt.Fprintf(s.out, "display: %s in %.0fx%.0f\n", m.ImageBounds(), m.Container.Width, m.Container.Height)
	fmt.Fprintf(s.out, "filters: %s\n", ed.Filters())
	s.printHistory(ed)
	if ed.Cropping() {
		return s.printSelection(ed)
	}
	return nil
}

func (s *shell) printHistory(ed *editor.Editor) {
	fmt.Fprintf(s.out, "history: %d/%d\n", ed.Index()+1, ed.Len())
}

func (s *shell) printSelection(ed *editor.Editor) error {
	r, err := ed.CropRect()
	if err != nil {
		return err
	}
	mode, handle, err := ed.CropMode()
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "selection: %s mode=%s handle=%s cursor=%s\n", r, mode, handle, ed.Cursor())
	return nil
}

func parseFilters(args []string) (types.FilterParams, error) {
	if len(args) != 3 {
		return types.FilterParams{}, fmt.Errorf("usage: filters B C S")
	}
	var v [3]float64
	for i, a := range args {
		f, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return types.FilterParams{}, fmt.Errorf("filters: %w", err)
		}
		v[i] = f
	}
	return types.FilterParams{Brightness: v[0], Contrast: v[1], Saturation: v[2]}, nil
}

func parsePoint(cmd string, args []string) (types.Point, error) {
	if len(args) != 2 {
		return types.Point{}, fmt.Errorf("usage: %s X Y", cmd)
	}
	x, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return types.Point{}, fmt.Errorf("%s: %w", cmd, err)
	}
	y, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return types.Point{}, fmt.Errorf("%s: %w", cmd, err)
	}
	return types.Point{X: x, Y: y}, nil
}

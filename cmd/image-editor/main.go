package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	imageeditor "github.com/menta2k/image-editor"
	"github.com/menta2k/image-editor/internal/config"
	"github.com/menta2k/image-editor/internal/logger"
	"github.com/menta2k/image-editor/internal/utils"
	"github.com/menta2k/image-editor/pkg/detection"
	"github.com/menta2k/image-editor/pkg/editor"
	"github.com/menta2k/image-editor/pkg/llamacpp"
	"github.com/menta2k/image-editor/pkg/ollama"
	"github.com/menta2k/image-editor/pkg/types"
	"github.com/menta2k/image-editor/pkg/upload"
	"github.com/menta2k/image-editor/pkg/vision"
)

type commandList []string

func (c *commandList) String() string {
	return strings.Join(*c, ";")
}

func (c *commandList) Set(value string) error {
	*c = append(*c, value)
	return nil
}

func main() {
	os.Exit(run(os.Args[1:]))
}

// run parses flags, wires the application and executes commands. It
// returns the process exit code so deferred cleanup always runs.
func run(args []string) int {
	var (
		in         string
		configPath string
		envFile    string
		outDir     string
		viewport   string
		cleanLogs  bool
		execs      commandList
	)

	fs := flag.NewFlagSet("image-editor", flag.ContinueOnError)
	fs.StringVar(&in, "in", "", "image to open on start")
	fs.StringVar(&configPath, "config", "", "path to a JSON config file (default: "+config.GetConfigPath()+" if present)")
	fs.StringVar(&envFile, "env", "", "path to a .env file (default: ./.env if present)")
	fs.StringVar(&outDir, "out", "", "directory for downloads (overrides config)")
	fs.StringVar(&viewport, "viewport", "", "editor pane as WxH: container width x max image height")
	fs.BoolVar(&cleanLogs, "clean-logs", false, "truncate the log files in log.dir before starting")
	fs.Var(&execs, "e", "execute a command and exit (may be specified multiple times)")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	cfg, err := loadConfig(configPath, envFile)
	if err != nil {
		log.Print(err)
		return 1
	}
	if outDir != "" {
		cfg.Output.Dir = outDir
	}
	if viewport != "" {
		vp, err := parseViewport(viewport, cfg.Viewport)
		if err != nil {
			log.Print(err)
			return 2
		}
		cfg.Viewport = vp
	}
	if err := cfg.Validate(); err != nil {
		log.Printf("invalid configuration: %v", err)
		return 1
	}

	lg, err := logger.New(cfg.Log)
	if err != nil {
		log.Print(err)
		return 1
	}
	defer lg.Close()

	if cleanLogs {
		for _, name := range logger.FileNames {
			if err := lg.CleanLogs(name); err != nil {
				lg.Warning("clean %s: %v", name, err)
			}
		}
	}

	locator, err := newLocator(cfg)
	if err != nil {
		lg.Error("%v", err)
		return 1
	}
	app, err := newApp(cfg, lg, locator)
	if err != nil {
		lg.Error("%v", err)
		return 1
	}

	sh := newShell(app, cfg, locator, os.Stdout)
	if in != "" {
		if err := app.LoadFile(context.Background(), in); err != nil {
			lg.Error("load %s: %v", in, err)
			return 1
		}
	}

	if len(execs) > 0 {
		for _, line := range execs {
			done, err := sh.executeLine(line)
			if err != nil {
				lg.Error("%s: %v", line, err)
				return 1
			}
			if done {
				break
			}
		}
		return 0
	}

	if err := sh.run(os.Stdin); err != nil {
		lg.Error("%v", err)
		return 1
	}
	return 0
}

// loadConfig layers .env, the JSON file and IMAGE_EDITOR_* variables over
// the defaults.
func loadConfig(path, envFile string) (*config.Config, error) {
	var err error
	if envFile != "" {
		err = config.LoadEnv(envFile)
	} else {
		err = config.LoadEnv()
	}
	if err != nil {
		return nil, err
	}

	cfg := config.Default()
	switch {
	case path != "":
		if cfg, err = config.LoadFromFile(path); err != nil {
			return nil, err
		}
	default:
		if utils.FileExists(config.GetConfigPath()) {
			if cfg, err = config.LoadFromFile(config.GetConfigPath()); err != nil {
				return nil, err
			}
		}
	}
	cfg.ApplyEnv()
	return cfg, nil
}

func parseViewport(s string, base types.Viewport) (types.Viewport, error) {
	w, h, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return base, fmt.Errorf("viewport %q: want WxH", s)
	}
	width, err := strconv.ParseFloat(w, 64)
	if err != nil || width <= 0 {
		return base, fmt.Errorf("viewport %q: bad width", s)
	}
	height, err := strconv.ParseFloat(h, 64)
	if err != nil || height <= 0 {
		return base, fmt.Errorf("viewport %q: bad height", s)
	}
	base.Width = width
	base.MaxImageWidth = width
	base.MaxImageHeight = height
	return base, nil
}

func newApp(cfg *config.Config, lg *logger.Logger, locator editor.Locator) (*imageeditor.App, error) {
	editorCfg, err := cfg.EditorSettings()
	if err != nil {
		return nil, err
	}
	lg.Info("crop suggestions via %s", cfg.Suggest.Backend)

	return imageeditor.New(
		imageeditor.WithEditorConfig(editorCfg),
		imageeditor.WithUploadConfig(upload.Config{MaxBytes: cfg.Upload.MaxBytes}, cfg.AnalyzerSettings()),
		imageeditor.WithLogger(lg),
		imageeditor.WithLocator(locator),
	), nil
}

// newLocator picks the crop suggestion backend. Model backends fall back to
// the saliency locator when the server is unreachable or unsure.
func newLocator(cfg *config.Config) (editor.Locator, error) {
	detectCfg := detection.DefaultConfig()
	detectCfg.Model = cfg.Suggest.Model
	detectCfg.MaxDimension = cfg.Suggest.MaxDimension
	detectCfg.MinConfidence = cfg.Suggest.MinConfidence

	switch cfg.Suggest.Backend {
	case "ollama":
		c, err := ollama.NewClientWithConfig(ollama.Config{URL: cfg.Suggest.URL, Timeout: cfg.SuggestTimeout()})
		if err != nil {
			return nil, fmt.Errorf("failed to create Ollama client: %w", err)
		}
		return detection.NewDetectorWithConfig(detectCfg, c, vision.New()), nil
	case "llamacpp":
		url := cfg.Suggest.URL
		if url == ollama.DefaultURL {
			url = llamacpp.DefaultURL
		}
		c, err := llamacpp.NewClient(url, cfg.SuggestTimeout())
		if err != nil {
			return nil, fmt.Errorf("failed to create llama.cpp client: %w", err)
		}
		return detection.NewDetectorWithConfig(detectCfg, c, vision.New()), nil
	case "saliency", "":
		return vision.New(), nil
	default:
		return nil, fmt.Errorf("unknown suggest backend: %s (use saliency, ollama or llamacpp)", cfg.Suggest.Backend)
	}
}

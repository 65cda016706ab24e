package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/menta2k/image-editor/pkg/analyzer"
	"github.com/menta2k/image-editor/pkg/cropper"
	"github.com/menta2k/image-editor/pkg/editor"
	"github.com/menta2k/image-editor/pkg/processing"
	"github.com/menta2k/image-editor/pkg/types"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "IMAGE_EDITOR_"

// Config holds the application configuration
type Config struct {
	Editor   EditorConfig   `json:"editor"`
	Viewport types.Viewport `json:"viewport"`
	Upload   UploadConfig   `json:"upload"`
	Output   OutputConfig   `json:"output"`
	Suggest  SuggestConfig  `json:"suggest"`
	Log      LogConfig      `json:"log"`
}

// EditorConfig holds configuration for an editing session
type EditorConfig struct {
	FilterSource        string  `json:"filter_source"`
	BackgroundThreshold int     `json:"background_threshold"`
	HistoryLimit        int     `json:"history_limit"`
	EdgeThreshold       float64 `json:"edge_threshold"`
	InitialCoverage     float64 `json:"initial_coverage"`
}

// UploadConfig holds configuration for accepting files
type UploadConfig struct {
	MaxBytes         int64    `json:"max_bytes"`
	SupportedFormats []string `json:"supported_formats"`
	MinImageSize     int      `json:"min_image_size"`
	MaxPixels        int      `json:"max_pixels"`
}

// OutputConfig holds configuration for encoding and saving
type OutputConfig struct {
	Dir            string `json:"dir"`
	LossyFormat    string `json:"lossy_format"`
	LossyQuality   int    `json:"lossy_quality"`
	LosslessFormat string `json:"lossless_format"`
}

// SuggestConfig holds configuration for crop suggestions
type SuggestConfig struct {
	// Backend is "saliency", "ollama" or "llamacpp".
	Backend        string  `json:"backend"`
	URL            string  `json:"url"`
	Model          string  `json:"model"`
	TimeoutSeconds int     `json:"timeout_seconds"`
	MaxDimension   int     `json:"max_dimension"`
	MinConfidence  float64 `json:"min_confidence"`
}

// LogConfig holds configuration for logging
type LogConfig struct {
	Level string `json:"level"`
	Dir   string `json:"dir"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Editor: EditorConfig{
			FilterSource:        "original",
			BackgroundThreshold: processing.DefaultBackgroundThreshold,
			HistoryLimit:        0,
			EdgeThreshold:       10,
			InitialCoverage:     0.8,
		},
		Viewport: types.DefaultViewport(),
		Upload: UploadConfig{
			MaxBytes:         10 << 20,
			SupportedFormats: append([]string(nil), analyzer.DefaultFormats...),
			MinImageSize:     1,
			MaxPixels:        analyzer.DefaultMaxPixels,
		},
		Output: OutputConfig{
			Dir:            ".",
			LossyFormat:    "jpeg",
			LossyQuality:   92,
			LosslessFormat: "png",
		},
		Suggest: SuggestConfig{
			Backend:        "saliency",
			URL:            "http://localhost:11434",
			Model:          "llava",
			TimeoutSeconds: 120,
			MaxDimension:   768,
			MinConfidence:  0.3,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadFromFile loads configuration from a JSON file. Keys missing from the
// file keep their default values.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadEnv loads .env files into the process environment without replacing
// variables that are already set. With no arguments it reads ./.env if
// present.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("failed to load env files: %w", err)
	}
	return nil
}

// ApplyEnv overrides fields from IMAGE_EDITOR_* environment variables.
func (c *Config) ApplyEnv() {
	c.Editor.FilterSource = getEnv("FILTER_SOURCE", c.Editor.FilterSource)
	c.Editor.BackgroundThreshold = getEnvAsInt("BG_THRESHOLD", c.Editor.BackgroundThreshold)
	c.Editor.HistoryLimit = getEnvAsInt("HISTORY_LIMIT", c.Editor.HistoryLimit)
	c.Upload.MaxBytes = getEnvAsInt64("MAX_UPLOAD_BYTES", c.Upload.MaxBytes)
	c.Upload.MaxPixels = getEnvAsInt("MAX_PIXELS", c.Upload.MaxPixels)
	c.Output.Dir = getEnv("OUTPUT_DIR", c.Output.Dir)
	c.Output.LossyFormat = getEnv("LOSSY_FORMAT", c.Output.LossyFormat)
	c.Output.LosslessFormat = getEnv("LOSSLESS_FORMAT", c.Output.LosslessFormat)
	c.Suggest.Backend = getEnv("SUGGEST_BACKEND", c.Suggest.Backend)
	c.Suggest.URL = getEnv("SUGGEST_URL", c.Suggest.URL)
	c.Suggest.Model = getEnv("SUGGEST_MODEL", c.Suggest.Model)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Dir = getEnv("LOG_DIR", c.Log.Dir)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if _, err := editor.ParseFilterSource(c.Editor.FilterSource); err != nil {
		return fmt.Errorf("editor.filter_source: %w", err)
	}

	if c.Editor.BackgroundThreshold < 0 || c.Editor.BackgroundThreshold > 255 {
		return fmt.Errorf("editor.background_threshold must be between 0 and 255")
	}

	if c.Editor.HistoryLimit < 0 {
		return fmt.Errorf("editor.history_limit cannot be negative")
	}

	if c.Editor.EdgeThreshold <= 0 {
		return fmt.Errorf("editor.edge_threshold must be positive")
	}

	if c.Editor.InitialCoverage <= 0 || c.Editor.InitialCoverage > 1 {
		return fmt.Errorf("editor.initial_coverage must be in (0, 1]")
	}

	if c.Viewport.Width <= 0 || c.Viewport.MaxImageWidth <= 0 || c.Viewport.MaxImageHeight <= 0 {
		return fmt.Errorf("viewport dimensions must be positive")
	}

	if c.Upload.MaxBytes <= 0 {
		return fmt.Errorf("upload.max_bytes must be positive")
	}

	if c.Upload.MaxPixels <= 0 {
		return fmt.Errorf("upload.max_pixels must be positive")
	}

	if len(c.Upload.SupportedFormats) == 0 {
		return fmt.Errorf("upload.supported_formats cannot be empty")
	}

	if c.Output.LossyQuality < 1 || c.Output.LossyQuality > 100 {
		return fmt.Errorf("output.lossy_quality must be between 1 and 100")
	}

	switch strings.ToLower(c.Output.LossyFormat) {
	case "jpeg", "jpg", "webp":
	default:
		return fmt.Errorf("output.lossy_format must be jpeg or webp")
	}

	switch strings.ToLower(c.Output.LosslessFormat) {
	case "png", "webp":
	default:
		return fmt.Errorf("output.lossless_format must be png or webp")
	}

	switch c.Suggest.Backend {
	case "saliency", "ollama", "llamacpp":
	default:
		return fmt.Errorf("suggest.backend must be saliency, ollama or llamacpp")
	}

	if c.Suggest.MinConfidence < 0 || c.Suggest.MinConfidence > 1 {
		return fmt.Errorf("suggest.min_confidence must be between 0 and 1")
	}

	return nil
}

// EditorSettings converts the file settings into a session configuration.
func (c *Config) EditorSettings() (editor.Config, error) {
	source, err := editor.ParseFilterSource(c.Editor.FilterSource)
	if err != nil {
		return editor.Config{}, err
	}
	return editor.Config{
		FilterSource:        source,
		BackgroundThreshold: uint8(c.Editor.BackgroundThreshold),
		HistoryLimit:        c.Editor.HistoryLimit,
		Crop: cropper.CropConfig{
			EdgeThreshold:   c.Editor.EdgeThreshold,
			InitialCoverage: c.Editor.InitialCoverage,
		},
		Viewport: c.Viewport,
		Processing: processing.Config{
			LossyFormat:    c.Output.LossyFormat,
			LossyQuality:   c.Output.LossyQuality,
			LosslessFormat: c.Output.LosslessFormat,
		},
	}, nil
}

// AnalyzerSettings returns the format and size checks for uploads.
func (c *Config) AnalyzerSettings() analyzer.Config {
	return analyzer.Config{
		SupportedFormats: c.Upload.SupportedFormats,
		MinImageSize:     c.Upload.MinImageSize,
		MaxPixels:        c.Upload.MaxPixels,
	}
}

// SuggestTimeout returns the model request timeout.
func (c *Config) SuggestTimeout() time.Duration {
	return time.Duration(c.Suggest.TimeoutSeconds) * time.Second
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "image-editor", "config.json")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

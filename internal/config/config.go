package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Port           int
	ModelDir       string
	ModelName      string
	OnnxLibrary    string // empty lets onnxruntime_go use its platform default
	Resampler      string
	CanvasSize     int
	BrushWidth     int
	MaxUploadBytes int64
	LogDirectory   string // empty logs to stdout/stderr only
}

// Overrides captures CLI supplied values.
type Overrides struct {
	Port        int
	ModelDir    string
	ModelName   string
	OnnxLibrary string
	Resampler   string
}

// Load reads the optional env file (ENV_FILE, default .env) and builds a
// validated Config from the environment. Variables already set in the
// process environment win over the file.
func Load() (*Config, error) {
	envFile := getEnv("ENV_FILE", ".env")
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}

	var errs []error
	intEnv := func(key string, defaultValue int) int {
		v, err := getEnvAsInt(key, defaultValue)
		errs = append(errs, err)
		return v
	}
	maxUploadMB, err := getEnvAsInt64("MAX_UPLOAD_MB", 10)
	errs = append(errs, err)

	cfg := &Config{
		Port:           intEnv("PORT", 8080),
		ModelDir:       getEnv("MODEL_DIR", filepath.Join(".", "models")),
		ModelName:      getEnv("MODEL_NAME", "my_model"),
		OnnxLibrary:    getEnv("ONNXRUNTIME_LIB", ""),
		Resampler:      getEnv("RESAMPLER", "bilinear"),
		CanvasSize:     intEnv("CANVAS_SIZE", 280),
		BrushWidth:     intEnv("BRUSH_WIDTH", 20),
		MaxUploadBytes: maxUploadMB << 20,
		LogDirectory:   getEnv("LOG_DIR", ""),
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyOverrides updates c using any non-zero override.
func (c *Config) ApplyOverrides(o Overrides) {
	if o.Port > 0 {
		c.Port = o.Port
	}
	if o.ModelDir != "" {
		c.ModelDir = o.ModelDir
	}
	if o.ModelName != "" {
		c.ModelName = o.ModelName
	}
	if o.OnnxLibrary != "" {
		c.OnnxLibrary = o.OnnxLibrary
	}
	if o.Resampler != "" {
		c.Resampler = o.Resampler
	}
}

// Validate verifies the config is runnable.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be in 1..65535 (got %d)", c.Port)
	}
	if c.ModelDir == "" {
		return errors.New("model directory must be set")
	}
	if c.ModelName == "" {
		return errors.New("model name must be set")
	}
	if c.CanvasSize <= 0 {
		return fmt.Errorf("canvas size must be > 0 (got %d)", c.CanvasSize)
	}
	if c.BrushWidth <= 0 {
		return fmt.Errorf("brush width must be > 0 (got %d)", c.BrushWidth)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("max upload size must be > 0 (got %d)", c.MaxUploadBytes)
	}
	if c.Resampler == "" {
		c.Resampler = "bilinear"
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer (got %q)", key, value)
	}
	return intValue, nil
}

func getEnvAsInt64(key string, defaultValue int64) (int64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	intValue, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer (got %q)", key, value)
	}
	return intValue, nil
}

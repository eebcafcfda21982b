// Package config loads the server settings from the environment.
//
// A .env file in the working directory is loaded first if present (values
// already in the environment win). Every key the server reads is listed in
// Load.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/sakif/js2py-docs/internal/assets"
	"github.com/sakif/js2py-docs/internal/theme"
)

// Python backends.
const (
	BackendWasm   = "wasm"
	BackendDocker = "docker"
)

type Config struct {
	Port     int
	LogLevel slog.Level

	DBPath     string
	ContentDir string

	TokenSecret string
	TokenTTL    time.Duration

	RunTimeout   time.Duration
	MaxInstances int
	// Preload starts loading both runtimes at startup instead of on the
	// first mounted instance.
	Preload bool

	Theme  ThemeConfig
	Python PythonConfig
	Editor EditorConfig
	S3     assets.S3Config
}

// ThemeConfig selects where the light/dark signal comes from.
type ThemeConfig struct {
	Setting theme.Setting
	// File holds the root element's class attribute. Empty means a fixed
	// attribute (StaticAttr) that never changes.
	File       string
	StaticAttr string
	Poll       time.Duration
}

// PythonConfig configures the shared interpreter.
type PythonConfig struct {
	Backend string

	// wasm backend
	AssetBase        string
	WasmFile         string
	StdlibDir        string
	CacheDir         string
	MemoryLimitPages uint32
	StartTimeout     time.Duration

	// docker backend
	DockerImage   string
	DockerPool    int
	DockerMemory  int64
	DockerCPU     float64
	DockerTimeout time.Duration

	// LoadTimeout bounds one load attempt of either backend.
	LoadTimeout time.Duration
}

// EditorConfig configures the editor bundle.
type EditorConfig struct {
	AssetBase string
	Files     []string
}

// Load reads the configuration. It fails on malformed values rather than
// silently falling back to defaults.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var errs []string
	fail := func(key string, err error) {
		errs = append(errs, fmt.Sprintf("%s: %v", key, err))
	}

	cfg := &Config{
		DBPath:      firstNonEmpty(env("DB_PATH"), "data/docs.db"),
		ContentDir:  firstNonEmpty(env("CONTENT_DIR"), "content/docs"),
		TokenSecret: env("TOKEN_SECRET"),
		Theme: ThemeConfig{
			File:       env("THEME_FILE"),
			StaticAttr: env("THEME_ATTR"),
		},
		Python: PythonConfig{
			Backend:     strings.ToLower(firstNonEmpty(env("PYTHON_BACKEND"), BackendWasm)),
			AssetBase:   firstNonEmpty(env("PYTHON_ASSET_BASE"), "assets"),
			WasmFile:    firstNonEmpty(env("PYTHON_WASM_FILE"), "python.wasm"),
			StdlibDir:   env("PYTHON_STDLIB_DIR"),
			CacheDir:    env("PYTHON_CACHE_DIR"),
			DockerImage: firstNonEmpty(env("PYTHON_DOCKER_IMAGE"), "python:3.12-alpine"),
		},
		Editor: EditorConfig{
			AssetBase: firstNonEmpty(env("EDITOR_ASSET_BASE"), "https://cdn.jsdelivr.net/npm/monaco-editor@0.52.0"),
			Files:     envList("EDITOR_FILES"),
		},
		S3: assets.S3Config{
			Endpoint:  firstNonEmpty(env("S3_ENDPOINT"), "s3.amazonaws.com"),
			Region:    firstNonEmpty(env("S3_REGION"), "us-east-1"),
			AccessKey: env("S3_ACCESS_KEY"),
			SecretKey: env("S3_SECRET_KEY"),
		},
	}

	var err error
	if cfg.Port, err = envInt("PORT", 8080); err != nil {
		fail("PORT", err)
	}
	if cfg.LogLevel, err = envLevel("LOG_LEVEL", slog.LevelInfo); err != nil {
		fail("LOG_LEVEL", err)
	}
	if cfg.TokenTTL, err = envDuration("TOKEN_TTL", 12*time.Hour); err != nil {
		fail("TOKEN_TTL", err)
	}
	if cfg.RunTimeout, err = envDuration("RUN_TIMEOUT", 10*time.Second); err != nil {
		fail("RUN_TIMEOUT", err)
	}
	if cfg.MaxInstances, err = envInt("MAX_INSTANCES", 1024); err != nil {
		fail("MAX_INSTANCES", err)
	}
	if cfg.Theme.Setting, err = theme.ParseSetting(env("THEME")); err != nil {
		fail("THEME", err)
	}
	if cfg.Theme.Poll, err = envDuration("THEME_POLL", 500*time.Millisecond); err != nil {
		fail("THEME_POLL", err)
	}

	var pages int
	if pages, err = envInt("PYTHON_MEMORY_PAGES", 0); err != nil {
		fail("PYTHON_MEMORY_PAGES", err)
	}
	cfg.Python.MemoryLimitPages = uint32(pages)
	if cfg.Python.StartTimeout, err = envDuration("PYTHON_START_TIMEOUT", 30*time.Second); err != nil {
		fail("PYTHON_START_TIMEOUT", err)
	}
	if cfg.Python.LoadTimeout, err = envDuration("PYTHON_LOAD_TIMEOUT", 2*time.Minute); err != nil {
		fail("PYTHON_LOAD_TIMEOUT", err)
	}
	if cfg.Python.DockerPool, err = envInt("PYTHON_DOCKER_POOL", 2); err != nil {
		fail("PYTHON_DOCKER_POOL", err)
	}
	var mem int
	if mem, err = envInt("PYTHON_DOCKER_MEMORY_MB", 128); err != nil {
		fail("PYTHON_DOCKER_MEMORY_MB", err)
	}
	cfg.Python.DockerMemory = int64(mem) * 1024 * 1024
	if cfg.Python.DockerCPU, err = envFloat("PYTHON_DOCKER_CPUS", 0.5); err != nil {
		fail("PYTHON_DOCKER_CPUS", err)
	}
	if cfg.Python.DockerTimeout, err = envDuration("PYTHON_DOCKER_PULL_TIMEOUT", 2*time.Minute); err != nil {
		fail("PYTHON_DOCKER_PULL_TIMEOUT", err)
	}
	if cfg.Preload, err = envBool("PRELOAD", true); err != nil {
		fail("PRELOAD", err)
	}
	if cfg.S3.UseSSL, err = envBool("S3_USE_SSL", true); err != nil {
		fail("S3_USE_SSL", err)
	}

	switch cfg.Python.Backend {
	case BackendWasm, BackendDocker:
	default:
		fail("PYTHON_BACKEND", fmt.Errorf("unknown backend %q (want wasm or docker)", cfg.Python.Backend))
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		fail("PORT", fmt.Errorf("out of range: %d", cfg.Port))
	}
	if cfg.MaxInstances <= 0 {
		fail("MAX_INSTANCES", fmt.Errorf("must be positive, got %d", cfg.MaxInstances))
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func envInt(key string, def int) (int, error) {
	raw := env(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func envFloat(key string, def float64) (float64, error) {
	raw := env(key)
	if raw == "" {
		return def, nil
	}
	return strconv.ParseFloat(raw, 64)
}

func envBool(key string, def bool) (bool, error) {
	raw := env(key)
	if raw == "" {
		return def, nil
	}
	return strconv.ParseBool(raw)
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	raw := env(key)
	if raw == "" {
		return def, nil
	}
	return time.ParseDuration(raw)
}

func envLevel(key string, def slog.Level) (slog.Level, error) {
	raw := env(key)
	if raw == "" {
		return def, nil
	}
	var lvl slog.Level
	err := lvl.UnmarshalText([]byte(raw))
	return lvl, err
}

// envList splits a comma-separated value, dropping empty items.
func envList(key string) []string {
	var out []string
	for _, item := range strings.Split(env(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

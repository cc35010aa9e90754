// Package config loads settings shared by the console and the server from an
// optional .env file and STOCKFISH_* environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"stockfish/internal/engine"
)

// Environment keys
const (
	KeyEnginePath      = "STOCKFISH_PATH"
	KeyDepth           = "STOCKFISH_DEPTH"
	KeyHashMB          = "STOCKFISH_HASH_MB"
	KeyThreads         = "STOCKFISH_THREADS"
	KeySkill           = "STOCKFISH_SKILL"
	KeyLookback        = "STOCKFISH_LOOKBACK"
	KeyStartTimeout    = "STOCKFISH_START_TIMEOUT"
	KeyLogLevel        = "STOCKFISH_LOG_LEVEL"
	KeyAPIHost         = "STOCKFISH_API_HOST"
	KeyAPIPort         = "STOCKFISH_API_PORT"
	KeyStoragePath     = "STOCKFISH_STORAGE_PATH"
	KeyWorkers         = "STOCKFISH_WORKERS"
	KeyJWTSecret       = "STOCKFISH_JWT_SECRET"
	KeyAllowAnonymous  = "STOCKFISH_API_ALLOW_ANONYMOUS"
	KeyAnalysisTimeout = "STOCKFISH_ANALYSIS_TIMEOUT"
)

// SkillUnset leaves the engine's own skill level alone.
const SkillUnset = -1

type Config struct {
	LogLevel string `validate:"oneof=trace debug info warn error disabled"`
	Engine   EngineConfig
	Server   ServerConfig
}

type EngineConfig struct {
	Path         string        `validate:"required"`
	Depth        uint          `validate:"min=1,max=245"`
	HashMB       uint          `validate:"max=33554432"` // 0 keeps the engine default
	Threads      uint          `validate:"max=1024"`     // 0 keeps the engine default
	Skill        int           `validate:"min=-1,max=20"`
	Lookback     string        `validate:"oneof=previous last-scored"`
	StartTimeout time.Duration `validate:"gte=0"`
}

type ServerConfig struct {
	Host            string `validate:"required"`
	Port            int    `validate:"min=1,max=65535"`
	StoragePath     string
	Workers         int           `validate:"min=1,max=64"`
	JWTSecret       string        `validate:"omitempty,min=32"`
	AllowAnonymous  bool          // serve requests without a token when JWTSecret is set
	AnalysisTimeout time.Duration `validate:"gt=0"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		LogLevel: "info",
		Engine: EngineConfig{
			Path:         "stockfish",
			Depth:        engine.DefaultDepth,
			Skill:        SkillUnset,
			Lookback:     engine.LookbackPrevious.String(),
			StartTimeout: engine.DefaultStartTimeout,
		},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			Workers:         2,
			AnalysisTimeout: 30 * time.Second,
		},
	}
}

// Load reads the given .env files (default ".env"; missing files are
// skipped), then applies environment variables over Default. Variables that
// are already set win over .env entries.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg := Default()
	r := envReader{lookup: os.LookupEnv}

	r.stringVar(KeyLogLevel, &cfg.LogLevel)

	r.stringVar(KeyEnginePath, &cfg.Engine.Path)
	r.uintVar(KeyDepth, &cfg.Engine.Depth)
	r.uintVar(KeyHashMB, &cfg.Engine.HashMB)
	r.uintVar(KeyThreads, &cfg.Engine.Threads)
	r.intVar(KeySkill, &cfg.Engine.Skill)
	r.stringVar(KeyLookback, &cfg.Engine.Lookback)
	r.durationVar(KeyStartTimeout, &cfg.Engine.StartTimeout)

	r.stringVar(KeyAPIHost, &cfg.Server.Host)
	r.intVar(KeyAPIPort, &cfg.Server.Port)
	r.stringVar(KeyStoragePath, &cfg.Server.StoragePath)
	r.intVar(KeyWorkers, &cfg.Server.Workers)
	r.stringVar(KeyJWTSecret, &cfg.Server.JWTSecret)
	r.boolVar(KeyAllowAnonymous, &cfg.Server.AllowAnonymous)
	r.durationVar(KeyAnalysisTimeout, &cfg.Server.AnalysisTimeout)

	if len(r.errs) > 0 {
		return Config{}, errors.Join(r.errs...)
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks every field against its constraints.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed '%s' (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

// SessionOptions turns the engine settings into session options.
func (e EngineConfig) SessionOptions(log zerolog.Logger) ([]engine.Option, error) {
	mode, err := engine.ParseLookback(e.Lookback)
	if err != nil {
		return nil, err
	}
	return []engine.Option{
		engine.WithLogger(log),
		engine.WithDepth(e.Depth),
		engine.WithLookback(mode),
		engine.WithStartTimeout(e.StartTimeout),
	}, nil
}

// Apply sends the configured engine options that differ from the engine's
// defaults.
func (e EngineConfig) Apply(ctx context.Context, s *engine.Session) error {
	if e.HashMB > 0 {
		if err := s.SetHash(ctx, e.HashMB); err != nil {
			return err
		}
	}
	if e.Threads > 0 {
		if err := s.SetThreads(ctx, e.Threads); err != nil {
			return err
		}
	}
	if e.Skill != SkillUnset {
		if err := s.SetSkillLevel(ctx, e.Skill); err != nil {
			return err
		}
	}
	return nil
}

// envReader collects parse errors instead of stopping at the first.
type envReader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (r *envReader) get(key string) (string, bool) {
	v, ok := r.lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (r *envReader) stringVar(key string, dst *string) {
	if v, ok := r.get(key); ok {
		*dst = v
	}
}

func (r *envReader) intVar(key string, dst *int) {
	v, ok := r.get(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = n
}

func (r *envReader) uintVar(key string, dst *uint) {
	v, ok := r.get(key)
	if !ok {
		return
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = uint(n)
}

func (r *envReader) boolVar(key string, dst *bool) {
	v, ok := r.get(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = b
}

func (r *envReader) durationVar(key string, dst *time.Duration) {
	v, ok := r.get(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = d
}

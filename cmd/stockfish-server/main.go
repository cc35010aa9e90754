// Package main runs the analysis API: a pool of engine sessions behind a
// JSON HTTP interface, with optional SQLite history.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stockfish/cmd/stockfish-server/cli"
	"stockfish/internal/config"
	"stockfish/internal/engine"
	"stockfish/internal/logx"
	"stockfish/internal/server/http"
	"stockfish/internal/server/processor"
	"stockfish/internal/server/storage"
)

const gracefulShutdownTimeout = 5 * time.Second

func main() {
	if len(os.Args) > 1 && (os.Args[1] == "db" || os.Args[1] == "token") {
		if err := cli.Run(os.Args[1:]); err != nil {
			fmt.Fprintf(os.Stderr, "CLI error: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	var (
		apiHost     = flag.String("api-host", cfg.Server.Host, "API server host")
		apiPort     = flag.Int("api-port", cfg.Server.Port, "API server port")
		dev         = flag.Bool("dev", false, "Development mode (relaxed rate limits, debug logging)")
		storagePath = flag.String("storage-path", cfg.Server.StoragePath, "Path to SQLite database file (disables history if empty)")
		workers     = flag.Int("workers", cfg.Server.Workers, "Number of engine processes")
		enginePath  = flag.String("engine", cfg.Engine.Path, "Path to the UCI engine binary")
		pidPath     = flag.String("pid", "", "Optional path to write PID file")
		pidLock     = flag.Bool("pid-lock", false, "Lock PID file to allow only one instance (requires -pid)")
	)
	flag.Parse()

	if *pidLock && *pidPath == "" {
		return fmt.Errorf("-pid-lock flag requires the -pid flag to be set")
	}

	cfg.Server.Host = *apiHost
	cfg.Server.Port = *apiPort
	cfg.Server.StoragePath = *storagePath
	cfg.Server.Workers = *workers
	cfg.Engine.Path = *enginePath
	if *dev && cfg.LogLevel == "info" {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := logx.New(cfg.LogLevel, *dev)
	if err != nil {
		return err
	}

	if *pidPath != "" {
		cleanup, err := managePIDFile(*pidPath, *pidLock)
		if err != nil {
			return fmt.Errorf("failed to manage PID file: %w", err)
		}
		defer cleanup()
		log.Info().Str("path", *pidPath).Bool("lock", *pidLock).Msg("PID file created")
	}

	var store *storage.Store
	if cfg.Server.StoragePath != "" {
		store, err = storage.NewStore(cfg.Server.StoragePath, true, log)
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %w", err)
		}
		if err := store.InitDB(); err != nil {
			store.Close()
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				log.Warn().Err(err).Msg("failed to close storage cleanly")
			}
		}()
		log.Info().Str("path", cfg.Server.StoragePath).Msg("analysis history enabled")
	} else {
		log.Info().Msg("analysis history disabled (use -storage-path to enable)")
	}

	opts, err := cfg.Engine.SessionOptions(log)
	if err != nil {
		return err
	}
	factory := func() (*engine.Session, error) {
		s, err := engine.New(cfg.Engine.Path, opts...)
		if err != nil {
			return nil, err
		}
		applyCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := cfg.Engine.Apply(applyCtx, s); err != nil {
			ctx, cancelClose := context.WithTimeout(context.Background(), time.Second)
			defer cancelClose()
			_ = s.Close(ctx)
			return nil, err
		}
		return s, nil
	}

	queue := processor.NewEngineQueue(cfg.Server.Workers, factory, log)
	proc := processor.New(queue, store, cfg.Server.AnalysisTimeout, log)

	app := http.NewFiberApp(proc, http.Config{
		JWTSecret:      []byte(cfg.Server.JWTSecret),
		AllowAnonymous: cfg.Server.AllowAnonymous,
		DevMode:        *dev,
		Log:            log,
	})

	apiAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	go func() {
		log.Info().
			Str("addr", "http://"+apiAddr).
			Str("engine", cfg.Engine.Path).
			Int("workers", cfg.Server.Workers).
			Bool("auth", cfg.Server.JWTSecret != "").
			Bool("anonymous", cfg.Server.JWTSecret == "" || cfg.Server.AllowAnonymous).
			Bool("dev", *dev).
			Msg("analysis API listening")

		if err := app.Listen(apiAddr); err != nil {
			log.Error().Err(err).Msg("API server listen error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("server forced to shutdown")
	}
	if err := proc.Close(); err != nil {
		log.Warn().Err(err).Msg("processor close error")
	}

	log.Info().Msg("server exited")
	return nil
}

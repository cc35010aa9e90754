// Package main implements an interactive console for a UCI chess engine.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"stockfish/internal/config"
	"stockfish/internal/console"
	"stockfish/internal/engine"
	"stockfish/internal/logx"
)

func main() {
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
		enginePath = flag.String("engine", cfg.Engine.Path, "Path to the UCI engine binary")
		depth      = flag.Uint("depth", cfg.Engine.Depth, "Default search depth")
		lookback   = flag.String("lookback", cfg.Engine.Lookback, "Score line selection: previous or last-scored")
		logLevel   = flag.String("log-level", cfg.LogLevel, "Log level (trace shows raw engine traffic)")
		history    = flag.String("history", ".stockfish_history", "Readline history file (empty disables)")
		noColor    = flag.Bool("no-color", false, "Disable colored output")
	)
	flag.Parse()

	cfg.Engine.Path = *enginePath
	cfg.Engine.Depth = *depth
	cfg.Engine.Lookback = *lookback
	cfg.LogLevel = *logLevel
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := logx.New(cfg.LogLevel, !*noColor)
	if err != nil {
		return err
	}

	opts, err := cfg.Engine.SessionOptions(log)
	if err != nil {
		return err
	}
	session, err := engine.New(cfg.Engine.Path, opts...)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := session.Close(ctx); err != nil {
			log.Warn().Err(err).Msg("engine close")
		}
	}()

	applyCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = cfg.Engine.Apply(applyCtx, session)
	cancel()
	if err != nil {
		return err
	}

	palette := console.NewPalette(os.Stdout, !*noColor)
	c := console.New(session, os.Stdout, palette)

	var items []readline.PrefixCompleterInterface
	for _, name := range c.Registry().Names() {
		items = append(items, readline.PcItem(name))
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          c.Prompt(),
		HistoryFile:     *history,
		AutoComplete:    readline.NewPrefixCompleter(items...),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	fmt.Println(palette.Paint(console.Cyan, "Stockfish Console"))
	fmt.Println(palette.Paint(console.Cyan, "Engine: "+cfg.Engine.Path))
	fmt.Printf("Type 'help' for commands\n\n")

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		// Ctrl-C cancels a running command instead of killing the console.
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		err = c.Execute(ctx, line)
		stop()
		if errors.Is(err, console.ErrExit) {
			fmt.Println(palette.Paint(console.Cyan, "Goodbye!"))
			return nil
		}
	}
}

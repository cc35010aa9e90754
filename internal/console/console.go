// Package console implements the interactive command set for driving one
// engine session by hand.
package console

import (
	"context"
	"io"
	"time"

	"stockfish/internal/engine"
)

// Engine is the part of *engine.Session the console drives.
type Engine interface {
	Version() (string, bool)
	EnsureReady(ctx context.Context) error
	NewGame(ctx context.Context) error
	FEN(ctx context.Context) (string, error)
	BoardDisplay(ctx context.Context) (string, error)
	SetFEN(ctx context.Context, position string) error
	ResetPosition(ctx context.Context) error
	PlayMoves(ctx context.Context, moves ...string) error
	Go(ctx context.Context) (engine.EngineOutput, error)
	GoDepth(ctx context.Context, depth uint) (engine.EngineOutput, error)
	GoFor(ctx context.Context, d time.Duration) (engine.EngineOutput, error)
	GoClock(ctx context.Context, clock engine.Clock) (engine.EngineOutput, error)
	Identify(ctx context.Context) (*engine.Identity, error)
	SetDepth(depth uint)
	Depth() uint
	SetLookback(mode engine.Lookback)
	Lookback() engine.Lookback
	SetHash(ctx context.Context, mb uint) error
	SetThreads(ctx context.Context, n uint) error
	SetSkillLevel(ctx context.Context, level int) error
}

// Console binds a registry of commands to an engine and an output stream.
type Console struct {
	engine   Engine
	out      io.Writer
	palette  Palette
	registry *Registry
}

func New(eng Engine, out io.Writer, palette Palette) *Console {
	c := &Console{
		engine:   eng,
		out:      out,
		palette:  palette,
		registry: NewRegistry(),
	}
	c.registerCommands()
	return c
}

// Execute runs one line of input. It returns ErrExit when the user quits.
func (c *Console) Execute(ctx context.Context, line string) error {
	return c.registry.Execute(ctx, c, line)
}

// Registry exposes the command table, e.g. for completion.
func (c *Console) Registry() *Registry {
	return c.registry
}

// Prompt builds the prompt from the engine version.
func (c *Console) Prompt() string {
	base := "stockfish"
	if v, ok := c.engine.Version(); ok {
		base += " " + v
	}
	return c.palette.Prompt(base)
}

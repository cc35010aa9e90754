package console

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"stockfish/internal/engine"
	"stockfish/internal/fen"
)

const (
	groupPosition = "Position Commands"
	groupSearch   = "Search Commands"
	groupEngine   = "Engine Commands"
	groupUtility  = "Utility Commands"
)

func (c *Console) registerCommands() {
	r := c.registry

	r.Register(&Command{
		Name:        "new",
		ShortName:   "n",
		Description: "Start a new game from the initial position",
		Usage:       "new",
		Group:       groupPosition,
		Handler:     newGameHandler,
	})
	r.Register(&Command{
		Name:        "fen",
		ShortName:   "f",
		Description: "Show the current FEN, or set a new position",
		Usage:       "fen [<placement> <turn> <castling> <ep> <halfmove> <fullmove>]",
		Group:       groupPosition,
		Handler:     fenHandler,
	})
	r.Register(&Command{
		Name:        "start",
		ShortName:   "s",
		Description: "Reset to the starting position",
		Usage:       "start",
		Group:       groupPosition,
		Handler:     startHandler,
	})
	r.Register(&Command{
		Name:        "move",
		ShortName:   "m",
		Description: "Play moves in UCI notation on the current position",
		Usage:       "move <move> [move...]  (e.g. move e2e4 e7e5)",
		Group:       groupPosition,
		Handler:     moveHandler,
	})
	r.Register(&Command{
		Name:        "board",
		ShortName:   "b",
		Description: "Show the engine's board display",
		Usage:       "board",
		Group:       groupPosition,
		Handler:     boardHandler,
	})

	r.Register(&Command{
		Name:        "go",
		ShortName:   "g",
		Description: "Search to the configured or given depth",
		Usage:       "go [depth]",
		Group:       groupSearch,
		Handler:     goHandler,
	})
	r.Register(&Command{
		Name:        "time",
		ShortName:   "t",
		Description: "Search for a fixed time",
		Usage:       "time <milliseconds>",
		Group:       groupSearch,
		Handler:     timeHandler,
	})
	r.Register(&Command{
		Name:        "clock",
		ShortName:   "c",
		Description: "Search with remaining clock times",
		Usage:       "clock <white ms> <black ms>",
		Group:       groupSearch,
		Handler:     clockHandler,
	})
	r.Register(&Command{
		Name:        "depth",
		ShortName:   "dp",
		Description: "Show or set the default search depth",
		Usage:       "depth [n]",
		Group:       groupSearch,
		Handler:     depthHandler,
	})
	r.Register(&Command{
		Name:        "lookback",
		ShortName:   "lb",
		Description: "Show or set which info line supplies the score",
		Usage:       "lookback [previous|last-scored]",
		Group:       groupSearch,
		Handler:     lookbackHandler,
	})

	r.Register(&Command{
		Name:        "ready",
		ShortName:   "r",
		Description: "Wait until the engine is ready",
		Usage:       "ready",
		Group:       groupEngine,
		Handler:     readyHandler,
	})
	r.Register(&Command{
		Name:        "uci",
		ShortName:   "u",
		Description: "Show engine identity and options",
		Usage:       "uci",
		Group:       groupEngine,
		Handler:     uciHandler,
	})
	r.Register(&Command{
		Name:        "version",
		ShortName:   "v",
		Description: "Show the engine version",
		Usage:       "version",
		Group:       groupEngine,
		Handler:     versionHandler,
	})
	r.Register(&Command{
		Name:        "hash",
		ShortName:   "hs",
		Description: "Set the hash table size",
		Usage:       "hash <MB>",
		Group:       groupEngine,
		Handler:     hashHandler,
	})
	r.Register(&Command{
		Name:        "threads",
		ShortName:   "th",
		Description: "Set the number of search threads",
		Usage:       "threads <n>",
		Group:       groupEngine,
		Handler:     threadsHandler,
	})
	r.Register(&Command{
		Name:        "skill",
		ShortName:   "sk",
		Description: "Set the skill level",
		Usage:       "skill <0-20>",
		Group:       groupEngine,
		Handler:     skillHandler,
	})

	r.Register(&Command{
		Name:        "help",
		ShortName:   "?",
		Description: "Show available commands",
		Usage:       "help [command]",
		Group:       groupUtility,
		Handler: func(_ context.Context, c *Console, args []string) error {
			return c.registry.help(c, args)
		},
	})
	r.Register(&Command{
		Name:        "exit",
		ShortName:   "x",
		Description: "Exit the console",
		Usage:       "exit",
		Group:       groupUtility,
		Handler: func(context.Context, *Console, []string) error {
			return ErrExit
		},
	})
}

func newGameHandler(ctx context.Context, c *Console, args []string) error {
	if err := c.engine.NewGame(ctx); err != nil {
		return err
	}
	if err := c.engine.ResetPosition(ctx); err != nil {
		return err
	}
	fmt.Fprintln(c.out, c.palette.Paint(Green, "New game started"))
	return nil
}

func fenHandler(ctx context.Context, c *Console, args []string) error {
	if len(args) > 0 {
		position := strings.Join(args, " ")
		if _, err := fen.Parse(position); err != nil {
			return err
		}
		if err := c.engine.SetFEN(ctx, position); err != nil {
			return err
		}
	}

	current, err := c.engine.FEN(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, current)
	return nil
}

func startHandler(ctx context.Context, c *Console, args []string) error {
	if err := c.engine.ResetPosition(ctx); err != nil {
		return err
	}
	fmt.Fprintln(c.out, fen.StartingFEN)
	return nil
}

func moveHandler(ctx context.Context, c *Console, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: move <move> [move...]")
	}
	for _, m := range args {
		if !isUCIMove(m) {
			return fmt.Errorf("invalid move format %q (expected e.g. e2e4 or e7e8q)", m)
		}
	}
	if err := c.engine.PlayMoves(ctx, args...); err != nil {
		return err
	}

	current, err := c.engine.FEN(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, current)
	return nil
}

func boardHandler(ctx context.Context, c *Console, args []string) error {
	board, err := c.engine.BoardDisplay(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, board)
	return nil
}

func goHandler(ctx context.Context, c *Console, args []string) error {
	var (
		out engine.EngineOutput
		err error
	)
	if len(args) > 0 {
		depth, perr := parsePositive(args[0], "depth")
		if perr != nil {
			return perr
		}
		out, err = c.engine.GoDepth(ctx, uint(depth))
	} else {
		out, err = c.engine.Go(ctx)
	}
	if err != nil {
		return err
	}
	c.printOutput(out)
	return nil
}

func timeHandler(ctx context.Context, c *Console, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: time <milliseconds>")
	}
	ms, err := parsePositive(args[0], "time")
	if err != nil {
		return err
	}
	out, err := c.engine.GoFor(ctx, time.Duration(ms)*time.Millisecond)
	if err != nil {
		return err
	}
	c.printOutput(out)
	return nil
}

func clockHandler(ctx context.Context, c *Console, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: clock <white ms> <black ms>")
	}
	white, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return fmt.Errorf("white time: %w", err)
	}
	black, err := strconv.ParseUint(args[1], 10, 32)
	if err != nil {
		return fmt.Errorf("black time: %w", err)
	}
	out, err := c.engine.GoClock(ctx, engine.Clock{
		White: time.Duration(white) * time.Millisecond,
		Black: time.Duration(black) * time.Millisecond,
	})
	if err != nil {
		return err
	}
	c.printOutput(out)
	return nil
}

func depthHandler(ctx context.Context, c *Console, args []string) error {
	if len(args) > 0 {
		depth, err := parsePositive(args[0], "depth")
		if err != nil {
			return err
		}
		c.engine.SetDepth(uint(depth))
	}
	fmt.Fprintf(c.out, "depth %d\n", c.engine.Depth())
	return nil
}

func lookbackHandler(ctx context.Context, c *Console, args []string) error {
	if len(args) > 0 {
		mode, err := engine.ParseLookback(args[0])
		if err != nil {
			return err
		}
		c.engine.SetLookback(mode)
	}
	fmt.Fprintf(c.out, "lookback %s\n", c.engine.Lookback())
	return nil
}

func readyHandler(ctx context.Context, c *Console, args []string) error {
	if err := c.engine.EnsureReady(ctx); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "readyok")
	return nil
}

func uciHandler(ctx context.Context, c *Console, args []string) error {
	id, err := c.engine.Identify(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s by %s\n", c.palette.Paint(Cyan, id.Name), id.Author)
	for _, o := range id.Options {
		fmt.Fprintf(c.out, "  %-24s %-8s %s\n", o.Name, o.Type, o.Default)
	}
	return nil
}

func versionHandler(ctx context.Context, c *Console, args []string) error {
	v, ok := c.engine.Version()
	if !ok {
		v = "unknown"
	}
	fmt.Fprintf(c.out, "version %s\n", v)
	return nil
}

func hashHandler(ctx context.Context, c *Console, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: hash <MB>")
	}
	mb, err := parsePositive(args[0], "hash size")
	if err != nil {
		return err
	}
	return c.engine.SetHash(ctx, uint(mb))
}

func threadsHandler(ctx context.Context, c *Console, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: threads <n>")
	}
	n, err := parsePositive(args[0], "threads")
	if err != nil {
		return err
	}
	return c.engine.SetThreads(ctx, uint(n))
}

func skillHandler(ctx context.Context, c *Console, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: skill <0-20>")
	}
	level, err := strconv.Atoi(args[0])
	if err != nil || level < 0 || level > 20 {
		return fmt.Errorf("skill must be 0-20, got %q", args[0])
	}
	return c.engine.SetSkillLevel(ctx, level)
}

func (c *Console) printOutput(out engine.EngineOutput) {
	fmt.Fprintln(c.out, c.palette.FormatOutput(out))
}

func parsePositive(s, what string) (uint64, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", what, s)
	}
	return n, nil
}

// isUCIMove checks the shape of a long algebraic move such as e2e4 or a7a8q.
func isUCIMove(m string) bool {
	if len(m) != 4 && len(m) != 5 {
		return false
	}
	for i := 0; i < 4; i += 2 {
		if m[i] < 'a' || m[i] > 'h' || m[i+1] < '1' || m[i+1] > '8' {
			return false
		}
	}
	return len(m) == 4 || strings.ContainsRune("qrbn", rune(m[4]))
}

// Package cli implements the server's maintenance subcommands: database
// management and API token issue.
package cli

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/lixenwraith/auth"
	"github.com/rs/zerolog"
	"golang.org/x/term"

	"stockfish/internal/config"
	"stockfish/internal/server/storage"
)

const minSecretLength = 32

// Run is the entry point for the CLI mini-app. args starts at the
// subcommand group ("db" or "token").
func Run(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("subcommand required: db, token")
	}

	switch args[0] {
	case "db":
		if len(args) < 2 {
			return fmt.Errorf("db subcommand required: init, delete, query")
		}
		return runDB(args[1], args[2:])
	case "token":
		return runToken(args[1:])
	default:
		return fmt.Errorf("unknown subcommand: %s", args[0])
	}
}

func runDB(subcommand string, args []string) error {
	switch subcommand {
	case "init":
		return runInit(args)
	case "delete":
		return runDelete(args)
	case "query":
		return runQuery(args)
	default:
		return fmt.Errorf("unknown db subcommand: %s", subcommand)
	}
}

func openStore(name string, args []string, extra func(*flag.FlagSet)) (*storage.Store, *flag.FlagSet, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	path := fs.String("path", os.Getenv(config.KeyStoragePath), "Database file path (required)")
	if extra != nil {
		extra(fs)
	}

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	if *path == "" {
		return nil, nil, fmt.Errorf("database path required")
	}

	store, err := storage.NewStore(*path, false, zerolog.Nop())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open store: %w", err)
	}
	return store, fs, nil
}

func runInit(args []string) error {
	store, fs, err := openStore("init", args, nil)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.InitDB(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	fmt.Printf("Database initialized at: %s\n", fs.Lookup("path").Value)
	return nil
}

func runDelete(args []string) error {
	store, fs, err := openStore("delete", args, nil)
	if err != nil {
		return err
	}

	if err := store.DeleteDB(); err != nil {
		return fmt.Errorf("failed to delete database: %w", err)
	}

	fmt.Printf("Database deleted: %s\n", fs.Lookup("path").Value)
	return nil
}

func runQuery(args []string) error {
	var (
		position *string
		limit    *int
	)
	store, _, err := openStore("query", args, func(fs *flag.FlagSet) {
		position = fs.String("fen", "", "Position FEN to filter (optional, * for all)")
		limit = fs.Int("limit", 50, "Maximum rows (0 for all)")
	})
	if err != nil {
		return err
	}
	defer store.Close()

	analyses, err := store.QueryAnalyses(*position, *limit)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	if len(analyses) == 0 {
		fmt.Println("No analyses found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "Analysis ID\tMode\tEval\tBest\tDepth\tCreated")
	fmt.Fprintln(w, strings.Repeat("-", 80))

	for _, a := range analyses {
		fmt.Fprintf(w, "%s\t%s\t%s %d\t%s\t%d\t%s\n",
			a.AnalysisID[:8]+"...",
			a.Mode,
			a.EvalKind, a.EvalValue,
			a.BestMove,
			a.Depth,
			a.CreatedAtUTC.Format("2006-01-02 15:04:05"),
		)
	}
	w.Flush()

	fmt.Printf("\nFound %d analysis record(s)\n", len(analyses))
	return nil
}

// runToken issues an HS256 bearer token for the API.
func runToken(args []string) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	subject := fs.String("subject", "", "Token subject, e.g. a client name (required)")
	ttl := fs.Duration("ttl", 720*time.Hour, "Token lifetime")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *subject == "" {
		return fmt.Errorf("subject required")
	}
	if *ttl <= 0 {
		return fmt.Errorf("ttl must be positive")
	}

	secret, err := readSecret()
	if err != nil {
		return err
	}

	token, err := auth.GenerateHS256Token(secret, *subject, map[string]any{"scope": "analysis"}, *ttl)
	if err != nil {
		return fmt.Errorf("failed to generate token: %w", err)
	}

	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "Expires: %s\n", time.Now().Add(*ttl).UTC().Format(time.RFC3339))
	return nil
}

// readSecret takes the signing secret from the environment (or .env), or
// prompts for it.
func readSecret() ([]byte, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	secret := cfg.Server.JWTSecret

	if secret == "" {
		fmt.Fprint(os.Stderr, "JWT secret: ")
		raw, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return nil, fmt.Errorf("failed to read secret: %w", err)
		}
		secret = strings.TrimSpace(string(raw))
	}

	if len(secret) < minSecretLength {
		return nil, errors.New("secret must be at least 32 characters")
	}
	return []byte(secret), nil
}

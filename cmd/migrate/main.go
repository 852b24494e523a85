package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/storage/postgres"
)

const (
	dsnEnv         = "STOREFRONT_POSTGRES_DSN"
	defaultTimeout = 30 * time.Second
)

var errDSNRequired = errors.New(dsnEnv + " (or -dsn) is required")

// options описывает одну команду мигратора.
type options struct {
	direction string
	steps     int
	dsn       string
}

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	opts, err := parseOptions(args)
	if err != nil {
		return err
	}

	store, err := postgres.Open(ctx, opts.dsn)
	if err != nil {
		return fmt.Errorf("open postgres store: %w", err)
	}
	defer store.Close()

	switch opts.direction {
	case "up":
		if err := store.MigrateUp(ctx, opts.steps); err != nil {
			return fmt.Errorf("migrate up: %w", err)
		}
	case "down":
		if err := store.MigrateDown(ctx, opts.steps); err != nil {
			return fmt.Errorf("migrate down: %w", err)
		}
	}
	return printStatus(ctx, store, out, opts.direction)
}

func parseOptions(args []string) (options, error) {
	var opts options

	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&opts.direction, "direction", "up", "migration direction: up|down|status")
	fs.IntVar(&opts.steps, "steps", 0, "migrations to apply or roll back (up: 0 means all, down: default 1)")
	fs.StringVar(&opts.dsn, "dsn", "", "PostgreSQL DSN (fallback: "+dsnEnv+")")
	if err := fs.Parse(args); err != nil {
		return options{}, fmt.Errorf("parse flags: %w", err)
	}

	opts.direction = strings.ToLower(strings.TrimSpace(opts.direction))
	switch opts.direction {
	case "up", "status":
	case "down":
		if opts.steps <= 0 {
			opts.steps = 1
		}
	default:
		return options{}, fmt.Errorf("unsupported direction %q (use up|down|status)", opts.direction)
	}

	opts.dsn = strings.TrimSpace(opts.dsn)
	if opts.dsn == "" {
		opts.dsn = strings.TrimSpace(os.Getenv(dsnEnv))
	}
	if opts.dsn == "" {
		return options{}, errDSNRequired
	}
	return opts, nil
}

func printStatus(ctx context.Context, store *postgres.Store, out io.Writer, direction string) error {
	status, err := store.MigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("migration status: %w", err)
	}
	_, _ = fmt.Fprintf(out, "%s: version=%d applied=%d pending=%d\n", direction, status.Current, status.Applied, len(status.Pending))
	for _, name := range status.Pending {
		_, _ = fmt.Fprintf(out, "  pending: %s\n", name)
	}
	return nil
}

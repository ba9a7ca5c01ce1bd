package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
)

const usage = `usage: migrate [-dir DIR] <command> [arg]

offline:
  create NAME      write an empty timestamped SQL migration
  validate         check file names and goose annotations

against STOREFRONT_DB_*:
  up               apply every pending migration
  down             roll back the newest migration
  status           list migrations and when they were applied
  to VERSION       migrate up or down to VERSION (YYYYMMDDHHMMSS)
`

type invocation struct {
	dir string
	arg string
}

// offline commands never open a database connection.
var offline = map[string]func(invocation) error{
	"create": func(in invocation) error {
		if in.arg == "" {
			return errors.New("create needs a migration name")
		}
		path, err := migrate.CreateSQLMigration(in.dir, in.arg, time.Now())
		if err != nil {
			return err
		}
		fmt.Println("created", path)
		return nil
	},
	"validate": func(in invocation) error {
		if err := migrate.Validate(migrate.Source(in.dir)); err != nil {
			return err
		}
		fmt.Println("migrations are valid")
		return nil
	},
}

var online = map[string]func(context.Context, *migrate.Runner, invocation) error{
	"up": func(ctx context.Context, r *migrate.Runner, _ invocation) error {
		applied, err := r.Up(ctx)
		if err == nil {
			fmt.Printf("applied %d migration(s)\n", applied)
		}
		return err
	},
	"down": func(ctx context.Context, r *migrate.Runner, _ invocation) error {
		return r.Down(ctx)
	},
	"status": func(ctx context.Context, r *migrate.Runner, _ invocation) error {
		rows, err := r.Status(ctx)
		if err != nil {
			return err
		}
		for _, row := range rows {
			state := "pending"
			if row.Applied {
				state = "applied " + row.AppliedAt.Format(time.RFC3339)
			}
			fmt.Printf("%d\t%-40s\t%s\n", row.Version, row.Path, state)
		}
		return nil
	},
	"to": func(ctx context.Context, r *migrate.Runner, in invocation) error {
		if in.arg == "" {
			return errors.New("to needs a target version")
		}
		return r.To(ctx, in.arg)
	},
}

func main() {
	_ = godotenv.Load()

	dir := flag.String("dir", migrate.DefaultDir, "goose migrations directory")
	flag.Usage = func() { fmt.Fprint(flag.CommandLine.Output(), usage) }
	flag.Parse()

	cmd, in := flag.Arg(0), invocation{dir: *dir, arg: flag.Arg(1)}
	if cmd == "" {
		flag.Usage()
		os.Exit(2)
	}

	if run, ok := offline[cmd]; ok {
		if err := run(in); err != nil {
			fmt.Fprintf(os.Stderr, "migrate %s: %v\n", cmd, err)
			os.Exit(1)
		}
		return
	}
	run, ok := online[cmd]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := runOnline(ctx, cmd, run, in); err != nil {
		fmt.Fprintf(os.Stderr, "migrate %s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func runOnline(ctx context.Context, cmd string, run func(context.Context, *migrate.Runner, invocation) error, in invocation) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		return errors.New("goose migrations target postgres; unset STOREFRONT_USE_SQLITE")
	}

	logg := logger.ForApp("migrate", cfg.App)
	ctx = logg.WithFields(ctx, map[string]any{"cmd": cmd, "dir": in.dir})

	client, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer client.Close()

	sqlDB, err := client.SQL()
	if err != nil {
		return err
	}
	runner, err := migrate.NewRunner(sqlDB, migrate.Source(in.dir))
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}

	started := time.Now()
	if err := run(ctx, runner, in); err != nil {
		logg.Error(ctx, "migration command failed", err)
		return err
	}
	logg.Info(logg.WithField(ctx, "took_ms", time.Since(started).Milliseconds()), "migration command finished")
	return nil
}

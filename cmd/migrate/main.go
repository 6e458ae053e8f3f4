// Command migrate manages the postgres schema with goose.
//
//	migrate [-dir path] <up|down|status|version N|create NAME|validate|automigrate>
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/handmade-market/pkg/config"
	"github.com/angelmondragon/handmade-market/pkg/db"
	"github.com/angelmondragon/handmade-market/pkg/logger"
	"github.com/angelmondragon/handmade-market/pkg/migrate"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}

type invocation struct {
	dir  string
	cmd  string
	arg  string
	conn *sql.DB
	db   *db.Client
}

type command struct {
	needsArg string
	offline  bool
	run      func(ctx context.Context, in invocation) error
}

var commands = map[string]command{
	"up":     {run: gooseCmd("up")},
	"down":   {run: gooseCmd("down")},
	"status": {run: gooseCmd("status")},
	"version": {needsArg: "target version (yyyymmddhhmmss)", run: func(ctx context.Context, in invocation) error {
		return migrate.MigrateToVersion(ctx, in.conn, in.dir, in.arg)
	}},
	"automigrate": {run: func(ctx context.Context, in invocation) error {
		return in.db.AutoMigrate(ctx)
	}},
	"create": {needsArg: "migration name", offline: true, run: func(_ context.Context, in invocation) error {
		path, err := migrate.CreateSQLMigration(in.dir, in.arg)
		if err == nil {
			fmt.Println("created", path)
		}
		return err
	}},
	"validate": {offline: true, run: func(_ context.Context, in invocation) error {
		if err := migrate.ValidateDir(in.dir); err != nil {
			return err
		}
		fmt.Println("migrations ok")
		return nil
	}},
}

func gooseCmd(name string) func(context.Context, invocation) error {
	return func(ctx context.Context, in invocation) error {
		return migrate.Run(ctx, in.conn, in.dir, name)
	}
}

// parseArgs reads the flags and positional command without touching
// config or the database.
func parseArgs(args []string) (invocation, command, error) {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	dir := fs.String("dir", migrate.DefaultDir, "goose migrations directory")
	if err := fs.Parse(args); err != nil {
		return invocation{}, command{}, err
	}
	in := invocation{dir: *dir, cmd: strings.ToLower(fs.Arg(0)), arg: strings.Join(fs.Args()[min(1, fs.NArg()):], " ")}
	if in.cmd == "" {
		return in, command{}, errors.New("missing command")
	}
	cmd, ok := commands[in.cmd]
	if !ok {
		return in, command{}, fmt.Errorf("unknown command %q", in.cmd)
	}
	if cmd.needsArg != "" && strings.TrimSpace(in.arg) == "" {
		return in, command{}, fmt.Errorf("%s needs a %s", in.cmd, cmd.needsArg)
	}
	return in, cmd, nil
}

func run(ctx context.Context, args []string) error {
	in, cmd, err := parseArgs(args)
	if err != nil {
		return err
	}
	if cmd.offline {
		return cmd.run(ctx, in)
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "cmd": in.cmd, "dir": in.dir})

	client, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer client.Close()
	if in.conn, err = client.DB().DB(); err != nil {
		return err
	}
	in.db = client

	if err := cmd.run(ctx, in); err != nil {
		logg.Error(ctx, "migrate.failed", err)
		return err
	}
	logg.Info(ctx, "migrate.done")
	return nil
}

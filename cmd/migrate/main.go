// Command migrate applies, rolls back, or reports the status of the
// runcore schema independently of the server process, for use in deploy
// pipelines and local development.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"runcore/internal/platform/config"
	"runcore/internal/platform/database"
	"runcore/internal/platform/logger"
	"runcore/migrations"
)

func main() {
	command := flag.String("command", "up", "migration command: up, down, or status")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Init("error")
		logger.Fatal("failed to load config", "error", err)
	}
	logger.InitWithConfig(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})

	ctx := context.Background()

	db, err := database.NewPostgresDB(ctx, &cfg.Database)
	if err != nil {
		logger.Fatal("failed to connect to database", "error", err)
	}
	defer db.Close()

	migrator := database.NewMigrator(db.Pool(), migrations.FS, ".")

	switch *command {
	case "up":
		err = migrator.Up(ctx)
	case "down":
		err = migrator.Down(ctx)
	case "status":
		err = migrator.Status(ctx)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q: want up, down, or status\n", *command)
		os.Exit(2)
	}
	if err != nil {
		logger.Fatal("migration command failed", "command", *command, "error", err)
	}
}

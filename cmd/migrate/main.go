// migrate manages the schema of the configured database.
//
//	go run ./cmd/migrate [up|down|version|steps N|force V]
package main

import (
	"fmt"
	"os"
	"strconv"

	"ihire-proctoring/backend/internal/config"
	"ihire-proctoring/backend/internal/db/migrate"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cmd := "up"
	if len(args) > 0 {
		cmd = args[0]
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if cfg.DatabaseDriver == config.DriverMemory {
		fmt.Fprintln(os.Stderr, "DATABASE_DRIVER=memory has no schema to migrate")
		return nil
	}

	r, err := migrate.NewRunner(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer r.Close()

	switch cmd {
	case "up":
		err = r.Up()
	case "down":
		err = r.Down()
	case "steps", "force":
		if len(args) != 2 {
			return fmt.Errorf("%s needs one integer argument", cmd)
		}
		n, convErr := strconv.Atoi(args[1])
		if convErr != nil {
			return fmt.Errorf("%s: %w", cmd, convErr)
		}
		if cmd == "steps" {
			err = r.Steps(n)
		} else {
			err = r.Force(n)
		}
	case "version":
	default:
		return fmt.Errorf("unknown command %q (want up, down, version, steps or force)", cmd)
	}
	if err != nil {
		return err
	}

	version, dirty, err := r.Version()
	if err != nil {
		return err
	}
	fmt.Printf("%s schema at version %d (dirty=%v)\n", cfg.DatabaseDriver, version, dirty)
	return nil
}

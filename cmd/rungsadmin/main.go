package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"github.com/ts4z/rungs/config"
	"github.com/ts4z/rungs/permission"
	"github.com/ts4z/rungs/state"
	"github.com/ts4z/rungs/ts"
)

var clock = ts.NewClock(clockwork.NewRealClock())

func openRawStorage(ctx context.Context) state.Storage {
	storage, err := state.Open(ctx)
	if err != nil {
		log.Fatalf("can't open storage: %v", err)
	}
	return storage
}

// openStorage connects to whatever backend the config names.  Access goes
// through the same checks as the web app; the console is trusted, so the
// returned context carries an admin identity.
func openStorage() (context.Context, state.Storage) {
	ctx := permission.AdminContext(context.Background())
	return ctx, permission.NewStorage(openRawStorage(ctx))
}

type initializer interface {
	Init(ctx context.Context) error
}

var seedDemo bool

func initDB(cmd *cobra.Command, args []string) error {
	ctx := permission.AdminContext(context.Background())
	raw := openRawStorage(ctx)
	defer raw.Close()

	if in, ok := raw.(initializer); ok {
		if err := in.Init(ctx); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
		fmt.Println("Schema created.")
	} else {
		fmt.Printf("Backend %q needs no schema setup.\n", config.StorageBackend())
	}

	if seedDemo {
		if err := state.Seed(ctx, permission.NewLadderStorage(raw)); err != nil {
			return fmt.Errorf("seeding demo games: %w", err)
		}
		fmt.Println("Demo games added.")
	}
	return nil
}

func main() {
	config.Init()

	rootCmd := &cobra.Command{
		Short:        "Rungs administration tool",
		Use:          "rungsadmin",
		SilenceUsage: true,
	}

	dbCmd := &cobra.Command{
		Short: "Manage the database",
		Use:   "db",
	}
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create tables and triggers",
		RunE:  initDB,
	}
	initCmd.Flags().BoolVar(&seedDemo, "seed", false, "Also load the built-in demo games")
	dbCmd.AddCommand(initCmd)

	rootCmd.AddCommand(dbCmd, keyCommand(), userCommand(), gameCommand(), versionCommand(), ladderCommand(), compareCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func formatTime(t time.Time) string {
	return t.Format(time.RFC3339)
}

package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/urfave/cli/v3"

	"github.com/kyleking/askdb/internal/errors"
	"github.com/kyleking/askdb/internal/storage"
)

func SeedCommand() *cli.Command {
	return &cli.Command{
		Name:  "seed",
		Usage: "Create the demo tables and load sample rows",
		Description: `Create the customers, products and orders tables and load the sample rows.
Seeding is idempotent; --reset drops the demo tables and loads them again.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "reset", Usage: "drop and recreate the demo tables"},
			&cli.BoolFlag{Name: "status", Usage: "show which migrations are applied"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			store, closeStore, err := openStoreFor(ctx, cmd, false)
			if err != nil {
				return err
			}
			defer closeStore()

			w := output(cmd)

			if cmd.Bool("status") {
				return runSeedStatus(ctx, w, store)
			}

			return runSeed(ctx, w, store, cmd.Bool("reset"))
		},
	}
}

func runSeed(ctx context.Context, w io.Writer, store storage.Store, reset bool) error {
	if reset {
		if err := storage.ResetDemo(ctx, store); err != nil {
			return errors.Wrap(err, errors.ErrTypeDatabase, "failed to reset the demo data")
		}

		_, _ = fmt.Fprintln(w, successColor.Sprint("Demo data reset."))

		return nil
	}

	applied, err := storage.Seed(ctx, store)
	if err != nil {
		return errors.Wrap(err, errors.ErrTypeDatabase, "failed to load the demo data")
	}

	if applied == 0 {
		_, _ = fmt.Fprintln(w, "Demo data is already loaded.")
		return nil
	}

	_, _ = fmt.Fprintf(w, "%s applied %d migration(s).\n", successColor.Sprint("Demo data loaded:"), applied)

	return nil
}

func runSeedStatus(ctx context.Context, w io.Writer, store storage.Store) error {
	manager := storage.NewMigrationManager(store.DB(), storage.DemoMigrations())

	statuses, err := manager.Status(ctx)
	if err != nil {
		return errors.Wrap(err, errors.ErrTypeDatabase, "failed to read migration status")
	}

	for _, s := range statuses {
		mark := "[ ]"
		if s.Applied {
			mark = successColor.Sprint("[x]")
		}

		_, _ = fmt.Fprintf(w, "%s %d  %s\n", mark, s.Version, s.Description)
	}

	return nil
}

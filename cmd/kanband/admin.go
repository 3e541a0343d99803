package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kanbanhq/kanban/internal/backup"
	"github.com/kanbanhq/kanban/internal/log"
	"github.com/kanbanhq/kanban/internal/storage/sqlite"
)

func newMigrateCmd(configPath *string) *cobra.Command {
	var down bool
	var target int

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or reverse schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			store, err := sqlite.New(ctx, cfg.Database.Path)
			if err != nil {
				return runtimeErr(err)
			}
			defer store.Close()

			if down {
				err = store.MigrateDown(ctx, target)
			} else {
				err = store.MigrateUp(ctx, target)
			}
			if err != nil {
				return runtimeErr(err)
			}
			log.Info("migrations complete")
			return nil
		},
	}
	cmd.Flags().BoolVar(&down, "down", false, "reverse migrations instead of applying")
	cmd.Flags().IntVar(&target, "target", 0, "migration id to stop at (0 = all)")
	return cmd
}

func newSeedCmd(configPath *string) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "seed <fixture.yaml>",
		Short: "Load a YAML fixture into the database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			sf, err := sqlite.LoadSeedFile(args[0])
			if err != nil {
				return runtimeErr(err)
			}
			ctx := cmd.Context()
			store, err := sqlite.New(ctx, cfg.Database.Path)
			if err != nil {
				return runtimeErr(err)
			}
			defer store.Close()

			applied, err := store.ApplySeed(ctx, sf, force)
			if err != nil {
				return runtimeErr(err)
			}
			if applied {
				fmt.Fprintf(cmd.OutOrStdout(), "seed %q applied\n", sf.Name)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "seed %q already applied, skipping\n", sf.Name)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "re-apply an already recorded seed")
	return cmd
}

func openManager(cmd *cobra.Command, configPath *string) (*backup.Manager, func(), error) {
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return nil, nil, err
	}
	store, err := sqlite.New(cmd.Context(), cfg.Database.Path)
	if err != nil {
		return nil, nil, runtimeErr(err)
	}
	m, err := backup.NewManager(store, cfg.Backup.Dir, log.Logger,
		backup.WithCompression(cfg.Backup.Compress),
		backup.WithRetention(cfg.Backup.RetentionDays, cfg.Backup.RetentionKeep),
	)
	if err != nil {
		store.Close()
		return nil, nil, runtimeErr(err)
	}
	return m, func() { store.Close() }, nil
}

func newBackupCmd(configPath *string) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Run a verified full backup",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, closeStore, err := openManager(cmd, configPath)
			if err != nil {
				return err
			}
			defer closeStore()

			meta, err := m.RunFull(cmd.Context(), name)
			if err != nil {
				return runtimeErr(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "backup %s written to %s (%d bytes, %s)\n",
				meta.Name, meta.Path, meta.SizeBytes, meta.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "backup name (defaults to a timestamp)")
	return cmd
}

func newRestoreCmd(configPath *string) *cobra.Command {
	var target string

	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Restore the newest verified backup at or before a point in time",
		Long: "Restore swaps the database file on disk. Run it against a stopped " +
			"server; the previous file is kept beside it with a .pre-restore suffix.",
		RunE: func(cmd *cobra.Command, args []string) error {
			at := time.Now()
			if target != "" {
				t, err := time.Parse(time.RFC3339, target)
				if err != nil {
					return configErr(fmt.Errorf("--target must be RFC 3339: %w", err))
				}
				at = t
			}
			m, closeStore, err := openManager(cmd, configPath)
			if err != nil {
				return err
			}
			defer closeStore()

			meta, err := m.Restore(cmd.Context(), at)
			if err != nil {
				return runtimeErr(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored backup %s (created %s)\n",
				meta.Name, meta.CreatedAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&target, "target", "", "restore point, RFC 3339 (default: now)")
	return cmd
}

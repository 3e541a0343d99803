package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kanbanhq/kanban/internal/eventbus"
	"github.com/kanbanhq/kanban/internal/log"
	"github.com/kanbanhq/kanban/internal/service"
	"github.com/kanbanhq/kanban/internal/storage/sqlite"
)

func openService(cmd *cobra.Command, configPath *string) (*service.Service, func(), error) {
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return nil, nil, err
	}
	store, err := sqlite.New(cmd.Context(), cfg.Database.Path)
	if err != nil {
		return nil, nil, runtimeErr(err)
	}
	hub := eventbus.New(0)
	svc := service.New(store, hub, log.Logger)
	return svc, func() { hub.Close(); store.Close() }, nil
}

func newExportCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <file.jsonl>",
		Short: "Export the full data set as JSONL",
		Long: "Export writes boards, columns, tasks, notes, tags, and dependency " +
			"edges as one JSON record per line. The file can be imported into " +
			"another database with the import command.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeStore, err := openService(cmd, configPath)
			if err != nil {
				return err
			}
			defer closeStore()

			// Temp file + rename so a failed export never leaves a
			// truncated file behind.
			tmp := fmt.Sprintf("%s.tmp.%d", args[0], os.Getpid())
			f, err := os.Create(tmp)
			if err != nil {
				return runtimeErr(err)
			}
			stats, err := svc.ExportData(cmd.Context(), f)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				_ = os.Remove(tmp)
				return runtimeErr(err)
			}
			if err := os.Rename(tmp, args[0]); err != nil {
				_ = os.Remove(tmp)
				return runtimeErr(err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "exported %d boards, %d tasks, %d notes, %d tags, %d dependencies to %s\n",
				stats.Boards, stats.Tasks, stats.Notes, stats.Tags, stats.Dependencies, args[0])
			return nil
		},
	}
	return cmd
}

func newImportCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file.jsonl>",
		Short: "Import a JSONL export into the database",
		Long: "Import creates the exported boards, tasks, notes, tags, and " +
			"dependencies with fresh ids, in one transaction. Tags are matched " +
			"to existing ones by path; boards are always created, so a board " +
			"name collision fails the import.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return runtimeErr(err)
			}
			defer f.Close()

			svc, closeStore, err := openService(cmd, configPath)
			if err != nil {
				return err
			}
			defer closeStore()

			stats, err := svc.ImportData(cmd.Context(), f)
			if err != nil {
				return runtimeErr(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d boards, %d tasks, %d notes, %d tags, %d dependencies\n",
				stats.Boards, stats.Tasks, stats.Notes, stats.Tags, stats.Dependencies)
			return nil
		},
	}
	return cmd
}

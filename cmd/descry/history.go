package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/archivist-descry/descry/internal/config"
	"github.com/archivist-descry/descry/pkg/storage"
)

func newHistoryCmd() *cobra.Command {
	var (
		flagDevice string
		flagLimit  int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print audited scan jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := firstNonEmpty(rootDBPath, config.String(config.EnvDBPath, ""))
			if path == "" {
				return fmt.Errorf("no audit database configured, set --db or %s", config.EnvDBPath)
			}
			store, err := storage.Open(path)
			if err != nil {
				return err
			}
			defer store.Close()
			rows, err := store.RecentJobs(cmd.Context(), flagDevice, flagLimit)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rows)
		},
	}
	cmd.Flags().StringVar(&flagDevice, "device", "", "Only jobs of this backend device name")
	cmd.Flags().IntVar(&flagLimit, "limit", 20, "Maximum number of jobs")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the backend version",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.svc.Initialize(cmd.Context()); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]string{"backend": a.svc.Version()})
		},
	}
}

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/chadiek/callscreen/internal/config"
	"github.com/chadiek/callscreen/internal/recording"
	"github.com/chadiek/callscreen/internal/store"
)

func newArtifactsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "artifacts",
		Short: "Inspect and prune screening recordings",
	}

	cmd.AddCommand(newArtifactsListCmd())
	cmd.AddCommand(newArtifactsDeleteCmd())
	cmd.AddCommand(newArtifactsSweepCmd())
	return cmd
}

func withCoordinator(fn func(c *recording.Coordinator, cfg config.Config) error) error {
	cfg := config.Load()
	return withStoreConfig(cfg, func(st *store.Store) error {
		c := recording.NewCoordinator(cfg.RecordingDir, st, nil, nil)
		defer c.Close()
		return fn(c, cfg)
	})
}

func withStoreConfig(cfg config.Config, fn func(st *store.Store) error) error {
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(st)
}

func newArtifactsListCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent recordings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCoordinator(func(c *recording.Coordinator, _ config.Config) error {
				arts, err := c.List(cmd.Context(), limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, a := range arts {
					fmt.Fprintf(out, "%s\t%s\t%s\t%s\t%s\t%s\n",
						a.ID, a.CreatedAt.Local().Format("2006-01-02 15:04"), a.PhoneNumber, a.Status,
						time.Duration(a.DurationMs)*time.Millisecond, a.Summary)
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of recordings to list")
	return cmd
}

func newArtifactsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a recording and its audio file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCoordinator(func(c *recording.Coordinator, _ config.Config) error {
				if err := c.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
				return nil
			})
		},
	}
}

func newArtifactsSweepCmd() *cobra.Command {
	var retention time.Duration

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete recordings older than the retention period",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCoordinator(func(c *recording.Coordinator, cfg config.Config) error {
				if retention <= 0 {
					retention = cfg.Retention
				}
				n, err := c.Sweep(cmd.Context(), retention)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d recordings older than %s\n", n, retention)
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&retention, "older-than", 0, "retention period (defaults to RETENTION_DAYS)")
	return cmd
}

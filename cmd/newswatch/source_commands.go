package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"newswatch/internal/config"
	"newswatch/internal/store"
)

func newSourceCommand(ctx *commandContext) *cobra.Command {
	sourceCmd := &cobra.Command{
		Use:   "source",
		Short: "Manage feed sources",
	}

	sourceCmd.AddCommand(newSourceAddCommand(ctx))
	sourceCmd.AddCommand(newSourceListCommand(ctx))
	sourceCmd.AddCommand(newSourceActiveCommand(ctx, "enable", true))
	sourceCmd.AddCommand(newSourceActiveCommand(ctx, "disable", false))

	return sourceCmd
}

func newSourceAddCommand(ctx *commandContext) *cobra.Command {
	var (
		category string
		interval int
		disabled bool
	)

	cmd := &cobra.Command{
		Use:   "add <name> <feed-url>",
		Short: "Register a feed source",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				src, err := st.CreateSource(cmd.Context(), store.NewSource{
					Name:                 args[0],
					Category:             store.Category(category),
					FeedURL:              args[1],
					FetchIntervalSeconds: interval,
					Active:               !disabled,
				})
				if err != nil {
					return fmt.Errorf("create source: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created source %d (%s)\n", src.ID, src.Name)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&category, "category", string(store.CategoryRegional), "Source category (national, regional, social)")
	cmd.Flags().IntVar(&interval, "interval", 0, "Fetch interval in seconds (0 uses the default)")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "Create the source inactive")
	return cmd
}

func newSourceListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				sources, err := st.ListSources(cmd.Context())
				if err != nil {
					return fmt.Errorf("list sources: %w", err)
				}
				if len(sources) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No sources configured.")
					return nil
				}

				rows := make([][]string, 0, len(sources))
				for _, src := range sources {
					lastFetch := "-"
					if src.LastFetchedAt != nil {
						lastFetch = src.LastFetchedAt.Local().Format(time.DateTime)
					}
					rows = append(rows, []string{
						strconv.FormatInt(src.ID, 10),
						src.Name,
						string(src.Category),
						yesNo(src.Active),
						lastFetch,
						strconv.Itoa(src.ErrorCount),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(),
					renderTable([]string{"ID", "Name", "Category", "Active", "Last Fetch", "Errors"}, rows, 0, 5))
				return nil
			})
		},
	}
}

func newSourceActiveCommand(ctx *commandContext, verb string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <source-id>",
		Short: verb + " a source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("parse source id: %w", err)
			}
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				if err := st.SetSourceActive(cmd.Context(), id, active); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Source %d %sd\n", id, verb)
				return nil
			})
		},
	}
}

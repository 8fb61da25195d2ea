package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"newswatch/internal/config"
	"newswatch/internal/store"
)

func newTopicCommand(ctx *commandContext) *cobra.Command {
	topicCmd := &cobra.Command{
		Use:   "topic",
		Short: "Manage watch topics",
	}

	topicCmd.AddCommand(newTopicAddCommand(ctx))
	topicCmd.AddCommand(newTopicListCommand(ctx))
	topicCmd.AddCommand(newTopicActiveCommand(ctx, "enable", true))
	topicCmd.AddCommand(newTopicActiveCommand(ctx, "disable", false))
	topicCmd.AddCommand(newTopicDeleteCommand(ctx))

	return topicCmd
}

func newTopicAddCommand(ctx *commandContext) *cobra.Command {
	var (
		keywords []string
		prompt   string
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Register a watch topic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				topic, err := st.CreateTopic(cmd.Context(), store.NewTopic{
					Name:     args[0],
					Keywords: keywords,
					Prompt:   prompt,
					Active:   true,
				})
				if err != nil {
					return fmt.Errorf("create topic: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created topic %d (%s)\n", topic.ID, topic.Name)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&keywords, "keyword", "k", nil, "Match keyword (repeatable)")
	cmd.Flags().StringVar(&prompt, "prompt", "", "Classifier guidance for this topic")
	return cmd
}

func newTopicListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all topics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				topics, err := st.ListTopics(cmd.Context())
				if err != nil {
					return fmt.Errorf("list topics: %w", err)
				}
				if len(topics) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No topics configured.")
					return nil
				}

				rows := make([][]string, 0, len(topics))
				for _, topic := range topics {
					rows = append(rows, []string{
						strconv.FormatInt(topic.ID, 10),
						topic.Name,
						strings.Join(topic.Keywords, ", "),
						yesNo(topic.Active),
						yesNo(topic.Builtin),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(),
					renderTable([]string{"ID", "Name", "Keywords", "Active", "Builtin"}, rows, 0))
				return nil
			})
		},
	}
}

func newTopicActiveCommand(ctx *commandContext, verb string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <topic-id>",
		Short: verb + " a topic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("parse topic id: %w", err)
			}
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				if err := st.SetTopicActive(cmd.Context(), id, active); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Topic %d %sd\n", id, verb)
				return nil
			})
		},
	}
}

func newTopicDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <topic-id>",
		Short: "Delete a non-builtin topic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("parse topic id: %w", err)
			}
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				if err := st.DeleteTopic(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Topic %d deleted\n", id)
				return nil
			})
		},
	}
}

package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"intake/internal/app"
	"intake/internal/domain"
	"intake/internal/repo"
)

func conversationCmd() *cobra.Command {
	conv := &cobra.Command{
		Use:     "conversation",
		Aliases: []string{"conv"},
		Short:   "Inspect and move conversations",
	}
	conv.AddCommand(conversationListCmd())
	conv.AddCommand(conversationShowCmd())
	conv.AddCommand(conversationStatusCmd())
	return conv
}

func parseStatusArg(raw string) (domain.ConversationStatus, error) {
	status, ok := domain.ParseStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if !ok {
		return "", fmt.Errorf("invalid status %q (allowed: CREATED, ONGOING, COMPLETED)", raw)
	}
	return status, nil
}

func conversationListCmd() *cobra.Command {
	var status string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List conversations, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := repo.ConversationFilter{Limit: limit}
			if status != "" {
				s, err := parseStatusArg(status)
				if err != nil {
					return err
				}
				filter.Status = s
			}
			return withApp(cmd.Context(), func(ctx context.Context, ac *app.Context) error {
				items, err := ac.Engine.ListConversations(ctx, filter)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Candidate", "Email", "Job", "Status", "Created"})
				for _, c := range items {
					email := ""
					if c.Candidate != nil {
						email = c.Candidate.EmailAddress
					}
					tw.AppendRow(table.Row{c.ID, c.CandidateID, email, c.JobID, c.Status, c.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().IntVar(&limit, "limit", 50, "max conversations")
	return cmd
}

func conversationShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one conversation with its candidate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, ac *app.Context) error {
				c, err := ac.Engine.GetConversation(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(c)
			})
		},
	}
}

func conversationStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <id> <STATUS>",
		Short: "Move a conversation forward (CREATED -> ONGOING -> COMPLETED)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := parseStatusArg(args[1])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, ac *app.Context) error {
				c, err := ac.Engine.SetConversationStatus(ctx, args[0], status)
				if err != nil {
					return err
				}
				return printJSON(c)
			})
		},
	}
}

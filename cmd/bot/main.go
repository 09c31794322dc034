package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "competence-bot",
		Short:         "Telegram bot for competence self-assessment quizzes",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBot(cmd.Context())
		},
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Start the bot (default)",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runBot(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "duplicates",
			Short: "Report session records that share a user, competence and level",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runDuplicates(cmd.Context(), cmd.OutOrStdout())
			},
		},
		&cobra.Command{
			Use:   "catalog",
			Short: "Validate the competence catalog file",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runCatalogCheck(cmd.OutOrStdout())
			},
		},
	)

	return root
}

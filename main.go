package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"soupbackup/cmd/backup"
	"soupbackup/cmd/mirror"
	"soupbackup/cmd/status"
	"soupbackup/log"

	"github.com/spf13/cobra"
)

func main() {
	var verbose bool
	var jsonLogs bool
	rootCmd := &cobra.Command{
		Use:           "soupbackup",
		Short:         "Back up soup.io feeds to local JSON files",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if !jsonLogs {
				log.ConsoleMode(verbose)
			}
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "log JSON lines instead of console output")
	rootCmd.AddCommand(backup.Backup)
	rootCmd.AddCommand(mirror.Mirror)
	rootCmd.AddCommand(status.Status)

	// An interrupted backup leaves a consistent tree that the next run picks up from.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	cancel()
	if err != nil {
		log.Error().Err(err).Msg("soupbackup failed")
		os.Exit(1)
	}
}

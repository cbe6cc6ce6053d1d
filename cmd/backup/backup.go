package backup

import (
	"context"
	"errors"
	"fmt"
	"os"

	"soupbackup/config"
	"soupbackup/crawler"
	"soupbackup/db"
	"soupbackup/log"
	"soupbackup/oops"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var Backup *cobra.Command

var configPath string
var backupDir string
var startCursor string
var sessionCookie string
var resume bool
var parallel int

func init() {
	Backup = &cobra.Command{
		Use:   "backup <soup>...",
		Short: "Back up the posts and images of one or more soups",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, args)
		},
	}
	Backup.Flags().StringVar(&configPath, "config", "", "YAML config file")
	Backup.Flags().StringVarP(&backupDir, "dir", "d", "", "backup directory (default: current directory)")
	Backup.Flags().StringVarP(
		&startCursor, "cursor", "c", "",
		"start from this page instead of the newest posts (post id, /since/ url or cursor)",
	)
	Backup.Flags().StringVarP(&sessionCookie, "session", "s", "", "soup_session_id cookie for private soups")
	Backup.Flags().BoolVar(&resume, "resume", false, "continue from where the last interrupted backup stopped")
	Backup.Flags().IntVar(&parallel, "parallel", 1, "soups to back up at the same time")
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}
	if cmd.Flags().Changed("dir") {
		cfg.BackupDir = backupDir
	}
	if cmd.Flags().Changed("session") {
		cfg.SessionCookie = sessionCookie
	}
	if cmd.Flags().Changed("parallel") {
		cfg.Parallel = parallel
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

var errTargetsFailed = errors.New("some soups failed")

func run(ctx context.Context, cfg config.Config, soups []string) error {
	if startCursor != "" && len(soups) > 1 {
		return oops.New("--cursor applies to a single soup")
	}
	if startCursor != "" && resume {
		return oops.New("--cursor and --resume are mutually exclusive")
	}
	if err := os.MkdirAll(cfg.BackupDir, 0o755); err != nil {
		return oops.Wrap(err)
	}

	journal, err := db.Open(ctx, cfg.ResolvedJournalPath())
	if err != nil && resume {
		return err
	} else if err != nil {
		log.Warn().Err(err).Msg("Couldn't open journal, continuing without checkpoints")
	}
	if journal != nil {
		defer journal.CloseOrWarn()
	}

	client := crawler.NewHttpClientImpl(cfg.RequestsPerSecond)
	var maybeCookie *string
	if cfg.SessionCookie != "" {
		maybeCookie = &cfg.SessionCookie
	}

	outcomes := make([]targetOutcome, len(soups))
	var group errgroup.Group
	group.SetLimit(cfg.Parallel)
	for i, soup := range soups {
		i, soup := i, soup
		group.Go(func() error {
			outcomes[i] = backupSoup(ctx, cfg, soup, client, maybeCookie, journal)
			return nil
		})
	}
	_ = group.Wait()

	printSummary(os.Stdout, outcomes)

	failedCount := 0
	for _, outcome := range outcomes {
		if outcome.Err != nil {
			failedCount++
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if failedCount > 0 {
		return fmt.Errorf("%w: %d of %d", errTargetsFailed, failedCount, len(soups))
	}
	return nil
}

type targetOutcome struct {
	Soup   string
	Result *crawler.CrawlResult
	Err    error
}

func backupSoup(
	ctx context.Context, cfg config.Config, soup string, client crawler.HttpClient, maybeCookie *string,
	journal *db.Journal,
) targetOutcome {
	logger := crawler.NewZeroLogger(soup)
	target := crawler.NewTarget(soup, cfg.RootUrl(soup), cfg.BackupDir)

	var maybeJournal crawler.Journal
	cursor := startCursor
	if journal != nil {
		maybeJournal = journal
		if resume {
			var err error
			cursor, err = journal.LoadCursor(ctx, soup)
			if err != nil {
				return targetOutcome{Soup: soup, Result: nil, Err: err}
			}
			if cursor != "" {
				logger.Info("Resuming from %s", target.PageUrl(cursor))
			}
		}
	}

	backoff := crawler.NewBackoff(cfg.BackoffUnit, cfg.MaxAttempts)
	controller := crawler.NewController(target, client, maybeCookie, backoff, maybeJournal, logger)
	result, err := controller.Run(ctx, cursor)
	if err != nil {
		logger.Logger.Error().Err(err).Msg("Backup failed")
	}
	return targetOutcome{Soup: soup, Result: result, Err: err}
}

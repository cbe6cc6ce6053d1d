package mirror

import (
	"soupbackup/config"
	"soupbackup/log"
	s3mirror "soupbackup/mirror"
	"soupbackup/oops"

	"github.com/spf13/cobra"
)

var Mirror *cobra.Command

var configPath string
var backupDir string
var bucket string
var prefix string

func init() {
	Mirror = &cobra.Command{
		Use:   "mirror",
		Short: "Upload the backup directory to an S3 bucket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("dir") {
				cfg.BackupDir = backupDir
			}
			if cmd.Flags().Changed("bucket") {
				cfg.Mirror.Bucket = bucket
			}
			if cmd.Flags().Changed("prefix") {
				cfg.Mirror.Prefix = prefix
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if !cfg.Mirror.IsConfigured() {
				return oops.New("no bucket configured: set mirror.bucket in the config or pass --bucket")
			}

			uploader, err := s3mirror.NewUploader(
				cmd.Context(), cfg.Mirror, log.With().Str("bucket", cfg.Mirror.Bucket).Logger(),
			)
			if err != nil {
				return err
			}
			_, err = uploader.Sync(cmd.Context(), cfg.BackupDir)
			return err
		},
	}
	Mirror.Flags().StringVar(&configPath, "config", "", "YAML config file")
	Mirror.Flags().StringVarP(&backupDir, "dir", "d", "", "backup directory (default: current directory)")
	Mirror.Flags().StringVar(&bucket, "bucket", "", "S3 bucket")
	Mirror.Flags().StringVar(&prefix, "prefix", "", "key prefix inside the bucket")
}

package status

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"soupbackup/config"
	"soupbackup/db"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var Status *cobra.Command

var configPath string
var backupDir string

func init() {
	Status = &cobra.Command{
		Use:   "status",
		Short: "Show what the journal knows about previous backups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("dir") {
				cfg.BackupDir = backupDir
			}

			journal, err := db.Open(cmd.Context(), cfg.ResolvedJournalPath())
			if err != nil {
				return err
			}
			defer journal.CloseOrWarn()

			checkpoints, err := journal.Checkpoints(cmd.Context())
			if err != nil {
				return err
			}
			typeCounts := make(map[string][]db.TypeCount)
			for _, checkpoint := range checkpoints {
				counts, err := journal.PostTypeCounts(cmd.Context(), checkpoint.Target)
				if err != nil {
					return err
				}
				typeCounts[checkpoint.Target] = counts
			}
			printStatus(os.Stdout, cfg, checkpoints, typeCounts)
			return nil
		},
	}
	Status.Flags().StringVar(&configPath, "config", "", "YAML config file")
	Status.Flags().StringVarP(&backupDir, "dir", "d", "", "backup directory (default: current directory)")
}

func printStatus(
	w io.Writer, cfg config.Config, checkpoints []db.Checkpoint, typeCounts map[string][]db.TypeCount,
) {
	if len(checkpoints) == 0 {
		fmt.Fprintf(w, "No backups recorded in %s\n", cfg.ResolvedJournalPath())
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Soup", "State", "Resume from", "Pages", "Posts", "Types", "Updated"})
	for _, checkpoint := range checkpoints {
		state := "complete"
		resumeFrom := ""
		if !checkpoint.IsDone {
			state = "interrupted"
			resumeFrom = cfg.RootUrl(checkpoint.Target) + "/since/" + checkpoint.Cursor
		}
		var types []string
		for _, count := range typeCounts[checkpoint.Target] {
			types = append(types, fmt.Sprintf("%s=%d", count.Type, count.Count))
		}
		t.AppendRow(table.Row{
			checkpoint.Target,
			state,
			resumeFrom,
			checkpoint.Pages,
			checkpoint.Posts,
			strings.Join(types, " "),
			checkpoint.UpdatedAt.Local().Format(time.DateTime),
		})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
}

package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"packrat/internal/model"

	"github.com/spf13/cobra"
)

var historyN int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View past backup jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		url := fmt.Sprintf("%s?n=%d", daemonURL("/history"), historyN)
		resp, err := http.Get(url)
		if err != nil {
			return fmt.Errorf("daemon not running: %w", err)
		}

		defer func(Body io.ReadCloser) {
			_ = Body.Close()
		}(resp.Body)

		var jobs []model.BackupJob
		if err := json.NewDecoder(resp.Body).Decode(&jobs); err != nil {
			return err
		}

		if len(jobs) == 0 {
			fmt.Println("no backups yet")
			return nil
		}

		for _, job := range jobs {
			mark := "✓"
			if job.Status == model.JobStatusFailed {
				mark = "✗"
			}

			fmt.Printf("%s [%s] %-10s %s\n",
				mark,
				job.CreatedAt.Format("2006-01-02 15:04:05"),
				job.Status,
				job.SourcePath)

			if job.Error != "" {
				fmt.Printf("    %s\n", job.Error)
			}
		}

		return nil
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyN, "n", 20, "number of jobs to show")
	rootCmd.AddCommand(historyCmd)
}

package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"packrat/internal/model"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "View daemon status",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := http.Get(daemonURL("/status"))
		if err != nil {
			return fmt.Errorf("daemon not running: %w", err)
		}

		defer func(Body io.ReadCloser) {
			_ = Body.Close()
		}(resp.Body)

		var result struct {
			Active   bool                   `json:"active"`
			Job      *model.JobSnapshot     `json:"job"`
			Schedule model.ScheduleSnapshot `json:"schedule"`
		}

		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return fmt.Errorf("failed to decode status response: %w", err)
		}

		if result.Job == nil {
			fmt.Println("no backup job yet")
		} else {
			fmt.Printf("job %d  %-10s %5.1f%%  %s\n",
				result.Job.JobID, result.Job.Status, result.Job.Percent, result.Job.SourcePath)
			if result.Job.Error != "" {
				fmt.Printf("  error: %s\n", result.Job.Error)
			}
		}

		if result.Schedule.Enabled {
			next := "-"
			if result.Schedule.Next != nil {
				next = result.Schedule.Next.Format("2006-01-02 15:04:05")
			}
			fmt.Printf("schedule: daily at %s (next %s)\n", result.Schedule.TimeOfDay, next)
		} else {
			fmt.Println("schedule: disabled")
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

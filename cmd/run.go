package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"packrat/internal/model"

	"github.com/spf13/cobra"
)

var (
	runDest     string
	runEncrypt  bool
	runPassword string
	runUpload   bool
	runRemote   string
	runFollow   bool
)

var runCmd = &cobra.Command{
	Use:   "run [source]",
	Short: "Back up a folder now",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := model.TriggerRequest{
			SourcePath:     args[0],
			DestinationDir: runDest,
			Encrypt:        runEncrypt,
			Password:       runPassword,
			Upload:         runUpload,
			Remote:         runRemote,
		}

		body, err := json.Marshal(req)
		if err != nil {
			return err
		}

		resp, err := http.Post(daemonURL("/jobs"), "application/json", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("daemon not running: %w", err)
		}

		defer func(Body io.ReadCloser) {
			_ = Body.Close()
		}(resp.Body)

		if resp.StatusCode != http.StatusCreated {
			var result map[string]string
			_ = json.NewDecoder(resp.Body).Decode(&result)
			return fmt.Errorf("backup rejected: %s", result["error"])
		}

		var job model.BackupJob
		if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
			return err
		}

		fmt.Printf("backup %d started: %s\n", job.ID, job.SourcePath)

		if runFollow {
			return followJob()
		}

		return nil
	},
}

func followJob() error {
	for {
		time.Sleep(500 * time.Millisecond)

		resp, err := http.Get(daemonURL("/status"))
		if err != nil {
			return fmt.Errorf("daemon not running: %w", err)
		}

		var result struct {
			Active bool              `json:"active"`
			Job    model.JobSnapshot `json:"job"`
		}
		err = json.NewDecoder(resp.Body).Decode(&result)
		_ = resp.Body.Close()
		if err != nil {
			return err
		}

		fmt.Printf("\r%-10s %5.1f%% %s", result.Job.Status, result.Job.Percent, result.Job.Detail)

		if result.Job.Status.Terminal() {
			fmt.Println()
			if result.Job.Status == model.JobStatusFailed {
				return fmt.Errorf("backup failed: %s", result.Job.Error)
			}

			return nil
		}
	}
}

func init() {
	runCmd.Flags().StringVar(&runDest, "dest", "", "Destination directory (default from config)")
	runCmd.Flags().BoolVar(&runEncrypt, "encrypt", false, "Protect the archive with a password")
	runCmd.Flags().StringVar(&runPassword, "password", "", "Password for --encrypt")
	runCmd.Flags().BoolVar(&runUpload, "upload", false, "Upload the archive to remote storage")
	runCmd.Flags().StringVar(&runRemote, "remote", "", "Remote provider: gdrive or dropbox (default from config)")
	runCmd.Flags().BoolVar(&runFollow, "follow", false, "Follow progress until the job finishes")
	rootCmd.AddCommand(runCmd)
}

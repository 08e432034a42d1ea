package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"packrat/internal/model"

	"github.com/spf13/cobra"
)

var (
	schedSrc      string
	schedDest     string
	schedEncrypt  bool
	schedPassword string
	schedUpload   bool
	schedRemote   string
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Manage the daily backup schedule",
}

var scheduleEnableCmd = &cobra.Command{
	Use:   "enable [HH:MM]",
	Short: "Arm a daily backup at the given time",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		payload := struct {
			TimeOfDay string `json:"time_of_day"`
			model.TriggerRequest
		}{
			TimeOfDay: args[0],
			TriggerRequest: model.TriggerRequest{
				SourcePath:     schedSrc,
				DestinationDir: schedDest,
				Encrypt:        schedEncrypt,
				Password:       schedPassword,
				Upload:         schedUpload,
				Remote:         schedRemote,
			},
		}

		body, err := json.Marshal(payload)
		if err != nil {
			return err
		}

		resp, err := http.Post(daemonURL("/schedule"), "application/json", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("daemon not running: %w", err)
		}

		defer func(Body io.ReadCloser) {
			_ = Body.Close()
		}(resp.Body)

		if resp.StatusCode != http.StatusOK {
			var result map[string]string
			_ = json.NewDecoder(resp.Body).Decode(&result)
			return fmt.Errorf("schedule rejected: %s", result["error"])
		}

		fmt.Printf("daily backup scheduled at %s\n", args[0])
		return nil
	},
}

var scheduleDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Disarm the daily backup",
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := http.NewRequest(http.MethodDelete, daemonURL("/schedule"), nil)
		if err != nil {
			return err
		}

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return fmt.Errorf("daemon not running: %w", err)
		}

		defer func(Body io.ReadCloser) {
			_ = Body.Close()
		}(resp.Body)

		fmt.Println("schedule disabled")
		return nil
	},
}

func init() {
	scheduleEnableCmd.Flags().StringVar(&schedSrc, "src", "", "Source folder (defaults to the last submitted job)")
	scheduleEnableCmd.Flags().StringVar(&schedDest, "dest", "", "Destination directory")
	scheduleEnableCmd.Flags().BoolVar(&schedEncrypt, "encrypt", false, "Protect the archive with a password")
	scheduleEnableCmd.Flags().StringVar(&schedPassword, "password", "", "Password for --encrypt")
	scheduleEnableCmd.Flags().BoolVar(&schedUpload, "upload", false, "Upload the archive to remote storage")
	scheduleEnableCmd.Flags().StringVar(&schedRemote, "remote", "", "Remote provider: gdrive or dropbox")

	scheduleCmd.AddCommand(scheduleEnableCmd, scheduleDisableCmd)
	rootCmd.AddCommand(scheduleCmd)
}

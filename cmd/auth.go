package cmd

import (
	"fmt"

	"packrat/internal/auth"

	"github.com/spf13/cobra"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage authorization for remote storage",
}

var authGDriveCmd = &cobra.Command{
	Use:   "gdrive",
	Short: "Authorize with Google Drive",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := auth.AuthorizeGDrive(); err != nil {
			return err
		}

		fmt.Println("Authorized with Google Drive")
		return nil
	},
}

var authDropboxCmd = &cobra.Command{
	Use:   "dropbox",
	Short: "Authorize with Dropbox",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := auth.AuthorizeDropbox(); err != nil {
			return err
		}

		fmt.Println("Authorized with Dropbox")
		return nil
	},
}

func init() {
	authCmd.AddCommand(authGDriveCmd, authDropboxCmd)
	rootCmd.AddCommand(authCmd)
}

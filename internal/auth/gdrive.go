package auth

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"packrat/internal/config"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

const (
	gdriveCredFile  = "gdrive_credentials.json"
	gdriveTokenFile = "gdrive_token.json"
)

func loadGDriveConfig() (*oauth2.Config, error) {
	dir, err := config.Dir()
	if err != nil {
		return nil, err
	}

	b, err := os.ReadFile(filepath.Join(dir, gdriveCredFile))
	if err != nil {
		return nil, fmt.Errorf("%w: place %s in %s", ErrCredentialsMissing, gdriveCredFile, dir)
	}

	cfg, err := google.ConfigFromJSON(b, drive.DriveFileScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse gdrive credentials: %w", err)
	}

	return cfg, nil
}

// AuthorizeGDrive runs the interactive paste-code flow and persists the
// refresh-capable token for later runs.
func AuthorizeGDrive() error {
	cfg, err := loadGDriveConfig()
	if err != nil {
		return err
	}

	authURL := cfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	fmt.Println("Visit the URL for the auth dialog:")
	fmt.Println()
	fmt.Println(authURL)
	fmt.Println()
	fmt.Print("Enter the code here: ")

	var code string
	if _, err := fmt.Scan(&code); err != nil {
		return fmt.Errorf("failed to read code: %w", err)
	}

	token, err := cfg.Exchange(context.Background(), code)
	if err != nil {
		return fmt.Errorf("failed to exchange token: %w", err)
	}

	return saveToken(gdriveTokenFile, token)
}

// NewDriveService loads the persisted token, refreshing and re-persisting
// it if expired. A token that cannot be refreshed reports ErrAuthRequired
// so the caller can instruct the user to run 'packrat auth gdrive'.
func NewDriveService(ctx context.Context) (*drive.Service, error) {
	cfg, err := loadGDriveConfig()
	if err != nil {
		return nil, err
	}

	token, err := loadToken(gdriveTokenFile)
	if err != nil {
		return nil, err
	}

	tokenSource := cfg.TokenSource(ctx, token)

	newToken, err := tokenSource.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: token refresh failed, run 'packrat auth gdrive': %v", ErrAuthRequired, err)
	}

	if newToken.AccessToken != token.AccessToken {
		_ = saveToken(gdriveTokenFile, newToken)
	}

	svc, err := drive.NewService(ctx, option.WithTokenSource(tokenSource))
	if err != nil {
		return nil, fmt.Errorf("failed to create gdrive service: %w", err)
	}

	return svc, nil
}

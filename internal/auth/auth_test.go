package auth

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang.org/x/oauth2"
)

func isolateHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return filepath.Join(home, ".packrat")
}

func TestCheckBootstrap_MissingCredentials(t *testing.T) {
	isolateHome(t)

	err := CheckBootstrap("gdrive")
	require.ErrorIs(t, err, ErrCredentialsMissing)
	assert.Contains(t, err.Error(), "gdrive_credentials.json")
}

func TestCheckBootstrap_Ok(t *testing.T) {
	dir := isolateHome(t)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dropbox_credentials.json"), []byte("{}"), 0600))

	assert.NoError(t, CheckBootstrap("dropbox"))
}

func TestTokenRoundTrip(t *testing.T) {
	dir := isolateHome(t)

	expiry := time.Now().Add(time.Hour).Truncate(time.Second)
	tok := &oauth2.Token{
		AccessToken:  "access",
		RefreshToken: "refresh",
		TokenType:    "Bearer",
		Expiry:       expiry,
	}
	require.NoError(t, saveToken("gdrive_token.json", tok))

	info, err := os.Stat(filepath.Join(dir, "gdrive_token.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	got, err := loadToken("gdrive_token.json")
	require.NoError(t, err)
	assert.Equal(t, tok.AccessToken, got.AccessToken)
	assert.Equal(t, tok.RefreshToken, got.RefreshToken)
	assert.True(t, expiry.Equal(got.Expiry))
}

func TestLoadToken_Missing(t *testing.T) {
	isolateHome(t)

	_, err := loadToken("gdrive_token.json")
	assert.ErrorIs(t, err, ErrAuthRequired)
}

func TestLoadToken_Corrupt(t *testing.T) {
	dir := isolateHome(t)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "gdrive_token.json"), []byte("not json"), 0600))

	_, err := loadToken("gdrive_token.json")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrAuthRequired)
}

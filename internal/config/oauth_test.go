package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validInstalled() OAuthInstalled {
	return OAuthInstalled{
		ClientID:                "portal-client.apps.googleusercontent.com",
		ProjectID:               "volunteer-portal",
		AuthURI:                 "https://accounts.google.com/o/oauth2/auth",
		TokenURI:                "https://oauth2.googleapis.com/token",
		AuthProviderX509CertURL: "https://www.googleapis.com/oauth2/v1/certs",
		ClientSecret:            "secret",
		RedirectURIs:            []string{"http://localhost"},
	}
}

func TestValidateOAuthClient(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*OAuthInstalled)
		wantErr bool
	}{
		{name: "valid", mutate: func(*OAuthInstalled) {}},
		{name: "missing client id", mutate: func(i *OAuthInstalled) { i.ClientID = "" }, wantErr: true},
		{name: "invalid auth uri", mutate: func(i *OAuthInstalled) { i.AuthURI = "not-a-valid-url" }, wantErr: true},
		{name: "no redirect uris", mutate: func(i *OAuthInstalled) { i.RedirectURIs = []string{} }, wantErr: true},
		{name: "invalid redirect uri", mutate: func(i *OAuthInstalled) { i.RedirectURIs = []string{"not a valid uri"} }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			installed := validInstalled()
			tt.mutate(&installed)

			err := ValidateOAuthClient(&OAuthClientConfig{Installed: installed})
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "validation failed")
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestLoadOAuthClientFromPath(t *testing.T) {
	oauthPath := filepath.Join(t.TempDir(), "oauthClient.test.json")
	err := os.WriteFile(oauthPath, []byte(`{
  "installed": {
    "client_id": "portal-client.apps.googleusercontent.com",
    "project_id": "volunteer-portal",
    "auth_uri": "https://accounts.google.com/o/oauth2/auth",
    "token_uri": "https://oauth2.googleapis.com/token",
    "auth_provider_x509_cert_url": "https://www.googleapis.com/oauth2/v1/certs",
    "client_secret": "secret",
    "redirect_uris": ["http://localhost", "urn:ietf:wg:oauth:2.0:oob"]
  }
}`), 0644)
	require.NoError(t, err)

	cfg, err := LoadOAuthClientFromPath(oauthPath)
	require.NoError(t, err)
	assert.Equal(t, "volunteer-portal", cfg.Installed.ProjectID)
	assert.Len(t, cfg.Installed.RedirectURIs, 2)
}

func TestLoadOAuthClientFromPath_Errors(t *testing.T) {
	_, err := LoadOAuthClientFromPath("/nonexistent/oauthClient.json")
	assert.ErrorContains(t, err, "failed to read oauth client file")

	badPath := filepath.Join(t.TempDir(), "oauthClient.json")
	require.NoError(t, os.WriteFile(badPath, []byte(`{"installed": {"client_id": "x" "project_id": "y"}}`), 0644))
	_, err = LoadOAuthClientFromPath(badPath)
	assert.ErrorContains(t, err, "failed to parse oauth client file")
}

func TestLoadGoogleClient_DisabledSkipsFile(t *testing.T) {
	cfg := Default()
	cfg.Google.Enabled = false

	oauthCfg, err := LoadGoogleClient(cfg, "nonexistent-env")
	require.NoError(t, err)
	assert.Nil(t, oauthCfg)
}

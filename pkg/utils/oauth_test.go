package utils

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/jakechorley/volunteer-portal/internal/config"
)

func testOAuthClient() *config.OAuthClientConfig {
	return &config.OAuthClientConfig{Installed: config.OAuthInstalled{
		ClientID:                "portal-client.apps.googleusercontent.com",
		ProjectID:               "volunteer-portal",
		AuthURI:                 "https://accounts.google.com/o/oauth2/auth",
		TokenURI:                "https://oauth2.googleapis.com/token",
		AuthProviderX509CertURL: "https://www.googleapis.com/oauth2/v1/certs",
		ClientSecret:            "secret",
		RedirectURIs:            []string{"http://localhost"},
	}}
}

func TestScopes(t *testing.T) {
	tests := []struct {
		name   string
		google config.GoogleConfig
		want   []string
	}{
		{name: "nothing configured", google: config.GoogleConfig{Enabled: true}, want: nil},
		{name: "calendar only", google: config.GoogleConfig{CalendarID: "primary"}, want: []string{ScopeCalendarEvents}},
		{name: "history only", google: config.GoogleConfig{HistorySheetID: "sheet"}, want: []string{ScopeSheets}},
		{
			name:   "everything",
			google: config.GoogleConfig{CalendarID: "primary", HistorySheetID: "sheet", InviteRecipient: "me@example.org"},
			want:   []string{ScopeCalendarEvents, ScopeSheets, ScopeGmailSend},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Scopes(tt.google))
		})
	}
}

func TestMissingScopes(t *testing.T) {
	required := []string{ScopeCalendarEvents, ScopeGmailSend}

	assert.Empty(t, MissingScopes(ScopeGmailSend+" openid "+ScopeCalendarEvents, required))
	assert.Equal(t, []string{ScopeGmailSend}, MissingScopes(ScopeCalendarEvents, required))
	assert.Equal(t, required, MissingScopes("", required))
}

func TestNewGoogleAuth_RequestsOnlyConfiguredScopes(t *testing.T) {
	auth, err := NewGoogleAuth(testOAuthClient(), config.GoogleConfig{Enabled: true, HistorySheetID: "sheet"}, "test", t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, []string{ScopeSheets}, auth.Scopes())
	assert.Equal(t, []string{ScopeSheets}, auth.oauth.Scopes)
	assert.Equal(t, "http://localhost:3000/oauth/callback", auth.oauth.RedirectURL)

	_, err = NewGoogleAuth(testOAuthClient(), config.GoogleConfig{Enabled: true}, "test", t.TempDir(), zap.NewNop())
	assert.Error(t, err)
}

// tokenInfoServer reports scope for every token
func tokenInfoServer(t *testing.T, scope string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("access_token") == "" {
			http.Error(w, `{"error":"invalid_token"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"scope":"` + scope + `"}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func storedAuth(t *testing.T, google config.GoogleConfig, grantedScope string) *GoogleAuth {
	t.Helper()
	auth, err := NewGoogleAuth(testOAuthClient(), google, "test", t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	auth.TokenInfoURL = tokenInfoServer(t, grantedScope).URL
	auth.Prompt = &strings.Builder{}

	require.NoError(t, auth.save(&oauth2.Token{
		AccessToken: "access",
		TokenType:   "Bearer",
		Expiry:      time.Now().Add(time.Hour),
	}))
	return auth
}

func TestToken_UsesStoredTokenCoveringScopes(t *testing.T) {
	google := config.GoogleConfig{CalendarID: "primary", InviteRecipient: "me@example.org"}
	auth := storedAuth(t, google, ScopeCalendarEvents+" "+ScopeGmailSend)

	token, err := auth.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "access", token.AccessToken)
	assert.Empty(t, auth.Prompt.(*strings.Builder).String())

	// second call is served from memory
	auth.TokenInfoURL = "http://127.0.0.1:0"
	token, err = auth.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "access", token.AccessToken)
}

func TestStoredToken_DiscardedWhenAnIntegrationNeedsMore(t *testing.T) {
	google := config.GoogleConfig{CalendarID: "primary", HistorySheetID: "sheet"}
	auth := storedAuth(t, google, ScopeCalendarEvents)

	assert.Nil(t, auth.storedToken(context.Background()))
	_, err := os.Stat(auth.tokenPath)
	assert.True(t, os.IsNotExist(err))
}

func TestCheckScopes_ReportsTokenInfoFailure(t *testing.T) {
	auth := storedAuth(t, config.GoogleConfig{CalendarID: "primary"}, ScopeCalendarEvents)

	err := auth.checkScopes(context.Background(), &oauth2.Token{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
}

func TestLoad_NoFileIsNotAnError(t *testing.T) {
	auth, err := NewGoogleAuth(testOAuthClient(), config.GoogleConfig{CalendarID: "primary"}, "", t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	token, err := auth.load()
	assert.NoError(t, err)
	assert.Nil(t, token)
	assert.True(t, strings.HasSuffix(auth.tokenPath, "token-default.json"))
}

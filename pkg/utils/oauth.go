package utils

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/jakechorley/volunteer-portal/internal/config"
)

const (
	AuthPort            = 3000
	authTimeout         = 5 * time.Minute
	callbackPath        = "/oauth/callback"
	tokenFilePerms      = 0600
	tokenDirPerms       = 0700
	defaultTokenInfoURL = "https://oauth2.googleapis.com/tokeninfo"
)

// OAuth scopes, one per Google integration
const (
	ScopeCalendarEvents = "https://www.googleapis.com/auth/calendar.events"
	ScopeSheets         = "https://www.googleapis.com/auth/spreadsheets"
	ScopeGmailSend      = "https://www.googleapis.com/auth/gmail.send"
)

// Scopes returns the scopes needed by the integrations configured in g
func Scopes(g config.GoogleConfig) []string {
	var scopes []string
	if g.CalendarID != "" {
		scopes = append(scopes, ScopeCalendarEvents)
	}
	if g.HistorySheetID != "" {
		scopes = append(scopes, ScopeSheets)
	}
	if g.InviteRecipient != "" {
		scopes = append(scopes, ScopeGmailSend)
	}
	return scopes
}

// MissingScopes returns the required scopes absent from granted, a space
// separated scope list as reported by the tokeninfo endpoint
func MissingScopes(granted string, required []string) []string {
	have := strings.Fields(granted)
	var missing []string
	for _, scope := range required {
		if !slices.Contains(have, scope) {
			missing = append(missing, scope)
		}
	}
	return missing
}

// DefaultTokenDir is where tokens are kept when no directory is given
func DefaultTokenDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".volunteer-portal", "tokens"), nil
}

// GoogleAuth owns the single OAuth token shared by the Google clients. The
// token is cached in memory and in a per-environment file, and a new browser
// authorization is requested when the enabled integrations need a scope the
// stored token was not granted.
type GoogleAuth struct {
	oauth     *oauth2.Config
	scopes    []string
	tokenPath string
	logger    *zap.Logger

	TokenInfoURL string
	HTTPClient   *http.Client
	// Prompt receives the authorization URL
	Prompt io.Writer

	mu    sync.Mutex
	token *oauth2.Token
}

// NewGoogleAuth prepares authorization for the integrations enabled in
// integrations. An empty tokenDir means DefaultTokenDir.
func NewGoogleAuth(client *config.OAuthClientConfig, integrations config.GoogleConfig, env, tokenDir string, logger *zap.Logger) (*GoogleAuth, error) {
	scopes := Scopes(integrations)
	if len(scopes) == 0 {
		return nil, errors.New("no Google integration is configured")
	}

	raw, err := json.Marshal(client)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal oauth config: %w", err)
	}
	oauthConfig, err := google.ConfigFromJSON(raw, scopes...)
	if err != nil {
		return nil, fmt.Errorf("failed to create google config: %w", err)
	}
	oauthConfig.RedirectURL = fmt.Sprintf("http://localhost:%d%s", AuthPort, callbackPath)

	if tokenDir == "" {
		if tokenDir, err = DefaultTokenDir(); err != nil {
			return nil, err
		}
	}
	if env == "" {
		env = "default"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &GoogleAuth{
		oauth:        oauthConfig,
		scopes:       scopes,
		tokenPath:    filepath.Join(tokenDir, fmt.Sprintf("token-%s.json", env)),
		logger:       logger,
		TokenInfoURL: defaultTokenInfoURL,
		HTTPClient:   http.DefaultClient,
		Prompt:       os.Stderr,
	}, nil
}

// Scopes returns the scopes this authorization requests
func (a *GoogleAuth) Scopes() []string {
	return slices.Clone(a.scopes)
}

// TokenSource returns a refreshing source for the Google clients, authorizing
// in the browser first when no usable token is stored
func (a *GoogleAuth) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	token, err := a.Token(ctx)
	if err != nil {
		return nil, err
	}
	return a.oauth.TokenSource(ctx, token), nil
}

// Token returns a valid token covering every requested scope
func (a *GoogleAuth) Token(ctx context.Context) (*oauth2.Token, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.token != nil && a.token.Valid() {
		return a.token, nil
	}
	if token := a.storedToken(ctx); token != nil {
		a.token = token
		return token, nil
	}

	a.logger.Info("No usable Google token found, starting OAuth flow", zap.Strings("scopes", a.scopes))
	token, err := a.authorize(ctx)
	if err != nil {
		return nil, err
	}
	if err := a.checkScopes(ctx, token); err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}
	if err := a.save(token); err != nil {
		a.logger.Warn("Failed to save Google token", zap.Error(err))
	}
	a.token = token
	return token, nil
}

// storedToken loads the token file, refreshing an expired token. A token that
// cannot be refreshed or does not cover the scopes is discarded.
func (a *GoogleAuth) storedToken(ctx context.Context) *oauth2.Token {
	token, err := a.load()
	if err != nil {
		a.logger.Warn("Failed to load Google token", zap.Error(err))
		return nil
	}
	if token == nil {
		return nil
	}

	if !token.Valid() {
		if token.RefreshToken == "" {
			return nil
		}
		refreshed, err := a.oauth.TokenSource(ctx, token).Token()
		if err != nil {
			a.logger.Warn("Failed to refresh Google token", zap.Error(err))
			return nil
		}
		a.logger.Debug("Google token refreshed")
		token = refreshed
		if err := a.save(token); err != nil {
			a.logger.Warn("Failed to save refreshed Google token", zap.Error(err))
		}
	}

	if err := a.checkScopes(ctx, token); err != nil {
		a.logger.Warn("Stored Google token does not cover the enabled integrations", zap.Error(err))
		if err := a.discard(); err != nil {
			a.logger.Warn("Failed to delete Google token", zap.Error(err))
		}
		return nil
	}
	return token
}

// checkScopes asks the tokeninfo endpoint which scopes the token carries
func (a *GoogleAuth) checkScopes(ctx context.Context, token *oauth2.Token) error {
	endpoint := a.TokenInfoURL + "?access_token=" + url.QueryEscape(token.AccessToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create tokeninfo request: %w", err)
	}

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call tokeninfo endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("tokeninfo request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var info struct {
		Scope string `json:"scope"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return fmt.Errorf("failed to decode tokeninfo response: %w", err)
	}

	if missing := MissingScopes(info.Scope, a.scopes); len(missing) > 0 {
		return fmt.Errorf("token is missing scopes: %s", strings.Join(missing, ", "))
	}
	return nil
}

// authorize runs the browser consent flow and exchanges the returned code
func (a *GoogleAuth) authorize(ctx context.Context) (*oauth2.Token, error) {
	state := uuid.NewString()
	authURL := a.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline)
	fmt.Fprintf(a.Prompt, "\nVisit this URL to allow the volunteer portal to use Google:\n%s\n\n", authURL)

	code, err := waitForAuthCode(ctx, state)
	if err != nil {
		return nil, fmt.Errorf("failed to get authorization code: %w", err)
	}

	token, err := a.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code for token: %w", err)
	}
	return token, nil
}

// waitForAuthCode serves the redirect URL until a code with the expected
// state arrives, the context ends or the timeout passes
func waitForAuthCode(ctx context.Context, state string) (string, error) {
	codes := make(chan string, 1)
	errs := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc(callbackPath, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != state {
			http.Error(w, "Unexpected authorization state", http.StatusBadRequest)
			return
		}
		code := q.Get("code")
		if code == "" {
			http.Error(w, "Authorization failed", http.StatusBadRequest)
			select {
			case errs <- fmt.Errorf("authorization denied: %s", q.Get("error")):
			default:
			}
			return
		}

		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head><title>Volunteer portal</title></head>`+
			`<body><h1>Google access granted</h1><p>You can close this window and return to the terminal.</p></body></html>`)
		select {
		case codes <- code:
		default:
		}
	})

	server := &http.Server{
		Addr:              fmt.Sprintf("localhost:%d", AuthPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- fmt.Errorf("callback server error: %w", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	timeoutCtx, cancel := context.WithTimeout(ctx, authTimeout)
	defer cancel()

	select {
	case code := <-codes:
		return code, nil
	case err := <-errs:
		return "", err
	case <-timeoutCtx.Done():
		return "", fmt.Errorf("authorization timeout after %v", authTimeout)
	}
}

// load returns nil without error when no token has been stored yet
func (a *GoogleAuth) load() (*oauth2.Token, error) {
	data, err := os.ReadFile(a.tokenPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to parse token file: %w", err)
	}
	return &token, nil
}

func (a *GoogleAuth) save(token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(a.tokenPath), tokenDirPerms); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}
	if err := os.WriteFile(a.tokenPath, data, tokenFilePerms); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}

func (a *GoogleAuth) discard() error {
	if err := os.Remove(a.tokenPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete token file: %w", err)
	}
	return nil
}

package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/jakechorley/volunteer-portal/pkg/apperr"
)

// DefaultAvatarMaxBytes caps avatar downloads; larger images count as no avatar
const DefaultAvatarMaxBytes = 512 * 1024

// maxErrorBody bounds how much of an error response is read for its message
const maxErrorBody = 64 * 1024

// TokenSource supplies the bearer token for a request. An empty token means
// the request is sent without an Authorization header.
type TokenSource interface {
	Token() string
}

// TokenFunc adapts a function to TokenSource
type TokenFunc func() string

func (f TokenFunc) Token() string {
	return f()
}

// Client is the typed gateway to the volunteer portal REST backend
type Client struct {
	baseURL        string
	httpClient     *http.Client
	tokens         TokenSource
	avatarMaxBytes int64
	logger         *zap.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default http.Client
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithTimeout sets a per-request timeout; zero means none
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithAvatarMaxBytes overrides the avatar size cap
func WithAvatarMaxBytes(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.avatarMaxBytes = n
		}
	}
}

// WithLogger sets the logger used for request tracing
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a gateway for the backend at baseURL (including the
// API prefix, e.g. http://localhost:8080/api/v1)
func NewClient(baseURL string, tokens TokenSource, opts ...Option) *Client {
	if tokens == nil {
		tokens = TokenFunc(func() string { return "" })
	}
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		httpClient:     &http.Client{},
		tokens:         tokens,
		avatarMaxBytes: DefaultAvatarMaxBytes,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the backend base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// request describes one backend call
type request struct {
	method      string
	path        string
	query       url.Values
	body        io.Reader
	contentType string
	// token overrides the token source when set
	token string
}

func jsonBody(v any) (io.Reader, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, apperr.Internal("failed to encode request", err)
	}
	return bytes.NewReader(data), nil
}

// send performs the request and returns the response for a 2xx status.
// Any other status is converted to an *apperr.Error.
func (c *Client) send(ctx context.Context, r request) (*http.Response, error) {
	u := c.baseURL + r.path
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, r.method, u, r.body)
	if err != nil {
		return nil, apperr.Internal("failed to build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}

	token := r.token
	if token == "" {
		token = c.tokens.Token()
	}
	if token != "" {
		(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}).SetAuthHeader(req)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("Request failed",
			zap.String("method", r.method),
			zap.String("path", r.path),
			zap.Error(err))
		if ctx.Err() != nil {
			return nil, &apperr.Error{
				Kind:    apperr.KindNetwork,
				Code:    apperr.CodeCancelled,
				Message: "The request was cancelled",
				Err:     ctx.Err(),
			}
		}
		return nil, apperr.Network("Could not reach the server", err)
	}

	c.logger.Debug("Request completed",
		zap.String("method", r.method),
		zap.String("path", r.path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	defer resp.Body.Close()
	return nil, statusError(resp)
}

// call sends the request and decodes a JSON response into out (if non-nil)
func (c *Client) call(ctx context.Context, r request, out any) error {
	resp, err := c.send(ctx, r)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil || resp.StatusCode == http.StatusNoContent {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	if s, ok := out.(*string); ok && !isJSON(resp) {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return apperr.Network("Failed to read the server response", err)
		}
		*s = string(data)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return apperr.Internal("unexpected response from server", err)
	}
	return nil
}

func isJSON(resp *http.Response) bool {
	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	return err == nil && (mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"))
}

// errorBody is the error payload shape returned by the backend
type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

func statusError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var body errorBody
	message := ""
	if json.Unmarshal(data, &body) == nil {
		message = body.Message
		if message == "" {
			message = body.Error
		}
	} else {
		message = strings.TrimSpace(string(data))
	}

	status := resp.StatusCode
	var e *apperr.Error
	switch {
	case status == http.StatusUnauthorized:
		e = apperr.Auth(apperr.CodeNotAuthenticated, fallback(message, "Your session is missing or has expired"), nil)
	case status == http.StatusForbidden:
		e = apperr.Auth(apperr.CodeForbidden, fallback(message, "You are not allowed to do that"), nil).
			WithHint("Check your active role with 'whoami'")
	case status == http.StatusNotFound:
		e = apperr.NotFound(fallback(message, "Not found"))
	case status == http.StatusConflict:
		code := body.Code
		if code == "" {
			code = apperr.CodeConflict
		}
		e = apperr.Conflict(code, fallback(message, "The request conflicts with the current state"))
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		e = apperr.Validation(fallback(message, "The server rejected the request"))
	default:
		e = apperr.Network(fallback(message, fmt.Sprintf("Request failed with status %d", status)), nil)
	}
	e.Status = status
	return e
}

func fallback(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func pathf(format string, ids ...string) string {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = url.PathEscape(id)
	}
	return fmt.Sprintf(format, args...)
}

func reasonQuery(reason string) url.Values {
	if strings.TrimSpace(reason) == "" {
		return nil
	}
	return url.Values{"reason": {reason}}
}

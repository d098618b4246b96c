package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path/filepath"

	"github.com/jakechorley/volunteer-portal/pkg/apperr"
	"github.com/jakechorley/volunteer-portal/pkg/core/model"
	"github.com/jakechorley/volunteer-portal/pkg/core/roles"
)

// Register creates an account. The backend sends a verification email.
func (c *Client) Register(ctx context.Context, req model.RegisterRequest) error {
	body, err := jsonBody(req)
	if err != nil {
		return err
	}
	return c.call(ctx, request{
		method:      http.MethodPost,
		path:        "/auth/register",
		body:        body,
		contentType: "application/json",
	}, nil)
}

// Verify confirms an account with the emailed token and returns the
// backend's confirmation message
func (c *Client) Verify(ctx context.Context, token string) (string, error) {
	var message string
	err := c.call(ctx, request{
		method: http.MethodGet,
		path:   "/auth/verify",
		query:  url.Values{"token": {token}},
	}, &message)
	if err != nil {
		return "", err
	}
	return message, nil
}

// Login exchanges credentials for a bearer token
func (c *Client) Login(ctx context.Context, creds model.Credentials) (model.LoginResult, error) {
	body, err := jsonBody(map[string]string{"email": creds.Email, "password": creds.Password})
	if err != nil {
		return model.LoginResult{}, err
	}

	var w loginWire
	err = c.call(ctx, request{
		method:      http.MethodPost,
		path:        "/auth/login",
		body:        body,
		contentType: "application/json",
	}, &w)
	if err != nil {
		if e, ok := apperr.As(err); ok && (e.Status == http.StatusUnauthorized || e.Status == http.StatusBadRequest || e.Status == http.StatusForbidden) {
			msg := e.Message
			if e.Status == http.StatusBadRequest || msg == "" {
				msg = "Invalid email or password"
			}
			invalid := apperr.Auth(apperr.CodeInvalidCredentials, msg, nil)
			invalid.Status = e.Status
			invalid.Hint = "Check your email and password; new accounts must be verified first"
			return model.LoginResult{}, invalid
		}
		return model.LoginResult{}, err
	}
	if w.Token == "" {
		return model.LoginResult{}, apperr.Internal("login response did not include a token", nil)
	}
	return w.toModel(), nil
}

// Profile fetches the profile of the user owning token
func (c *Client) Profile(ctx context.Context, token string) (model.Profile, error) {
	if token == "" {
		return model.Profile{}, apperr.Auth(apperr.CodeNotAuthenticated, "You are not logged in", nil)
	}
	var w profileWire
	if err := c.call(ctx, request{method: http.MethodGet, path: "/profile/me", token: token}, &w); err != nil {
		return model.Profile{}, err
	}
	return w.toModel(), nil
}

// Me fetches the current user's profile
func (c *Client) Me(ctx context.Context) (model.Profile, error) {
	return c.Profile(ctx, c.tokens.Token())
}

// UpdateProfile sends the editable fields as a JSON "data" part with an
// optional "avatar" file part
func (c *Client) UpdateProfile(ctx context.Context, upd model.ProfileUpdate, avatar *model.Avatar) (model.Profile, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	data, err := json.Marshal(upd)
	if err != nil {
		return model.Profile{}, apperr.Internal("failed to encode profile", err)
	}
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="data"`)
	header.Set("Content-Type", "application/json")
	part, err := mw.CreatePart(header)
	if err != nil {
		return model.Profile{}, apperr.Internal("failed to build profile request", err)
	}
	if _, err := part.Write(data); err != nil {
		return model.Profile{}, apperr.Internal("failed to build profile request", err)
	}

	if avatar != nil && len(avatar.Data) > 0 {
		name := filepath.Base(avatar.FileName)
		if name == "." || name == "/" {
			name = "avatar"
		}
		filePart, err := mw.CreateFormFile("avatar", name)
		if err != nil {
			return model.Profile{}, apperr.Internal("failed to build profile request", err)
		}
		if _, err := filePart.Write(avatar.Data); err != nil {
			return model.Profile{}, apperr.Internal("failed to build profile request", err)
		}
	}

	if err := mw.Close(); err != nil {
		return model.Profile{}, apperr.Internal("failed to build profile request", err)
	}

	var w profileWire
	err = c.call(ctx, request{
		method:      http.MethodPut,
		path:        "/profile/me",
		body:        &buf,
		contentType: mw.FormDataContentType(),
	}, &w)
	if err != nil {
		return model.Profile{}, err
	}
	return w.toModel(), nil
}

// Avatar downloads the avatar image for ref. A missing or oversized avatar
// returns nil data and no error.
func (c *Client) Avatar(ctx context.Context, ref string) ([]byte, error) {
	if ref == "" {
		return nil, nil
	}
	resp, err := c.send(ctx, request{method: http.MethodGet, path: pathf("/profile/avatar/%s", ref)})
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, nil
		}
		return nil, err
	}
	defer resp.Body.Close()

	if resp.ContentLength > c.avatarMaxBytes {
		return nil, nil
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, c.avatarMaxBytes+1))
	if err != nil {
		return nil, apperr.Network("Failed to download avatar", err)
	}
	if int64(len(data)) > c.avatarMaxBytes {
		return nil, nil
	}
	return data, nil
}

// UpdateRole asks the backend to grant role to the current user
func (c *Client) UpdateRole(ctx context.Context, role model.Role) (model.RoleGrant, error) {
	body, err := jsonBody(map[string]string{"role": string(role)})
	if err != nil {
		return model.RoleGrant{}, err
	}
	var w roleGrantWire
	err = c.call(ctx, request{
		method:      http.MethodPut,
		path:        "/profile/role",
		body:        body,
		contentType: "application/json",
	}, &w)
	if err != nil {
		return model.RoleGrant{}, err
	}

	grant := model.RoleGrant{Roles: roles.FromStrings(w.Roles)}
	if r, ok := roles.Normalize(w.Role); ok {
		grant.Role = r
	} else if w.Role != "" {
		return model.RoleGrant{}, apperr.Internal(fmt.Sprintf("backend granted unknown role %q", w.Role), nil)
	}
	return grant, nil
}

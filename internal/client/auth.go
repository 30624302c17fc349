package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// LoginFailedMessage is shown when the backend rejects a login without text.
const LoginFailedMessage = "Login failed"

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// LoginResult is returned by a successful Login.
type LoginResult struct {
	Username string
}

// Login exchanges credentials for a bearer token and stores it in the
// session. On any failure the session is left as it was.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	const op = "login"

	if strings.TrimSpace(username) == "" || password == "" {
		return nil, newValidationError(op, "Username and password are required", nil)
	}

	payload, err := json.Marshal(loginRequest{Username: username, Password: password})
	if err != nil {
		return nil, newValidationError(op, "Username and password are required", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/auth/login", bytes.NewReader(payload))
	if err != nil {
		return nil, newTransportError(op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.send(op, c.httpClient, req)
	if err != nil {
		return nil, err
	}
	if !res.ok() {
		c.log.Info(module, "login rejected", map[string]interface{}{
			"username": username,
			"status":   res.status,
		})
		return nil, newResponseError(op, res.status, res.body, LoginFailedMessage)
	}

	var lr loginResponse
	if err := json.Unmarshal(res.body, &lr); err != nil {
		return nil, c.malformed(op, req, err)
	}
	if strings.TrimSpace(lr.Token) == "" {
		return nil, c.malformed(op, req, errors.New("login response has no token"))
	}

	if err := c.session.SetToken(lr.Token); err != nil {
		return nil, fmt.Errorf("saving session: %w", err)
	}

	c.log.Info(module, "logged in", map[string]interface{}{"username": username})
	return &LoginResult{Username: username}, nil
}

// Logout discards the stored token. Logging out without a session is not an
// error.
func (c *Client) Logout() error {
	if err := c.session.Clear(); err != nil {
		return err
	}
	c.log.Info(module, "logged out", nil)
	return nil
}

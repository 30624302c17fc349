// Package client talks to the PatternGuard backend.
//
// Admin operations read the bearer token from the shared session at call
// time and fail fast without a request when no token is held. A 401 on an
// admin call ends the session.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"golang.org/x/oauth2"

	"github.com/patternguard/console/internal/logger"
	"github.com/patternguard/console/internal/models"
	"github.com/patternguard/console/internal/session"
)

const module = "client"

// HeaderRequestID is set on every outgoing request.
const HeaderRequestID = "X-Request-ID"

// Options configures a Client.
type Options struct {
	BaseURL         string
	Timeout         time.Duration
	VersionCacheTTL time.Duration // 0 disables the version cache
	Platforms       []models.Platform
	HTTPClient      *http.Client // overrides Timeout when set
}

// Client performs backend calls on behalf of the console.
type Client struct {
	baseURL    string
	httpClient *http.Client
	session    *session.Session
	log        logger.Logger
	validate   *validator.Validate
	platforms  []models.Platform
	versions   *cache.Cache
}

// New creates a Client. log may be nil.
func New(opts Options, sess *session.Session, log logger.Logger) *Client {
	if log == nil {
		log = logger.Nop()
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}

	platforms := opts.Platforms
	if len(platforms) == 0 {
		platforms = models.DefaultPlatforms
	}

	validate, err := newValidator()
	if err != nil {
		panic(fmt.Sprintf("client: %v", err))
	}

	c := &Client{
		baseURL:    trimSlash(opts.BaseURL),
		httpClient: hc,
		session:    sess,
		log:        log,
		validate:   validate,
		platforms:  platforms,
	}
	if opts.VersionCacheTTL > 0 {
		c.versions = cache.New(opts.VersionCacheTTL, 2*opts.VersionCacheTTL)
	}
	return c
}

func newValidator() (*validator.Validate, error) {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.RegisterValidation("notblank", validators.NotBlank); err != nil {
		return nil, fmt.Errorf("registering notblank validation: %w", err)
	}
	return validate, nil
}

// Platforms returns the platforms this client accepts.
func (c *Client) Platforms() []models.Platform {
	return append([]models.Platform(nil), c.platforms...)
}

// Session returns the session the client authorizes with.
func (c *Client) Session() *session.Session {
	return c.session
}

type response struct {
	status int
	header http.Header
	body   []byte
}

func (r *response) ok() bool {
	return r.status >= 200 && r.status < 300
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set(HeaderRequestID, uuid.NewString())
	return req, nil
}

// authorized snapshots the session token into an HTTP client. Without a
// token it returns an authorization error and nothing is sent.
func (c *Client) authorized(op string) (*http.Client, error) {
	token, err := c.session.Require()
	if err != nil {
		return nil, newAuthorizationError(op, err)
	}
	return c.withBearer(token), nil
}

func (c *Client) withBearer(token string) *http.Client {
	base := c.httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	return &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(session.BearerToken(token)),
			Base:   base,
		},
		CheckRedirect: c.httpClient.CheckRedirect,
		Jar:           c.httpClient.Jar,
		Timeout:       c.httpClient.Timeout,
	}
}

// send executes req and reads the whole body.
func (c *Client) send(op string, hc *http.Client, req *http.Request) (*response, error) {
	start := time.Now()
	requestID := req.Header.Get(HeaderRequestID)

	resp, err := hc.Do(req)
	if err != nil {
		c.log.Error(module, "request failed", map[string]interface{}{
			"op":         op,
			"method":     req.Method,
			"path":       req.URL.Path,
			"request_id": requestID,
			"error":      err,
		})
		return nil, newTransportError(op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.log.Error(module, "reading response failed", map[string]interface{}{
			"op":         op,
			"status":     resp.StatusCode,
			"request_id": requestID,
			"error":      err,
		})
		return nil, newTransportError(op, err)
	}

	c.log.Debug(module, "request completed", map[string]interface{}{
		"op":          op,
		"method":      req.Method,
		"path":        req.URL.Path,
		"status":      resp.StatusCode,
		"bytes":       len(body),
		"request_id":  requestID,
		"duration_ms": time.Since(start).Milliseconds(),
	})

	return &response{status: resp.StatusCode, header: resp.Header, body: body}, nil
}

// sendAuthorized is send for admin calls. A 401 clears the session.
func (c *Client) sendAuthorized(op string, hc *http.Client, req *http.Request) (*response, error) {
	res, err := c.send(op, hc, req)
	if err != nil {
		return nil, err
	}
	if res.status == http.StatusUnauthorized {
		c.log.Warn(module, "token rejected, clearing session", map[string]interface{}{
			"op":         op,
			"request_id": req.Header.Get(HeaderRequestID),
		})
		if err := c.session.Clear(); err != nil {
			c.log.Error(module, "clearing session failed", map[string]interface{}{"error": err})
		}
	}
	return res, nil
}

// malformed reports a 2xx body that could not be decoded.
func (c *Client) malformed(op string, req *http.Request, cause error) *Error {
	c.log.Error(module, "malformed response", map[string]interface{}{
		"op":         op,
		"request_id": req.Header.Get(HeaderRequestID),
		"error":      cause,
	})
	return newTransportError(op, fmt.Errorf("malformed response: %w", cause))
}

// validationMessage turns validator output into a single display line.
func validationMessage(err error, messages map[string]string) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		if msg, ok := messages[verrs[0].Field()]; ok {
			return msg
		}
		return fmt.Sprintf("%s is invalid", verrs[0].Field())
	}
	return err.Error()
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

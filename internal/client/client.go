// Package client keeps an authenticated session against the admin API and
// renews it transparently when the access token is rejected.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go-admin-auth/internal/model"
)

const (
	defaultHTTPTimeout    = 30 * time.Second
	defaultRefreshTimeout = 10 * time.Second
	logoutTimeout         = 5 * time.Second

	LoginPath   = "/api/v1/auth/login"
	RefreshPath = "/api/v1/auth/refresh"
	LogoutPath  = "/api/v1/auth/logout"
	MePath      = "/api/v1/auth/me"
)

type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticated
	StateRefreshing
)

func (s State) String() string {
	switch s {
	case StateAuthenticated:
		return "authenticated"
	case StateRefreshing:
		return "refreshing"
	default:
		return "unauthenticated"
	}
}

type Options struct {
	BaseURL        string
	HTTPClient     *http.Client
	Store          TokenStore
	RefreshTimeout time.Duration
	Logger         *slog.Logger
}

type Client struct {
	baseURL        string
	http           *http.Client
	store          TokenStore
	refreshTimeout time.Duration
	logger         *slog.Logger

	mu     sync.Mutex
	tokens Tokens
	// generation changes whenever the session is replaced or cleared. A
	// refresh started under an older generation never writes its result.
	generation uint64
	inflight   *refreshCall
}

type refreshCall struct {
	done   chan struct{}
	access string
	err    error
}

// New builds a client and restores any session held by the store.
func New(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.BaseURL) == "" {
		return nil, errors.New("client: base URL is required")
	}

	c := &Client{
		baseURL:        strings.TrimRight(opts.BaseURL, "/"),
		http:           opts.HTTPClient,
		store:          opts.Store,
		refreshTimeout: opts.RefreshTimeout,
		logger:         opts.Logger,
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: defaultHTTPTimeout}
	}
	if c.store == nil {
		c.store = NewMemoryStore()
	}
	if c.refreshTimeout <= 0 {
		c.refreshTimeout = defaultRefreshTimeout
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}

	tokens, err := c.store.Load()
	if err != nil {
		return nil, fmt.Errorf("restore session: %w", err)
	}
	if !tokens.empty() {
		c.tokens = tokens
	}

	return c, nil
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.tokens.empty():
		return StateUnauthenticated
	case c.inflight != nil:
		return StateRefreshing
	default:
		return StateAuthenticated
	}
}

func (c *Client) Tokens() Tokens {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokens
}

// Login exchanges credentials for a new session. On failure the previous
// session is left untouched.
func (c *Client) Login(ctx context.Context, email, password string) (model.AuthUser, error) {
	var result model.LoginResult
	err := c.call(ctx, http.MethodPost, LoginPath, model.LoginRequest{Email: email, Password: password}, &result)
	if err != nil {
		return model.AuthUser{}, err
	}
	if result.AccessToken == "" || result.RefreshToken == "" {
		return model.AuthUser{}, errors.New("client: login response carried no tokens")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.tokens = Tokens{AccessToken: result.AccessToken, RefreshToken: result.RefreshToken}
	c.generation++
	c.inflight = nil
	if err := c.store.Save(c.tokens); err != nil {
		return result.User, fmt.Errorf("persist session: %w", err)
	}

	return result.User, nil
}

// Logout drops the session at once. A refresh still in flight is discarded
// when it completes. The server is notified on a best-effort basis.
func (c *Client) Logout(ctx context.Context) error {
	c.mu.Lock()
	access := c.tokens.AccessToken
	err := c.clearLocked()
	c.mu.Unlock()

	if access != "" {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), logoutTimeout)
		defer cancel()

		req, reqErr := c.newRequest(ctx, http.MethodPost, LogoutPath, nil)
		if reqErr == nil {
			req.Header.Set("Authorization", "Bearer "+access)
			resp, doErr := c.http.Do(req)
			if doErr != nil {
				c.logger.Debug("Logout notification failed", "error", doErr)
			} else {
				drain(resp)
			}
		}
	}

	return err
}

// Do sends req with the current access token. A 401 triggers one shared
// refresh and exactly one retry. The request body is replayed for the retry.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	req = req.WithContext(ctx)

	access := c.Tokens().AccessToken
	if access == "" {
		return nil, ErrNotAuthenticated
	}

	if err := makeReplayable(req); err != nil {
		return nil, err
	}

	resp, err := c.send(req, access)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || strings.HasSuffix(req.URL.Path, RefreshPath) {
		return resp, nil
	}
	drain(resp)

	fresh, err := c.renew(ctx, access)
	if err != nil {
		return nil, err
	}

	resp, err = c.send(req, fresh)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		drain(resp)
		return nil, ErrSessionExpired
	}
	return resp, nil
}

func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return c.doJSON(ctx, req, out)
}

func (c *Client) PostJSON(ctx context.Context, path string, body, out any) error {
	return c.sendJSON(ctx, http.MethodPost, path, body, out)
}

func (c *Client) PatchJSON(ctx context.Context, path string, body, out any) error {
	return c.sendJSON(ctx, http.MethodPatch, path, body, out)
}

func (c *Client) Delete(ctx context.Context, path string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	return c.doJSON(ctx, req, nil)
}

func (c *Client) Me(ctx context.Context) (model.AuthUser, error) {
	var user model.AuthUser
	err := c.GetJSON(ctx, MePath, &user)
	return user, err
}

func (c *Client) sendJSON(ctx context.Context, method, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, method, path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.doJSON(ctx, req, out)
}

func (c *Client) doJSON(ctx context.Context, req *http.Request, out any) error {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeEnvelope(resp, out)
}

// renew returns an access token newer than stale, joining a refresh that is
// already running or starting one.
func (c *Client) renew(ctx context.Context, stale string) (string, error) {
	c.mu.Lock()
	if c.tokens.empty() {
		c.mu.Unlock()
		return "", ErrSessionExpired
	}
	if c.tokens.AccessToken != stale {
		current := c.tokens.AccessToken
		c.mu.Unlock()
		return current, nil
	}

	call := c.inflight
	if call == nil {
		call = &refreshCall{done: make(chan struct{})}
		c.inflight = call
		go c.refresh(call, c.tokens.RefreshToken, c.generation)
	}
	c.mu.Unlock()

	select {
	case <-call.done:
		return call.access, call.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// refresh runs detached from every caller so that one cancelled request does
// not fail the others waiting on it.
func (c *Client) refresh(call *refreshCall, refreshToken string, generation uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), c.refreshTimeout)
	defer cancel()

	var pair model.TokenPair
	err := c.call(ctx, http.MethodPost, RefreshPath, model.RefreshRequest{RefreshToken: refreshToken}, &pair)
	if err == nil && (pair.AccessToken == "" || pair.RefreshToken == "") {
		err = errors.New("refresh response carried no tokens")
	}

	c.mu.Lock()
	switch {
	case c.generation != generation:
		call.err = ErrSessionExpired
	case isThrottled(err):
		c.logger.Debug("Session refresh throttled", "error", err)
		call.err = err
	case err != nil:
		c.logger.Debug("Session refresh failed", "error", err)
		if clearErr := c.clearLocked(); clearErr != nil {
			c.logger.Warn("Failed to clear stored session", "error", clearErr)
		}
		call.err = fmt.Errorf("%w: %w", ErrSessionExpired, err)
	default:
		c.tokens = Tokens{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken}
		if saveErr := c.store.Save(c.tokens); saveErr != nil {
			c.logger.Warn("Failed to persist refreshed session", "error", saveErr)
		}
		call.access = pair.AccessToken
	}
	if c.inflight == call {
		c.inflight = nil
	}
	c.mu.Unlock()

	close(call.done)
}

// isThrottled reports a refresh the server refused to process. The refresh
// token was not judged, so the session is kept.
func isThrottled(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests
}

func (c *Client) clearLocked() error {
	c.tokens = Tokens{}
	c.generation++
	c.inflight = nil
	return c.store.Clear()
}

// call performs an unauthenticated request outside the retry path.
func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, method, path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeEnvelope(resp, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) send(req *http.Request, access string) (*http.Response, error) {
	attempt := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("replay request body: %w", err)
		}
		attempt.Body = body
	}
	attempt.Header.Set("Authorization", "Bearer "+access)
	return c.http.Do(attempt)
}

func makeReplayable(req *http.Request) error {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return nil
	}
	data, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return fmt.Errorf("buffer request body: %w", err)
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	req.Body, _ = req.GetBody()
	return nil
}

func decodeEnvelope(resp *http.Response, out any) error {
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   *model.APIError `json:"error"`
	}
	decodeErr := json.NewDecoder(resp.Body).Decode(&envelope)

	if resp.StatusCode < 200 || resp.StatusCode > 299 || !envelope.Success {
		apiErr := &APIError{StatusCode: resp.StatusCode, Code: "unknown", Message: http.StatusText(resp.StatusCode)}
		if envelope.Error != nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
			apiErr.Details = envelope.Error.Details
		}
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
			apiErr.RetryAfter = time.Duration(secs) * time.Second
		}
		return apiErr
	}
	if decodeErr != nil {
		return fmt.Errorf("decode response: %w", decodeErr)
	}

	if out == nil || len(envelope.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("decode response data: %w", err)
	}
	return nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

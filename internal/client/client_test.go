package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-admin-auth/internal/model"
)

const protectedPath = "/api/v1/users"

// fakeServer issues numbered token generations. Only the newest access token
// is accepted on protectedPath.
type fakeServer struct {
	mu         sync.Mutex
	generation int
	rejections int

	refreshCalls atomic.Int32
	// refreshGate, when set, runs before a refresh is answered.
	refreshGate  func(r *http.Request)
	refreshFails bool
	// refreshThrottled answers refreshes with 429 until cleared.
	refreshThrottled bool
	alwaysReject     bool
	bodies           []string
}

func (fs *fakeServer) configure(fn func(fs *fakeServer)) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fn(fs)
}

func newFakeServer(t *testing.T) (*fakeServer, *httptest.Server) {
	t.Helper()
	fs := &fakeServer{}

	mux := http.NewServeMux()
	mux.HandleFunc("POST "+LoginPath, fs.login)
	mux.HandleFunc("POST "+RefreshPath, fs.refresh)
	mux.HandleFunc("POST "+LogoutPath, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, map[string]bool{"loggedOut": true})
	})
	mux.HandleFunc(protectedPath, fs.protected)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return fs, srv
}

func (fs *fakeServer) pair() model.TokenPair {
	return model.TokenPair{
		AccessToken:  fmt.Sprintf("access-%d", fs.generation),
		RefreshToken: fmt.Sprintf("refresh-%d", fs.generation),
		TokenType:    "Bearer",
		ExpiresIn:    900,
	}
}

func (fs *fakeServer) login(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}
	if req.Password != "correct-horse" {
		writeFailure(w, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password")
		return
	}

	fs.mu.Lock()
	fs.generation++
	pair := fs.pair()
	fs.mu.Unlock()

	writeEnvelope(w, http.StatusOK, model.LoginResult{
		TokenPair: pair,
		User:      model.AuthUser{ID: "u-1", Email: req.Email, Roles: []string{"admin"}},
	})
}

func (fs *fakeServer) refresh(w http.ResponseWriter, r *http.Request) {
	fs.refreshCalls.Add(1)
	fs.mu.Lock()
	gate := fs.refreshGate
	fs.mu.Unlock()
	if gate != nil {
		gate(r)
	}

	var req model.RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.refreshThrottled {
		w.Header().Set("Retry-After", "60")
		writeFailure(w, http.StatusTooManyRequests, "rate_limited", "Too many requests")
		return
	}
	if fs.refreshFails || req.RefreshToken != fmt.Sprintf("refresh-%d", fs.generation) {
		writeFailure(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}
	fs.generation++
	writeEnvelope(w, http.StatusOK, fs.pair())
}

func (fs *fakeServer) protected(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	fs.mu.Lock()
	want := fmt.Sprintf("Bearer access-%d", fs.generation)
	ok := !fs.alwaysReject && r.Header.Get("Authorization") == want
	if !ok {
		fs.rejections++
	} else {
		fs.bodies = append(fs.bodies, string(body))
	}
	fs.mu.Unlock()

	if !ok {
		writeFailure(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}
	writeEnvelope(w, http.StatusOK, map[string]string{"token": r.Header.Get("Authorization")})
}

// expire invalidates the current access token without the client noticing.
func (fs *fakeServer) expire() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.generation++
}

func (fs *fakeServer) rejected() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.rejections
}

func writeEnvelope(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{Success: true, Data: data})
}

func writeFailure(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{Error: &model.APIError{Code: code, Message: message}})
}

func newTestClient(t *testing.T, baseURL string, opts ...func(*Options)) *Client {
	t.Helper()
	o := Options{BaseURL: baseURL}
	for _, opt := range opts {
		opt(&o)
	}
	c, err := New(o)
	require.NoError(t, err)
	return c
}

func loggedIn(t *testing.T, c *Client) {
	t.Helper()
	_, err := c.Login(context.Background(), "admin@example.com", "correct-horse")
	require.NoError(t, err)
}

// expireAccessOnly invalidates the client's access token while keeping its
// refresh token usable.
func expireAccessOnly(fs *fakeServer, c *Client) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.generation++
	tokens := c.Tokens()
	tokens.RefreshToken = fmt.Sprintf("refresh-%d", fs.generation)
	c.mu.Lock()
	c.tokens = tokens
	c.mu.Unlock()
}

func TestDoWithoutSessionFailsFast(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	err := c.GetJSON(context.Background(), protectedPath, nil)

	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.Zero(t, hits.Load())
	assert.Equal(t, StateUnauthenticated, c.State())
}

func TestLogin(t *testing.T) {
	_, srv := newFakeServer(t)

	t.Run("success stores the session", func(t *testing.T) {
		store := NewMemoryStore()
		c := newTestClient(t, srv.URL, func(o *Options) { o.Store = store })

		user, err := c.Login(context.Background(), "admin@example.com", "correct-horse")
		require.NoError(t, err)

		assert.Equal(t, "admin@example.com", user.Email)
		assert.Equal(t, StateAuthenticated, c.State())
		persisted, err := store.Load()
		require.NoError(t, err)
		assert.Equal(t, c.Tokens(), persisted)
	})

	t.Run("failure leaves the client unauthenticated", func(t *testing.T) {
		c := newTestClient(t, srv.URL)

		_, err := c.Login(context.Background(), "admin@example.com", "wrong")

		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
		assert.Equal(t, "invalid_credentials", apiErr.Code)
		assert.Equal(t, StateUnauthenticated, c.State())
	})
}

func TestExpiredAccessTokenIsRenewedTransparently(t *testing.T) {
	fs, srv := newFakeServer(t)
	c := newTestClient(t, srv.URL)
	loggedIn(t, c)

	expireAccessOnly(fs, c)

	var out map[string]string
	require.NoError(t, c.GetJSON(context.Background(), protectedPath, &out))

	assert.Equal(t, int32(1), fs.refreshCalls.Load())
	assert.Equal(t, "Bearer "+c.Tokens().AccessToken, out["token"])
	assert.Equal(t, StateAuthenticated, c.State())
}

func TestConcurrentRejectionsShareOneRefresh(t *testing.T) {
	const callers = 8

	fs, srv := newFakeServer(t)
	allRejected := make(chan struct{})
	var once sync.Once
	fs.configure(func(fs *fakeServer) {
		fs.refreshGate = func(r *http.Request) {
			// Hold the refresh until every caller has seen its 401.
			deadline := time.After(5 * time.Second)
			for fs.rejected() < callers {
				select {
				case <-deadline:
					return
				case <-time.After(5 * time.Millisecond):
				}
			}
			once.Do(func() { close(allRejected) })
		}
	})

	c := newTestClient(t, srv.URL)
	loggedIn(t, c)
	expireAccessOnly(fs, c)

	var wg sync.WaitGroup
	tokens := make([]string, callers)
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var out map[string]string
			errs[i] = c.GetJSON(context.Background(), protectedPath, &out)
			tokens[i] = out["token"]
		}()
	}
	wg.Wait()

	select {
	case <-allRejected:
	default:
		t.Fatal("refresh completed before every caller was rejected")
	}

	assert.Equal(t, int32(1), fs.refreshCalls.Load())
	for i := range callers {
		require.NoError(t, errs[i])
		assert.Equal(t, "Bearer "+c.Tokens().AccessToken, tokens[i])
	}
}

func TestRefreshFailureClearsSession(t *testing.T) {
	fs, srv := newFakeServer(t)
	store := NewMemoryStore()
	c := newTestClient(t, srv.URL, func(o *Options) { o.Store = store })
	loggedIn(t, c)

	fs.configure(func(fs *fakeServer) { fs.refreshFails = true })
	fs.expire()

	err := c.GetJSON(context.Background(), protectedPath, nil)
	require.ErrorIs(t, err, ErrSessionExpired)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)

	assert.Equal(t, StateUnauthenticated, c.State())
	persisted, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, Tokens{}, persisted)

	err = c.GetJSON(context.Background(), protectedPath, nil)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestThrottledRefreshKeepsSession(t *testing.T) {
	fs, srv := newFakeServer(t)
	store := NewMemoryStore()
	c := newTestClient(t, srv.URL, func(o *Options) { o.Store = store })
	loggedIn(t, c)

	expireAccessOnly(fs, c)
	fs.configure(func(fs *fakeServer) { fs.refreshThrottled = true })

	err := c.GetJSON(context.Background(), protectedPath, nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSessionExpired)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Equal(t, "rate_limited", apiErr.Code)
	assert.Equal(t, time.Minute, apiErr.RetryAfter)

	assert.Equal(t, StateAuthenticated, c.State())
	persisted, err := store.Load()
	require.NoError(t, err)
	assert.NotEmpty(t, persisted.RefreshToken)

	fs.configure(func(fs *fakeServer) { fs.refreshThrottled = false })

	require.NoError(t, c.GetJSON(context.Background(), protectedPath, nil))
	assert.Equal(t, int32(2), fs.refreshCalls.Load())
}

func TestSecondRejectionIsNotRetriedAgain(t *testing.T) {
	fs, srv := newFakeServer(t)
	c := newTestClient(t, srv.URL)
	loggedIn(t, c)

	fs.configure(func(fs *fakeServer) { fs.alwaysReject = true })

	err := c.GetJSON(context.Background(), protectedPath, nil)

	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.Equal(t, int32(1), fs.refreshCalls.Load())
	assert.Equal(t, 2, fs.rejected())
	assert.Equal(t, StateAuthenticated, c.State())
}

func TestRefreshTimeoutClearsSession(t *testing.T) {
	fs, srv := newFakeServer(t)
	fs.configure(func(fs *fakeServer) {
		fs.refreshGate = func(r *http.Request) { <-r.Context().Done() }
	})

	c := newTestClient(t, srv.URL, func(o *Options) { o.RefreshTimeout = 50 * time.Millisecond })
	loggedIn(t, c)
	fs.expire()

	err := c.GetJSON(context.Background(), protectedPath, nil)

	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateUnauthenticated, c.State())
}

func TestLogoutDiscardsInFlightRefresh(t *testing.T) {
	fs, srv := newFakeServer(t)
	started := make(chan struct{})
	release := make(chan struct{})
	fs.configure(func(fs *fakeServer) {
		fs.refreshGate = func(r *http.Request) {
			close(started)
			<-release
		}
	})

	store := NewMemoryStore()
	c := newTestClient(t, srv.URL, func(o *Options) { o.Store = store })
	loggedIn(t, c)
	expireAccessOnly(fs, c)

	result := make(chan error, 1)
	go func() {
		result <- c.GetJSON(context.Background(), protectedPath, nil)
	}()

	<-started
	assert.Equal(t, StateRefreshing, c.State())
	require.NoError(t, c.Logout(context.Background()))
	assert.Equal(t, StateUnauthenticated, c.State())
	close(release)

	select {
	case err := <-result:
		assert.ErrorIs(t, err, ErrSessionExpired)
	case <-time.After(5 * time.Second):
		t.Fatal("request did not finish")
	}

	assert.Equal(t, StateUnauthenticated, c.State())
	assert.Equal(t, Tokens{}, c.Tokens())
	persisted, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, Tokens{}, persisted)
}

func TestWaiterContextCancellation(t *testing.T) {
	fs, srv := newFakeServer(t)
	release := make(chan struct{})
	fs.configure(func(fs *fakeServer) {
		fs.refreshGate = func(r *http.Request) { <-release }
	})
	defer close(release)

	c := newTestClient(t, srv.URL)
	loggedIn(t, c)
	expireAccessOnly(fs, c)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := c.GetJSON(ctx, protectedPath, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRetryReplaysRequestBody(t *testing.T) {
	fs, srv := newFakeServer(t)
	c := newTestClient(t, srv.URL)
	loggedIn(t, c)
	expireAccessOnly(fs, c)

	req, err := http.NewRequest(http.MethodPost, srv.URL+protectedPath, io.NopCloser(strings.NewReader(`{"name":"x"}`)))
	require.NoError(t, err)

	resp, err := c.Do(context.Background(), req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	assert.Equal(t, []string{`{"name":"x"}`}, fs.bodies)
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	store := NewFileStore(path)

	tokens, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, Tokens{}, tokens)

	want := Tokens{AccessToken: "a", RefreshToken: "r"}
	require.NoError(t, store.Save(want))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err := NewFileStore(path).Load()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	require.NoError(t, store.Clear())
	require.NoError(t, store.Clear())
	_, err = os.Stat(path)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestNewRestoresPersistedSession(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Save(Tokens{AccessToken: "a", RefreshToken: "r"}))

	c := newTestClient(t, "http://localhost", func(o *Options) { o.Store = store })
	assert.Equal(t, StateAuthenticated, c.State())

	_, err := New(Options{})
	assert.Error(t, err)
}

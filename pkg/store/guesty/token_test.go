package guesty

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenServer(t *testing.T, calls *int64, delay time.Duration) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(calls, 1)
		if delay > 0 {
			time.Sleep(delay)
		}
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(t, "id", r.PostForm.Get("client_id"))
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "id", user)
		assert.Equal(t, "secret", pass)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "tok-1",
			"expires_in":   3600,
		})
	}))
}

func newTestClient(t *testing.T, cfg Config) *Client {
	t.Helper()
	cfg.ClientID = "id"
	cfg.ClientSecret = "secret"
	client, err := NewClient(cfg)
	require.NoError(t, err)
	return client
}

func TestEnsureToken_ReusesFreshToken(t *testing.T) {
	var calls int64
	srv := tokenServer(t, &calls, 0)
	defer srv.Close()

	client := newTestClient(t, Config{TokenURL: srv.URL})

	tok, err := client.EnsureToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)
	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))

	// Cached token is fresh; no further network calls.
	tok, err = client.EnsureToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)
	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))
}

func TestEnsureToken_RefreshesExpiredToken(t *testing.T) {
	var calls int64
	srv := tokenServer(t, &calls, 0)
	defer srv.Close()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	client := newTestClient(t, Config{
		TokenURL: srv.URL,
		Now:      func() time.Time { return now },
	})

	_, err := client.EnsureToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))

	// Within the safety margin of expiry the token no longer counts as
	// fresh and must be replaced.
	now = now.Add(3600*time.Second - 30*time.Second)
	_, err = client.EnsureToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), atomic.LoadInt64(&calls))
}

func TestEnsureToken_SingleFlight(t *testing.T) {
	var calls int64
	srv := tokenServer(t, &calls, 100*time.Millisecond)
	defer srv.Close()

	client := newTestClient(t, Config{TokenURL: srv.URL})

	const n = 20
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			tok, err := client.EnsureToken(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, "tok-1", tok)
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))
}

func TestEnsureToken_RateLimitExhaustsAttempts(t *testing.T) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := newTestClient(t, Config{TokenURL: srv.URL, TokenAttempts: 3})

	_, err := client.EnsureToken(context.Background())
	require.Error(t, err)

	var rateLimited *RateLimitedError
	require.ErrorAs(t, err, &rateLimited)
	assert.Equal(t, 3, rateLimited.Attempts)
	assert.Equal(t, int64(3), atomic.LoadInt64(&calls))
}

func TestEnsureToken_RecoversAfterRetryAfter(t *testing.T) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt64(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"access_token": "tok-2"})
	}))
	defer srv.Close()

	client := newTestClient(t, Config{TokenURL: srv.URL, TokenAttempts: 3})

	started := time.Now()
	tok, err := client.EnsureToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-2", tok)
	assert.Equal(t, int64(2), atomic.LoadInt64(&calls))
	assert.GreaterOrEqual(t, time.Since(started), time.Second)
}

func TestEnsureToken_RejectionIsNotRetried(t *testing.T) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
	}))
	defer srv.Close()

	client := newTestClient(t, Config{TokenURL: srv.URL})

	_, err := client.EnsureToken(context.Background())
	require.Error(t, err)

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusUnauthorized, authErr.Status)
	assert.Contains(t, authErr.Body, "invalid_client")
	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))
}

func TestEnsureToken_FormEncodedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-www-form-urlencoded")
		_, _ = w.Write([]byte("access_token=tok-form&expires_in=120"))
	}))
	defer srv.Close()

	client := newTestClient(t, Config{TokenURL: srv.URL})

	tok, err := client.EnsureToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-form", tok)
}

func TestEnsureToken_MissingCredentials(t *testing.T) {
	_, err := NewClient(Config{})
	require.Error(t, err)

	var configErr *ConfigError
	assert.ErrorAs(t, err, &configErr)
}

func TestTokenFreshness(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tok := &token{value: "t", expiresAt: now.Add(10 * time.Minute)}

	assert.True(t, tok.fresh(now, time.Minute))
	assert.False(t, tok.fresh(now.Add(9*time.Minute+time.Second), time.Minute))
	assert.False(t, tok.fresh(now.Add(11*time.Minute), time.Minute))
}

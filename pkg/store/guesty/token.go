package guesty

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultExpiresIn     = 3600 * time.Second
	defaultTokenAttempts = 6
	backoffBase          = 500 * time.Millisecond
	backoffCap           = 8 * time.Second
)

type token struct {
	value     string
	expiresAt time.Time
}

// fresh reports whether the token is still usable with the given safety
// margin before its real expiry.
func (t *token) fresh(now time.Time, margin time.Duration) bool {
	return now.Before(t.expiresAt.Add(-margin))
}

// tokenStore is a passive holder for the current token. All refresh
// decisions live in Client; the lock only makes the swap itself safe.
type tokenStore struct {
	mu  sync.RWMutex
	tok *token
}

func (s *tokenStore) get() *token {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tok
}

func (s *tokenStore) set(t *token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tok = t
}

func (s *tokenStore) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tok = nil
}

// EnsureToken returns a fresh access token, performing the OAuth2
// client-credentials exchange only when the cached one is absent or about
// to expire. Concurrent callers share a single in-flight exchange; the
// upstream enforces per-credential rate limits on the token endpoint, so
// duplicate refreshes are never issued.
func (c *Client) EnsureToken(ctx context.Context) (string, error) {
	if t := c.tokens.get(); t != nil && t.fresh(c.now(), c.tokenMargin) {
		return t.value, nil
	}

	v, err, _ := c.group.Do("token", func() (interface{}, error) {
		// Re-check under single-flight: a refresh may have just landed.
		if t := c.tokens.get(); t != nil && t.fresh(c.now(), c.tokenMargin) {
			return t.value, nil
		}
		// The refresh outlives an abandoned caller; the stored token
		// still benefits whoever asks next.
		return c.exchange(context.WithoutCancel(ctx))
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate drops the cached token so the next EnsureToken call performs
// a full exchange. Used after the data endpoint rejects a token with 401.
func (c *Client) Invalidate() {
	c.tokens.clear()
}

// exchange runs the bounded retry loop around the token endpoint. Only
// 429 responses are retried; anything else is a hard failure.
func (c *Client) exchange(ctx context.Context) (string, error) {
	logger := zerolog.Ctx(ctx)

	for attempt := 1; attempt <= c.tokenAttempts; attempt++ {
		value, expiresIn, status, body, err := c.requestToken(ctx)
		if err != nil {
			return "", fmt.Errorf("token request: %w", err)
		}

		if status == http.StatusTooManyRequests {
			tokenExchanges.WithLabelValues("rate_limited").Inc()
			if attempt == c.tokenAttempts {
				break
			}
			delay := c.backoffDelay(attempt, body.retryAfter)
			logger.Warn().
				Int("attempt", attempt).
				Dur("delay", delay).
				Msg("guesty token endpoint rate limited, backing off")
			if err := sleep(ctx, delay); err != nil {
				return "", err
			}
			continue
		}

		// A missing token field in a 2xx body is as fatal as a rejection.
		if status < 200 || status >= 300 || value == "" {
			tokenExchanges.WithLabelValues("rejected").Inc()
			return "", &AuthError{Status: status, Body: body.snippet}
		}

		now := c.now()
		c.tokens.set(&token{
			value:     value,
			expiresAt: now.Add(expiresIn),
		})
		tokenExchanges.WithLabelValues("success").Inc()
		logger.Debug().
			Time("expires_at", now.Add(expiresIn)).
			Msg("guesty access token refreshed")
		return value, nil
	}

	tokenExchanges.WithLabelValues("exhausted").Inc()
	return "", &RateLimitedError{Attempts: c.tokenAttempts}
}

type tokenBody struct {
	snippet    string
	retryAfter time.Duration
}

// requestToken performs one POST to the token endpoint. The credentials go
// both as HTTP Basic auth and as form fields; providers differ on which
// they accept. A non-nil error means the request never got an answer.
func (c *Client) requestToken(ctx context.Context) (value string, expiresIn time.Duration, status int, body tokenBody, err error) {
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
	}
	if c.scope != "" {
		form.Set("scope", c.scope)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, 0, tokenBody{}, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.clientID, c.clientSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, 0, tokenBody{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", 0, 0, tokenBody{}, err
	}

	body.snippet = snippet(raw)
	if resp.StatusCode == http.StatusTooManyRequests {
		if secs, convErr := strconv.Atoi(resp.Header.Get("Retry-After")); convErr == nil && secs > 0 {
			body.retryAfter = time.Duration(secs) * time.Second
		}
		return "", 0, resp.StatusCode, body, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", 0, resp.StatusCode, body, nil
	}

	value, expiresIn, parseErr := parseTokenResponse(raw)
	if parseErr != nil {
		return "", 0, resp.StatusCode, body, nil
	}
	return value, expiresIn, resp.StatusCode, body, nil
}

// parseTokenResponse accepts JSON or form-encoded bodies and tolerates the
// token field aliases seen across provider versions.
func parseTokenResponse(raw []byte) (string, time.Duration, error) {
	fields := map[string]interface{}{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		values, parseErr := url.ParseQuery(string(raw))
		if parseErr != nil {
			return "", 0, fmt.Errorf("token response is neither JSON nor form-encoded")
		}
		for k, v := range values {
			if len(v) > 0 {
				fields[k] = v[0]
			}
		}
	}

	var value string
	for _, key := range []string{"access_token", "token", "accessToken"} {
		if s, ok := fields[key].(string); ok && s != "" {
			value = s
			break
		}
	}
	if value == "" {
		return "", 0, fmt.Errorf("token missing in response")
	}

	expiresIn := defaultExpiresIn
	switch v := fields["expires_in"].(type) {
	case float64:
		if v > 0 {
			expiresIn = time.Duration(v) * time.Second
		}
	case string:
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			expiresIn = time.Duration(secs) * time.Second
		}
	}
	return value, expiresIn, nil
}

// backoffDelay computes the exponential delay with jitter for the given
// attempt, preferring an explicit Retry-After from the upstream.
func (c *Client) backoffDelay(attempt int, retryAfter time.Duration) time.Duration {
	if retryAfter > 0 {
		return retryAfter
	}
	delay := backoffBase << (attempt - 1)
	if delay > backoffCap {
		delay = backoffCap
	}
	// +/-20% jitter so synchronized clients spread out.
	jitter := time.Duration(rand.Int63n(int64(delay)/5+1)) - delay/10
	return delay + jitter
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

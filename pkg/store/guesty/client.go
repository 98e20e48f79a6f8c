// Package guesty is a read-only client for the Guesty Open API. It owns
// the OAuth2 client-credentials token lifecycle and the paginated
// retrieval of financial transactions; it never issues write calls.
package guesty

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/de-tools/pmc-commission/pkg/models/domain"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const (
	defaultBaseURL    = "https://open-api.guesty.com"
	defaultPageLimit  = 100
	defaultMaxRecords = 50000
	defaultMargin     = 60 * time.Second
	maxBodyBytes      = 1 << 20
	transactionsPath  = "/v1/financialReports/transactions"
)

type Config struct {
	ClientID     string
	ClientSecret string

	// BaseURL defaults to the Guesty Open API; TokenURL defaults to
	// BaseURL + /oauth2/token.
	BaseURL  string
	TokenURL string
	Scope    string

	// PageLimit is the page size for transaction listing requests.
	PageLimit int
	// PageDelay is an optional pause between page requests to stay
	// under upstream rate limits. Zero disables it.
	PageDelay time.Duration
	// MaxRecords caps accumulation so a misbehaving upstream that keeps
	// returning full pages cannot make FetchTransactions loop forever.
	MaxRecords int

	// TokenMargin is how long before real expiry a token stops counting
	// as fresh. Values below 60s are raised to 60s.
	TokenMargin   time.Duration
	TokenAttempts int

	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
	// Now overrides the clock, mainly for tests.
	Now func() time.Time
}

type Client struct {
	clientID     string
	clientSecret string
	baseURL      string
	tokenURL     string
	scope        string

	pageLimit  int
	pageDelay  time.Duration
	maxRecords int

	tokenMargin   time.Duration
	tokenAttempts int

	httpClient *http.Client
	now        func() time.Time

	tokens tokenStore
	group  singleflight.Group
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, &ConfigError{Reason: "GUESTY_CLIENT_ID and GUESTY_CLIENT_SECRET must be set"}
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = baseURL + "/oauth2/token"
	}

	pageLimit := cfg.PageLimit
	if pageLimit <= 0 {
		pageLimit = defaultPageLimit
	}
	maxRecords := cfg.MaxRecords
	if maxRecords <= 0 {
		maxRecords = defaultMaxRecords
	}

	margin := cfg.TokenMargin
	if margin < defaultMargin {
		margin = defaultMargin
	}
	attempts := cfg.TokenAttempts
	if attempts <= 0 {
		attempts = defaultTokenAttempts
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	registerMetrics()

	return &Client{
		clientID:      cfg.ClientID,
		clientSecret:  cfg.ClientSecret,
		baseURL:       baseURL,
		tokenURL:      tokenURL,
		scope:         cfg.Scope,
		pageLimit:     pageLimit,
		pageDelay:     cfg.PageDelay,
		maxRecords:    maxRecords,
		tokenMargin:   margin,
		tokenAttempts: attempts,
		httpClient:    httpClient,
		now:           now,
	}, nil
}

// FetchTransactions retrieves every transaction in the date range, walking
// pages in increasing offset order until a short page or the record cap.
// A single 401 mid-walk invalidates the token and retries that page once
// with a fresh one.
func (c *Client) FetchTransactions(ctx context.Context, from, to time.Time) ([]domain.RawRecord, error) {
	accessToken, err := c.EnsureToken(ctx)
	if err != nil {
		return nil, err
	}

	logger := zerolog.Ctx(ctx)

	var all []domain.RawRecord
	skip := 0
	reauthed := false

	for {
		pg, status, err := c.fetchPage(ctx, accessToken, from, to, skip)
		if err != nil {
			return nil, err
		}
		if status == http.StatusUnauthorized && !reauthed {
			// The token may have been revoked upstream; one fresh
			// exchange and one retry of this page.
			reauthed = true
			c.Invalidate()
			accessToken, err = c.EnsureToken(ctx)
			if err != nil {
				return nil, err
			}
			continue
		}
		if status < 200 || status >= 300 {
			return nil, &UpstreamError{Status: status, Body: pg.snippet}
		}

		all = append(all, pg.records...)
		pageFetches.Inc()

		if len(pg.records) < c.pageLimit {
			break
		}
		if len(all) >= c.maxRecords {
			logger.Warn().
				Int("records", len(all)).
				Msg("guesty pagination stopped at safety cap")
			break
		}
		skip += c.pageLimit

		if c.pageDelay > 0 {
			if err := sleep(ctx, c.pageDelay); err != nil {
				return nil, err
			}
		}
	}

	return all, nil
}

type page struct {
	records []domain.RawRecord
	snippet string
}

func (c *Client) fetchPage(ctx context.Context, accessToken string, from, to time.Time, skip int) (page, int, error) {
	u, err := url.Parse(c.baseURL + transactionsPath)
	if err != nil {
		return page{}, 0, fmt.Errorf("transactions url: %w", err)
	}
	q := u.Query()
	q.Set("from", from.Format("2006-01-02"))
	q.Set("to", to.Format("2006-01-02"))
	q.Set("limit", strconv.Itoa(c.pageLimit))
	q.Set("skip", strconv.Itoa(skip))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return page{}, 0, fmt.Errorf("transactions request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return page{}, 0, fmt.Errorf("transactions request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return page{}, 0, fmt.Errorf("transactions response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return page{snippet: snippet(raw)}, resp.StatusCode, nil
	}

	records, err := parsePage(raw)
	if err != nil {
		return page{}, 0, &UpstreamError{Status: resp.StatusCode, Body: snippet(raw)}
	}
	return page{records: records}, resp.StatusCode, nil
}

// parsePage extracts the record array from a page body. Responses place it
// under results, data or transactions depending on endpoint version, or
// return a bare array; the keys are probed in that fixed order.
func parsePage(raw []byte) ([]domain.RawRecord, error) {
	var body interface{}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("page is not JSON: %w", err)
	}

	var items []interface{}
	switch v := body.(type) {
	case map[string]interface{}:
		for _, key := range []string{"results", "data", "transactions"} {
			if arr, ok := v[key].([]interface{}); ok {
				items = arr
				break
			}
		}
	case []interface{}:
		items = v
	}

	records := make([]domain.RawRecord, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]interface{}); ok {
			records = append(records, domain.RawRecord(m))
		}
	}
	return records, nil
}

// snippet truncates an upstream body for error reporting.
func snippet(raw []byte) string {
	const max = 300
	if len(raw) > max {
		return string(raw[:max])
	}
	return string(raw)
}

package commission

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/de-tools/pmc-commission/pkg/models/api"
	"github.com/de-tools/pmc-commission/pkg/models/domain"
	"github.com/de-tools/pmc-commission/pkg/services/commission"
	"github.com/de-tools/pmc-commission/pkg/store/guesty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockReporter struct{ mock.Mock }

func (m *mockReporter) GetCommissions(ctx context.Context, r domain.DateRange) ([]domain.RawRecord, error) {
	args := m.Called(ctx, r)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.RawRecord), args.Error(1)
}

func (m *mockReporter) GetSummary(ctx context.Context, r domain.DateRange) (domain.Summary, error) {
	args := m.Called(ctx, r)
	return args.Get(0).(domain.Summary), args.Error(1)
}

func TestGetSummary(t *testing.T) {
	tests := []struct {
		name           string
		url            string
		setupMock      func(*mockReporter)
		expectedStatus int
		expectedCode   string
		expectedBody   *api.SummaryResponse
	}{
		{
			name: "successful response",
			url:  "/pmc-summary?from=2025-05-01&to=2025-05-31",
			setupMock: func(m *mockReporter) {
				m.On("GetSummary", mock.Anything, mock.Anything).Return(
					domain.Summary{
						Rows: []domain.SummaryRow{
							{
								PropertyKey:  "A",
								PropertyName: "Beach House",
								TotalAmount:  150,
								Rate:         0.05,
								Commission:   7.5,
							},
						},
						TotalAmount:     150,
						TotalCommission: 7.5,
					},
					nil,
				)
			},
			expectedStatus: http.StatusOK,
			expectedBody: &api.SummaryResponse{
				From:  "2025-05-01",
				To:    "2025-05-31",
				Count: 1,
				Results: []api.SummaryRow{
					{
						ListingId:       "A",
						ListingName:     "Beach House",
						PmcTotal:        150,
						SalesRate:       0.05,
						SalesCommission: 7.5,
					},
				},
				Totals: api.SummaryTotals{PmcTotal: 150, SalesCommission: 7.5},
			},
		},
		{
			name:           "missing from param",
			url:            "/pmc-summary?to=2025-05-31",
			setupMock:      func(m *mockReporter) {},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "invalid_request",
		},
		{
			name:           "malformed date",
			url:            "/pmc-summary?from=05-01-2025&to=2025-05-31",
			setupMock:      func(m *mockReporter) {},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "invalid_request",
		},
		{
			name:           "inverted range",
			url:            "/pmc-summary?from=2025-06-01&to=2025-05-01",
			setupMock:      func(m *mockReporter) {},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "invalid_request",
		},
		{
			name: "upstream failure",
			url:  "/pmc-summary?from=2025-05-01&to=2025-05-31",
			setupMock: func(m *mockReporter) {
				m.On("GetSummary", mock.Anything, mock.Anything).Return(
					domain.Summary{},
					&guesty.UpstreamError{Status: 500, Body: "boom"},
				)
			},
			expectedStatus: http.StatusBadGateway,
			expectedCode:   "upstream_error",
		},
		{
			name: "token endpoint rate limited",
			url:  "/pmc-summary?from=2025-05-01&to=2025-05-31",
			setupMock: func(m *mockReporter) {
				m.On("GetSummary", mock.Anything, mock.Anything).Return(
					domain.Summary{},
					&guesty.RateLimitedError{Attempts: 6},
				)
			},
			expectedStatus: http.StatusBadGateway,
			expectedCode:   "rate_limited",
		},
		{
			name: "auth rejected",
			url:  "/pmc-summary?from=2025-05-01&to=2025-05-31",
			setupMock: func(m *mockReporter) {
				m.On("GetSummary", mock.Anything, mock.Anything).Return(
					domain.Summary{},
					&guesty.AuthError{Status: 401, Body: "invalid_client"},
				)
			},
			expectedStatus: http.StatusBadGateway,
			expectedCode:   "auth_failed",
		},
		{
			name: "missing credentials",
			url:  "/pmc-summary?from=2025-05-01&to=2025-05-31",
			setupMock: func(m *mockReporter) {
				m.On("GetSummary", mock.Anything, mock.Anything).Return(
					domain.Summary{},
					&guesty.ConfigError{Reason: "credentials not set"},
				)
			},
			expectedStatus: http.StatusInternalServerError,
			expectedCode:   "config_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reporter := new(mockReporter)
			tt.setupMock(reporter)
			handler := NewHandler(reporter)

			req := httptest.NewRequest("GET", tt.url, nil)
			rec := httptest.NewRecorder()

			handler.GetSummary(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)

			if tt.expectedBody != nil {
				var response api.SummaryResponse
				require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
				assert.Equal(t, *tt.expectedBody, response)
			}
			if tt.expectedCode != "" {
				var response api.Error
				require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
				assert.Equal(t, tt.expectedCode, response.Code)
			}

			reporter.AssertExpectations(t)
		})
	}
}

func TestGetCommissions(t *testing.T) {
	reporter := new(mockReporter)
	reporter.On("GetCommissions", mock.Anything, domain.DateRange{
		From: mustDate(t, "2025-05-01"),
		To:   mustDate(t, "2025-05-31"),
	}).Return(
		[]domain.RawRecord{
			{"type": "PMC_COMMISSION", "listingId": "A", "amount": 10.0},
		},
		nil,
	)
	handler := NewHandler(reporter)

	req := httptest.NewRequest("GET", "/commissions?from=2025-05-01&to=2025-05-31", nil)
	rec := httptest.NewRecorder()

	handler.GetCommissions(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var response api.CommissionsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
	assert.Equal(t, "2025-05-01", response.From)
	assert.Equal(t, 1, response.Count)
	require.Len(t, response.Results, 1)
	assert.Equal(t, "A", response.Results[0]["listingId"])

	reporter.AssertExpectations(t)
}

func TestParseDateParam(t *testing.T) {
	tests := []struct {
		name        string
		query       string
		expectError bool
	}{
		{name: "valid date", query: "from=2025-05-01", expectError: false},
		{name: "wrong layout", query: "from=01-05-2025", expectError: true},
		{name: "missing", query: "", expectError: true},
		{name: "not a date", query: "from=yesterday", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/?"+tt.query, nil)
			_, err := parseDateParam(req, "from")

			if tt.expectError {
				require.Error(t, err)
				var validationErr *commission.ValidationError
				assert.ErrorAs(t, err, &validationErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func mustDate(t *testing.T, s string) (out time.Time) {
	t.Helper()
	out, err := time.Parse("2006-01-02", s)
	require.NoError(t, err)
	return out
}

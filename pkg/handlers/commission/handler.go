package commission

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/de-tools/pmc-commission/pkg/adapters"
	"github.com/de-tools/pmc-commission/pkg/models/api"
	"github.com/de-tools/pmc-commission/pkg/models/domain"
	"github.com/de-tools/pmc-commission/pkg/services/commission"
	"github.com/de-tools/pmc-commission/pkg/store/guesty"
	"github.com/rs/zerolog"
)

const dateLayout = "2006-01-02"

type Handler struct {
	reporter commission.Reporter
}

func NewHandler(reporter commission.Reporter) *Handler {
	return &Handler{reporter: reporter}
}

// GetCommissions serves GET /commissions?from&to with the raw filtered
// commission records.
func (h *Handler) GetCommissions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	dateRange, err := parseDateRange(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	records, err := h.reporter.GetCommissions(ctx, dateRange)
	if err != nil {
		writeError(w, r, err)
		return
	}

	results := adapters.MapRawRecordsDomainToApi(records)
	writeJSON(w, r, http.StatusOK, api.CommissionsResponse{
		From:    dateRange.From.Format(dateLayout),
		To:      dateRange.To.Format(dateLayout),
		Count:   len(results),
		Results: results,
	})
}

// GetSummary serves GET /pmc-summary?from&to with per-property totals.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	dateRange, err := parseDateRange(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	summary, err := h.reporter.GetSummary(ctx, dateRange)
	if err != nil {
		writeError(w, r, err)
		return
	}

	rows, totals := adapters.MapSummaryDomainToApi(summary)
	writeJSON(w, r, http.StatusOK, api.SummaryResponse{
		From:    dateRange.From.Format(dateLayout),
		To:      dateRange.To.Format(dateLayout),
		Count:   len(rows),
		Results: rows,
		Totals:  totals,
	})
}

func parseDateRange(r *http.Request) (domain.DateRange, error) {
	from, err := parseDateParam(r, "from")
	if err != nil {
		return domain.DateRange{}, err
	}
	to, err := parseDateParam(r, "to")
	if err != nil {
		return domain.DateRange{}, err
	}
	if from.After(to) {
		return domain.DateRange{}, &commission.ValidationError{Field: "from", Reason: "must not be after to"}
	}
	return domain.DateRange{From: from, To: to}, nil
}

func parseDateParam(r *http.Request, name string) (time.Time, error) {
	value := r.URL.Query().Get(name)
	if value == "" {
		return time.Time{}, &commission.ValidationError{Field: name, Reason: "missing query param"}
	}
	parsed, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, &commission.ValidationError{Field: name, Reason: "use YYYY-MM-DD"}
	}
	return parsed, nil
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("failed to encode response")
	}
}

// writeError maps the error taxonomy to HTTP statuses and a machine
// readable JSON body. Upstream failures are 502: the fault is on the
// remote side, not in this service.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	logger := zerolog.Ctx(r.Context())

	var (
		validationErr  *commission.ValidationError
		configErr      *guesty.ConfigError
		authErr        *guesty.AuthError
		rateLimitedErr *guesty.RateLimitedError
		upstreamErr    *guesty.UpstreamError
	)

	status := http.StatusInternalServerError
	body := api.Error{Code: "internal_error", Message: "unexpected failure"}

	switch {
	case errors.As(err, &validationErr):
		status = http.StatusBadRequest
		body = api.Error{Code: "invalid_request", Message: validationErr.Error()}
	case errors.As(err, &configErr):
		body = api.Error{Code: "config_error", Message: configErr.Error()}
	case errors.As(err, &rateLimitedErr):
		status = http.StatusBadGateway
		body = api.Error{Code: "rate_limited", Message: rateLimitedErr.Error()}
	case errors.As(err, &authErr):
		status = http.StatusBadGateway
		body = api.Error{
			Code:    "auth_failed",
			Message: "upstream rejected authentication",
			Details: fmt.Sprintf("status %d: %s", authErr.Status, authErr.Body),
		}
	case errors.As(err, &upstreamErr):
		status = http.StatusBadGateway
		body = api.Error{
			Code:    "upstream_error",
			Message: "upstream data request failed",
			Details: fmt.Sprintf("status %d: %s", upstreamErr.Status, upstreamErr.Body),
		}
	}

	logger.Error().Err(err).Int("status", status).Str("code", body.Code).Msg("request failed")
	writeJSON(w, r, status, body)
}

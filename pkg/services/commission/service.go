package commission

import (
	"context"
	"time"

	"github.com/de-tools/pmc-commission/pkg/models/domain"
	"github.com/rs/zerolog"
)

// TransactionSource fetches raw transactions for a date range. Satisfied
// by the guesty client.
type TransactionSource interface {
	FetchTransactions(ctx context.Context, from, to time.Time) ([]domain.RawRecord, error)
}

type Reporter interface {
	// GetCommissions returns the commission-relevant raw records in the
	// range, shape untouched.
	GetCommissions(ctx context.Context, r domain.DateRange) ([]domain.RawRecord, error)
	// GetSummary returns per-property commission totals for the range.
	GetSummary(ctx context.Context, r domain.DateRange) (domain.Summary, error)
}

type reporter struct {
	source TransactionSource
	rates  RateLookup
}

func NewReporter(source TransactionSource, rates RateLookup) Reporter {
	return &reporter{
		source: source,
		rates:  rates,
	}
}

func (s *reporter) GetCommissions(ctx context.Context, r domain.DateRange) ([]domain.RawRecord, error) {
	records, err := s.fetch(ctx, r)
	if err != nil {
		return nil, err
	}
	return FilterRaw(records), nil
}

func (s *reporter) GetSummary(ctx context.Context, r domain.DateRange) (domain.Summary, error) {
	records, err := s.fetch(ctx, r)
	if err != nil {
		return domain.Summary{}, err
	}

	classified := ClassifyAll(records)
	summary := Summarize(classified, s.rates)

	zerolog.Ctx(ctx).Debug().
		Int("fetched", len(records)).
		Int("commissions", len(classified)).
		Int("properties", len(summary.Rows)).
		Msg("commission summary computed")

	return summary, nil
}

func (s *reporter) fetch(ctx context.Context, r domain.DateRange) ([]domain.RawRecord, error) {
	if err := validateRange(r); err != nil {
		return nil, err
	}
	return s.source.FetchTransactions(ctx, r.From, r.To)
}

// validateRange is a defensive re-check; the HTTP boundary already
// rejects malformed parameters.
func validateRange(r domain.DateRange) error {
	if r.From.IsZero() {
		return &ValidationError{Field: "from", Reason: "missing"}
	}
	if r.To.IsZero() {
		return &ValidationError{Field: "to", Reason: "missing"}
	}
	if r.From.After(r.To) {
		return &ValidationError{Field: "from", Reason: "must not be after to"}
	}
	return nil
}

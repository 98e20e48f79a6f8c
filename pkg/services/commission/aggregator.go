package commission

import (
	"math"
	"sort"

	"github.com/de-tools/pmc-commission/pkg/models/domain"
)

// RateLookup resolves the commission rate for a property key.
type RateLookup func(propertyKey string) float64

// NewRateLookup builds a lookup that prefers a per-property override and
// falls back to the global default.
func NewRateLookup(defaultRate float64, overrides map[string]float64) RateLookup {
	return func(propertyKey string) float64 {
		if rate, ok := overrides[propertyKey]; ok {
			return rate
		}
		return defaultRate
	}
}

// Summarize groups classified records by property, sums amounts at full
// float precision, applies the per-property rate and rounds for output.
// Rows sort by total descending, key ascending on ties. Grand totals are
// summed from the rounded row values so the displayed figures reconcile
// exactly.
func Summarize(records []domain.ClassifiedRecord, rates RateLookup) domain.Summary {
	type group struct {
		name  string
		total float64
	}
	groups := map[string]*group{}

	for _, rec := range records {
		g, ok := groups[rec.PropertyKey]
		if !ok {
			g = &group{}
			groups[rec.PropertyKey] = g
		}
		g.total += rec.Amount
		if g.name == "" && rec.PropertyName != "" {
			g.name = rec.PropertyName
		}
	}

	rows := make([]domain.SummaryRow, 0, len(groups))
	for key, g := range groups {
		rate := float64(0)
		if rates != nil {
			rate = rates(key)
		}
		rows = append(rows, domain.SummaryRow{
			PropertyKey:  key,
			PropertyName: g.name,
			TotalAmount:  round2(g.total),
			Rate:         rate,
			Commission:   round2(g.total * rate),
		})
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].TotalAmount != rows[j].TotalAmount {
			return rows[i].TotalAmount > rows[j].TotalAmount
		}
		return rows[i].PropertyKey < rows[j].PropertyKey
	})

	summary := domain.Summary{Rows: rows}
	for _, row := range rows {
		summary.TotalAmount += row.TotalAmount
		summary.TotalCommission += row.Commission
	}
	summary.TotalAmount = round2(summary.TotalAmount)
	summary.TotalCommission = round2(summary.TotalCommission)

	return summary
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

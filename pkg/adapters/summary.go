package adapters

import (
	"github.com/de-tools/pmc-commission/pkg/models/api"
	"github.com/de-tools/pmc-commission/pkg/models/domain"
)

func MapSummaryRowDomainToApi(row domain.SummaryRow) api.SummaryRow {
	return api.SummaryRow{
		ListingId:       row.PropertyKey,
		ListingName:     row.PropertyName,
		PmcTotal:        row.TotalAmount,
		SalesRate:       row.Rate,
		SalesCommission: row.Commission,
	}
}

func MapSummaryDomainToApi(summary domain.Summary) ([]api.SummaryRow, api.SummaryTotals) {
	rows := make([]api.SummaryRow, 0, len(summary.Rows))
	for _, row := range summary.Rows {
		rows = append(rows, MapSummaryRowDomainToApi(row))
	}

	return rows, api.SummaryTotals{
		PmcTotal:        summary.TotalAmount,
		SalesCommission: summary.TotalCommission,
	}
}

func MapRawRecordsDomainToApi(records []domain.RawRecord) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(records))
	for _, r := range records {
		out = append(out, map[string]interface{}(r))
	}
	return out
}

package domain

import "time"

// DateRange is a closed calendar-date interval. Both bounds are dates
// (midnight UTC); From must not be after To.
type DateRange struct {
	From time.Time
	To   time.Time
}

// RawRecord is a transaction as returned by the upstream API. Field names
// vary across API versions, so it stays schemaless until classification.
type RawRecord map[string]interface{}

// ClassifiedRecord is a commission-relevant transaction reduced to the
// fields the aggregation cares about.
type ClassifiedRecord struct {
	PropertyKey  string  // listing/entity identifier, "UNKNOWN" when absent
	PropertyName string  // human-readable listing name, may be empty
	Amount       float64 // 0 when no numeric amount field was found
}

type SummaryRow struct {
	PropertyKey  string
	PropertyName string
	TotalAmount  float64 // rounded to 2 decimals
	Rate         float64 // commission rate applied, e.g. 0.05
	Commission   float64 // TotalAmount * Rate, rounded to 2 decimals
}

type Summary struct {
	Rows            []SummaryRow
	TotalAmount     float64
	TotalCommission float64
}

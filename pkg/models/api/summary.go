package api

type SummaryRow struct {
	ListingId       string  `json:"listingId"`
	ListingName     string  `json:"listingName"`
	PmcTotal        float64 `json:"pmcTotal"`
	SalesRate       float64 `json:"salesRate"`
	SalesCommission float64 `json:"salesCommission"`
}

type SummaryTotals struct {
	PmcTotal        float64 `json:"pmcTotal"`
	SalesCommission float64 `json:"salesCommission"`
}

type SummaryResponse struct {
	From    string        `json:"from"`
	To      string        `json:"to"`
	Count   int           `json:"count"`
	Results []SummaryRow  `json:"results"`
	Totals  SummaryTotals `json:"totals"`
}

type CommissionsResponse struct {
	From    string                   `json:"from"`
	To      string                   `json:"to"`
	Count   int                      `json:"count"`
	Results []map[string]interface{} `json:"results"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

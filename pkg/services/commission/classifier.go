package commission

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/de-tools/pmc-commission/pkg/models/domain"
)

// UnknownPropertyKey groups records that carry no identifying field.
const UnknownPropertyKey = "UNKNOWN"

const commissionType = "PMC_COMMISSION"

// fieldPath addresses a value inside a raw record, possibly nested one
// level (e.g. listing._id).
type fieldPath []string

// Fallback orders below are a stable contract: the first present field
// wins, regardless of later ones.
var (
	typePaths = []fieldPath{{"type"}, {"transactionType"}}

	propertyKeyPaths = []fieldPath{
		{"listingId"},
		{"listing", "_id"},
		{"listing", "id"},
		{"listing"},
		{"entityId"},
		{"entity", "_id"},
		{"entity", "id"},
	}

	propertyNamePaths = []fieldPath{
		{"listing", "title"},
		{"listing", "nickname"},
		{"listing", "name"},
		{"listingTitle"},
		{"listingName"},
	}

	amountPaths = []fieldPath{{"amount"}, {"netAmount"}, {"total"}, {"value"}}
)

// commissionPhrases drive the keyword fallback for records without a type
// field. Substring matching over serialized text is best-effort and can
// misfire on incidental mentions; it never overrides an explicit type.
var commissionPhrases = []string{"pmc_commission", "pmc commission", "management fee"}

// Classify reduces a raw transaction to a ClassifiedRecord. The second
// return value is false for records that are not commission-relevant.
func Classify(rec domain.RawRecord) (domain.ClassifiedRecord, bool) {
	if !isCommission(rec) {
		return domain.ClassifiedRecord{}, false
	}

	return domain.ClassifiedRecord{
		PropertyKey:  extractPropertyKey(rec),
		PropertyName: extractPropertyName(rec),
		Amount:       extractAmount(rec),
	}, true
}

// ClassifyAll filters a fetched batch down to commission records.
func ClassifyAll(records []domain.RawRecord) []domain.ClassifiedRecord {
	var out []domain.ClassifiedRecord
	for _, rec := range records {
		if classified, ok := Classify(rec); ok {
			out = append(out, classified)
		}
	}
	return out
}

// FilterRaw returns the raw records that classify as commissions, shape
// untouched.
func FilterRaw(records []domain.RawRecord) []domain.RawRecord {
	var out []domain.RawRecord
	for _, rec := range records {
		if isCommission(rec) {
			out = append(out, rec)
		}
	}
	return out
}

func isCommission(rec domain.RawRecord) bool {
	for _, p := range typePaths {
		v, ok := lookup(rec, p)
		if !ok {
			continue
		}
		s, _ := v.(string)
		return strings.ToUpper(s) == commissionType
	}

	// No type field at all: fall back to keyword matching over the
	// serialized record.
	raw, err := json.Marshal(rec)
	if err != nil {
		return false
	}
	text := strings.ToLower(string(raw))
	for _, phrase := range commissionPhrases {
		if strings.Contains(text, phrase) {
			return true
		}
	}
	return false
}

func extractPropertyKey(rec domain.RawRecord) string {
	for _, p := range propertyKeyPaths {
		if v, ok := lookup(rec, p); ok {
			if s := stringify(v); s != "" {
				return s
			}
		}
	}
	return UnknownPropertyKey
}

func extractPropertyName(rec domain.RawRecord) string {
	for _, p := range propertyNamePaths {
		if v, ok := lookup(rec, p); ok {
			if s, isStr := v.(string); isStr && s != "" {
				return s
			}
		}
	}
	return ""
}

// extractAmount takes the first present numeric amount field; a record
// without one contributes 0 to totals but is not dropped.
func extractAmount(rec domain.RawRecord) float64 {
	for _, p := range amountPaths {
		v, ok := lookup(rec, p)
		if !ok {
			continue
		}
		if n, numeric := toNumber(v); numeric {
			return n
		}
	}
	return 0
}

func lookup(rec domain.RawRecord, path fieldPath) (interface{}, bool) {
	var cur interface{} = map[string]interface{}(rec)
	for _, key := range path {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok || cur == nil {
			return nil, false
		}
	}
	return cur, true
}

func stringify(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return ""
	}
}

func toNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

package domain

// CanonicalGroup is the reconciled view of every record sharing one canonical name.
// Prices and URLs are keyed by 1-based source index.
type CanonicalGroup struct {
	DisplayName string          `json:"displayName"`
	Category    string          `json:"category"`
	SubCategory string          `json:"subCategory"`
	BundleLabel string          `json:"bundleLabel"`
	Prices      map[int]float64 `json:"prices"`
	URLs        map[int]string  `json:"urls"`
}

// ReportRow is a CanonicalGroup plus the derived price-gap metric
type ReportRow struct {
	CanonicalGroup
	GapPercent *int `json:"gapPercent,omitempty"` // nil when fewer than two sources have a price
}

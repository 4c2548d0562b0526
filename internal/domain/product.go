package domain

import "time"

// RecordStatus is the lifecycle state of a RawProductRecord
type RecordStatus string

const (
	StatusPending RecordStatus = "pending"
	StatusSuccess RecordStatus = "success"
	StatusError   RecordStatus = "error"
)

// Placeholder labels used before or instead of a real classification.
const (
	CategoryUnprocessed = "Chưa xử lý" // set by extraction, replaced by classification
	CategoryOther       = "Khác"
	CategoryCombo       = "Combo"
	SubCategoryBundle   = "Bộ sản phẩm"

	BundleSingle   = "Lẻ"
	BundleRaw      = "Raw"
	BundleRawCombo = "Combo (Raw)"
)

// ClassificationResult is the canonical identity assigned to a raw product name
type ClassificationResult struct {
	CanonicalName string `json:"canonicalName"`
	BundleLabel   string `json:"bundleLabel"`
	CategoryTop   string `json:"categoryTop"`
	CategorySub   string `json:"categorySub"`
}

// RawProductRecord is one observation of a product from one source.
// Classification fields are always present; a pending record carries the
// unclassified placeholders set at extraction time.
type RawProductRecord struct {
	ID          string       `json:"id"`
	RawName     string       `json:"rawName"`
	Price       float64      `json:"price"` // 0 means unknown
	SourceIndex int          `json:"sourceIndex"`
	ProductURL  string       `json:"productUrl"`
	Status      RecordStatus `json:"status"`
	ExtractedAt time.Time    `json:"extractedAt"`

	ClassificationResult
}

// Classified reports whether the record went through a classifier
func (r *RawProductRecord) Classified() bool {
	return r.Status == StatusSuccess && r.CanonicalName != ""
}

// ApplyClassification copies a classification onto the record and marks it successful.
// An empty canonical name falls back to the raw name so the record is never left unnamed.
func (r *RawProductRecord) ApplyClassification(res ClassificationResult) {
	if res.CanonicalName == "" {
		res.CanonicalName = r.RawName
	}
	if res.CategoryTop == "" {
		res.CategoryTop = CategoryOther
	}
	if res.CategorySub == "" {
		res.CategorySub = CategoryOther
	}
	if res.BundleLabel == "" {
		res.BundleLabel = BundleSingle
	}
	r.ClassificationResult = res
	r.Status = StatusSuccess
}

// ExtractedItem is a single product as returned by the AI extraction call
type ExtractedItem struct {
	Name       string  `json:"name"`
	Price      float64 `json:"price"`
	ProductURL string  `json:"productUrl"`
}

// ExtractionTask is one queued extraction input: a product/listing URL, pasted HTML, or both
type ExtractionTask struct {
	URL         string `json:"url"`
	HTML        string `json:"html,omitempty"`
	Title       string `json:"title,omitempty"`
	SourceIndex int    `json:"sourceIndex" binding:"required,min=1"`
}

// StoreRecord is a physical store returned by the store-search collaborator
type StoreRecord struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Phone   string `json:"phone,omitempty"`
	Region  string `json:"region"`
	MapsURL string `json:"mapsUrl,omitempty"`
}

// MatchResult is one catalog entry accepted as a match for a raw name
type MatchResult struct {
	CanonicalName string   `json:"canonicalName"`
	MatchScore    float64  `json:"matchScore"`
	MatchedTokens []string `json:"matchedTokens,omitempty"`
}

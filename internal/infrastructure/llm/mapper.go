package llm

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/SIRP996/cao-du-lieu-sub000/internal/domain"
)

// FlexPrice accepts a price as a JSON number or as a display string such as "150.000đ".
// Display strings are read as whole currency units: every non-digit is dropped.
type FlexPrice float64

// UnmarshalJSON implements json.Unmarshaler
func (p *FlexPrice) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*p = 0
		return nil
	}
	if data[0] != '"' {
		v, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			return fmt.Errorf("price %s: %w", data, err)
		}
		*p = FlexPrice(v)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*p = FlexPrice(ParseDisplayPrice(s))
	return nil
}

// ParseDisplayPrice reads a formatted VND price, returning 0 when no digits are present
func ParseDisplayPrice(s string) float64 {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return 0
	}
	v, err := strconv.ParseFloat(b.String(), 64)
	if err != nil {
		return 0
	}
	return v
}

// ExtractionItem is one product as the model reports it.
// Prompts in Vietnamese sometimes get sanPham/gia keys back instead of name/price.
type ExtractionItem struct {
	Name       string    `json:"name"`
	SanPham    string    `json:"sanPham"`
	Price      FlexPrice `json:"price"`
	Gia        FlexPrice `json:"gia"`
	ProductURL string    `json:"productUrl"`
	URL        string    `json:"url"`
}

// ExtractionPayload is the structured-output envelope requested from the model
type ExtractionPayload struct {
	Products []ExtractionItem `json:"products"`
}

// ParseExtraction decodes either the envelope object or a bare array of items
func ParseExtraction(text string) ([]domain.ExtractedItem, error) {
	cleaned := stripCodeFence(text)
	start := strings.IndexAny(cleaned, "{[")
	if start >= 0 && cleaned[start] == '[' {
		var items []ExtractionItem
		if err := DecodeJSON(cleaned, &items); err != nil {
			return nil, err
		}
		return MapExtractedItems(items), nil
	}

	var payload ExtractionPayload
	if err := DecodeJSON(cleaned, &payload); err != nil {
		return nil, err
	}
	return MapExtractedItems(payload.Products), nil
}

// MapExtractedItems converts model items to domain items, dropping unnamed entries
func MapExtractedItems(items []ExtractionItem) []domain.ExtractedItem {
	out := make([]domain.ExtractedItem, 0, len(items))
	for _, item := range items {
		name := strings.TrimSpace(item.Name)
		if name == "" {
			name = strings.TrimSpace(item.SanPham)
		}
		if name == "" {
			continue
		}

		price := float64(item.Price)
		if price <= 0 {
			price = float64(item.Gia)
		}
		if price < 0 {
			price = 0
		}

		link := strings.TrimSpace(item.ProductURL)
		if link == "" {
			link = strings.TrimSpace(item.URL)
		}

		out = append(out, domain.ExtractedItem{
			Name:       name,
			Price:      price,
			ProductURL: link,
		})
	}
	return out
}

// ClassificationItem is the model's answer for one raw name
type ClassificationItem struct {
	CanonicalName string `json:"canonicalName"`
	BundleLabel   string `json:"bundleLabel"`
	BundleType    string `json:"bundleType"`
	CategoryTop   string `json:"categoryTop"`
	Category      string `json:"category"`
	CategorySub   string `json:"categorySub"`
	SubCategory   string `json:"subCategory"`
}

// ToResult maps the item onto a ClassificationResult, preferring the primary key names
func (c ClassificationItem) ToResult() domain.ClassificationResult {
	return domain.ClassificationResult{
		CanonicalName: strings.TrimSpace(c.CanonicalName),
		BundleLabel:   firstNonEmpty(c.BundleLabel, c.BundleType),
		CategoryTop:   firstNonEmpty(c.CategoryTop, c.Category),
		CategorySub:   firstNonEmpty(c.CategorySub, c.SubCategory),
	}
}

// ParseClassification decodes a JSON object keyed by raw product name
func ParseClassification(text string) (map[string]domain.ClassificationResult, error) {
	var payload map[string]ClassificationItem
	if err := DecodeJSON(text, &payload); err != nil {
		return nil, err
	}
	out := make(map[string]domain.ClassificationResult, len(payload))
	for raw, item := range payload {
		out[strings.TrimSpace(raw)] = item.ToResult()
	}
	return out, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

package domain

import "strings"

// MaxSources is the number of retail sources a session can configure
const MaxSources = 5

// MarketplaceType identifies the retail channel behind a source independently of its display name
type MarketplaceType string

const (
	MarketplaceShopee MarketplaceType = "shopee"
	MarketplaceLazada MarketplaceType = "lazada"
	MarketplaceTikTok MarketplaceType = "tiktok"
	MarketplaceTiki   MarketplaceType = "tiki"
	MarketplaceOther  MarketplaceType = "other"
)

// Valid reports whether m is one of the known marketplace types
func (m MarketplaceType) Valid() bool {
	switch m {
	case MarketplaceShopee, MarketplaceLazada, MarketplaceTikTok, MarketplaceTiki, MarketplaceOther:
		return true
	}
	return false
}

// voucherMarketplaces are the channels whose prices get the per-source voucher applied
var voucherMarketplaces = map[MarketplaceType]bool{
	MarketplaceShopee: true,
	MarketplaceLazada: true,
	MarketplaceTikTok: true,
	MarketplaceTiki:   true,
}

// SourceConfig is one configured retail source. Records refer to it by 1-based position,
// so reordering sources never renumbers existing records.
type SourceConfig struct {
	Name            string          `json:"name"`
	VoucherPercent  float64         `json:"voucherPercent"`
	MarketplaceType MarketplaceType `json:"marketplaceType,omitempty"`
}

// Marketplace returns the explicit marketplace type, falling back to detecting
// the marketplace name inside the display name for configs saved before the field existed.
func (s SourceConfig) Marketplace() MarketplaceType {
	if s.MarketplaceType != "" {
		return s.MarketplaceType
	}
	return DetectMarketplace(s.Name)
}

// VoucherEligible reports whether the source's voucher applies to its prices
func (s SourceConfig) VoucherEligible() bool {
	return s.VoucherPercent > 0 && voucherMarketplaces[s.Marketplace()]
}

// DetectMarketplace maps a free-text source name to a marketplace by substring
func DetectMarketplace(name string) MarketplaceType {
	upper := strings.ToUpper(name)
	switch {
	case strings.Contains(upper, "SHOPEE"):
		return MarketplaceShopee
	case strings.Contains(upper, "LAZADA"):
		return MarketplaceLazada
	case strings.Contains(upper, "TIKTOK"):
		return MarketplaceTikTok
	case strings.Contains(upper, "TIKI"):
		return MarketplaceTiki
	default:
		return MarketplaceOther
	}
}

// DefaultSources returns the session's initial source list
func DefaultSources() []SourceConfig {
	return []SourceConfig{
		{Name: "Website chính hãng", MarketplaceType: MarketplaceOther},
		{Name: "SHOPEE Mall", MarketplaceType: MarketplaceShopee},
		{Name: "LAZADA Mall", MarketplaceType: MarketplaceLazada},
		{Name: "TIKTOK Shop", MarketplaceType: MarketplaceTikTok},
		{Name: "TIKI Trading", MarketplaceType: MarketplaceTiki},
	}
}

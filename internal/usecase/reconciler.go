package usecase

import (
	"math"
	"sort"
	"strings"

	"github.com/SIRP996/cao-du-lieu-sub000/internal/domain"
)

// priceRoundingUnit is a display convenience for VND, not a financial rounding rule.
// Effective prices lose up to 50 units of precision here.
const priceRoundingUnit = 100

// Report sort orders
const (
	SortByName = "name"
	SortByGap  = "gap"
)

// EffectivePrice applies the source voucher (when eligible) and rounds to priceRoundingUnit
func EffectivePrice(price float64, source domain.SourceConfig) float64 {
	if price <= 0 {
		return 0
	}
	if source.VoucherEligible() {
		price = price * (1 - source.VoucherPercent/100)
	}
	return math.Round(price/priceRoundingUnit) * priceRoundingUnit
}

// isPlaceholder reports whether a label carries no classification information
func isPlaceholder(label string) bool {
	label = strings.TrimSpace(label)
	return label == "" ||
		label == domain.CategoryOther ||
		label == domain.CategoryUnprocessed ||
		strings.Contains(label, domain.BundleRaw)
}

// Reconcile groups records by canonical name and keeps, per source, the minimum
// effective price and the URL of the record that produced it.
//
// Labels are folded last-writer-wins, except placeholders never overwrite a specific
// value. Groups are returned in first-seen order. Records and sources are not modified.
func Reconcile(records []domain.RawProductRecord, sources []domain.SourceConfig) []domain.CanonicalGroup {
	index := make(map[string]int)
	groups := make([]domain.CanonicalGroup, 0)

	for _, rec := range records {
		name := strings.TrimSpace(rec.CanonicalName)
		if name == "" {
			name = strings.TrimSpace(rec.RawName)
		}
		if name == "" {
			continue
		}

		pos, ok := index[name]
		if !ok {
			pos = len(groups)
			index[name] = pos
			groups = append(groups, domain.CanonicalGroup{
				DisplayName: name,
				Category:    labelOr(rec.CategoryTop, domain.CategoryOther),
				SubCategory: labelOr(rec.CategorySub, domain.CategoryOther),
				BundleLabel: labelOr(rec.BundleLabel, domain.BundleSingle),
				Prices:      make(map[int]float64),
				URLs:        make(map[int]string),
			})
		}
		g := &groups[pos]

		if ok {
			foldLabel(&g.Category, rec.CategoryTop)
			foldLabel(&g.SubCategory, rec.CategorySub)
			foldLabel(&g.BundleLabel, rec.BundleLabel)
		}

		var source domain.SourceConfig
		if rec.SourceIndex >= 1 && rec.SourceIndex <= len(sources) {
			source = sources[rec.SourceIndex-1]
		}
		price := EffectivePrice(rec.Price, source)
		if price <= 0 {
			continue
		}

		current, seen := g.Prices[rec.SourceIndex]
		if !seen || price < current {
			g.Prices[rec.SourceIndex] = price
			g.URLs[rec.SourceIndex] = rec.ProductURL
		}
	}

	return groups
}

// foldLabel applies the last-writer-wins policy for one label:
// a placeholder never overwrites a specific value.
func foldLabel(dst *string, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	if isPlaceholder(value) && !isPlaceholder(*dst) {
		return
	}
	*dst = value
}

func labelOr(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}

// GapPercent returns round(100 * (max-min) / min) over the group's priced sources,
// or nil when fewer than two sources have a price
func GapPercent(group domain.CanonicalGroup) *int {
	var (
		count  int
		lo, hi float64
	)
	for _, p := range group.Prices {
		if p <= 0 {
			continue
		}
		if count == 0 || p < lo {
			lo = p
		}
		if count == 0 || p > hi {
			hi = p
		}
		count++
	}
	if count < 2 {
		return nil
	}
	gap := int(math.Round(100 * (hi - lo) / lo))
	return &gap
}

// BuildReport attaches the gap metric to each group and sorts the rows.
// Name order uses the normalized display name; gap order puts the widest gap first
// and rows without a gap last.
func BuildReport(groups []domain.CanonicalGroup, sortBy string) []domain.ReportRow {
	rows := make([]domain.ReportRow, len(groups))
	for i, g := range groups {
		rows[i] = domain.ReportRow{CanonicalGroup: g, GapPercent: GapPercent(g)}
	}

	byName := func(i, j int) bool {
		a, b := Normalize(rows[i].DisplayName), Normalize(rows[j].DisplayName)
		if a != b {
			return a < b
		}
		return rows[i].DisplayName < rows[j].DisplayName
	}

	switch sortBy {
	case SortByGap:
		sort.SliceStable(rows, func(i, j int) bool {
			gi, gj := rows[i].GapPercent, rows[j].GapPercent
			switch {
			case gi == nil && gj == nil:
				return byName(i, j)
			case gi == nil:
				return false
			case gj == nil:
				return true
			case *gi != *gj:
				return *gi > *gj
			}
			return byName(i, j)
		})
	default:
		sort.SliceStable(rows, byName)
	}
	return rows
}

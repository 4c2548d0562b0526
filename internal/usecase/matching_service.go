package usecase

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/SIRP996/cao-du-lieu-sub000/internal/catalog"
	"github.com/SIRP996/cao-du-lieu-sub000/internal/domain"
)

// Scoring defaults. Both values were tuned against the product catalog and are kept
// configurable through MatchConfig rather than treated as principled constants.
const (
	defaultMatchThreshold = 0.85
	defaultPartialCredit  = 0.8 // catalog token found only as a substring of the raw name
	wholeWordCredit       = 1.0
)

// categoryRule maps a normalized phrase to a coarse and a fine category
type categoryRule struct {
	phrase string
	top    string
	sub    string
}

// categoryRules is checked in order against the normalized canonical name; first hit wins
var categoryRules = []categoryRule{
	{"tay trang", "Làm sạch", "Tẩy trang"},
	{"sua rua mat", "Làm sạch", "Sữa rửa mặt"},
	{"gel rua mat", "Làm sạch", "Sữa rửa mặt"},
	{"tay da chet co the", "Chăm sóc cơ thể", "Tẩy da chết"},
	{"tay da chet", "Làm sạch", "Tẩy da chết"},
	{"nuoc hoa hong", "Dưỡng da", "Toner"},
	{"can bang da", "Dưỡng da", "Toner"},
	{"toner", "Dưỡng da", "Toner"},
	{"serum", "Dưỡng da", "Serum"},
	{"tinh chat", "Dưỡng da", "Serum"},
	{"giam mun", "Dưỡng da", "Trị mụn"},
	{"mat na", "Dưỡng da", "Mặt nạ"},
	{"chong nang", "Chống nắng", "Kem chống nắng"},
	{"kem duong", "Dưỡng da", "Kem dưỡng"},
	{"dau goi", "Chăm sóc tóc", "Dầu gội"},
	{"dau xa", "Chăm sóc tóc", "Dầu xả"},
	{"duong toc", "Chăm sóc tóc", "Dưỡng tóc"},
	{"sua tam", "Chăm sóc cơ thể", "Sữa tắm"},
	{"son duong", "Chăm sóc môi", "Son dưỡng"},
	{"son", "Trang điểm", "Son môi"},
}

// MatchConfig holds configuration for the matching service
type MatchConfig struct {
	MatchThreshold     float64
	PartialCredit      float64
	EnableDebugLogging bool
}

// catalogEntry is a catalog name with its normalized form precomputed
type catalogEntry struct {
	name       string
	normalized string
	tokens     []string
}

// MatchingService is the deterministic classifier: it resolves raw listing names
// against the catalog by token overlap, without any I/O.
type MatchingService struct {
	matchThreshold     float64
	partialCredit      float64
	enableDebugLogging bool
	entries            []catalogEntry
	log                zerolog.Logger
}

// NewMatchingService creates a new matching service over the given catalog
func NewMatchingService(cat *catalog.Catalog, config MatchConfig, log zerolog.Logger) *MatchingService {
	threshold := config.MatchThreshold
	if threshold <= 0 || threshold > 1 {
		threshold = defaultMatchThreshold
	}

	partial := config.PartialCredit
	if partial <= 0 || partial > 1 {
		partial = defaultPartialCredit
	}

	if cat == nil {
		cat = catalog.Default()
	}

	entries := make([]catalogEntry, 0, cat.Len())
	for _, name := range cat.Entries() {
		normalized := Normalize(name)
		tokens := tokenize(normalized)
		if len(tokens) == 0 {
			continue
		}
		entries = append(entries, catalogEntry{name: name, normalized: normalized, tokens: tokens})
	}

	return &MatchingService{
		matchThreshold:     threshold,
		partialCredit:      partial,
		enableDebugLogging: config.EnableDebugLogging,
		entries:            entries,
		log:                log.With().Str("component", "matcher").Logger(),
	}
}

// Classify resolves a raw name to a canonical identity, bundle label and categories.
// It always returns a usable result; names with no accepted match keep their raw form.
func (s *MatchingService) Classify(rawName string) domain.ClassificationResult {
	matches := s.FindMatches(rawName)

	switch len(matches) {
	case 0:
		bundle := domain.BundleSingle
		if HasBundleKeyword(rawName) || ExtractQuantity(rawName) > 1 {
			bundle = domain.BundleRawCombo
		}
		return domain.ClassificationResult{
			CanonicalName: rawName,
			BundleLabel:   bundle,
			CategoryTop:   domain.CategoryOther,
			CategorySub:   domain.CategoryOther,
		}

	case 1:
		name := matches[0].CanonicalName
		if qty := ExtractQuantity(rawName); qty > 1 {
			return domain.ClassificationResult{
				CanonicalName: fmt.Sprintf("Combo %d %s", qty, name),
				BundleLabel:   fmt.Sprintf("Combo %d", qty),
				CategoryTop:   domain.CategoryCombo,
				CategorySub:   domain.SubCategoryBundle,
			}
		}
		if HasBundleKeyword(rawName) {
			return domain.ClassificationResult{
				CanonicalName: "Combo " + name,
				BundleLabel:   "Combo",
				CategoryTop:   domain.CategoryCombo,
				CategorySub:   domain.SubCategoryBundle,
			}
		}
		top, sub := categoryFor(Normalize(name))
		return domain.ClassificationResult{
			CanonicalName: name,
			BundleLabel:   domain.BundleSingle,
			CategoryTop:   top,
			CategorySub:   sub,
		}

	default:
		names := make([]string, len(matches))
		for i, m := range matches {
			names[i] = m.CanonicalName
		}
		sort.Strings(names)
		return domain.ClassificationResult{
			CanonicalName: strings.Join(names, " + "),
			BundleLabel:   fmt.Sprintf("Combo %d", len(names)),
			CategoryTop:   domain.CategoryCombo,
			CategorySub:   domain.SubCategoryBundle,
		}
	}
}

// FindMatches returns the minimal set of non-redundant catalog entries referenced by rawName.
// Candidates scoring at least the threshold are ranked by score then name length; a candidate
// that is a textual subset or superset of an already kept one only survives if it is longer.
func (s *MatchingService) FindMatches(rawName string) []domain.MatchResult {
	normalizedRaw := Normalize(rawName)
	if normalizedRaw == "" {
		return nil
	}

	if s.enableDebugLogging {
		s.log.Debug().Str("raw", rawName).Str("normalized", normalizedRaw).Msg("matching")
	}

	type candidate struct {
		entry  catalogEntry
		score  float64
		tokens []string
	}

	var candidates []candidate
	for _, entry := range s.entries {
		score, matched := s.calculateMatchScore(normalizedRaw, entry)
		if s.enableDebugLogging && score > 0 {
			s.log.Debug().Str("catalog", entry.name).Float64("score", score).Strs("matched", matched).Msg("candidate")
		}
		if score >= s.matchThreshold {
			candidates = append(candidates, candidate{entry: entry, score: score, tokens: matched})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		li, lj := utf8.RuneCountInString(candidates[i].entry.name), utf8.RuneCountInString(candidates[j].entry.name)
		if li != lj {
			return li > lj
		}
		return candidates[i].entry.name < candidates[j].entry.name
	})

	var kept []candidate
	for _, c := range candidates {
		// c survives only if it is longer than every kept name it overlaps, and then replaces all of them
		dominated := false
		var overlapping []int
		for i, k := range kept {
			if !strings.Contains(k.entry.normalized, c.entry.normalized) && !strings.Contains(c.entry.normalized, k.entry.normalized) {
				continue
			}
			if len(k.entry.normalized) >= len(c.entry.normalized) {
				dominated = true
				break
			}
			overlapping = append(overlapping, i)
		}
		if dominated {
			continue
		}
		if len(overlapping) == 0 {
			kept = append(kept, c)
			continue
		}

		next := kept[:0:0]
		for i, k := range kept {
			switch {
			case i == overlapping[0]:
				next = append(next, c)
			case containsIndex(overlapping, i):
			default:
				next = append(next, k)
			}
		}
		kept = next
	}

	results := make([]domain.MatchResult, len(kept))
	for i, k := range kept {
		results[i] = domain.MatchResult{
			CanonicalName: k.entry.name,
			MatchScore:    k.score,
			MatchedTokens: k.tokens,
		}
	}
	return results
}

func containsIndex(indexes []int, i int) bool {
	for _, idx := range indexes {
		if idx == i {
			return true
		}
	}
	return false
}

// calculateMatchScore is the average per-token credit of a catalog entry against the raw name:
// a whole-word occurrence earns 1.0, a substring-only occurrence earns the partial credit.
// Returns the score in [0,1] and the catalog tokens that earned any credit.
func (s *MatchingService) calculateMatchScore(normalizedRaw string, entry catalogEntry) (float64, []string) {
	if normalizedRaw == "" || len(entry.tokens) == 0 {
		return 0, nil
	}

	var total float64
	var matched []string
	for _, token := range entry.tokens {
		switch {
		case containsWord(normalizedRaw, token):
			total += wholeWordCredit
			matched = append(matched, token)
		case strings.Contains(normalizedRaw, token):
			total += s.partialCredit
			matched = append(matched, token)
		}
	}

	return total / float64(len(entry.tokens)), matched
}

// categoryFor looks up the category pair for a normalized product name
func categoryFor(normalizedName string) (string, string) {
	for _, rule := range categoryRules {
		if containsWord(normalizedName, rule.phrase) {
			return rule.top, rule.sub
		}
	}
	return domain.CategoryOther, domain.CategoryOther
}

package usecase

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Compiled quantity patterns, tried in this order; the first one yielding N >= 2 wins.
var (
	// "combo 3", "bộ 2", "set: 4", "mua 2", "sl 5", "số lượng 3"
	bundlePrefixPattern = regexp.MustCompile(`(?:^|[^\p{L}\p{N}])(?:combo|bộ|set|mua|sl|số lượng)\s*[:x×\-.]?\s*(\d{1,3})(?:$|\D)`)

	// "140ml x2", "(x3)", "[X 2]"
	multiplierPattern = regexp.MustCompile(`(?:^|[\s\[\(])[x×]\s?(\d{1,3})(?:$|[^\p{L}\p{N}])`)

	// buy one get one
	buyOneGetOnePattern = regexp.MustCompile(`mua\s*1\s*tặng\s*1`)

	// "2 chai dầu gội", "3 hộp mặt nạ"
	leadingUnitPattern = regexp.MustCompile(`^\s*(\d{1,3})\s*(?:chai|lọ|hộp|túi|miếng|cái)(?:$|[^\p{L}])`)

	// bare bundle keyword, with or without a number
	bundleKeywordPattern = regexp.MustCompile(`(?:^|[^\p{L}\p{N}])(?:combo|bộ|set)(?:$|[^\p{L}])`)
)

// prepareForQuantity brings a raw name into composed lowercase form so the
// Vietnamese keywords in the patterns match regardless of input normalization
func prepareForQuantity(rawName string) string {
	return strings.ToLower(norm.NFC.String(rawName))
}

// ExtractQuantity infers how many units a listing sells from its free-text name.
// Signals are tried in fixed precedence: explicit bundle prefix, "xN" multiplier,
// buy-one-get-one, leading "<N> <unit>". A matched number below 2 carries no
// bundle information and the next rule is tried. Defaults to 1.
func ExtractQuantity(rawName string) int {
	s := prepareForQuantity(rawName)
	if s == "" {
		return 1
	}

	if n, ok := firstQuantity(bundlePrefixPattern, s); ok {
		return n
	}
	if n, ok := firstQuantity(multiplierPattern, s); ok {
		return n
	}
	if buyOneGetOnePattern.MatchString(s) {
		return 2
	}
	if n, ok := firstQuantity(leadingUnitPattern, s); ok {
		return n
	}
	return 1
}

// HasBundleKeyword reports whether the name carries a combo/bộ/set marker
func HasBundleKeyword(rawName string) bool {
	return bundleKeywordPattern.MatchString(prepareForQuantity(rawName))
}

func firstQuantity(pattern *regexp.Regexp, s string) (int, bool) {
	for _, m := range pattern.FindAllStringSubmatch(s, -1) {
		if len(m) < 2 {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err == nil && n >= 2 {
			return n, true
		}
	}
	return 0, false
}

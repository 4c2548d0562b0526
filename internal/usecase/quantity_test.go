package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractQuantity(t *testing.T) {
	testCases := []struct {
		name    string
		rawName string
		want    int
	}{
		{"combo prefix", "Combo 3 Nước tẩy trang sen Hậu Giang 140ml", 3},
		{"multiplier suffix", "Nước tẩy trang sen Hậu Giang 140ml x2", 2},
		{"buy one get one", "Mua 1 tặng 1 nước hoa hồng", 2},
		{"leading unit", "2 chai dầu gội bưởi", 2},
		{"no marker", "Nước tẩy trang sen Hậu Giang 140ml", 1},
		{"uppercase combo", "COMBO 4 SERUM BÍ ĐAO", 4},
		{"bộ with separator", "Bộ: 2 dầu gội + dầu xả", 2},
		{"set with x", "Set x3 mặt nạ nghệ", 3},
		{"số lượng", "Mặt nạ nghệ - Số lượng 5", 5},
		{"bracketed multiplier", "Dầu gội bưởi (x2)", 2},
		{"combo wins over later multiplier", "Combo 2 dầu gội bưởi x3", 2},
		{"volume is not a quantity", "Nước tẩy trang bí đao 500ml", 1},
		{"year-like number is ignored", "Combo 2024 mới", 1},
		{"leading unit needs a known noun", "3 tuýp kem chống nắng", 1},
		{"empty", "", 1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExtractQuantity(tc.rawName))
		})
	}
}

func TestHasBundleKeyword(t *testing.T) {
	assert.True(t, HasBundleKeyword("Combo dầu gội"))
	assert.True(t, HasBundleKeyword("Bộ đôi dưỡng tóc"))
	assert.True(t, HasBundleKeyword("Gift SET serum"))
	assert.False(t, HasBundleKeyword("Nước tẩy trang sen"))
	assert.False(t, HasBundleKeyword("Sunset serum"))
}

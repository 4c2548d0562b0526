package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SIRP996/cao-du-lieu-sub000/internal/domain"
)

const listingHTML = `<html><body>
<script>window.__STATE__ = {}</script>
<div class="grid">
  <div class="card"><a href="/p/nuoc-tay-trang-sen">Nước tẩy trang sen Hậu Giang 140ml</a><span>50.000đ</span></div>
  <div class="card"><a href="https://cdn.shop.vn/p/combo">Combo 2 Nước tẩy trang sen Hậu Giang 140ml</a><span>90.000đ</span></div>
</div>
</body></html>`

func testExtractionConfig() ExtractionConfig {
	return ExtractionConfig{
		Model:         "extract-model",
		MaxAttempts:   5,
		MaxHTMLChars:  100000,
		MinHTMLLength: 50,
		RotateDelay:   time.Millisecond,
		BaseBackoff:   time.Millisecond,
	}
}

func TestExtractionService_Extract(t *testing.T) {
	client := newFakeCompleter(reply{text: `{"products":[
		{"name":"Nước tẩy trang sen Hậu Giang 140ml","price":50000,"productUrl":"/p/nuoc-tay-trang-sen"},
		{"name":"Combo 2 Nước tẩy trang sen Hậu Giang 140ml","price":90000,"productUrl":"https://cdn.shop.vn/p/combo"}
	]}`})
	svc := NewExtractionService(singleKeyPool(client), testExtractionConfig(), zerolog.Nop())

	records, err := svc.Extract(context.Background(), "https://shop.vn/collections/tay-trang", listingHTML, 2)

	require.NoError(t, err)
	require.Len(t, records, 2)

	first := records[0]
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, "Nước tẩy trang sen Hậu Giang 140ml", first.RawName)
	assert.Equal(t, 50000.0, first.Price)
	assert.Equal(t, 2, first.SourceIndex)
	assert.Equal(t, "https://shop.vn/p/nuoc-tay-trang-sen", first.ProductURL)
	assert.Equal(t, domain.StatusPending, first.Status)
	assert.Equal(t, first.RawName, first.CanonicalName)
	assert.Equal(t, domain.CategoryUnprocessed, first.CategoryTop)
	assert.Equal(t, domain.CategoryUnprocessed, first.CategorySub)
	assert.Equal(t, domain.BundleRaw, first.BundleLabel)
	assert.False(t, first.Classified())

	assert.Equal(t, "https://cdn.shop.vn/p/combo", records[1].ProductURL)
	assert.NotEqual(t, first.ID, records[1].ID)

	req := client.lastRequest()
	assert.Equal(t, "extract-model", req.Model)
	assert.NotNil(t, req.Schema)
	assert.Contains(t, req.Prompt, "https://shop.vn/collections/tay-trang")
	assert.Contains(t, req.Prompt, "Nước tẩy trang sen Hậu Giang 140ml")
	assert.NotContains(t, req.Prompt, "__STATE__")
}

func TestExtractionService_Extract_ShortInputIsEmpty(t *testing.T) {
	client := newFakeCompleter()
	svc := NewExtractionService(singleKeyPool(client), testExtractionConfig(), zerolog.Nop())

	records, err := svc.Extract(context.Background(), "Dán thủ công", "<p>hi</p>", 1)

	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, 0, client.calls())
}

func TestExtractionService_Extract_URLOnly(t *testing.T) {
	client := newFakeCompleter(reply{text: `[{"sanPham":"Serum bí đao 70ml","gia":"185.000đ"}]`})
	svc := NewExtractionService(singleKeyPool(client), testExtractionConfig(), zerolog.Nop())

	records, err := svc.Extract(context.Background(), "https://shopee.vn/serum-bi-dao-i.1.2", "", 2)

	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 185000.0, records[0].Price)
	// no link in the reply falls back to the page itself
	assert.Equal(t, "https://shopee.vn/serum-bi-dao-i.1.2", records[0].ProductURL)
	assert.NotContains(t, client.lastRequest().Prompt, "HTML:")
}

func TestExtractionService_Extract_RetriesMalformedJSON(t *testing.T) {
	client := newFakeCompleter(
		reply{text: `{"products":[{"name":"Serum`},
		reply{text: `not json at all`},
		reply{text: `{"products":[{"name":"Serum bí đao 70ml","price":185000,"productUrl":""}]}`},
	)
	svc := NewExtractionService(singleKeyPool(client), testExtractionConfig(), zerolog.Nop())

	records, err := svc.Extract(context.Background(), "https://shop.vn/a", listingHTML, 1)

	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, 3, client.calls())
}

func TestExtractionService_Extract_RotatesCredential(t *testing.T) {
	exhausted := newFakeCompleter(reply{err: errors.New("RESOURCE_EXHAUSTED: quota")})
	healthy := newFakeCompleter(reply{text: `{"products":[{"name":"Dầu gội bưởi 310ml","price":165000,"productUrl":""}]}`})
	pool := poolWith(map[string]*fakeCompleter{
		"first-key-000001":  exhausted,
		"second-key-000002": healthy,
	}, "first-key-000001", "second-key-000002")
	svc := NewExtractionService(pool, testExtractionConfig(), zerolog.Nop())

	records, err := svc.Extract(context.Background(), "https://shop.vn/a", listingHTML, 1)

	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, 1, exhausted.calls())
	assert.Equal(t, 1, healthy.calls())
}

func TestExtractionService_Extract_MissingAPIKey(t *testing.T) {
	t.Run("single exhausted credential", func(t *testing.T) {
		client := newFakeCompleter(reply{err: errors.New("API key not valid. Please pass a valid API key.")})
		svc := NewExtractionService(singleKeyPool(client), testExtractionConfig(), zerolog.Nop())

		_, err := svc.Extract(context.Background(), "https://shop.vn/a", listingHTML, 1)

		assert.ErrorIs(t, err, domain.ErrMissingAPIKey)
		assert.Equal(t, 1, client.calls())
	})

	t.Run("no credentials configured", func(t *testing.T) {
		svc := NewExtractionService(poolWith(nil), testExtractionConfig(), zerolog.Nop())

		_, err := svc.Extract(context.Background(), "https://shop.vn/a", listingHTML, 1)

		assert.ErrorIs(t, err, domain.ErrMissingAPIKey)
	})
}

func TestExtractionService_Extract_GivesUp(t *testing.T) {
	client := newFakeCompleter(reply{err: fmt.Errorf("upstream 503")})
	svc := NewExtractionService(singleKeyPool(client), testExtractionConfig(), zerolog.Nop())

	_, err := svc.Extract(context.Background(), "https://shop.vn/a", listingHTML, 1)

	assert.ErrorIs(t, err, domain.ErrExtractionFailed)
	assert.Equal(t, 5, client.calls())
}

func TestExtractionService_Extract_InvalidSource(t *testing.T) {
	svc := NewExtractionService(singleKeyPool(newFakeCompleter()), testExtractionConfig(), zerolog.Nop())

	_, err := svc.Extract(context.Background(), "https://shop.vn/a", listingHTML, 0)
	assert.ErrorIs(t, err, domain.ErrSourceOutOfRange)

	_, err = svc.Extract(context.Background(), "https://shop.vn/a", listingHTML, domain.MaxSources+1)
	assert.ErrorIs(t, err, domain.ErrSourceOutOfRange)
}

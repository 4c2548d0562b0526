package htmlclean

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listingPage = `<!DOCTYPE html>
<html>
<head><title>Shop</title><style>.a{color:red}</style><script>var x = 1;</script></head>
<body class="page">
  <header><a href="/">Trang chủ</a></header>
  <nav class="menu"><a href="/sale">Sale</a></nav>
  <!-- tracking pixel -->
  <div class="product-list" data-id="42" style="margin:0">
    <div class="item" onclick="track()">
      <a href="/p/serum-bi-dao" title="Serum">Serum bí đao 70ml</a>
      <img src="data:image/png;base64,iVBORw0KGgo=" alt="x">
      <img src="https://cdn.example.vn/serum.jpg" alt="serum">
      <span class="price">185.000đ</span>
    </div>
  </div>
  <div class="related-products"><a href="/p/other">Sản phẩm khác</a></div>
  <section id="recommend-box"><a href="/p/more">Gợi ý</a></section>
  <svg><path d="M0 0"/></svg>
  <footer>Liên hệ</footer>
</body>
</html>`

func TestClean(t *testing.T) {
	out, err := Clean(listingPage)
	require.NoError(t, err)

	t.Run("keeps product content", func(t *testing.T) {
		assert.Contains(t, out, "Serum bí đao 70ml")
		assert.Contains(t, out, "185.000đ")
		assert.Contains(t, out, `href="/p/serum-bi-dao"`)
		assert.Contains(t, out, `src="https://cdn.example.vn/serum.jpg"`)
	})

	t.Run("drops noise blocks", func(t *testing.T) {
		for _, s := range []string{"var x", "color:red", "tracking pixel", "Trang chủ", "Sale", "Sản phẩm khác", "Gợi ý", "<svg", "Liên hệ"} {
			assert.NotContains(t, out, s)
		}
	})

	t.Run("drops attributes and inline data", func(t *testing.T) {
		for _, s := range []string{"class=", "style=", "data-id", "onclick", "title=", "alt=", "base64"} {
			assert.NotContains(t, out, s)
		}
	})

	t.Run("collapses whitespace", func(t *testing.T) {
		assert.NotContains(t, out, "\n")
		assert.NotContains(t, out, "  ")
	})
}

func TestClean_Fragment(t *testing.T) {
	out, err := Clean(`<li><a href="https://shop.vn/a">Son dưỡng dầu dừa</a> <b>45.000đ</b></li>`)

	require.NoError(t, err)
	assert.Equal(t, `<li><a href="https://shop.vn/a">Son dưỡng dầu dừa</a><b>45.000đ</b></li>`, out)
}

func TestTruncate(t *testing.T) {
	t.Run("short input unchanged", func(t *testing.T) {
		assert.Equal(t, "<p>abc</p>", Truncate("<p>abc</p>", 100))
	})

	t.Run("cuts on tag boundary", func(t *testing.T) {
		in := "<p>aaaa</p>bbbbbbbbbbbb"
		assert.Equal(t, "<p>aaaa</p>", Truncate(in, 16))
	})

	t.Run("counts characters not bytes", func(t *testing.T) {
		in := strings.Repeat("đ", 10)
		assert.Equal(t, strings.Repeat("đ", 4), Truncate(in, 4))
	})
}

func TestResolveURL(t *testing.T) {
	page := "https://shop.example.vn/collections/serum?page=2"

	tests := []struct {
		name string
		link string
		want string
	}{
		{"absolute", "https://other.vn/p/1", "https://other.vn/p/1"},
		{"root relative", "/p/serum-bi-dao", "https://shop.example.vn/p/serum-bi-dao"},
		{"path relative", "serum-bi-dao", "https://shop.example.vn/collections/serum-bi-dao"},
		{"protocol relative", "//cdn.example.vn/p/1", "https://cdn.example.vn/p/1"},
		{"empty falls back to page", "", page},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveURL(page, tt.link))
		})
	}

	t.Run("pasted html without page url", func(t *testing.T) {
		assert.Equal(t, "/p/1", ResolveURL("", "/p/1"))
	})
}

package crawl

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizePath(t *testing.T) {
	cases := []struct{ in, want string }{
		{"https://example.com/products?page=2#reviews", "/products"},
		{"https://example.com", "/"},
		{"https://example.com/a/b/", "/a/b/"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, NormalizePath(tc.in))
	}
}

func TestMergeLinks(t *testing.T) {
	dom := []string{"https://e.com/a", "https://e.com/b", "https://e.com/a"}
	spa := []string{"https://e.com/c", "https://e.com/b"}

	merged := mergeLinks(dom, spa)
	require.Equal(t, []string{"https://e.com/a", "https://e.com/b", "https://e.com/c"}, merged)
}

func TestResolveLink(t *testing.T) {
	base := "https://example.com/shop/"
	require.Equal(t, "https://example.com/shop/cart", resolveLink(base, "cart"))
	require.Equal(t, "https://example.com/about", resolveLink(base, "/about"))
	require.Equal(t, "https://other.com/x", resolveLink(base, "https://other.com/x"))
	require.Empty(t, resolveLink(base, "javascript:void(0)"))
	require.Empty(t, resolveLink(base, "mailto:hi@example.com"))

	// Fragments are stripped so anchors collapse onto their page.
	require.Equal(t, "https://example.com/shop/", resolveLink(base, "#top"))
}

func TestDedupeEndpoints(t *testing.T) {
	pages := []PageData{
		{APICalls: []APICall{{URL: "https://api.e.com/b"}, {URL: "https://api.e.com/a"}}},
		{APICalls: []APICall{{URL: "https://api.e.com/a"}}},
	}
	require.Equal(t, []string{"https://api.e.com/a", "https://api.e.com/b"}, dedupeEndpoints(pages))
}

func TestRouteSlug(t *testing.T) {
	require.Equal(t, "home", routeSlug("/"))
	require.Equal(t, "products-42", routeSlug("/products/42"))
	require.Equal(t, "a-b-c", routeSlug("/a/b c"))
}

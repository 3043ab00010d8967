package crawl

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestShouldVisit(t *testing.T) {
	nav, err := NewNavigator("https://shop.example.com", []string{"cdn.example.com"},
		[]string{"*/logout*", "*/admin/*"}, 2)
	require.NoError(t, err)

	t.Run("allowed domain", func(t *testing.T) {
		require.True(t, nav.ShouldVisit("https://shop.example.com/products"))
		require.True(t, nav.ShouldVisit("https://cdn.example.com/assets"))
		require.False(t, nav.ShouldVisit("https://evil.example.org/products"))
	})

	t.Run("skip globs", func(t *testing.T) {
		require.False(t, nav.ShouldVisit("https://shop.example.com/account/logout"))
		require.False(t, nav.ShouldVisit("https://shop.example.com/admin/users"))
	})

	t.Run("visited is never revisited", func(t *testing.T) {
		url := "https://shop.example.com/cart"
		require.True(t, nav.ShouldVisit(url))
		nav.MarkVisited(url)
		require.False(t, nav.ShouldVisit(url))
		// Query strings do not create a new route identity.
		require.False(t, nav.ShouldVisit(url+"?coupon=10off"))
	})

	t.Run("unparseable url", func(t *testing.T) {
		require.False(t, nav.ShouldVisit("://not-a-url"))
	})
}

func TestIsWithinDepth(t *testing.T) {
	nav, err := NewNavigator("https://example.com", nil, nil, 3)
	require.NoError(t, err)

	require.True(t, nav.IsWithinDepth(0))
	require.True(t, nav.IsWithinDepth(3), "boundary is inclusive")
	require.False(t, nav.IsWithinDepth(4))
}

func TestNewNavigatorRejectsBadInput(t *testing.T) {
	_, err := NewNavigator("not a url at all", nil, nil, 1)
	require.Error(t, err)

	_, err = NewNavigator("https://example.com", nil, []string{"[bad"}, 1)
	require.Error(t, err)
}

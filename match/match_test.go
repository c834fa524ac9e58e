package match_test

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/FlashGalatine/xivdyetools-test-utils/match"
)

func TestChainResolveSubstring(t *testing.T) {
	chain := match.New[string]()
	chain.AddString("/users", "users")
	chain.AddString("/orders", "orders")

	got, ok := chain.Resolve("https://api.internal/users/42")
	require.True(t, ok)
	require.Equal(t, "users", got)

	_, ok = chain.Resolve("https://api.internal/health")
	require.False(t, ok)
}

func TestChainInsertionOrderWins(t *testing.T) {
	chain := match.New[string]()
	chain.AddString("/users", "first")
	chain.AddString("/users/42", "second")

	// Both rules match; the earlier registration must win.
	got, ok := chain.Resolve("https://api.internal/users/42")
	require.True(t, ok)
	require.Equal(t, "first", got)
}

func TestChainStringBeatsRegexp(t *testing.T) {
	chain := match.New[string]()
	chain.AddRegexp(regexp.MustCompile(`/users/\d+`), "regexp")
	chain.AddString("/users", "string")

	// The regexp was registered first but substring rules are always
	// consulted before regular expressions.
	got, ok := chain.Resolve("https://api.internal/users/42")
	require.True(t, ok)
	require.Equal(t, "string", got)
}

func TestChainRegexpFallback(t *testing.T) {
	chain := match.New[int]()
	chain.AddString("/exact", 1)
	chain.AddRegexp(regexp.MustCompile(`^https://cdn\.`), 2)

	got, ok := chain.Resolve("https://cdn.example/assets/logo.png")
	require.True(t, ok)
	require.Equal(t, 2, got)
}

func TestChainNilRegexpIgnored(t *testing.T) {
	chain := match.New[int]()
	chain.AddRegexp(nil, 7)
	require.Zero(t, chain.Len())
}

func TestChainClear(t *testing.T) {
	chain := match.New[int]()
	chain.AddString("a", 1)
	chain.AddRegexp(regexp.MustCompile("b"), 2)
	require.Equal(t, 2, chain.Len())

	chain.Clear()

	require.Zero(t, chain.Len())
	_, ok := chain.Resolve("a")
	require.False(t, ok)
}

package crawl

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractLinks(t *testing.T) {
	t.Parallel()

	body := []byte(`<html><body>
		<a href="/relative">rel</a>
		<a href="https://other.org/abs">abs</a>
		<a href="#section">frag</a>
		<a href="mailto:help@example.org">mail</a>
		<a href="javascript:void(0)">js</a>
		<a href="tel:5035550100">tel</a>
		<a href="ftp://example.org/file">ftp</a>
		<a href="  /trimmed  ">trim</a>
	</body></html>`)

	links, err := extractLinks("https://example.org/page", body)
	require.NoError(t, err)
	require.Equal(t, []string{
		"https://example.org/relative",
		"https://other.org/abs",
		"https://example.org/trimmed",
	}, links)
}

func TestExtractLinksNoAnchors(t *testing.T) {
	t.Parallel()

	links, err := extractLinks("https://example.org/", []byte("<p>no links here</p>"))
	require.NoError(t, err)
	require.Empty(t, links)
}

func TestIsHTML(t *testing.T) {
	t.Parallel()

	require.True(t, isHTML("text/html"))
	require.True(t, isHTML("text/html; charset=utf-8"))
	require.True(t, isHTML("application/xhtml+xml"))
	require.False(t, isHTML("application/json"))
	require.False(t, isHTML(""))
}

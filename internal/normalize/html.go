package normalize

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/teamindigo/ragline/internal/pipeline"
)

// htmlExtractor distills the main article content from an HTML page and
// walks its content-bearing elements into paragraph-separated text.
type htmlExtractor struct{}

// Extract implements the extractor interface.
func (htmlExtractor) Extract(result pipeline.FetchResult) (string, error) {
	pageURL, err := url.Parse(result.URL)
	if err != nil {
		return "", fmt.Errorf("parse page url: %w", err)
	}

	parser := readability.NewParser()
	article, err := parser.Parse(strings.NewReader(string(result.Body)), pageURL)
	if err != nil {
		return "", fmt.Errorf("readability parse: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(article.Content))
	if err != nil {
		// Fall back to the flat text readability already produced.
		return article.TextContent, nil
	}

	var blocks []string
	if title := strings.TrimSpace(article.Title); title != "" {
		blocks = append(blocks, title)
	}
	doc.Find("h1,h2,h3,h4,p,li,td,pre").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text != "" {
			blocks = append(blocks, text)
		}
	})
	if len(blocks) == 0 {
		return article.TextContent, nil
	}
	return strings.Join(blocks, "\n\n"), nil
}

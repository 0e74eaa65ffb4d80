// Package normalize converts raw fetched documents into clean text and
// splits them into bounded, overlapping chunks with stable fingerprints.
//
// One extraction strategy exists per content type; the strategy is selected
// by content-type sniffing, never by inspecting the caller.
package normalize

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/teamindigo/ragline/internal/metrics"
	"github.com/teamindigo/ragline/internal/pipeline"
)

// extractor turns one document class into plain text.
type extractor interface {
	Extract(result pipeline.FetchResult) (string, error)
}

// Normalizer implements pipeline.Normalizer over a strategy registry.
type Normalizer struct {
	strategies map[string]extractor
	chunker    *Chunker
}

// New builds a Normalizer with the default strategy registry.
func New(chunker *Chunker) *Normalizer {
	return &Normalizer{
		strategies: map[string]extractor{
			"text/html":        &htmlExtractor{},
			"application/pdf":  &pdfExtractor{runner: execRunner{}},
			"application/json": &jsonExtractor{},
			"text/plain":       &textExtractor{},
		},
		chunker: chunker,
	}
}

// Normalize converts a fetch result into ordered chunks. It fails with
// pipeline.ErrUnsupportedContent for unrecognized content types and with
// pipeline.ErrEmptyContent when extraction leaves no text.
func (n *Normalizer) Normalize(result pipeline.FetchResult) ([]pipeline.Chunk, error) {
	kind := sniff(result)
	strategy, ok := n.strategies[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q for %s", pipeline.ErrUnsupportedContent, kind, result.URL)
	}

	text, err := strategy.Extract(result)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", result.URL, err)
	}
	text = CleanText(text)
	if text == "" {
		return nil, fmt.Errorf("%w: %s", pipeline.ErrEmptyContent, result.URL)
	}

	chunks := n.chunker.Split(result.URL, text)
	metrics.ObserveChunks(len(chunks))
	return chunks, nil
}

// sniff resolves the document class from the declared content type, falling
// back to content detection when the header is absent or generic.
func sniff(result pipeline.FetchResult) string {
	ct := result.ContentType
	if ct == "" || strings.HasPrefix(ct, "application/octet-stream") {
		ct = http.DetectContentType(result.Body)
	}
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	ct = strings.ToLower(strings.TrimSpace(ct))

	switch {
	case strings.Contains(ct, "html") || strings.Contains(ct, "xhtml"):
		return "text/html"
	case strings.Contains(ct, "json"):
		return "application/json"
	case strings.Contains(ct, "pdf"):
		return "application/pdf"
	case strings.HasPrefix(ct, "text/"):
		return "text/plain"
	default:
		return ct
	}
}

// CleanText collapses runs of whitespace inside lines while keeping
// paragraph breaks, so fingerprints stay stable across cosmetic markup
// changes.
func CleanText(text string) string {
	paragraphs := strings.Split(text, "\n\n")
	cleaned := make([]string, 0, len(paragraphs))
	for _, p := range paragraphs {
		p = strings.Join(strings.Fields(p), " ")
		if p != "" {
			cleaned = append(cleaned, p)
		}
	}
	return strings.Join(cleaned, "\n\n")
}

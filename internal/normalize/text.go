package normalize

import "github.com/teamindigo/ragline/internal/pipeline"

// textExtractor passes plain text bodies through untouched; cleanup happens
// in the shared CleanText pass.
type textExtractor struct{}

// Extract implements the extractor interface.
func (textExtractor) Extract(result pipeline.FetchResult) (string, error) {
	return string(result.Body), nil
}

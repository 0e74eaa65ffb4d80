package normalize

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/teamindigo/ragline/internal/pipeline"
)

// jsonExtractor flattens structured records (e.g. a resource directory API
// response) into one paragraph per record so they index like prose.
type jsonExtractor struct{}

// Extract implements the extractor interface.
func (jsonExtractor) Extract(result pipeline.FetchResult) (string, error) {
	var payload any
	if err := json.Unmarshal(result.Body, &payload); err != nil {
		return "", fmt.Errorf("decode json: %w", err)
	}

	var paragraphs []string
	switch v := payload.(type) {
	case []any:
		for _, item := range v {
			if p := flatten(item); p != "" {
				paragraphs = append(paragraphs, p)
			}
		}
	default:
		if p := flatten(v); p != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	return strings.Join(paragraphs, "\n\n"), nil
}

// flatten renders one record as "key: value" lines with keys sorted so the
// output, and therefore the content hash, is deterministic.
func flatten(value any) string {
	switch v := value.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var lines []string
		for _, k := range keys {
			rendered := flatten(v[k])
			if rendered == "" {
				continue
			}
			lines = append(lines, fmt.Sprintf("%s: %s", k, rendered))
		}
		return strings.Join(lines, "\n")
	case []any:
		var parts []string
		for _, item := range v {
			if rendered := flatten(item); rendered != "" {
				parts = append(parts, rendered)
			}
		}
		return strings.Join(parts, "; ")
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%g", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Package structured provides the sqlite-backed resource lookup used as the
// optional secondary answer source. Natural-language-to-SQL translation is
// an external capability; this store answers keyword lookups over the
// resource directory and reports a miss as a normal negative result.
package structured

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/teamindigo/ragline/internal/pipeline"
)

const schema = `
CREATE TABLE IF NOT EXISTS resources (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	name        TEXT NOT NULL,
	category    TEXT NOT NULL,
	address     TEXT,
	phone       TEXT,
	hours       TEXT,
	website     TEXT,
	description TEXT
);
CREATE INDEX IF NOT EXISTS idx_resources_category ON resources(category);
`

// maxRows caps how many rows one lookup returns.
const maxRows = 10

// Store implements the structured-query capability over sqlite.
type Store struct {
	db *sql.DB
}

// Open opens or creates the resource database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}

// Resource is one row of the directory.
type Resource struct {
	Name        string
	Category    string
	Address     string
	Phone       string
	Hours       string
	Website     string
	Description string
}

// Insert adds a resource row.
func (s *Store) Insert(ctx context.Context, r Resource) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO resources (name, category, address, phone, hours, website, description)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.Name, r.Category, r.Address, r.Phone, r.Hours, r.Website, r.Description,
	)
	if err != nil {
		return fmt.Errorf("insert resource %q: %w", r.Name, err)
	}
	return nil
}

// Query matches directory rows against the query's keywords. A query with
// no usable keywords or no matching rows returns ErrNoStructuredMatch,
// which callers treat as a normal miss, not a failure.
func (s *Store) Query(ctx context.Context, naturalLanguage string) ([]pipeline.Row, error) {
	keywords := extractKeywords(naturalLanguage)
	if len(keywords) == 0 {
		return nil, pipeline.ErrNoStructuredMatch
	}

	var (
		clauses []string
		args    []any
	)
	for _, kw := range keywords {
		clauses = append(clauses, "(name LIKE ? OR category LIKE ? OR description LIKE ?)")
		pattern := "%" + kw + "%"
		args = append(args, pattern, pattern, pattern)
	}

	query := fmt.Sprintf(
		`SELECT name, category, address, phone, hours, website, description
		 FROM resources WHERE %s LIMIT %d`,
		strings.Join(clauses, " OR "), maxRows,
	)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query resources: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []pipeline.Row
	for rows.Next() {
		var r Resource
		if err := rows.Scan(&r.Name, &r.Category, &r.Address, &r.Phone, &r.Hours, &r.Website, &r.Description); err != nil {
			return nil, fmt.Errorf("scan resource row: %w", err)
		}
		results = append(results, rowOf(r))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate resource rows: %w", err)
	}
	if len(results) == 0 {
		return nil, pipeline.ErrNoStructuredMatch
	}
	return results, nil
}

func rowOf(r Resource) pipeline.Row {
	row := pipeline.Row{
		"name":     r.Name,
		"category": r.Category,
	}
	if r.Address != "" {
		row["address"] = r.Address
	}
	if r.Phone != "" {
		row["phone"] = r.Phone
	}
	if r.Hours != "" {
		row["hours"] = r.Hours
	}
	if r.Website != "" {
		row["website"] = r.Website
	}
	if r.Description != "" {
		row["description"] = r.Description
	}
	return row
}

// stopwords are dropped before matching so questions like "where can I get
// food" reduce to their content words.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "can": {}, "do": {}, "does": {},
	"for": {}, "get": {}, "how": {}, "i": {}, "in": {}, "is": {}, "it": {},
	"me": {}, "my": {}, "near": {}, "of": {}, "on": {}, "or": {}, "the": {},
	"to": {}, "what": {}, "when": {}, "where": {}, "which": {}, "who": {},
	"with": {}, "you": {},
}

func extractKeywords(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	var keywords []string
	for _, f := range fields {
		f = strings.Trim(f, ".,?!:;\"'()")
		if len(f) < 3 {
			continue
		}
		if _, skip := stopwords[f]; skip {
			continue
		}
		keywords = append(keywords, f)
	}
	return keywords
}

package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search executes a UNION ALL query across documents and spans using
// plainto_tsquery and ts_rank, with ts_headline for snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text}
	argN := 2

	var subQueries []string

	// Documents sub-query
	if q.FilterType == "" || q.FilterType == ResultDocument {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'document'::text AS type, d.id, d.title,
				ts_headline('english', left(coalesce(d.content, ''), 100000), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				d.id AS document_id,
				''::text AS label, ''::text AS source,
				ts_rank(d.fts, %s) AS rank
			FROM documents d
			WHERE d.fts @@ %s`, tsQuery, tsQuery, tsQuery))
	}

	// Spans sub-query
	if q.FilterType == "" || q.FilterType == ResultSpan {
		spanWhere := "s.fts @@ " + tsQuery
		if q.FilterLabel != "" {
			spanWhere += fmt.Sprintf(" AND s.label = $%d", argN)
			args = append(args, q.FilterLabel)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'span'::text AS type, s.id, s.label AS title,
				ts_headline('english', coalesce(s.text, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				s.document_id,
				s.label, s.source,
				ts_rank(s.fts, %s) AS rank
			FROM spans s
			WHERE %s`, tsQuery, tsQuery, spanWhere))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub",
		strings.Join(subQueries, " UNION ALL "))

	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, document_id, label, source
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`,
		strings.Join(subQueries, " UNION ALL "),
		limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.DocumentID, &r.Label, &r.Source); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]DocumentRecord, []SpanRecord, error) {
	docRows, err := p.db.QueryContext(ctx, `
		SELECT id, title, filename, status, left(content, 500)
		FROM documents
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load documents: %w", err)
	}
	defer docRows.Close()

	documents := make([]DocumentRecord, 0)
	for docRows.Next() {
		var d DocumentRecord
		if err := docRows.Scan(&d.ID, &d.Title, &d.Filename, &d.Status, &d.Excerpt); err != nil {
			return nil, nil, fmt.Errorf("scan document: %w", err)
		}
		documents = append(documents, d)
	}
	if err := docRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate documents: %w", err)
	}

	spanRows, err := p.db.QueryContext(ctx, `
		SELECT id, document_id, label, text, source
		FROM spans
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load spans: %w", err)
	}
	defer spanRows.Close()

	spans := make([]SpanRecord, 0)
	for spanRows.Next() {
		var s SpanRecord
		if err := spanRows.Scan(&s.ID, &s.DocumentID, &s.Label, &s.Text, &s.Source); err != nil {
			return nil, nil, fmt.Errorf("scan span: %w", err)
		}
		spans = append(spans, s)
	}
	if err := spanRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate spans: %w", err)
	}

	return documents, spans, nil
}

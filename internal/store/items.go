package store

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/stroikit/fsnbmatch/internal/catalog"
)

// Item is one FSNB catalog entry.
type Item struct {
	// ID is the surrogate key and the vector index point id.
	ID int64
	// Code is the external catalog code, unique across the table.
	Code string
	// Name is the display text the embedding is computed from.
	Name string
	// Unit is the unit of measure; empty when the catalog omits it.
	Unit string
	// Kind is work or resource.
	Kind catalog.Kind
}

// ItemMeta is the metadata payload hydrated onto search hits.
type ItemMeta struct {
	Name string
	Unit string
	Code string
}

// IndexItem is the projection streamed to the vector indexer.
type IndexItem struct {
	ID   int64
	Name string
	Code string
	Unit string
	Kind catalog.Kind
}

// upsertChunkSize bounds the number of rows per INSERT statement.
const upsertChunkSize = 1000

// metaChunkSize bounds the number of ids per IN-list lookup.
const metaChunkSize = 500

// BulkUpsertItems inserts catalog records keyed by code, ignoring rows whose
// code already exists. Ingestion is a refresh, not a field-level merge, so
// re-running with identical input changes nothing. Returns the number of
// rows submitted (not the number actually inserted — SQLite's OR IGNORE
// does not report per-row outcomes cheaply).
func (q *queries) BulkUpsertItems(ctx context.Context, rows []catalog.Record) (int, error) {
	submitted := 0
	for start := 0; start < len(rows); start += upsertChunkSize {
		end := min(start+upsertChunkSize, len(rows))
		chunk := rows[start:end]

		var sb strings.Builder
		sb.WriteString(`INSERT INTO items (code, name, unit, kind) VALUES `)
		args := make([]any, 0, len(chunk)*4)
		for i, r := range chunk {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("(?, ?, ?, ?)")
			args = append(args, r.Code, r.Name, nullIfEmpty(r.Unit), string(r.Kind))
		}
		sb.WriteString(` ON CONFLICT(code) DO NOTHING`)

		if _, err := q.db.ExecContext(ctx, sb.String(), args...); err != nil {
			return submitted, fmt.Errorf("store: bulk upsert items: %w", err)
		}
		submitted += len(chunk)
	}
	return submitted, nil
}

// TruncateItems deletes every catalog row. Administrative reset before a
// full re-ingest.
func (q *queries) TruncateItems(ctx context.Context) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM items`); err != nil {
		return fmt.Errorf("store: truncate items: %w", err)
	}
	// Reset the autoincrement counter so a fresh ingest starts from id 1.
	if _, err := q.db.ExecContext(ctx, `DELETE FROM sqlite_sequence WHERE name = 'items'`); err != nil {
		return fmt.Errorf("store: reset items sequence: %w", err)
	}
	return nil
}

// CountItems returns the catalog row count.
func (q *queries) CountItems(ctx context.Context) (int64, error) {
	var n int64
	if err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count items: %w", err)
	}
	return n, nil
}

// StreamForIndex returns a lazy sequence over every item ordered by id,
// for the index rebuild. The sequence is single-use; the underlying cursor
// is closed when the consumer stops or the rows are exhausted.
func (q *queries) StreamForIndex(ctx context.Context) iter.Seq2[IndexItem, error] {
	return func(yield func(IndexItem, error) bool) {
		rows, err := q.db.QueryContext(ctx,
			`SELECT id, name, COALESCE(code, ''), COALESCE(unit, ''), kind
			   FROM items ORDER BY id`)
		if err != nil {
			yield(IndexItem{}, fmt.Errorf("store: stream items: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var it IndexItem
			var kind string
			if err := rows.Scan(&it.ID, &it.Name, &it.Code, &it.Unit, &kind); err != nil {
				yield(IndexItem{}, fmt.Errorf("store: stream items scan: %w", err))
				return
			}
			it.Kind = catalog.Kind(kind)
			if !yield(it, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(IndexItem{}, fmt.Errorf("store: stream items rows: %w", err))
		}
	}
}

// FetchMetaByIDs returns id → (name, unit, code) for the given ids.
// Input ids are deduplicated and looked up in bounded IN-list chunks, never
// one query per id. Unknown ids are simply absent from the result map.
func (q *queries) FetchMetaByIDs(ctx context.Context, ids []int64) (map[int64]ItemMeta, error) {
	if len(ids) == 0 {
		return map[int64]ItemMeta{}, nil
	}

	seen := make(map[int64]struct{}, len(ids))
	distinct := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		distinct = append(distinct, id)
	}

	out := make(map[int64]ItemMeta, len(distinct))
	for start := 0; start < len(distinct); start += metaChunkSize {
		end := min(start+metaChunkSize, len(distinct))
		chunk := distinct[start:end]

		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}

		rows, err := q.db.QueryContext(ctx,
			`SELECT id, name, COALESCE(unit, ''), COALESCE(code, '')
			   FROM items WHERE id IN (`+placeholders+`)`, args...)
		if err != nil {
			return nil, fmt.Errorf("store: fetch item meta: %w", err)
		}
		for rows.Next() {
			var id int64
			var m ItemMeta
			if err := rows.Scan(&id, &m.Name, &m.Unit, &m.Code); err != nil {
				rows.Close()
				return nil, fmt.Errorf("store: fetch item meta scan: %w", err)
			}
			out[id] = m
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("store: fetch item meta rows: %w", err)
		}
		rows.Close()
	}
	return out, nil
}

// SearchItems performs a case-insensitive substring search over code and
// name for UI autocomplete. Queries shorter than 2 characters return empty.
// Code hits rank above name-only hits; ties break by code then id ascending.
func (q *queries) SearchItems(ctx context.Context, query string, limit int) ([]Item, error) {
	query = strings.TrimSpace(query)
	if len([]rune(query)) < 2 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	like := "%" + strings.ToLower(query) + "%"
	rows, err := q.db.QueryContext(ctx, `
SELECT id, COALESCE(code, ''), name, COALESCE(unit, ''), kind
  FROM items
 WHERE LOWER(COALESCE(code, '')) LIKE ? OR LOWER(name) LIKE ?
 ORDER BY CASE WHEN LOWER(COALESCE(code, '')) LIKE ? THEN 0 ELSE 1 END,
          code ASC, id ASC
 LIMIT ?`, like, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("store: search items: %w", err)
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		var it Item
		var kind string
		if err := rows.Scan(&it.ID, &it.Code, &it.Name, &it.Unit, &kind); err != nil {
			return nil, fmt.Errorf("store: search items scan: %w", err)
		}
		it.Kind = catalog.Kind(kind)
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: search items rows: %w", err)
	}
	return out, nil
}

// nullIfEmpty maps "" to NULL so optional text columns stay NULL in SQLite.
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

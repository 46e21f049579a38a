package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/wikirank/pkg/postgres"
)

const metaSchema = `
CREATE TABLE IF NOT EXISTS documents (
    doc_id    BIGINT PRIMARY KEY,
    title     TEXT NOT NULL DEFAULT '',
    length    INTEGER NOT NULL DEFAULT 0,
    pagerank  DOUBLE PRECISION,
    pageviews BIGINT
);
CREATE TABLE IF NOT EXISTS corpus_stats (
    n     BIGINT NOT NULL,
    avgdl DOUBLE PRECISION NOT NULL
);`

// PostgresMetaLoader reads document metadata from PostgreSQL into a
// MemoryMeta. Metadata is loaded once at startup; the ranking path never
// queries the database.
//
// It reads the documents and corpus_stats tables that WritePostgresMeta
// creates.
type PostgresMetaLoader struct {
	db     *postgres.Client
	logger *slog.Logger
}

func NewPostgresMetaLoader(db *postgres.Client) *PostgresMetaLoader {
	return &PostgresMetaLoader{
		db:     db,
		logger: slog.Default().With("component", "postgres-meta-loader"),
	}
}

// Load reads every document row and the corpus statistics row, if any.
func (l *PostgresMetaLoader) Load(ctx context.Context) (*MemoryMeta, error) {
	rows, err := l.db.DB.QueryContext(ctx,
		`SELECT doc_id, title, length, pagerank, pageviews FROM documents`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	md := Metadata{
		Titles:    make(map[int64]string),
		Lengths:   make(map[int64]int),
		PageRank:  make(map[int64]float64),
		PageViews: make(map[int64]int64),
	}
	for rows.Next() {
		var (
			docID     int64
			title     string
			length    int
			pagerank  sql.NullFloat64
			pageviews sql.NullInt64
		)
		if err := rows.Scan(&docID, &title, &length, &pagerank, &pageviews); err != nil {
			return nil, fmt.Errorf("scanning document row: %w", err)
		}
		if title != "" {
			md.Titles[docID] = title
		}
		md.Lengths[docID] = length
		if pagerank.Valid {
			md.PageRank[docID] = pagerank.Float64
		}
		if pageviews.Valid {
			md.PageViews[docID] = pageviews.Int64
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating document rows: %w", err)
	}

	var stats CorpusStats
	err = l.db.DB.QueryRowContext(ctx, `SELECT n, avgdl FROM corpus_stats LIMIT 1`).
		Scan(&stats.DocumentCount, &stats.AverageDocumentLength)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("querying corpus stats: %w", err)
	default:
		md.Corpus = &stats
	}

	meta := NewMemoryMeta(md)
	l.logger.Info("metadata loaded",
		"documents", len(md.Lengths),
		"with_pagerank", len(md.PageRank),
		"N", meta.Stats().DocumentCount,
		"avgdl", meta.Stats().AverageDocumentLength,
	)
	return meta, nil
}

// WritePostgresMeta replaces the metadata tables with md in one transaction.
// Documents are bulk-loaded with COPY.
func WritePostgresMeta(ctx context.Context, db *postgres.Client, md Metadata) error {
	return db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, metaSchema); err != nil {
			return fmt.Errorf("creating metadata tables: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `TRUNCATE documents, corpus_stats`); err != nil {
			return fmt.Errorf("truncating metadata tables: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, pq.CopyIn("documents", "doc_id", "title", "length", "pagerank", "pageviews"))
		if err != nil {
			return fmt.Errorf("preparing copy: %w", err)
		}
		defer stmt.Close()
		for docID, length := range md.Lengths {
			var pagerank, pageviews any
			if pr, ok := md.PageRank[docID]; ok {
				pagerank = pr
			}
			if pv, ok := md.PageViews[docID]; ok {
				pageviews = pv
			}
			if _, err := stmt.ExecContext(ctx, docID, md.Titles[docID], length, pagerank, pageviews); err != nil {
				return fmt.Errorf("copying document %d: %w", docID, err)
			}
		}
		if _, err := stmt.ExecContext(ctx); err != nil {
			return fmt.Errorf("flushing copy: %w", err)
		}

		if md.Corpus != nil {
			if _, err := tx.ExecContext(ctx, `INSERT INTO corpus_stats (n, avgdl) VALUES ($1, $2)`,
				md.Corpus.DocumentCount, md.Corpus.AverageDocumentLength); err != nil {
				return fmt.Errorf("writing corpus stats: %w", err)
			}
		}
		return nil
	})
}

package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/didi/gendry/builder"
	"github.com/pgvector/pgvector-go"

	"github.com/xxxsen/faqchat/internal/model"
	"github.com/xxxsen/faqchat/internal/pkg/dbutil"
)

const embeddingCacheTable = "faq_embedding_cache"

const insertBatchSize = 200

type EmbeddingCacheRepo struct {
	db *sql.DB
}

func NewEmbeddingCacheRepo(db *sql.DB) *EmbeddingCacheRepo {
	return &EmbeddingCacheRepo{db: db}
}

// List returns the rows of one generation ordered by position.
func (r *EmbeddingCacheRepo) List(ctx context.Context, fingerprintKey string) ([]model.EmbeddingCacheRow, error) {
	where := map[string]interface{}{
		"fingerprint_key": fingerprintKey,
		"_orderby":        "position asc",
	}
	sqlStr, args, err := builder.BuildSelect(embeddingCacheTable, where, []string{"fingerprint_key", "position", "model_name", "question", "embedding", "ctime"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.EmbeddingCacheRow, 0)
	for rows.Next() {
		var item model.EmbeddingCacheRow
		var vec pgvector.Vector
		if err := rows.Scan(&item.FingerprintKey, &item.Position, &item.ModelName, &item.Question, &vec, &item.Ctime); err != nil {
			return nil, err
		}
		item.Embedding = vec.Slice()
		out = append(out, item)
	}
	return out, rows.Err()
}

// Replace swaps every row of the generation in one transaction so readers
// see either the old set or the complete new one.
func (r *EmbeddingCacheRepo) Replace(ctx context.Context, fingerprintKey string, items []model.EmbeddingCacheRow) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()
	delSQL, delArgs := dbutil.Finalize("DELETE FROM "+embeddingCacheTable+" WHERE fingerprint_key = ?", []interface{}{fingerprintKey})
	if _, err := tx.ExecContext(ctx, delSQL, delArgs...); err != nil {
		return err
	}
	for start := 0; start < len(items); start += insertBatchSize {
		end := start + insertBatchSize
		if end > len(items) {
			end = len(items)
		}
		data := make([]map[string]interface{}, 0, end-start)
		for _, item := range items[start:end] {
			data = append(data, map[string]interface{}{
				"fingerprint_key": fingerprintKey,
				"position":        item.Position,
				"model_name":      item.ModelName,
				"question":        item.Question,
				"embedding":       pgvector.NewVector(item.Embedding),
				"ctime":           item.Ctime,
			})
		}
		sqlStr, args, err := builder.BuildInsert(embeddingCacheTable, data)
		if err != nil {
			return err
		}
		sqlStr, args = dbutil.Finalize(sqlStr, args)
		if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
			return fmt.Errorf("insert rows [%d:%d]: %w", start, end, err)
		}
	}
	return tx.Commit()
}

// DeleteStale removes generations other than keepKey written before cutoff.
func (r *EmbeddingCacheRepo) DeleteStale(ctx context.Context, keepKey string, cutoff int64) (int64, error) {
	sqlStr, args := dbutil.Finalize(
		"DELETE FROM "+embeddingCacheTable+" WHERE fingerprint_key <> ? AND ctime < ?",
		[]interface{}{keepKey, cutoff},
	)
	res, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Package embedding stores the per-note embedding vectors used by the
// similarity scorer. Not every note has one.
package embedding

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/fern/internal/database"
	"github.com/Ramsey-B/fern/internal/tracing"
)

// Repository handles embedding persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new embedding repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

type embeddingRow struct {
	NoteID string                    `db:"note_id"`
	Vector database.JSONB[[]float32] `db:"vector"`
}

// GetForNote retrieves a note's embedding vector. Returns nil when the note
// has no embedding.
func (r *Repository) GetForNote(ctx context.Context, tenantID, noteID string) ([]float32, error) {
	ctx, span := tracing.StartSpan(ctx, "embedding.Repository.GetForNote")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("note_id", "vector")
	sb.From("note_embeddings")
	sb.Where(
		sb.Equal("note_id", noteID),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	var row embeddingRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get embedding")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get embedding")
	}

	return row.Vector.GetValue(), nil
}

// Upsert stores a note's embedding vector, replacing any existing one
func (r *Repository) Upsert(ctx context.Context, tenantID, noteID string, vector []float32) error {
	ctx, span := tracing.StartSpan(ctx, "embedding.Repository.Upsert")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("note_embeddings")
	sb.Cols("note_id", "tenant_id", "vector", "updated_at")
	sb.Values(noteID, tenantID, database.JSONB[[]float32]{Data: vector}, time.Now().UTC())

	query, args := sb.Build()
	query += " ON CONFLICT (tenant_id, note_id) DO UPDATE SET vector = EXCLUDED.vector, updated_at = EXCLUDED.updated_at"

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"note_id": noteID}).Error("Failed to upsert embedding")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert embedding")
	}

	return nil
}

// Delete removes a note's embedding
func (r *Repository) Delete(ctx context.Context, tenantID, noteID string) error {
	ctx, span := tracing.StartSpan(ctx, "embedding.Repository.Delete")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	sb.DeleteFrom("note_embeddings")
	sb.Where(
		sb.Equal("note_id", noteID),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"note_id": noteID}).Error("Failed to delete embedding")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete embedding")
	}

	return nil
}

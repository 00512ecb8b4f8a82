// Package mergecandidate persists scored note pairs. Pairs are stored in
// canonical order so each unordered pair has at most one row.
package mergecandidate

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/fern/internal/database"
	"github.com/Ramsey-B/fern/internal/tracing"
	"github.com/Ramsey-B/fern/pkg/models"
)

var columns = []string{"id", "tenant_id", "note_a_id", "note_b_id", "title_score", "content_score", "embedding_score", "combined_score", "status", "detected_at", "reviewed_at"}

// CanonicalPair orders a note pair so the lexicographically smaller ID comes
// first.
func CanonicalPair(aID, bID string) (string, string) {
	if bID < aID {
		return bID, aID
	}
	return aID, bID
}

// Repository handles merge candidate persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new merge candidate repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// DB returns the underlying database handle
func (r *Repository) DB() database.DB {
	return r.db
}

// Create persists a new pending candidate for the pair. The pair is
// canonicalized before storing; creating an already-known pair returns the
// existing record untouched.
func (r *Repository) Create(ctx context.Context, tenantID, noteAID, noteBID string, scores models.SimilarityScores) (*models.MergeCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "mergecandidate.Repository.Create")
	defer span.End()

	noteAID, noteBID = CanonicalPair(noteAID, noteBID)

	candidate := &models.MergeCandidate{
		ID:             uuid.New().String(),
		TenantID:       tenantID,
		NoteAID:        noteAID,
		NoteBID:        noteBID,
		TitleScore:     scores.Title,
		ContentScore:   scores.Content,
		EmbeddingScore: scores.Embedding,
		CombinedScore:  scores.Combined,
		Status:         models.CandidateStatusPending,
		DetectedAt:     time.Now().UTC(),
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("merge_candidates")
	sb.Cols("id", "tenant_id", "note_a_id", "note_b_id", "title_score", "content_score", "embedding_score", "combined_score", "status", "detected_at")
	sb.Values(candidate.ID, candidate.TenantID, candidate.NoteAID, candidate.NoteBID, candidate.TitleScore, candidate.ContentScore, candidate.EmbeddingScore, candidate.CombinedScore, candidate.Status, candidate.DetectedAt)

	query, args := sb.Build()
	query += " ON CONFLICT (tenant_id, note_a_id, note_b_id) DO NOTHING"

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"note_a_id": noteAID,
			"note_b_id": noteBID,
		}).Error("Failed to create merge candidate")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create merge candidate")
	}

	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return r.GetForPair(ctx, tenantID, noteAID, noteBID)
	}

	return candidate, nil
}

// Exists reports whether any candidate exists for the pair, in either order
func (r *Repository) Exists(ctx context.Context, tenantID, noteAID, noteBID string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "mergecandidate.Repository.Exists")
	defer span.End()

	noteAID, noteBID = CanonicalPair(noteAID, noteBID)

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("COUNT(*)")
	sb.From("merge_candidates")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("note_a_id", noteAID),
		sb.Equal("note_b_id", noteBID),
	)

	query, args := sb.Build()
	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to check for existing merge candidate")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to check for existing merge candidate")
	}

	return count > 0, nil
}

// GetForPair retrieves the candidate for the pair, in either order. Returns
// nil when none exists.
func (r *Repository) GetForPair(ctx context.Context, tenantID, noteAID, noteBID string) (*models.MergeCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "mergecandidate.Repository.GetForPair")
	defer span.End()

	noteAID, noteBID = CanonicalPair(noteAID, noteBID)

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("merge_candidates")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("note_a_id", noteAID),
		sb.Equal("note_b_id", noteBID),
	)

	query, args := sb.Build()
	var candidate models.MergeCandidate
	if err := r.db.GetContext(ctx, &candidate, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get merge candidate for pair")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get merge candidate")
	}

	return &candidate, nil
}

// GetByID retrieves a candidate by ID. Returns nil when it does not exist.
func (r *Repository) GetByID(ctx context.Context, tenantID, id string) (*models.MergeCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "mergecandidate.Repository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("merge_candidates")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	var candidate models.MergeCandidate
	if err := r.db.GetContext(ctx, &candidate, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get merge candidate")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get merge candidate")
	}

	return &candidate, nil
}

// List retrieves candidates ordered by combined score, optionally filtered by
// status
func (r *Repository) List(ctx context.Context, tenantID, status string, limit int) ([]models.MergeCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "mergecandidate.Repository.List")
	defer span.End()

	if limit < 1 || limit > 500 {
		limit = 100
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("merge_candidates")
	sb.Where(sb.Equal("tenant_id", tenantID))
	if status != "" {
		sb.Where(sb.Equal("status", status))
	}
	sb.OrderBy("combined_score DESC", "detected_at DESC")
	sb.Limit(limit)

	query, args := sb.Build()
	var candidates []models.MergeCandidate
	if err := r.db.SelectContext(ctx, &candidates, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list merge candidates")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list merge candidates")
	}

	return candidates, nil
}

// GetForNote retrieves every candidate referencing the note on either side
func (r *Repository) GetForNote(ctx context.Context, tenantID, noteID string) ([]models.MergeCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "mergecandidate.Repository.GetForNote")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("merge_candidates")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Or(
			sb.Equal("note_a_id", noteID),
			sb.Equal("note_b_id", noteID),
		),
	)
	sb.OrderBy("combined_score DESC")

	query, args := sb.Build()
	var candidates []models.MergeCandidate
	if err := r.db.SelectContext(ctx, &candidates, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list merge candidates for note")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list merge candidates")
	}

	return candidates, nil
}

// UpdateStatus transitions a candidate and stamps the review time
func (r *Repository) UpdateStatus(ctx context.Context, tenantID, id, status string) error {
	ctx, span := tracing.StartSpan(ctx, "mergecandidate.Repository.UpdateStatus")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("merge_candidates")
	sb.Set(
		sb.Assign("status", status),
		sb.Assign("reviewed_at", time.Now().UTC()),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"candidate_id": id,
			"status":       status,
		}).Error("Failed to update merge candidate status")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update merge candidate")
	}

	return nil
}

// Delete removes a candidate
func (r *Repository) Delete(ctx context.Context, tenantID, id string) error {
	ctx, span := tracing.StartSpan(ctx, "mergecandidate.Repository.Delete")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	sb.DeleteFrom("merge_candidates")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"candidate_id": id}).Error("Failed to delete merge candidate")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete merge candidate")
	}

	return nil
}

// DeleteForNote removes every candidate referencing the note, except the one
// with exceptID. Pass an empty exceptID to remove them all.
func (r *Repository) DeleteForNote(ctx context.Context, tenantID, noteID, exceptID string) error {
	ctx, span := tracing.StartSpan(ctx, "mergecandidate.Repository.DeleteForNote")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	sb.DeleteFrom("merge_candidates")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Or(
			sb.Equal("note_a_id", noteID),
			sb.Equal("note_b_id", noteID),
		),
	)
	if exceptID != "" {
		sb.Where(sb.NotEqual("id", exceptID))
	}

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"note_id": noteID}).Error("Failed to delete merge candidates for note")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete merge candidates")
	}

	return nil
}

package note

import (
	"context"
	"database/sql"
	"encoding/json"
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

var columns = []string{"id", "tenant_id", "title", "content", "created_at", "updated_at", "deleted_at"}

// Repository handles note persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new note repository
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

// Create creates a new note
func (r *Repository) Create(ctx context.Context, note *models.Note) (*models.Note, error) {
	ctx, span := tracing.StartSpan(ctx, "note.Repository.Create")
	defer span.End()

	if note.ID == "" {
		note.ID = uuid.New().String()
	}
	if len(note.Content) == 0 {
		note.Content = json.RawMessage(`{"type":"doc"}`)
	}
	note.CreatedAt = time.Now().UTC()
	note.UpdatedAt = note.CreatedAt

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("notes")
	sb.Cols("id", "tenant_id", "title", "content", "created_at", "updated_at")
	sb.Values(note.ID, note.TenantID, note.Title, []byte(note.Content), note.CreatedAt, note.UpdatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"note_id": note.ID}).Error("Failed to create note")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create note")
	}

	return note, nil
}

// GetByID retrieves a note by ID. Returns nil when the note does not exist or
// is soft deleted.
func (r *Repository) GetByID(ctx context.Context, tenantID, id string) (*models.Note, error) {
	ctx, span := tracing.StartSpan(ctx, "note.Repository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("notes")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	var note models.Note
	if err := r.db.GetContext(ctx, &note, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get note")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get note")
	}

	return &note, nil
}

// GetAll retrieves every live note for the tenant. This is the snapshot the
// pairwise scan runs over.
func (r *Repository) GetAll(ctx context.Context, tenantID string) ([]models.Note, error) {
	ctx, span := tracing.StartSpan(ctx, "note.Repository.GetAll")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("notes")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("created_at ASC", "id ASC")

	query, args := sb.Build()
	var notes []models.Note
	if err := r.db.SelectContext(ctx, &notes, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list notes")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list notes")
	}

	return notes, nil
}

// List retrieves a page of live notes ordered by most recently updated
func (r *Repository) List(ctx context.Context, tenantID string, page, pageSize int) ([]models.Note, int, error) {
	ctx, span := tracing.StartSpan(ctx, "note.Repository.List")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 500 {
		pageSize = 50
	}

	countSb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	countSb.Select("COUNT(*)")
	countSb.From("notes")
	countSb.Where(
		countSb.Equal("tenant_id", tenantID),
		countSb.IsNull("deleted_at"),
	)

	query, args := countSb.Build()
	var total int
	if err := r.db.GetContext(ctx, &total, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count notes")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list notes")
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("notes")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("updated_at DESC")
	sb.Limit(pageSize)
	sb.Offset((page - 1) * pageSize)

	query, args = sb.Build()
	var notes []models.Note
	if err := r.db.SelectContext(ctx, &notes, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list notes")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list notes")
	}

	return notes, total, nil
}

// UpdateContent replaces a note's content tree
func (r *Repository) UpdateContent(ctx context.Context, tenantID, id string, content json.RawMessage) error {
	ctx, span := tracing.StartSpan(ctx, "note.Repository.UpdateContent")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("notes")
	sb.Set(
		sb.Assign("content", []byte(content)),
		sb.Assign("updated_at", time.Now().UTC()),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"note_id": id}).Error("Failed to update note content")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update note content")
	}

	return nil
}

// SoftDelete tombstones a note. The row is kept for history.
func (r *Repository) SoftDelete(ctx context.Context, tenantID, id string) error {
	ctx, span := tracing.StartSpan(ctx, "note.Repository.SoftDelete")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("notes")
	sb.Set(
		sb.Assign("deleted_at", now),
		sb.Assign("updated_at", now),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"note_id": id}).Error("Failed to soft delete note")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete note")
	}

	return nil
}

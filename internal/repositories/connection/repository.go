package connection

import (
	"context"
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

var columns = []string{"id", "tenant_id", "source_id", "target_id", "source_type", "target_type", "type", "label", "confidence", "created_by", "created_at", "updated_at"}

// Repository handles connection persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new connection repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new connection
func (r *Repository) Create(ctx context.Context, connection *models.Connection) error {
	ctx, span := tracing.StartSpan(ctx, "connection.Repository.Create")
	defer span.End()

	if connection.ID == "" {
		connection.ID = uuid.New().String()
	}
	if connection.SourceType == "" {
		connection.SourceType = models.EntityTypeNote
	}
	if connection.TargetType == "" {
		connection.TargetType = models.EntityTypeNote
	}
	connection.CreatedAt = time.Now().UTC()
	connection.UpdatedAt = connection.CreatedAt

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("connections")
	sb.Cols(columns...)
	sb.Values(
		connection.ID, connection.TenantID, connection.SourceID, connection.TargetID,
		connection.SourceType, connection.TargetType, connection.Type, connection.Label,
		connection.Confidence, connection.CreatedBy, connection.CreatedAt, connection.UpdatedAt,
	)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"connection_id": connection.ID}).Error("Failed to create connection")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create connection")
	}

	return nil
}

// GetForNote retrieves every connection touching the note on either side
func (r *Repository) GetForNote(ctx context.Context, tenantID, noteID string) ([]models.Connection, error) {
	ctx, span := tracing.StartSpan(ctx, "connection.Repository.GetForNote")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("connections")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Or(
			sb.Equal("source_id", noteID),
			sb.Equal("target_id", noteID),
		),
	)
	sb.OrderBy("created_at ASC")

	query, args := sb.Build()
	var connections []models.Connection
	if err := r.db.SelectContext(ctx, &connections, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list connections for note")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list connections")
	}

	return connections, nil
}

// GetBetween retrieves connections between two notes in either direction
func (r *Repository) GetBetween(ctx context.Context, tenantID, aID, bID string) ([]models.Connection, error) {
	ctx, span := tracing.StartSpan(ctx, "connection.Repository.GetBetween")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("connections")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Or(
			sb.And(sb.Equal("source_id", aID), sb.Equal("target_id", bID)),
			sb.And(sb.Equal("source_id", bID), sb.Equal("target_id", aID)),
		),
	)

	query, args := sb.Build()
	var connections []models.Connection
	if err := r.db.SelectContext(ctx, &connections, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get connections between notes")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list connections")
	}

	return connections, nil
}

// Delete removes a connection
func (r *Repository) Delete(ctx context.Context, tenantID, id string) error {
	ctx, span := tracing.StartSpan(ctx, "connection.Repository.Delete")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	sb.DeleteFrom("connections")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"connection_id": id}).Error("Failed to delete connection")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete connection")
	}

	return nil
}

// CountForNote counts connections touching the note
func (r *Repository) CountForNote(ctx context.Context, tenantID, noteID string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "connection.Repository.CountForNote")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("COUNT(*)")
	sb.From("connections")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Or(
			sb.Equal("source_id", noteID),
			sb.Equal("target_id", noteID),
		),
	)

	query, args := sb.Build()
	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count connections for note")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count connections")
	}

	return count, nil
}

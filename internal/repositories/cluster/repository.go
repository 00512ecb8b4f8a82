package cluster

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

// Repository handles cluster and membership persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new cluster repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// GetForNote retrieves every live cluster the note belongs to
func (r *Repository) GetForNote(ctx context.Context, tenantID, noteID string) ([]models.Cluster, error) {
	ctx, span := tracing.StartSpan(ctx, "cluster.Repository.GetForNote")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("c.id", "c.tenant_id", "c.name", "c.created_at", "c.updated_at", "c.deleted_at")
	sb.From("clusters c")
	sb.JoinWithOption(sqlbuilder.InnerJoin, "cluster_members m", "m.cluster_id = c.id")
	sb.Where(
		sb.Equal("c.tenant_id", tenantID),
		sb.Equal("m.note_id", noteID),
		sb.IsNull("c.deleted_at"),
	)
	sb.OrderBy("c.name ASC")

	query, args := sb.Build()
	var clusters []models.Cluster
	if err := r.db.SelectContext(ctx, &clusters, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list clusters for note")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list clusters")
	}

	return clusters, nil
}

// IsMember reports whether the note belongs to the cluster
func (r *Repository) IsMember(ctx context.Context, tenantID, clusterID, noteID string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "cluster.Repository.IsMember")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("COUNT(*)")
	sb.From("cluster_members")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("cluster_id", clusterID),
		sb.Equal("note_id", noteID),
	)

	query, args := sb.Build()
	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to check cluster membership")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to check cluster membership")
	}

	return count > 0, nil
}

// AddMember adds the note to the cluster. Adding an existing member is a
// no-op.
func (r *Repository) AddMember(ctx context.Context, tenantID, clusterID, noteID, role string) error {
	ctx, span := tracing.StartSpan(ctx, "cluster.Repository.AddMember")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("cluster_members")
	sb.Cols("id", "tenant_id", "cluster_id", "note_id", "role", "added_at")
	sb.Values(uuid.New().String(), tenantID, clusterID, noteID, role, time.Now().UTC())

	query, args := sb.Build()
	query += " ON CONFLICT (tenant_id, cluster_id, note_id) DO NOTHING"

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"cluster_id": clusterID,
			"note_id":    noteID,
		}).Error("Failed to add cluster member")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to add cluster member")
	}

	return nil
}

// RemoveMember removes the note from the cluster
func (r *Repository) RemoveMember(ctx context.Context, tenantID, clusterID, noteID string) error {
	ctx, span := tracing.StartSpan(ctx, "cluster.Repository.RemoveMember")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	sb.DeleteFrom("cluster_members")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("cluster_id", clusterID),
		sb.Equal("note_id", noteID),
	)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"cluster_id": clusterID,
			"note_id":    noteID,
		}).Error("Failed to remove cluster member")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to remove cluster member")
	}

	return nil
}

// CountForNote counts the live clusters the note belongs to
func (r *Repository) CountForNote(ctx context.Context, tenantID, noteID string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "cluster.Repository.CountForNote")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("COUNT(*)")
	sb.From("cluster_members m")
	sb.JoinWithOption(sqlbuilder.InnerJoin, "clusters c", "c.id = m.cluster_id")
	sb.Where(
		sb.Equal("m.tenant_id", tenantID),
		sb.Equal("m.note_id", noteID),
		sb.IsNull("c.deleted_at"),
	)

	query, args := sb.Build()
	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count clusters for note")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count clusters")
	}

	return count, nil
}

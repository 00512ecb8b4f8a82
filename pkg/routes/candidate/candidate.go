package candidate

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	ctxkeys "github.com/Ramsey-B/fern/internal/context"
	"github.com/Ramsey-B/fern/internal/repositories/cluster"
	"github.com/Ramsey-B/fern/internal/repositories/connection"
	"github.com/Ramsey-B/fern/internal/repositories/mergecandidate"
	"github.com/Ramsey-B/fern/internal/repositories/note"
	"github.com/Ramsey-B/fern/internal/tracing"
	"github.com/Ramsey-B/fern/pkg/content"
	"github.com/Ramsey-B/fern/pkg/merge"
	"github.com/Ramsey-B/fern/pkg/models"
)

var validate = validator.New()

// Register registers merge candidate routes
func Register(g *echo.Group) {
	g.GET("", List)
	g.GET("/:id", Get)
	g.POST("/:id/approve", Approve)
	g.POST("/:id/reject", Reject)
	g.POST("/:id/merge", Merge)
}

// List returns candidates ordered by combined score, optionally filtered by
// status
func List(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "candidate_handler.List")
	defer span.End()

	tenantID := ctxkeys.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	status := c.QueryParam("status")
	switch status {
	case "", models.CandidateStatusPending, models.CandidateStatusApproved, models.CandidateStatusRejected, models.CandidateStatusMerged:
	default:
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid status filter")
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	ctx, repo, err := ectoinject.GetContext[*mergecandidate.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	candidates, err := repo.List(ctx, tenantID, status, limit)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.CandidateListResponse{
		Items:      candidates,
		TotalCount: len(candidates),
	})
}

// Get returns a candidate with summaries of both notes for review
func Get(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "candidate_handler.Get")
	defer span.End()

	tenantID := ctxkeys.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}
	id := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*mergecandidate.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	candidate, err := repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if candidate == nil {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "candidate %s not found", id)
	}

	withRefs := models.CandidateWithRefs{MergeCandidate: *candidate}

	withRefs.NoteA, err = buildNoteRef(c, tenantID, candidate.NoteAID)
	if err != nil {
		return err
	}
	withRefs.NoteB, err = buildNoteRef(c, tenantID, candidate.NoteBID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, withRefs)
}

// buildNoteRef assembles the review summary for one side of the pair. A
// missing or tombstoned note yields a ref with just the ID.
func buildNoteRef(c echo.Context, tenantID, noteID string) (models.NoteRef, error) {
	ctx := c.Request().Context()
	ref := models.NoteRef{ID: noteID}

	ctx, noteRepo, err := ectoinject.GetContext[*note.Repository](ctx)
	if err != nil {
		return ref, httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}
	ctx, connRepo, err := ectoinject.GetContext[*connection.Repository](ctx)
	if err != nil {
		return ref, httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}
	ctx, clusterRepo, err := ectoinject.GetContext[*cluster.Repository](ctx)
	if err != nil {
		return ref, httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	n, err := noteRepo.GetByID(ctx, tenantID, noteID)
	if err != nil {
		return ref, err
	}
	if n == nil {
		return ref, nil
	}

	ref.Title = n.Title
	ref.CreatedAt = n.CreatedAt
	ref.UpdatedAt = n.UpdatedAt

	if tree, err := content.Parse(n.Content); err == nil {
		ref.ContentPreview = content.Preview(tree)
	}

	if ref.ConnectionCount, err = connRepo.CountForNote(ctx, tenantID, noteID); err != nil {
		return ref, err
	}
	if ref.ClusterCount, err = clusterRepo.CountForNote(ctx, tenantID, noteID); err != nil {
		return ref, err
	}

	return ref, nil
}

// Approve marks a pending candidate approved
func Approve(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "candidate_handler.Approve")
	defer span.End()

	tenantID := ctxkeys.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	ctx, resolver, err := ectoinject.GetContext[*merge.Resolver](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	candidate, err := resolver.Approve(ctx, tenantID, c.Param("id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, candidate)
}

// Reject marks a candidate rejected. The note graph is untouched.
func Reject(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "candidate_handler.Reject")
	defer span.End()

	tenantID := ctxkeys.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	ctx, resolver, err := ectoinject.GetContext[*merge.Resolver](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	candidate, err := resolver.Reject(ctx, tenantID, c.Param("id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, candidate)
}

// Merge resolves a candidate by folding the secondary note into the primary
func Merge(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "candidate_handler.Merge")
	defer span.End()

	tenantID := ctxkeys.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	var options models.MergeOptions
	if err := c.Bind(&options); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(options); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, resolver, err := ectoinject.GetContext[*merge.Resolver](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	result, err := resolver.Merge(ctx, tenantID, c.Param("id"), options)
	if err != nil {
		return err
	}

	if !result.Success {
		return c.JSON(http.StatusUnprocessableEntity, result)
	}
	return c.JSON(http.StatusOK, result)
}

package note

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	ctxkeys "github.com/Ramsey-B/fern/internal/context"
	"github.com/Ramsey-B/fern/internal/repositories/note"
	"github.com/Ramsey-B/fern/internal/tracing"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/scan"
)

// Register registers note routes
func Register(g *echo.Group) {
	g.GET("", List)
	g.GET("/:id", Get)
	g.POST("/:id/scan", Scan)
}

// List returns a page of live notes
func List(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "note_handler.List")
	defer span.End()

	tenantID := ctxkeys.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("page_size"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}

	ctx, repo, err := ectoinject.GetContext[*note.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	notes, total, err := repo.List(ctx, tenantID, page, pageSize)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.NoteListResponse{
		Items:      notes,
		TotalCount: total,
		Page:       page,
		PageSize:   pageSize,
	})
}

// Get returns a note by ID
func Get(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "note_handler.Get")
	defer span.End()

	tenantID := ctxkeys.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}
	id := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*note.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	n, err := repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if n == nil {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "note %s not found", id)
	}

	return c.JSON(http.StatusOK, n)
}

// Scan runs an incremental scan of one note against the rest of the tenant
// and returns the candidates it created
func Scan(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "note_handler.Scan")
	defer span.End()

	tenantID := ctxkeys.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}
	id := c.Param("id")

	ctx, scanner, err := ectoinject.GetContext[*scan.Scanner](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	created, err := scanner.ScanNote(ctx, tenantID, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.CandidateListResponse{
		Items:      created,
		TotalCount: len(created),
	})
}

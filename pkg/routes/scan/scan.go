package scan

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	ctxkeys "github.com/Ramsey-B/fern/internal/context"
	"github.com/Ramsey-B/fern/internal/tracing"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/scan"
)

// Register registers scan routes
func Register(g *echo.Group) {
	g.POST("", Start)
	g.GET("", Progress)
	g.DELETE("", Abort)
}

// Start kicks off a full pairwise scan in the background
func Start(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "scan_handler.Start")
	defer span.End()

	tenantID := ctxkeys.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	ctx, scanner, err := ectoinject.GetContext[*scan.Scanner](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	if scanner.Running() {
		return httperror.NewHTTPError(http.StatusConflict, "a scan is already running")
	}

	// The scan outlives the request, so it runs on a detached context that
	// keeps only the tenant.
	scanCtx := ctxkeys.SetTenantID(context.Background(), tenantID)

	go func() {
		if _, err := scanner.ScanAll(scanCtx, tenantID, nil); err != nil {
			_, logger, logErr := ectoinject.GetContext[ectologger.Logger](scanCtx)
			if logErr == nil && logger != nil {
				logger.WithContext(scanCtx).WithError(err).Error("Background scan failed")
			}
		}
	}()

	return c.JSON(http.StatusAccepted, map[string]string{"status": models.ScanStatusScanning})
}

// Progress returns the current scan state
func Progress(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "scan_handler.Progress")
	defer span.End()

	ctx, scanner, err := ectoinject.GetContext[*scan.Scanner](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	return c.JSON(http.StatusOK, scanner.Progress())
}

// Abort cancels the running scan. Candidates already persisted are kept.
func Abort(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "scan_handler.Abort")
	defer span.End()

	ctx, scanner, err := ectoinject.GetContext[*scan.Scanner](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	if !scanner.Abort() {
		return httperror.NewHTTPError(http.StatusConflict, "no scan is running")
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "aborting"})
}

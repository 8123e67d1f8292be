// Package router implements the Router Frontend: the HTTP entry point
// that resolves an incoming asset identifier to its group's worker URL
// and redirects the client there, plus the platform's liveness and
// readiness surface.
//
// Grounded on
// routing_layer/app/api/routes.py's resolve/ready/health handlers, and
// on pkg/sse's echo.Context handler shape for the HTTP surface
// conventions (query-param extraction, error mapping via pkg/errors).
package router

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/openfactory/assetstream/pkg/controller"
	"github.com/openfactory/assetstream/pkg/errors"
)

// Frontend serves the routing HTTP surface described in spec §6.
type Frontend struct {
	ctrl *controller.Controller
}

// New builds a Frontend over ctrl.
func New(ctrl *controller.Controller) *Frontend {
	return &Frontend{ctrl: ctrl}
}

// Register mounts the Router Frontend's routes onto e.
func (f *Frontend) Register(e *echo.Echo) {
	e.GET("/asset_stream", f.handleAssetStream)
	e.GET("/health", f.handleHealth)
	e.GET("/ready", f.handleReady)
}

// handleAssetStream resolves asset_uuid to its worker and redirects the
// client there, forwarding the original query string so the worker's SSE
// Endpoint sees the same asset_uuid/id parameters (spec §4.7).
func (f *Frontend) handleAssetStream(c echo.Context) error {
	assetUUID := c.QueryParam("asset_uuid")
	if assetUUID == "" {
		appErr := errors.InvalidArgument("asset_uuid is required", nil)
		return c.JSON(appErr.HTTPStatus(), map[string]string{"error": appErr.Message})
	}

	url, found, err := f.ctrl.Resolve(c.Request().Context(), assetUUID)
	if err != nil {
		return jsonError(c, err)
	}
	if !found {
		appErr := errors.NotFound("asset has no group", nil)
		return c.JSON(appErr.HTTPStatus(), map[string]string{"error": appErr.Message})
	}

	target := url + "/asset_stream?" + c.QueryString()
	return c.Redirect(http.StatusFound, target)
}

func (f *Frontend) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady exposes the aggregated readiness document: 200 when every
// sub-readiness is true, 503 otherwise, with the issues map (spec §6,
// §4.6).
func (f *Frontend) handleReady(c echo.Context) error {
	ready, issues := f.ctrl.IsReady(c.Request().Context())
	if ready {
		return c.JSON(http.StatusOK, map[string]string{"status": "ready"})
	}
	return c.JSON(http.StatusServiceUnavailable, map[string]any{
		"status": "not ready",
		"issues": issues,
	})
}

func jsonError(c echo.Context, err error) error {
	var appErr interface{ HTTPStatus() int }
	if errors.As(err, &appErr) {
		return c.JSON(appErr.HTTPStatus(), map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
}

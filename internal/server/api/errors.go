package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"filedrop/internal/server/audit"
)

// HTTPErrorHandler renders every error that reaches echo in the
// {success, message} shape. Internal details are logged, never returned.
func (h *Handler) HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "internal server error"

	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		if m, ok := he.Message.(string); ok {
			message = m
		} else {
			message = http.StatusText(status)
		}
		if he.Internal != nil {
			err = he.Internal
		}
	}

	if status >= http.StatusInternalServerError {
		slog.Error("unhandled error",
			"error", err,
			"method", c.Request().Method,
			"path", c.Request().URL.Path,
		)
		h.audit.Record(c.Request().Context(), audit.KindUnhandledError, map[string]any{
			"error": err.Error(),
		})
		message = "internal server error"
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = fail(c, status, message)
	}
	if err != nil {
		slog.Error("failed to write error response", "error", err)
	}
}

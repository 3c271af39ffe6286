package apperror

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
)

// HTTPErrorHandler returns an Echo error handler that renders every
// error as {"error": {"code", "message"}}.
func HTTPErrorHandler(log *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		errorObj := map[string]any{
			"code":    "internal_error",
			"message": "internal server error",
		}

		var appErr *AppError
		var httpErr *echo.HTTPError
		switch {
		case errors.As(err, &appErr):
			status = appErr.Status
			errorObj["code"] = appErr.Code
			errorObj["message"] = appErr.Message
		case errors.As(err, &httpErr):
			status = httpErr.Code
			if msg, ok := httpErr.Message.(string); ok {
				errorObj["message"] = msg
				errorObj["code"] = codeForStatus(status)
			}
		}

		if status >= 500 {
			log.Error("request error",
				slog.Int("status", status),
				slog.String("error", err.Error()),
			)
		}

		response := map[string]any{"error": errorObj}
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, response)
		}
		if err != nil {
			log.Error("failed to write error response", slog.String("error", err.Error()))
		}
	}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_error"
	default:
		return "internal_error"
	}
}

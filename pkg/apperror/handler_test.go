package apperror

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func callHandler(t *testing.T, err error) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	e := echo.New()
	handler := HTTPErrorHandler(slog.New(slog.NewTextHandler(io.Discard, nil)))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	handler(err, c)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	errObj, ok := resp["error"].(map[string]any)
	require.True(t, ok)
	return rec, errObj
}

func TestHTTPErrorHandler_AppError(t *testing.T) {
	rec, errObj := callHandler(t, NewBadRequest("invalid input"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "bad_request", errObj["code"])
	assert.Equal(t, "invalid input", errObj["message"])
}

func TestHTTPErrorHandler_EchoError(t *testing.T) {
	rec, errObj := callHandler(t, echo.NewHTTPError(http.StatusNotFound, "route not found"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", errObj["code"])
	assert.Equal(t, "route not found", errObj["message"])
}

func TestHTTPErrorHandler_UnknownError(t *testing.T) {
	rec, errObj := callHandler(t, assert.AnError)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal_error", errObj["code"])
	// Internal details never leak to the client.
	assert.Equal(t, "internal server error", errObj["message"])
}

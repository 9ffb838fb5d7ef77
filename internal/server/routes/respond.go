package routes

import (
	"errors"
	"net/http"

	"github.com/chirality-ai/valley/internal/server/middleware"
	"github.com/chirality-ai/valley/pkg/common"
	"github.com/chirality-ai/valley/pkg/graph"
	"github.com/chirality-ai/valley/pkg/logger"

	"github.com/labstack/echo/v4"
)

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func fail(c echo.Context, status int, msg string) error {
	return c.JSON(status, errorResponse{Success: false, Error: msg})
}

// failWith maps err onto the public error taxonomy. Store failures are
// logged in full and answered with a generic message.
func failWith(c echo.Context, op string, err error) error {
	switch {
	case errors.Is(err, common.ErrConflict):
		return fail(c, http.StatusConflict, err.Error())
	case common.IsValidation(err):
		return fail(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, common.ErrNotFound):
		return fail(c, http.StatusNotFound, "Not found")
	default:
		logger.Error("[Server] Request failed", "op", op, "request_id", requestID(c), "err", err)
		return fail(c, http.StatusInternalServerError, "Internal server error")
	}
}

func invalidParams(c echo.Context) error {
	return fail(c, http.StatusBadRequest, "Invalid request params")
}

func requestID(c echo.Context) string {
	return c.Response().Header().Get(echo.HeaderXRequestID)
}

func graphClient(c echo.Context) *graph.GraphClient {
	return c.(*middleware.AppContext).App.Graph
}

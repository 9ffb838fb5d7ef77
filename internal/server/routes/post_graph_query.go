package routes

import (
	"net/http"

	"github.com/chirality-ai/valley/pkg/common"

	"github.com/labstack/echo/v4"
)

const (
	queryMatrixByID            = "get_matrix_by_id"
	queryLatestMatrixByStation = "get_latest_matrix_by_station"
)

// QueryHandler rebuilds a persisted component into its ingestion layout,
// selected either by id or as the newest component at a station.
func QueryHandler(c echo.Context) error {
	type queryData struct {
		QueryType   string `json:"query_type" validate:"required"`
		ComponentID string `json:"component_id"`
		Station     string `json:"station"`
	}

	type queryResponse struct {
		Success   bool                   `json:"success"`
		Component common.ComponentDetail `json:"component"`
	}

	data := new(queryData)
	if err := c.Bind(data); err != nil {
		return invalidParams(c)
	}
	if err := c.Validate(data); err != nil {
		return invalidParams(c)
	}

	ctx := c.Request().Context()
	g := graphClient(c)

	var (
		component common.ComponentDetail
		err       error
	)
	switch data.QueryType {
	case queryMatrixByID:
		if data.ComponentID == "" {
			return fail(c, http.StatusBadRequest, "component_id is required")
		}
		component, err = g.GetComponent(ctx, data.ComponentID)
	case queryLatestMatrixByStation:
		if data.Station == "" {
			return fail(c, http.StatusBadRequest, "station is required")
		}
		component, err = g.LatestAtStation(ctx, data.Station)
	default:
		return fail(c, http.StatusBadRequest, "Unsupported query_type "+data.QueryType)
	}
	if err != nil {
		return failWith(c, data.QueryType, err)
	}

	return c.JSON(http.StatusOK, queryResponse{Success: true, Component: component})
}

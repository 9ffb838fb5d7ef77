package routes

import (
	"net/http"

	"github.com/chirality-ai/valley/pkg/loader"

	"github.com/labstack/echo/v4"
)

// GetStationsHandler returns the station chain in pipeline order.
func GetStationsHandler(c echo.Context) error {
	stations, err := graphClient(c).ListStations(c.Request().Context())
	if err != nil {
		return failWith(c, "list_stations", err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success":  true,
		"stations": stations,
	})
}

// GetSchemaHandler returns the JSON schema of an ingestion document.
func GetSchemaHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, loader.DocumentSchema())
}

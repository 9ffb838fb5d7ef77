package server

import (
	"github.com/chirality-ai/valley/internal/server/middleware"
	"github.com/chirality-ai/valley/internal/server/routes"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	apiRoutes := e.Group("/api", middleware.AuthMiddleware)

	// Graph routes
	apiRoutes.POST("/graph/ingest", routes.IngestDocumentHandler, middleware.RequirePermission(middleware.PermIngest))
	apiRoutes.POST("/graph/delete", routes.DeleteHandler, middleware.RequirePermission(middleware.PermDelete))
	apiRoutes.POST("/graph/query", routes.QueryHandler, middleware.RequirePermission(middleware.PermView))
	apiRoutes.GET("/graph/stations", routes.GetStationsHandler, middleware.RequirePermission(middleware.PermView))
	apiRoutes.GET("/graph/schema", routes.GetSchemaHandler)

	// Legacy aliases used by existing clients
	apiRoutes.POST("/neo4j/ingest-ufo", routes.IngestDocumentHandler, middleware.RequirePermission(middleware.PermIngest))
	apiRoutes.POST("/neo4j/delete", routes.DeleteHandler, middleware.RequirePermission(middleware.PermDelete))
	apiRoutes.POST("/neo4j/query", routes.QueryHandler, middleware.RequirePermission(middleware.PermView))
}

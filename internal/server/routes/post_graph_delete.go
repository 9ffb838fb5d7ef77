package routes

import (
	"encoding/json"
	"net/http"

	"github.com/chirality-ai/valley/internal/queue"
	"github.com/chirality-ai/valley/internal/server/middleware"
	"github.com/chirality-ai/valley/pkg/common"

	"github.com/labstack/echo/v4"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// DeleteHandler runs one of the cascade delete operations, or lists the
// components that could be deleted.
func DeleteHandler(c echo.Context) error {
	type deleteData struct {
		DeleteType  string `json:"delete_type" validate:"required"`
		ComponentID string `json:"component_id"`
		Station     string `json:"station"`
		Kind        string `json:"kind"`
	}

	type deleteResponse struct {
		Success bool   `json:"success"`
		Message string `json:"message,omitempty"`
		Deleted *int64 `json:"deleted_components,omitempty"`
		JobID   string `json:"job_id,omitempty"`
	}

	data := new(deleteData)
	if err := c.Bind(data); err != nil {
		return invalidParams(c)
	}
	if err := c.Validate(data); err != nil {
		return invalidParams(c)
	}

	switch data.DeleteType {
	case queue.DeleteComponent:
		if data.ComponentID == "" {
			return fail(c, http.StatusBadRequest, "component_id is required")
		}
	case queue.DeleteAllAtStation:
		if data.Station == "" {
			return fail(c, http.StatusBadRequest, "station is required")
		}
	case queue.DeleteListComponents:
		var (
			components []common.ComponentSummary
			err        error
		)
		if data.Kind != "" {
			kind, perr := common.ParseKind(data.Kind)
			if perr != nil {
				return fail(c, http.StatusBadRequest, perr.Error())
			}
			components, err = graphClient(c).ListComponentsByKind(c.Request().Context(), kind)
		} else {
			components, err = graphClient(c).ListComponents(c.Request().Context())
		}
		if err != nil {
			return failWith(c, "list_components", err)
		}
		if components == nil {
			components = []common.ComponentSummary{}
		}
		return c.JSON(http.StatusOK, map[string]any{
			"success":    true,
			"components": components,
		})
	default:
		return fail(c, http.StatusBadRequest, "Unsupported delete_type "+data.DeleteType)
	}

	app := c.(*middleware.AppContext).App
	if c.QueryParam("async") == "true" {
		if app.Queue == nil {
			return fail(c, http.StatusServiceUnavailable, "Asynchronous deletion is not configured")
		}
		jobID, err := gonanoid.New()
		if err != nil {
			return failWith(c, data.DeleteType, err)
		}
		body, err := json.Marshal(queue.DeleteMsg{
			JobID:       jobID,
			DeleteType:  data.DeleteType,
			ComponentID: data.ComponentID,
			Station:     data.Station,
		})
		if err != nil {
			return failWith(c, data.DeleteType, err)
		}
		if err := queue.PublishFIFO(app.Queue, queue.DeleteQueue, body); err != nil {
			return failWith(c, data.DeleteType, err)
		}
		return c.JSON(http.StatusAccepted, deleteResponse{
			Success: true,
			Message: "Deletion queued",
			JobID:   jobID,
		})
	}

	ctx := c.Request().Context()
	var (
		deleted int64
		err     error
		message string
	)
	if data.DeleteType == queue.DeleteComponent {
		deleted, err = app.Graph.DeleteComponent(ctx, data.ComponentID)
		message = "Component deleted"
		if deleted == 0 {
			message = "Component not found"
		}
	} else {
		deleted, err = app.Graph.DeleteAllAtStation(ctx, data.Station)
		message = "Components deleted at station " + data.Station
	}
	if err != nil {
		return failWith(c, data.DeleteType, err)
	}

	return c.JSON(http.StatusOK, deleteResponse{
		Success: true,
		Message: message,
		Deleted: &deleted,
	})
}

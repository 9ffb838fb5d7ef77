package routes

import (
	"encoding/json"
	"net/http"

	"github.com/chirality-ai/valley/internal/queue"
	"github.com/chirality-ai/valley/internal/server/middleware"
	"github.com/chirality-ai/valley/internal/storage"
	"github.com/chirality-ai/valley/pkg/common"
	"github.com/chirality-ai/valley/pkg/graph"
	"github.com/chirality-ai/valley/pkg/logger"

	"github.com/labstack/echo/v4"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

type ingestResponse struct {
	Success    bool              `json:"success"`
	Message    string            `json:"message"`
	DocumentID string            `json:"documentId"`
	Components map[string]string `json:"components,omitempty"`
	JobID      string            `json:"job_id,omitempty"`
}

// IngestDocumentHandler persists a Chirality document. With ?async=true the
// document is validated, its identifiers are computed and the payload is
// handed to the ingest queue instead.
func IngestDocumentHandler(c echo.Context) error {
	doc := new(common.Document)
	if err := c.Bind(doc); err != nil {
		return invalidParams(c)
	}

	if c.QueryParam("async") == "true" {
		return enqueueIngest(c, doc)
	}

	res, err := graphClient(c).Ingest(c.Request().Context(), *doc)
	if err != nil {
		return failWith(c, "ingest", err)
	}

	message := "Document ingested"
	if !res.Created {
		message = "Document already ingested"
	}
	return c.JSON(http.StatusOK, ingestResponse{
		Success:    true,
		Message:    message,
		DocumentID: res.DocumentID,
		Components: res.Components,
	})
}

func enqueueIngest(c echo.Context, doc *common.Document) error {
	app := c.(*middleware.AppContext).App
	if app.Queue == nil {
		return fail(c, http.StatusServiceUnavailable, "Asynchronous ingestion is not configured")
	}

	if err := graph.ValidateDocument(*doc, app.Graph.Stations()); err != nil {
		return failWith(c, "ingest", err)
	}
	plan, err := graph.PlanIngest(*doc)
	if err != nil {
		return failWith(c, "ingest", err)
	}

	jobID, err := gonanoid.New()
	if err != nil {
		return failWith(c, "ingest", err)
	}
	msg := queue.IngestMsg{
		JobID:      jobID,
		DocumentID: plan.DocumentID(),
	}

	ctx := c.Request().Context()
	if app.S3 != nil {
		payload, err := json.Marshal(doc)
		if err != nil {
			return failWith(c, "ingest", err)
		}
		key, err := storage.PutDocument(ctx, app.S3, plan.DocumentID(), payload)
		if err != nil {
			return failWith(c, "ingest", err)
		}
		msg.S3Key = key
	} else {
		msg.Document = doc
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return failWith(c, "ingest", err)
	}
	if err := queue.PublishFIFO(app.Queue, queue.IngestQueue, body); err != nil {
		return failWith(c, "ingest", err)
	}

	logger.Info("[Server][Ingest] Document queued", "job", jobID, "document", plan.DocumentID())
	return c.JSON(http.StatusAccepted, ingestResponse{
		Success:    true,
		Message:    "Document queued for ingestion",
		DocumentID: plan.DocumentID(),
		Components: plan.Components(),
		JobID:      jobID,
	})
}

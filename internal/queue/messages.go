package queue

import "github.com/chirality-ai/valley/pkg/common"

// Delete types accepted by the delete endpoint and the delete queue.
const (
	DeleteComponent      = "component_and_related"
	DeleteAllAtStation   = "delete_all_at_station"
	DeleteListComponents = "list_components"
)

// Event topics on EventExchange.
const (
	TopicDocumentIngested  = "graph.document.ingested"
	TopicComponentsDeleted = "graph.components.deleted"
)

// IngestMsg carries one document to ingest, inline or as an archive key.
type IngestMsg struct {
	JobID      string           `json:"job_id"`
	DocumentID string           `json:"document_id"`
	Document   *common.Document `json:"document,omitempty"`
	S3Key      string           `json:"s3_key,omitempty"`
	Repair     bool             `json:"repair,omitempty"`
}

// DeleteMsg carries one cascading delete request.
type DeleteMsg struct {
	JobID       string `json:"job_id"`
	DeleteType  string `json:"delete_type"`
	ComponentID string `json:"component_id,omitempty"`
	Station     string `json:"station,omitempty"`
}

// DocumentIngestedEvent is published after a document commits.
type DocumentIngestedEvent struct {
	JobID      string            `json:"job_id"`
	DocumentID string            `json:"document_id"`
	Components map[string]string `json:"components"`
	Created    bool              `json:"created"`
}

// ComponentsDeletedEvent is published after a delete commits.
type ComponentsDeletedEvent struct {
	JobID       string `json:"job_id"`
	DeleteType  string `json:"delete_type"`
	ComponentID string `json:"component_id,omitempty"`
	Station     string `json:"station,omitempty"`
	Deleted     int64  `json:"deleted_components"`
}

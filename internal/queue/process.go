package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/chirality-ai/valley/pkg/common"
	"github.com/chirality-ai/valley/pkg/graph"
	"github.com/chirality-ai/valley/pkg/identity"
	"github.com/chirality-ai/valley/pkg/leaselock"
	"github.com/chirality-ai/valley/pkg/loader"
	"github.com/chirality-ai/valley/pkg/logger"
)

// Processor executes queued graph work. Loader resolves archived payloads
// and may be nil when no archive is configured; Events may be nil to skip
// event publication.
type Processor struct {
	Graph  *graph.GraphClient
	Locker leaselock.Locker
	Loader loader.DocumentLoader
	Events Publisher
}

// ProcessIngestMessage ingests the document carried by body while holding
// the ingest:<documentId> lease, then publishes graph.document.ingested.
func (p *Processor) ProcessIngestMessage(ctx context.Context, body []byte) error {
	var msg IngestMsg
	if err := json.Unmarshal(body, &msg); err != nil {
		return common.Invalid("message", "cannot decode ingest message: %v", err)
	}

	doc, err := p.resolveDocument(ctx, msg)
	if err != nil {
		return err
	}
	docID := identity.DocumentID(doc.ID, doc.Topic, doc.Version, doc.CreatedAt)

	logger.Info("[Queue][Ingest] Processing document", "job", msg.JobID, "document", docID)

	var res common.IngestResult
	err = p.Locker.WithLease(ctx, leaselock.Key("ingest", docID), leaselock.Options{
		TTL:  2 * time.Minute,
		Wait: true,
	}, func(ctx context.Context) error {
		var err error
		res, err = p.Graph.Ingest(ctx, doc)
		return err
	})
	if err != nil {
		return err
	}

	p.publish(TopicDocumentIngested, DocumentIngestedEvent{
		JobID:      msg.JobID,
		DocumentID: res.DocumentID,
		Components: res.Components,
		Created:    res.Created,
	})
	return nil
}

func (p *Processor) resolveDocument(ctx context.Context, msg IngestMsg) (common.Document, error) {
	if msg.Document != nil {
		return *msg.Document, nil
	}
	if msg.S3Key == "" {
		return common.Document{}, common.Invalid("message", "ingest message has neither document nor s3_key")
	}
	if p.Loader == nil {
		return common.Document{}, common.Invalid("s3_key", "no document archive configured")
	}

	docs, err := loader.NewDocumentSource(msg.S3Key, p.Loader).Load(ctx, msg.Repair)
	if err != nil {
		return common.Document{}, err
	}
	if len(docs) != 1 {
		return common.Document{}, common.Invalid("s3_key", "archive %s holds %d documents, want 1", msg.S3Key, len(docs))
	}
	return docs[0], nil
}

// ProcessDeleteMessage runs a cascading delete and publishes
// graph.components.deleted.
func (p *Processor) ProcessDeleteMessage(ctx context.Context, body []byte) error {
	var msg DeleteMsg
	if err := json.Unmarshal(body, &msg); err != nil {
		return common.Invalid("message", "cannot decode delete message: %v", err)
	}

	var (
		deleted int64
		err     error
	)
	switch msg.DeleteType {
	case DeleteComponent:
		if msg.ComponentID == "" {
			return common.Invalid("component_id", "required for %s", msg.DeleteType)
		}
		deleted, err = p.Graph.DeleteComponent(ctx, msg.ComponentID)
	case DeleteAllAtStation:
		deleted, err = p.Graph.DeleteAllAtStation(ctx, msg.Station)
	default:
		return common.Invalid("delete_type", "unsupported delete type %q", msg.DeleteType)
	}
	if err != nil {
		return err
	}

	logger.Info("[Queue][Delete] Delete finished", "job", msg.JobID, "type", msg.DeleteType, "deleted", deleted)
	p.publish(TopicComponentsDeleted, ComponentsDeletedEvent{
		JobID:       msg.JobID,
		DeleteType:  msg.DeleteType,
		ComponentID: msg.ComponentID,
		Station:     msg.Station,
		Deleted:     deleted,
	})
	return nil
}

// publish is best effort: the graph change has already committed.
func (p *Processor) publish(topic string, event any) {
	if p.Events == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		logger.Error("[Queue][Events] Failed to encode event", "topic", topic, "err", err)
		return
	}
	if err := PublishTopic(p.Events, topic, data); err != nil {
		logger.Warn("[Queue][Events] Failed to publish event", "topic", topic, "err", err)
	}
}

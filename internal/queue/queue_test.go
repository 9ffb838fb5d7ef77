package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/chirality-ai/valley/pkg/common"
	"github.com/chirality-ai/valley/pkg/graph"
	"github.com/chirality-ai/valley/pkg/leaselock"
	"github.com/chirality-ai/valley/pkg/loader"
	"github.com/chirality-ai/valley/pkg/store/memory"

	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	exchange string
	key      string
	msg      amqp091.Publishing
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []published
	err  error
}

func (f *fakePublisher) Publish(exchange, key string, _, _ bool, msg amqp091.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, published{exchange: exchange, key: key, msg: msg})
	return nil
}

type fakeAck struct {
	acked, nacked, requeued bool
}

func (f *fakeAck) Ack(uint64, bool) error { f.acked = true; return nil }
func (f *fakeAck) Nack(_ uint64, _ bool, requeue bool) error {
	f.nacked, f.requeued = true, requeue
	return nil
}
func (f *fakeAck) Reject(uint64, bool) error { return nil }

type memLoader map[string][]byte

func (m memLoader) GetDocumentBytes(_ context.Context, src loader.DocumentSource) ([]byte, error) {
	b, ok := m[src.Path]
	if !ok {
		return nil, errors.New("missing")
	}
	return b, nil
}

func ptr(s string) *string { return &s }

func testDocument() common.Document {
	return common.Document{
		Version:   "1.0",
		Topic:     "queue",
		CreatedAt: "2025-01-01T00:00:00Z",
		Components: []common.Component{{
			ID:      "m1",
			Kind:    common.KindMatrix,
			Station: ptr("Requirements"),
			Name:    ptr("Matrix A"),
			Shape:   []int{1, 1},
			Data:    [][]common.Cell{{{Resolved: "A", Operation: "literal"}}},
		}},
	}
}

func newProcessor(t *testing.T, l loader.DocumentLoader) (*Processor, *fakePublisher) {
	t.Helper()
	client, err := graph.NewGraphClient(graph.NewGraphClientParams{Gateway: memory.New()})
	require.NoError(t, err)
	events := &fakePublisher{}
	return &Processor{Graph: client, Locker: leaselock.NewLocal(), Loader: l, Events: events}, events
}

func TestProcessIngestMessageInline(t *testing.T) {
	p, events := newProcessor(t, nil)
	doc := testDocument()
	body, err := json.Marshal(IngestMsg{JobID: "job-1", Document: &doc})
	require.NoError(t, err)

	require.NoError(t, p.Dispatch(context.Background(), IngestQueue, body))

	require.Len(t, events.sent, 1)
	assert.Equal(t, EventExchange, events.sent[0].exchange)
	assert.Equal(t, TopicDocumentIngested, events.sent[0].key)

	var ev DocumentIngestedEvent
	require.NoError(t, json.Unmarshal(events.sent[0].msg.Body, &ev))
	assert.Equal(t, "job-1", ev.JobID)
	assert.True(t, ev.Created)
	assert.Contains(t, ev.Components, "m1")

	list, err := p.Graph.ListComponents(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestProcessIngestMessageFromArchive(t *testing.T) {
	doc := testDocument()
	raw, err := json.Marshal(doc)
	require.NoError(t, err)

	p, _ := newProcessor(t, memLoader{"documents/doc.json": raw})
	body, _ := json.Marshal(IngestMsg{JobID: "job-2", S3Key: "documents/doc.json"})
	require.NoError(t, p.ProcessIngestMessage(context.Background(), body))

	body, _ = json.Marshal(IngestMsg{JobID: "job-3", S3Key: "documents/missing.json"})
	assert.Error(t, p.ProcessIngestMessage(context.Background(), body))
}

func TestProcessIngestMessageRejectsEmpty(t *testing.T) {
	p, _ := newProcessor(t, nil)
	err := p.ProcessIngestMessage(context.Background(), []byte(`{"job_id":"x"}`))
	assert.True(t, common.IsValidation(err))

	err = p.ProcessIngestMessage(context.Background(), []byte(`not json`))
	assert.True(t, common.IsValidation(err))
}

func TestProcessDeleteMessage(t *testing.T) {
	p, events := newProcessor(t, nil)
	ctx := context.Background()
	res, err := p.Graph.Ingest(ctx, testDocument())
	require.NoError(t, err)

	body, _ := json.Marshal(DeleteMsg{JobID: "d1", DeleteType: DeleteComponent, ComponentID: res.Components["m1"]})
	require.NoError(t, p.Dispatch(ctx, DeleteQueue, body))

	require.Len(t, events.sent, 1)
	var ev ComponentsDeletedEvent
	require.NoError(t, json.Unmarshal(events.sent[0].msg.Body, &ev))
	assert.EqualValues(t, 1, ev.Deleted)
	assert.Equal(t, TopicComponentsDeleted, events.sent[0].key)

	body, _ = json.Marshal(DeleteMsg{DeleteType: DeleteAllAtStation, Station: "Requirements"})
	require.NoError(t, p.ProcessDeleteMessage(ctx, body))

	body, _ = json.Marshal(DeleteMsg{DeleteType: "drop_everything"})
	assert.True(t, common.IsValidation(p.ProcessDeleteMessage(ctx, body)))
}

func TestHandleProcessingErrorRetries(t *testing.T) {
	pub := &fakePublisher{}
	ack := &fakeAck{}
	msg := amqp091.Delivery{Acknowledger: ack, Body: []byte("{}"), Headers: amqp091.Table{"x-retries": int32(2)}}

	HandleProcessingError(pub, msg, IngestQueue, &common.StoreError{Op: "commit", Err: errors.New("down")})

	require.Len(t, pub.sent, 1)
	assert.Equal(t, IngestQueue+"_retry", pub.sent[0].key)
	assert.Equal(t, int32(3), pub.sent[0].msg.Headers["x-retries"])
	assert.True(t, ack.acked)
	// the delivery's own headers stay untouched
	assert.Equal(t, int32(2), msg.Headers["x-retries"])
}

func TestHandleProcessingErrorDeadLetters(t *testing.T) {
	tests := []struct {
		name    string
		retries any
		cause   error
	}{
		{"exhausted", int32(maxRetries), errors.New("transient")},
		{"exhausted int64 header", int64(maxRetries), errors.New("transient")},
		{"malformed", nil, common.Invalid("delete_type", "unsupported")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &fakePublisher{}
			ack := &fakeAck{}
			headers := amqp091.Table{}
			if tt.retries != nil {
				headers["x-retries"] = tt.retries
			}
			HandleProcessingError(pub, amqp091.Delivery{Acknowledger: ack, Headers: headers}, DeleteQueue, tt.cause)

			require.Len(t, pub.sent, 1)
			assert.Equal(t, DeleteQueue+"_dlq", pub.sent[0].key)
			assert.True(t, ack.acked)
		})
	}
}

func TestHandleProcessingErrorRequeuesWhenPublishFails(t *testing.T) {
	pub := &fakePublisher{err: errors.New("channel closed")}
	ack := &fakeAck{}

	HandleProcessingError(pub, amqp091.Delivery{Acknowledger: ack}, IngestQueue, errors.New("x"))

	assert.False(t, ack.acked)
	assert.True(t, ack.nacked)
	assert.True(t, ack.requeued)
}

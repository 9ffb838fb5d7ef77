package store

import (
	"context"
)

// Node is a labeled property-graph node. Label is the primary label; Tags
// carries secondary labels (e.g. the Matrix/Tensor/Array variant of a
// component).
type Node struct {
	ID    string         `json:"id"`
	Label string         `json:"label"`
	Tags  []string       `json:"tags,omitempty"`
	Props map[string]any `json:"props"`
}

// Edge is a directed, typed relationship between two node ids.
type Edge struct {
	From string `json:"from"`
	Rel  string `json:"rel"`
	To   string `json:"to"`
}

// Session is the unit-of-work surface handed to callers by a Gateway. The
// same interface is used inside and outside transactions; whether writes are
// atomic depends on which Gateway method produced it.
type Session interface {
	// MergeNodes creates every node whose id does not exist yet, in order.
	// Existing nodes are left untouched. Returns the number created.
	MergeNodes(ctx context.Context, nodes []Node) (int64, error)

	// MergeEdges creates every edge not present yet, in order. Both
	// endpoints must exist. Returns the number created.
	MergeEdges(ctx context.Context, edges []Edge) (int64, error)

	// GetNode returns common.ErrNotFound when id does not exist.
	GetNode(ctx context.Context, id string) (Node, error)

	// FindNodes returns the nodes of label whose props contain match,
	// ordered by id. A nil match returns every node of the label.
	FindNodes(ctx context.Context, label string, match map[string]any) ([]Node, error)

	// Out returns the targets of id's outgoing edges of the given types.
	Out(ctx context.Context, id string, rels ...string) ([]Node, error)

	// In returns the sources of id's incoming edges of the given types.
	In(ctx context.Context, id string, rels ...string) ([]Node, error)

	CountNodes(ctx context.Context, label string) (int64, error)
	CountEdges(ctx context.Context, rel string) (int64, error)

	// DetachDelete removes every edge touching ids, then the nodes
	// themselves. Returns the number of nodes deleted.
	DetachDelete(ctx context.Context, ids ...string) (int64, error)
}

// UnitOfWork is the caller-supplied body run by a Gateway.
type UnitOfWork func(ctx context.Context, s Session) error

// Gateway acquires scoped sessions against the graph store. A session is
// released on every exit path of the unit of work: success, error, panic or
// context cancellation.
type Gateway interface {
	// WithSession runs fn on a session without a wrapping transaction.
	WithSession(ctx context.Context, fn UnitOfWork) error

	// WithTransaction runs fn inside a transaction. Every write commits
	// together or rolls back together.
	WithTransaction(ctx context.Context, fn UnitOfWork) error

	Close()
}

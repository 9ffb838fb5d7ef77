package pgx

import (
	"context"
	"errors"

	"github.com/chirality-ai/valley/internal/util"
	"github.com/chirality-ai/valley/pkg/common"
	"github.com/chirality-ai/valley/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
)

const batchSize = 500

type session struct {
	conn pgxIConn
}

func (s *session) MergeNodes(ctx context.Context, nodes []store.Node) (int64, error) {
	var created int64
	err := store.ChunkRange(len(nodes), batchSize, func(start, end int) error {
		batch := &pgxv5.Batch{}
		for _, n := range nodes[start:end] {
			if n.ID == "" || n.Label == "" {
				return errors.New("node id and label are required")
			}
			tags := n.Tags
			if tags == nil {
				tags = []string{}
			}
			batch.Queue(mergeNodeSQL, n.ID, n.Label, tags, util.SanitizePostgresProps(n.Props))
		}
		n, err := execBatch(ctx, s.conn, batch)
		created += n
		return err
	})
	if err != nil {
		return 0, &common.StoreError{Op: "merge nodes", Err: err}
	}
	return created, nil
}

func (s *session) MergeEdges(ctx context.Context, edges []store.Edge) (int64, error) {
	var created int64
	err := store.ChunkRange(len(edges), batchSize, func(start, end int) error {
		batch := &pgxv5.Batch{}
		for _, e := range edges[start:end] {
			batch.Queue(mergeEdgeSQL, e.From, e.Rel, e.To)
		}
		n, err := execBatch(ctx, s.conn, batch)
		created += n
		return err
	})
	if err != nil {
		return 0, &common.StoreError{Op: "merge edges", Err: err}
	}
	return created, nil
}

func execBatch(ctx context.Context, conn pgxIConn, batch *pgxv5.Batch) (int64, error) {
	br := conn.SendBatch(ctx, batch)
	var affected int64
	for i := 0; i < batch.Len(); i++ {
		tag, err := br.Exec()
		if err != nil {
			_ = br.Close()
			return affected, err
		}
		affected += tag.RowsAffected()
	}
	return affected, br.Close()
}

func (s *session) GetNode(ctx context.Context, id string) (store.Node, error) {
	rows, err := s.conn.Query(ctx, getNodeSQL, id)
	if err != nil {
		return store.Node{}, &common.StoreError{Op: "get node", Err: err}
	}
	nodes, err := collectNodes(rows)
	if err != nil {
		return store.Node{}, &common.StoreError{Op: "get node", Err: err}
	}
	if len(nodes) == 0 {
		return store.Node{}, common.ErrNotFound
	}
	return nodes[0], nil
}

func (s *session) FindNodes(ctx context.Context, label string, match map[string]any) ([]store.Node, error) {
	if match == nil {
		match = map[string]any{}
	}
	rows, err := s.conn.Query(ctx, findNodesSQL, label, match)
	if err != nil {
		return nil, &common.StoreError{Op: "find nodes", Err: err}
	}
	nodes, err := collectNodes(rows)
	if err != nil {
		return nil, &common.StoreError{Op: "find nodes", Err: err}
	}
	return nodes, nil
}

func (s *session) Out(ctx context.Context, id string, rels ...string) ([]store.Node, error) {
	return s.neighbours(ctx, outSQL, id, rels)
}

func (s *session) In(ctx context.Context, id string, rels ...string) ([]store.Node, error) {
	return s.neighbours(ctx, inSQL, id, rels)
}

func (s *session) neighbours(ctx context.Context, sql, id string, rels []string) ([]store.Node, error) {
	rows, err := s.conn.Query(ctx, sql, id, rels)
	if err != nil {
		return nil, &common.StoreError{Op: "traverse", Err: err}
	}
	nodes, err := collectNodes(rows)
	if err != nil {
		return nil, &common.StoreError{Op: "traverse", Err: err}
	}
	return nodes, nil
}

func (s *session) CountNodes(ctx context.Context, label string) (int64, error) {
	var n int64
	if err := s.conn.QueryRow(ctx, countNodesSQL, label).Scan(&n); err != nil {
		return 0, &common.StoreError{Op: "count nodes", Err: err}
	}
	return n, nil
}

func (s *session) CountEdges(ctx context.Context, rel string) (int64, error) {
	var n int64
	if err := s.conn.QueryRow(ctx, countEdgesSQL, rel).Scan(&n); err != nil {
		return 0, &common.StoreError{Op: "count edges", Err: err}
	}
	return n, nil
}

func (s *session) DetachDelete(ctx context.Context, ids ...string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	if _, err := s.conn.Exec(ctx, detachEdgesSQL, ids); err != nil {
		return 0, &common.StoreError{Op: "detach", Err: err}
	}
	tag, err := s.conn.Exec(ctx, deleteNodesSQL, ids)
	if err != nil {
		return 0, &common.StoreError{Op: "delete nodes", Err: err}
	}
	return tag.RowsAffected(), nil
}

func collectNodes(rows pgxv5.Rows) ([]store.Node, error) {
	return pgxv5.CollectRows(rows, func(row pgxv5.CollectableRow) (store.Node, error) {
		var n store.Node
		err := row.Scan(&n.ID, &n.Label, &n.Tags, &n.Props)
		return n, err
	})
}

const mergeNodeSQL = `
INSERT INTO graph_nodes (id, label, tags, props)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO NOTHING;
`

const mergeEdgeSQL = `
INSERT INTO graph_edges (src, rel, dst)
VALUES ($1, $2, $3)
ON CONFLICT (src, rel, dst) DO NOTHING;
`

const getNodeSQL = `
SELECT id, label, tags, props
FROM graph_nodes
WHERE id = $1;
`

const findNodesSQL = `
SELECT id, label, tags, props
FROM graph_nodes
WHERE label = $1 AND props @> $2::jsonb
ORDER BY id;
`

const outSQL = `
SELECT DISTINCT ON (n.id) n.id, n.label, n.tags, n.props
FROM graph_edges e
JOIN graph_nodes n ON n.id = e.dst
WHERE e.src = $1 AND e.rel = ANY($2::text[])
ORDER BY n.id;
`

const inSQL = `
SELECT DISTINCT ON (n.id) n.id, n.label, n.tags, n.props
FROM graph_edges e
JOIN graph_nodes n ON n.id = e.src
WHERE e.dst = $1 AND e.rel = ANY($2::text[])
ORDER BY n.id;
`

const countNodesSQL = `SELECT count(*) FROM graph_nodes WHERE label = $1;`

const countEdgesSQL = `SELECT count(*) FROM graph_edges WHERE rel = $1;`

const detachEdgesSQL = `
DELETE FROM graph_edges
WHERE src = ANY($1::text[]) OR dst = ANY($1::text[]);
`

const deleteNodesSQL = `
DELETE FROM graph_nodes
WHERE id = ANY($1::text[]);
`

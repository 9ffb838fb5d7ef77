// Package memory provides an in-memory transactional graph store. It
// implements the same Session and Gateway contract as the Postgres store,
// including its uniqueness constraints and the rule that both endpoints of an
// edge must exist. A transaction clones the state once, writes to the clone
// in place and swaps it in on commit, so a failed or cancelled unit of work
// leaves no trace.
package memory

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"sort"
	"strconv"
	"sync"

	"github.com/chirality-ai/valley/pkg/common"
	"github.com/chirality-ai/valley/pkg/store"
)

type graphState struct {
	nodes map[string]store.Node
	edges map[store.Edge]struct{}
	// unique maps constraint keys onto the owning node id.
	unique map[string]string
}

func newGraphState() graphState {
	return graphState{
		nodes:  map[string]store.Node{},
		edges:  map[store.Edge]struct{}{},
		unique: map[string]string{},
	}
}

func (s graphState) clone() graphState {
	c := graphState{
		nodes:  make(map[string]store.Node, len(s.nodes)),
		edges:  make(map[store.Edge]struct{}, len(s.edges)),
		unique: make(map[string]string, len(s.unique)),
	}
	for k, v := range s.nodes {
		c.nodes[k] = v
	}
	for k := range s.edges {
		c.edges[k] = struct{}{}
	}
	for k, v := range s.unique {
		c.unique[k] = v
	}
	return c
}

// uniqueKeys mirrors the partial unique indexes of the Postgres schema.
func uniqueKeys(n store.Node) []string {
	switch n.Label {
	case common.LabelStation:
		return []string{
			"station.name:" + n.String("name"),
			"station.position:" + strconv.Itoa(n.Int("position")),
		}
	case common.LabelValley:
		return []string{"valley.name:" + n.String("name")}
	case common.LabelKnowledgeField:
		return []string{"kf.name:" + n.String("name")}
	case common.LabelCell:
		return []string{fmt.Sprintf("cell:%s:%d:%d", n.String("component_id"), n.Int("row"), n.Int("col"))}
	case common.LabelTerm:
		return []string{fmt.Sprintf("term:%s:%s:%d", n.String("cell_id"), n.String("type"), n.Int("ordinal"))}
	}
	return nil
}

// Store is the in-memory Gateway.
type Store struct {
	mu    sync.RWMutex
	state graphState
}

// New returns an empty store.
func New() *Store {
	return &Store{state: newGraphState()}
}

// WithSession runs fn with every operation applied directly to the shared
// state.
func (s *Store) WithSession(ctx context.Context, fn store.UnitOfWork) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx, &session{store: s})
}

// WithTransaction runs fn against a private copy of the state and publishes
// it only if fn returns nil and ctx is still live.
func (s *Store) WithTransaction(ctx context.Context, fn store.UnitOfWork) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := s.state.clone()
	sess := &session{state: &tx}
	if err := fn(ctx, sess); err != nil {
		return err
	}
	if sess.aborted != nil {
		return sess.aborted
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.state = tx
	return nil
}

func (s *Store) Close() {}

// Snapshot returns copies of every node and edge, for tests and debugging.
func (s *Store) Snapshot() ([]store.Node, []store.Edge) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	nodes := make([]store.Node, 0, len(s.state.nodes))
	for _, n := range s.state.nodes {
		nodes = append(nodes, n)
	}
	sortNodes(nodes)
	edges := make([]store.Edge, 0, len(s.state.edges))
	for e := range s.state.edges {
		edges = append(edges, e)
	}
	sort.Slice(edges, func(i, j int) bool {
		a, b := edges[i], edges[j]
		if a.From != b.From {
			return a.From < b.From
		}
		if a.Rel != b.Rel {
			return a.Rel < b.Rel
		}
		return a.To < b.To
	})
	return nodes, edges
}

// session either owns a transaction's private state or, when state is nil,
// locks the store around each call.
type session struct {
	store *Store
	state *graphState
	// aborted is the first failed write of a transaction. Like Postgres, the
	// transaction refuses every later call and cannot commit.
	aborted error
}

func (s *session) read(ctx context.Context, fn func(st *graphState) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.aborted != nil {
		return s.aborted
	}
	if s.state != nil {
		return fn(s.state)
	}
	s.store.mu.RLock()
	defer s.store.mu.RUnlock()
	return fn(&s.store.state)
}

// write applies fn in place inside a transaction, whose private state is
// dropped on failure anyway. An autocommit call works on a scratch copy that
// is kept only on success, so it is atomic on its own.
func (s *session) write(ctx context.Context, fn func(st *graphState) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.aborted != nil {
		return s.aborted
	}
	if s.state != nil {
		if err := fn(s.state); err != nil {
			s.aborted = err
			return err
		}
		return nil
	}
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	scratch := s.store.state.clone()
	if err := fn(&scratch); err != nil {
		return err
	}
	s.store.state = scratch
	return nil
}

func (s *session) MergeNodes(ctx context.Context, nodes []store.Node) (int64, error) {
	var created int64
	err := s.write(ctx, func(st *graphState) error {
		for _, n := range nodes {
			if n.ID == "" || n.Label == "" {
				return &common.StoreError{Op: "merge node", Err: fmt.Errorf("node id and label are required")}
			}
			if _, ok := st.nodes[n.ID]; ok {
				continue
			}
			props, err := store.NormalizeProps(n.Props)
			if err != nil {
				return &common.StoreError{Op: "merge node", Err: err}
			}
			n.Props = props
			n.Tags = slices.Clone(n.Tags)
			keys := uniqueKeys(n)
			for _, k := range keys {
				if owner, ok := st.unique[k]; ok && owner != n.ID {
					return &common.StoreError{Op: "merge node", Err: fmt.Errorf("unique constraint %q violated by %s", k, n.ID)}
				}
			}
			for _, k := range keys {
				st.unique[k] = n.ID
			}
			st.nodes[n.ID] = n
			created++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return created, nil
}

func (s *session) MergeEdges(ctx context.Context, edges []store.Edge) (int64, error) {
	var created int64
	err := s.write(ctx, func(st *graphState) error {
		for _, e := range edges {
			if _, ok := st.nodes[e.From]; !ok {
				return &common.StoreError{Op: "merge edge", Err: fmt.Errorf("missing source node %s for %s", e.From, e.Rel)}
			}
			if _, ok := st.nodes[e.To]; !ok {
				return &common.StoreError{Op: "merge edge", Err: fmt.Errorf("missing target node %s for %s", e.To, e.Rel)}
			}
			if _, ok := st.edges[e]; ok {
				continue
			}
			st.edges[e] = struct{}{}
			created++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return created, nil
}

func (s *session) GetNode(ctx context.Context, id string) (store.Node, error) {
	var out store.Node
	err := s.read(ctx, func(st *graphState) error {
		n, ok := st.nodes[id]
		if !ok {
			return common.ErrNotFound
		}
		out = n
		return nil
	})
	return out, err
}

func (s *session) FindNodes(ctx context.Context, label string, match map[string]any) ([]store.Node, error) {
	want, err := store.NormalizeProps(match)
	if err != nil {
		return nil, err
	}
	var out []store.Node
	err = s.read(ctx, func(st *graphState) error {
		for _, n := range st.nodes {
			if n.Label != label || !containsProps(n.Props, want) {
				continue
			}
			out = append(out, n)
		}
		return nil
	})
	sortNodes(out)
	return out, err
}

func (s *session) Out(ctx context.Context, id string, rels ...string) ([]store.Node, error) {
	return s.neighbours(ctx, id, rels, true)
}

func (s *session) In(ctx context.Context, id string, rels ...string) ([]store.Node, error) {
	return s.neighbours(ctx, id, rels, false)
}

func (s *session) neighbours(ctx context.Context, id string, rels []string, outgoing bool) ([]store.Node, error) {
	var out []store.Node
	err := s.read(ctx, func(st *graphState) error {
		seen := map[string]struct{}{}
		for e := range st.edges {
			if !slices.Contains(rels, e.Rel) {
				continue
			}
			other := ""
			if outgoing && e.From == id {
				other = e.To
			} else if !outgoing && e.To == id {
				other = e.From
			}
			if other == "" {
				continue
			}
			if _, ok := seen[other]; ok {
				continue
			}
			seen[other] = struct{}{}
			out = append(out, st.nodes[other])
		}
		return nil
	})
	sortNodes(out)
	return out, err
}

func (s *session) CountNodes(ctx context.Context, label string) (int64, error) {
	var n int64
	err := s.read(ctx, func(st *graphState) error {
		for _, node := range st.nodes {
			if node.Label == label {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (s *session) CountEdges(ctx context.Context, rel string) (int64, error) {
	var n int64
	err := s.read(ctx, func(st *graphState) error {
		for e := range st.edges {
			if e.Rel == rel {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (s *session) DetachDelete(ctx context.Context, ids ...string) (int64, error) {
	var deleted int64
	err := s.write(ctx, func(st *graphState) error {
		targets := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			targets[id] = struct{}{}
		}
		for e := range st.edges {
			_, from := targets[e.From]
			_, to := targets[e.To]
			if from || to {
				delete(st.edges, e)
			}
		}
		for id := range targets {
			n, ok := st.nodes[id]
			if !ok {
				continue
			}
			for _, k := range uniqueKeys(n) {
				if st.unique[k] == id {
					delete(st.unique, k)
				}
			}
			delete(st.nodes, id)
			deleted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

func containsProps(have, want map[string]any) bool {
	for k, v := range want {
		got, ok := have[k]
		if !ok || !reflect.DeepEqual(got, v) {
			return false
		}
	}
	return true
}

func sortNodes(nodes []store.Node) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
}

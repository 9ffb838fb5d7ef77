package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/chirality-ai/valley/pkg/common"
	"github.com/chirality-ai/valley/pkg/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, s *Store) {
	t.Helper()
	err := s.WithTransaction(context.Background(), func(ctx context.Context, sess store.Session) error {
		if _, err := sess.MergeNodes(ctx, []store.Node{
			{ID: "a", Label: common.LabelComponent, Props: map[string]any{"kind": "matrix"}},
			{ID: "b", Label: common.LabelCell, Props: map[string]any{"component_id": "a", "row": 0, "col": 0}},
			{ID: "c", Label: common.LabelCell, Props: map[string]any{"component_id": "a", "row": 0, "col": 1}},
		}); err != nil {
			return err
		}
		_, err := sess.MergeEdges(ctx, []store.Edge{
			{From: "a", Rel: common.RelHasCell, To: "b"},
			{From: "a", Rel: common.RelHasCell, To: "c"},
		})
		return err
	})
	require.NoError(t, err)
}

func TestMergeIsCreateIfAbsent(t *testing.T) {
	s := New()
	seed(t, s)

	err := s.WithSession(context.Background(), func(ctx context.Context, sess store.Session) error {
		n, err := sess.MergeNodes(ctx, []store.Node{
			{ID: "a", Label: common.LabelComponent, Props: map[string]any{"kind": "tensor"}},
		})
		require.NoError(t, err)
		assert.Zero(t, n)

		node, err := sess.GetNode(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, "matrix", node.String("kind"))

		e, err := sess.MergeEdges(ctx, []store.Edge{{From: "a", Rel: common.RelHasCell, To: "b"}})
		require.NoError(t, err)
		assert.Zero(t, e)
		return nil
	})
	require.NoError(t, err)
}

func TestUniqueCellPosition(t *testing.T) {
	s := New()
	seed(t, s)

	err := s.WithSession(context.Background(), func(ctx context.Context, sess store.Session) error {
		_, err := sess.MergeNodes(ctx, []store.Node{
			{ID: "d", Label: common.LabelCell, Props: map[string]any{"component_id": "a", "row": 0, "col": 0}},
		})
		return err
	})
	require.Error(t, err)
	assert.True(t, common.IsStore(err))
}

func TestEdgeNeedsEndpoints(t *testing.T) {
	s := New()
	err := s.WithSession(context.Background(), func(ctx context.Context, sess store.Session) error {
		_, err := sess.MergeEdges(ctx, []store.Edge{{From: "x", Rel: common.RelNext, To: "y"}})
		return err
	})
	assert.True(t, common.IsStore(err))
}

func TestTransactionRollsBack(t *testing.T) {
	s := New()
	boom := errors.New("boom")

	err := s.WithTransaction(context.Background(), func(ctx context.Context, sess store.Session) error {
		if _, err := sess.MergeNodes(ctx, []store.Node{{ID: "a", Label: common.LabelDocument}}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	nodes, edges := s.Snapshot()
	assert.Empty(t, nodes)
	assert.Empty(t, edges)
}

func TestTransactionRollsBackOnCancel(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())

	err := s.WithTransaction(ctx, func(ctx context.Context, sess store.Session) error {
		_, err := sess.MergeNodes(ctx, []store.Node{{ID: "a", Label: common.LabelDocument}})
		cancel()
		return err
	})
	require.ErrorIs(t, err, context.Canceled)

	nodes, _ := s.Snapshot()
	assert.Empty(t, nodes)
}

func TestFailedWriteAbortsTransaction(t *testing.T) {
	s := New()
	seed(t, s)

	err := s.WithTransaction(context.Background(), func(ctx context.Context, sess store.Session) error {
		n, err := sess.MergeNodes(ctx, []store.Node{{ID: "e", Label: common.LabelDocument}})
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)
		_, err = sess.GetNode(ctx, "e")
		require.NoError(t, err)

		_, err = sess.MergeNodes(ctx, []store.Node{
			{ID: "f", Label: common.LabelDocument},
			{ID: "d", Label: common.LabelCell, Props: map[string]any{"component_id": "a", "row": 0, "col": 0}},
		})
		require.Error(t, err)

		_, err = sess.GetNode(ctx, "e")
		assert.True(t, common.IsStore(err))
		return nil
	})
	require.Error(t, err)
	assert.True(t, common.IsStore(err))

	nodes, _ := s.Snapshot()
	assert.Len(t, nodes, 3)
}

func TestTraversalAndFind(t *testing.T) {
	s := New()
	seed(t, s)

	err := s.WithSession(context.Background(), func(ctx context.Context, sess store.Session) error {
		out, err := sess.Out(ctx, "a", common.RelHasCell)
		require.NoError(t, err)
		require.Len(t, out, 2)
		assert.Equal(t, "b", out[0].ID)
		assert.Equal(t, "c", out[1].ID)

		in, err := sess.In(ctx, "c", common.RelHasCell)
		require.NoError(t, err)
		require.Len(t, in, 1)
		assert.Equal(t, "a", in[0].ID)

		found, err := sess.FindNodes(ctx, common.LabelCell, map[string]any{"col": 1})
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, "c", found[0].ID)

		count, err := sess.CountEdges(ctx, common.RelHasCell)
		require.NoError(t, err)
		assert.EqualValues(t, 2, count)
		return nil
	})
	require.NoError(t, err)
}

func TestDetachDelete(t *testing.T) {
	s := New()
	seed(t, s)

	err := s.WithTransaction(context.Background(), func(ctx context.Context, sess store.Session) error {
		n, err := sess.DetachDelete(ctx, "b", "c", "missing")
		require.NoError(t, err)
		assert.EqualValues(t, 2, n)

		_, err = sess.GetNode(ctx, "b")
		assert.ErrorIs(t, err, common.ErrNotFound)

		// the freed position can be reused
		_, err = sess.MergeNodes(ctx, []store.Node{
			{ID: "d", Label: common.LabelCell, Props: map[string]any{"component_id": "a", "row": 0, "col": 0}},
		})
		return err
	})
	require.NoError(t, err)

	_, edges := s.Snapshot()
	assert.Empty(t, edges)
}

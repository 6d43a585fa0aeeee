package ghola

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seb7887/lazarus/sietch"
)

// seedDeleted creates a deleted record of every soft-deletable type, with
// likes registered before the docs they point at.
func seedDeleted(t *testing.T, f *fixture) {
	t.Helper()
	f.create(t,
		&like{ID: "l1", TargetType: "doc", TargetID: "d1"},
		&note{ID: "n1", DocID: "d1"},
		&note{ID: "n2", DocID: "d1"},
		&doc{ID: "d1", FolderID: strPtr("f1"), OwnerID: "o1"},
		&folder{ID: "f1", OwnerID: "o1"},
		&owner{ID: "o1"},
		&owner{ID: "o2"},
	)
	for _, ref := range [][2]string{{"like", "l1"}, {"note", "n1"}, {"note", "n2"}, {"doc", "d1"}, {"folder", "f1"}, {"owner", "o1"}} {
		f.remove(t, f.get(t, ref[0], ref[1]))
	}
}

func TestBulkRestoreByDependencyOrder(t *testing.T) {
	f := newFixture(t)
	seedDeleted(t, f)

	res, err := f.engine.BulkRestoreByDependencyOrder(context.Background(), BulkOptions{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeRestored, res.Outcome)
	assert.Equal(t, 6, res.Count)
	assert.Equal(t, "restored 6 objects in dependency order", res.Message)
	assert.Equal(t, []TypeCount{{"owner", 1}, {"folder", 1}, {"doc", 1}, {"note", 2}, {"like", 1}}, res.PerType)
	assert.Equal(t, "restored record owner#o1", res.Plan[0])
	assert.Empty(t, res.Cycle)

	for _, et := range f.reg.Types() {
		if !et.SoftDeletable() {
			continue
		}
		n, err := f.store.Count(context.Background(), et, sietch.NewFilter().OnlyDeleted().Build())
		require.NoError(t, err)
		assert.Zero(t, n, et.Name)
	}
}

func TestBulkRestoreByDependencyOrder_DryRun(t *testing.T) {
	f := newFixture(t)
	seedDeleted(t, f)
	before := f.dump(t)

	res, err := f.engine.BulkRestoreByDependencyOrder(context.Background(), BulkOptions{DryRun: true})
	require.NoError(t, err)
	assert.True(t, res.DryRun)
	assert.Equal(t, 6, res.Count)
	assert.Equal(t, "would restore 6 objects in dependency order", res.Message)
	assert.Equal(t, "would restore 2 note", res.Plan[3])
	assert.Equal(t, before, f.dump(t))
}

func TestBulkRestoreByDependencyOrder_Batches(t *testing.T) {
	f := newFixture(t)
	seedDeleted(t, f)

	res, err := f.engine.BulkRestoreByDependencyOrder(context.Background(), BulkOptions{BatchSize: 1})
	require.NoError(t, err)
	assert.Equal(t, 6, res.Count)
	assert.False(t, f.deleted(t, "like", "l1"))
}

func TestBulkRestoreByDependencyOrder_NothingToDo(t *testing.T) {
	f := newFixture(t)
	f.create(t, &owner{ID: "o1"})

	res, err := f.engine.BulkRestoreByDependencyOrder(context.Background(), BulkOptions{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNothingToDo, res.Outcome)
	assert.Equal(t, "nothing to restore", res.Message)
}

func TestBulkRestoreByDependencyOrder_Cycle(t *testing.T) {
	reg := sietch.NewRegistry().MustRegister(
		sietch.EntityType{
			Name:       "folder",
			New:        func() sietch.Entity { return &folder{} },
			References: []sietch.Reference{{Field: "owner_id", Target: "owner"}},
		},
		sietch.EntityType{
			Name:       "owner",
			New:        func() sietch.Entity { return &owner{} },
			References: []sietch.Reference{{Field: "name", Target: "folder"}},
		},
	)
	f := newFixtureWith(t, reg)
	f.create(t, &folder{ID: "f1", OwnerID: "o1"}, &owner{ID: "o1", Name: "f1"})
	f.remove(t, f.get(t, "folder", "f1"), f.get(t, "owner", "o1"))

	res, err := f.engine.BulkRestoreByDependencyOrder(context.Background(), BulkOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Count)
	assert.Equal(t, []string{"folder", "owner"}, res.Cycle)
	assert.True(t, strings.HasSuffix(res.Message, "dependency cycle among: folder, owner"), res.Message)
	assert.False(t, f.deleted(t, "folder", "f1"))
	assert.False(t, f.deleted(t, "owner", "o1"))
}

func TestBulkRestoreSubset(t *testing.T) {
	for _, workers := range []int{0, 4} {
		t.Run(fmt.Sprintf("Workers%d", workers), func(t *testing.T) {
			f := newFixture(t)
			f.create(t, &owner{ID: "o1"})
			var entities []sietch.Entity
			for i := 0; i < 6; i++ {
				d := &doc{ID: fmt.Sprintf("d%d", i), OwnerID: "o1"}
				n := &note{ID: fmt.Sprintf("n%d", i), DocID: d.ID}
				f.create(t, d, n)
				f.remove(t, f.get(t, "doc", d.ID), f.get(t, "note", n.ID))
				entities = append(entities, &doc{ID: d.ID})
			}

			res, err := f.engine.BulkRestoreSubset(context.Background(), entities, BulkOptions{Workers: workers})
			require.NoError(t, err)
			assert.Equal(t, OutcomeRestored, res.Outcome)
			assert.Equal(t, 12, res.Count)
			assert.Equal(t, "restored 12 objects from 6 of 6 instances", res.Message)
			assert.Empty(t, res.Failures)
		})
	}
}

func TestBulkRestoreSubset_Standalone(t *testing.T) {
	f := newFixture(t)
	f.create(t, &owner{ID: "o1"}, &doc{ID: "d1", OwnerID: "o1"}, &note{ID: "n1", DocID: "d1"})
	f.remove(t, f.get(t, "doc", "d1"), f.get(t, "note", "n1"))

	res, err := f.engine.BulkRestoreSubset(context.Background(), []sietch.Entity{&doc{ID: "d1"}}, BulkOptions{Standalone: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)
	assert.True(t, f.deleted(t, "note", "n1"))
}

func TestBulkRestoreSubset_PartialFailure(t *testing.T) {
	f := newFixture(t)
	f.create(t, &owner{ID: "o1"}, &doc{ID: "d1", OwnerID: "o1"}, &doc{ID: "d2", OwnerID: "o1"})
	f.remove(t, f.get(t, "doc", "d1"))

	res, err := f.engine.BulkRestoreSubset(context.Background(), []sietch.Entity{
		&doc{ID: "d1"}, &doc{ID: "d2"}, &doc{ID: "ghost"},
	}, BulkOptions{Workers: 2})
	require.NoError(t, err)
	assert.Equal(t, OutcomePartialFailure, res.Outcome)
	assert.Equal(t, 1, res.Count)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "doc#ghost", res.Failures[0].Ref)
	assert.ErrorIs(t, res.Err(), sietch.ErrItemNotFound)
	assert.Equal(t, "restored 1 object from 1 of 3 instances, 1 failed", res.Message)
}

func TestBulkRestoreSubset_AllFail(t *testing.T) {
	f := newFixture(t)

	res, err := f.engine.BulkRestoreSubset(context.Background(), []sietch.Entity{
		&doc{ID: "x"}, &label{ID: "y"},
	}, BulkOptions{})
	require.Error(t, err)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.ErrorIs(t, err, sietch.ErrNotSoftDeletable)
	assert.ErrorIs(t, err, sietch.ErrItemNotFound)
}

func TestBulkRestoreSubset_Empty(t *testing.T) {
	f := newFixture(t)
	res, err := f.engine.BulkRestoreSubset(context.Background(), nil, BulkOptions{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNothingToDo, res.Outcome)
}

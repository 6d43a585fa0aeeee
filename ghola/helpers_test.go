package ghola

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/seb7887/lazarus/sietch"
)

type owner struct {
	ID   string `db:"id"`
	Name string `db:"name"`
	sietch.SoftDelete
}

func (o *owner) EntityType() string { return "owner" }
func (o *owner) GetID() string      { return o.ID }
func (o *owner) SetID(id string)    { o.ID = id }

type folder struct {
	ID      string `db:"id"`
	OwnerID string `db:"owner_id"`
	sietch.SoftDelete
}

func (f *folder) EntityType() string { return "folder" }
func (f *folder) GetID() string      { return f.ID }
func (f *folder) SetID(id string)    { f.ID = id }

type doc struct {
	ID        string  `db:"id"`
	FolderID  *string `db:"folder_id"`
	OwnerID   string  `db:"owner_id"`
	NoteCount int     `db:"note_count"`
	sietch.SoftDelete
}

func (d *doc) EntityType() string { return "doc" }
func (d *doc) GetID() string      { return d.ID }
func (d *doc) SetID(id string)    { d.ID = id }

type note struct {
	ID    string `db:"id"`
	DocID string `db:"doc_id"`
	sietch.SoftDelete
}

func (n *note) EntityType() string { return "note" }
func (n *note) GetID() string      { return n.ID }
func (n *note) SetID(id string)    { n.ID = id }

type label struct {
	ID   string `db:"id"`
	Uses int    `db:"uses"`
}

func (l *label) EntityType() string { return "label" }
func (l *label) GetID() string      { return l.ID }
func (l *label) SetID(id string)    { l.ID = id }

type docLabel struct {
	ID      string `db:"id"`
	DocID   string `db:"doc_id"`
	LabelID string `db:"label_id"`
	sietch.SoftDelete
}

func (d *docLabel) EntityType() string { return "doc_label" }
func (d *docLabel) GetID() string      { return d.ID }
func (d *docLabel) SetID(id string)    { d.ID = id }

type like struct {
	ID         string `db:"id"`
	TargetType string `db:"target_type"`
	TargetID   string `db:"target_id"`
	sietch.SoftDelete
}

func (l *like) EntityType() string { return "like" }
func (l *like) GetID() string      { return l.ID }
func (l *like) SetID(id string)    { l.ID = id }

// testRegistry: owner <- folder <- doc <- note, doc <- doc_label -> label,
// and like pointing at a doc or a note.
func testRegistry() *sietch.Registry {
	return sietch.NewRegistry().MustRegister(
		sietch.EntityType{Name: "owner", New: func() sietch.Entity { return &owner{} }},
		sietch.EntityType{
			Name:       "folder",
			New:        func() sietch.Entity { return &folder{} },
			References: []sietch.Reference{{Field: "owner_id", Target: "owner"}},
		},
		sietch.EntityType{
			Name: "doc",
			New:  func() sietch.Entity { return &doc{} },
			References: []sietch.Reference{
				{Field: "folder_id", Target: "folder"},
				{Field: "owner_id", Target: "owner"},
			},
		},
		sietch.EntityType{
			Name:       "note",
			New:        func() sietch.Entity { return &note{} },
			References: []sietch.Reference{{Field: "doc_id", Target: "doc"}},
		},
		sietch.EntityType{Name: "label", New: func() sietch.Entity { return &label{} }},
		sietch.EntityType{
			Name: "doc_label",
			New:  func() sietch.Entity { return &docLabel{} },
			References: []sietch.Reference{
				{Field: "doc_id", Target: "doc", Kind: sietch.Association},
				{Field: "label_id", Target: "label", Kind: sietch.Association},
			},
		},
		sietch.EntityType{
			Name: "like",
			New:  func() sietch.Entity { return &like{} },
			References: []sietch.Reference{
				{Field: "target_id", Target: "doc", Discriminator: "target_type"},
				{Field: "target_id", Target: "note", Discriminator: "target_type"},
			},
		},
	)
}

var t0 = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type fixture struct {
	store  *sietch.InMemoryStore
	reg    *sietch.Registry
	engine *Engine
	clock  *testClock
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	return newFixtureWith(t, testRegistry(), opts...)
}

func newFixtureWith(t *testing.T, reg *sietch.Registry, opts ...Option) *fixture {
	t.Helper()
	clock := &testClock{now: t0}
	store := sietch.NewInMemoryStore(reg, sietch.WithClock(clock.Now))
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return &fixture{store: store, reg: reg, engine: New(store, opts...), clock: clock}
}

func (f *fixture) create(t *testing.T, entities ...sietch.Entity) {
	t.Helper()
	for _, e := range entities {
		require.NoError(t, f.store.Create(context.Background(), e), "create %s", sietch.Ref(e))
	}
}

// remove soft-deletes entities directly through the store, at the current clock.
func (f *fixture) remove(t *testing.T, entities ...sietch.Entity) {
	t.Helper()
	for _, e := range entities {
		e.(sietch.SoftDeletable).SetDeleted(true)
		require.NoError(t, f.store.Save(context.Background(), e), "delete %s", sietch.Ref(e))
	}
}

func (f *fixture) typ(t *testing.T, name string) *sietch.EntityType {
	t.Helper()
	et, ok := f.reg.Lookup(name)
	require.True(t, ok, "type %s", name)
	return et
}

func (f *fixture) get(t *testing.T, typeName, id string) sietch.Entity {
	t.Helper()
	e, err := f.store.Get(context.Background(), f.typ(t, typeName), id)
	require.NoError(t, err)
	return e
}

func (f *fixture) deleted(t *testing.T, typeName, id string) bool {
	t.Helper()
	return sietch.IsEntityDeleted(f.get(t, typeName, id))
}

// dump returns every row of every type, for comparing store states.
func (f *fixture) dump(t *testing.T) map[string][]sietch.Entity {
	t.Helper()
	out := make(map[string][]sietch.Entity)
	for _, et := range f.reg.Types() {
		rows, err := f.store.Find(context.Background(), et, nil)
		require.NoError(t, err)
		out[et.Name] = rows
	}
	return out
}

func strPtr(s string) *string { return &s }

// conflictStore fails Find for one type with a serialization conflict.
type conflictStore struct {
	*sietch.InMemoryStore
	findType string
}

func (s *conflictStore) Find(ctx context.Context, t *sietch.EntityType, filter *sietch.Filter) ([]sietch.Entity, error) {
	if t.Name == s.findType {
		return nil, &pgconn.PgError{Code: "40001", Message: "restart transaction: TransactionRetryWithProtoRefreshError"}
	}
	return s.InMemoryStore.Find(ctx, t, filter)
}

// conflictOn rebuilds the engine so that finding typeName conflicts.
func (f *fixture) conflictOn(typeName string, opts ...Option) {
	opts = append([]Option{WithClock(f.clock.Now)}, opts...)
	f.engine = New(&conflictStore{InMemoryStore: f.store, findType: typeName}, opts...)
}

package sietch

import (
	"context"
	"testing"
	"time"
)

type author struct {
	ID   string `db:"id"`
	Name string `db:"name"`
	SoftDelete
}

func (a *author) EntityType() string { return "author" }
func (a *author) GetID() string      { return a.ID }
func (a *author) SetID(id string)    { a.ID = id }

type article struct {
	ID       string  `db:"id"`
	AuthorID string  `db:"author_id"`
	EditorID *string `db:"editor_id"`
	Title    string  `db:"title"`
	Views    int64   `db:"views"`
	Draft    bool    `db:"draft"`
	SoftDelete
}

func (a *article) EntityType() string { return "article" }
func (a *article) GetID() string      { return a.ID }
func (a *article) SetID(id string)    { a.ID = id }

type tag struct {
	ID    string `db:"id"`
	Label string `db:"label"`
	Uses  int    `db:"uses"`
}

func (t *tag) EntityType() string { return "tag" }
func (t *tag) GetID() string      { return t.ID }
func (t *tag) SetID(id string)    { t.ID = id }

func testRegistry() *Registry {
	return NewRegistry().MustRegister(
		EntityType{Name: "author", Table: "authors", New: func() Entity { return &author{} }},
		EntityType{
			Name:  "article",
			Table: "articles",
			New:   func() Entity { return &article{} },
			References: []Reference{
				{Field: "author_id", Target: "author"},
				{Field: "editor_id", Target: "author"},
			},
		},
		EntityType{Name: "tag", Table: "tags", New: func() Entity { return &tag{} }},
	)
}

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func clockAt(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newTestStore(t *testing.T, opts ...Option) (*InMemoryStore, *Registry) {
	t.Helper()
	reg := testRegistry()
	opts = append([]Option{WithClock(clockAt(fixedNow))}, opts...)
	return NewInMemoryStore(reg, opts...), reg
}

func mustType(t *testing.T, reg *Registry, name string) *EntityType {
	t.Helper()
	et, ok := reg.Lookup(name)
	if !ok {
		t.Fatalf("type %s not registered", name)
	}
	return et
}

func mustCreate(t *testing.T, s Store, e Entity) {
	t.Helper()
	if err := s.Create(context.Background(), e); err != nil {
		t.Fatalf("Create(%s) failed: %v", Ref(e), err)
	}
}

func strPtr(s string) *string { return &s }

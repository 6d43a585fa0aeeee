package sietch

import (
	"fmt"
	"reflect"
	"sync"
)

// ReferenceKind classifies how a reference ties a source type to its target.
type ReferenceKind int

const (
	// Strong marks a many-to-one reference (comment.post_id -> post).
	Strong ReferenceKind = iota
	// Association marks one side of a many-to-many join row.
	Association
)

func (k ReferenceKind) String() string {
	switch k {
	case Strong:
		return "strong"
	case Association:
		return "association"
	default:
		return fmt.Sprintf("ReferenceKind(%d)", int(k))
	}
}

// Reference declares that the column Field of the source type holds the id of
// a Target record. When Discriminator is set, the reference is polymorphic and
// only applies to rows whose Discriminator column equals Target.
type Reference struct {
	Field         string
	Target        string
	Kind          ReferenceKind
	Discriminator string
}

// EntityType describes one registered entity type.
type EntityType struct {
	Name       string
	Table      string
	New        func() Entity
	References []Reference

	columns       []string
	softDeletable bool
}

// Columns returns the persisted columns in declaration order.
func (t *EntityType) Columns() []string {
	return t.columns
}

// HasColumn reports whether the type declares column.
func (t *EntityType) HasColumn(column string) bool {
	for _, c := range t.columns {
		if c == column {
			return true
		}
	}
	return false
}

// SoftDeletable reports whether instances of the type implement SoftDeletable.
func (t *EntityType) SoftDeletable() bool {
	return t.softDeletable
}

// Incoming is a reference from Source pointing at the looked-up type.
type Incoming struct {
	Source    *EntityType
	Reference Reference
}

// Registry is the static set of entity types known to a store. It is
// populated at start-up and read-only afterwards.
type Registry struct {
	mu     sync.RWMutex
	types  []*EntityType
	byName map[string]*EntityType
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*EntityType)}
}

// Register adds a type. References are stored as declared; their validity is
// checked by whoever walks them.
func (r *Registry) Register(t EntityType) error {
	if t.Name == "" || t.New == nil {
		return fmt.Errorf("%w: name and constructor are required", ErrInvalidEntityType)
	}
	if t.Table == "" {
		t.Table = t.Name
	}
	proto := t.New()
	if proto == nil {
		return fmt.Errorf("%w: %s constructor returned nil", ErrInvalidEntityType, t.Name)
	}
	if v := reflect.ValueOf(proto); v.Kind() != reflect.Ptr || v.IsNil() {
		return fmt.Errorf("%w: %s constructor must return a non-nil pointer", ErrInvalidEntityType, t.Name)
	}
	if proto.EntityType() != t.Name {
		return fmt.Errorf("%w: %s constructor builds %q", ErrInvalidEntityType, t.Name, proto.EntityType())
	}
	idx, err := indexOf(proto)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidEntityType, t.Name, err)
	}
	if _, ok := idx.fields["id"]; !ok {
		return fmt.Errorf("%w: %s has no id column", ErrInvalidEntityType, t.Name)
	}
	t.columns = idx.columns
	_, t.softDeletable = proto.(SoftDeletable)
	t.References = append([]Reference(nil), t.References...)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[t.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateEntityType, t.Name)
	}
	et := &t
	r.types = append(r.types, et)
	r.byName[t.Name] = et
	return nil
}

// MustRegister is like Register but panics on error
func (r *Registry) MustRegister(types ...EntityType) *Registry {
	for _, t := range types {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
	return r
}

// Types returns the registered types in registration order.
func (r *Registry) Types() []*EntityType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*EntityType(nil), r.types...)
}

// Lookup returns the type registered under name.
func (r *Registry) Lookup(name string) (*EntityType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byName[name]
	return t, ok
}

// TypeOf returns the registered type of e.
func (r *Registry) TypeOf(e Entity) (*EntityType, error) {
	if e == nil {
		return nil, fmt.Errorf("%w: nil entity", ErrUnknownEntityType)
	}
	t, ok := r.Lookup(e.EntityType())
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntityType, e.EntityType())
	}
	return t, nil
}

// Index returns the registration position of name, or -1.
func (r *Registry) Index(name string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i, t := range r.types {
		if t.Name == name {
			return i
		}
	}
	return -1
}

// Incoming returns every reference, across all registered types, whose
// target is name. Results follow registration order.
func (r *Registry) Incoming(name string) []Incoming {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Incoming
	for _, t := range r.types {
		for _, ref := range t.References {
			if ref.Target == name {
				out = append(out, Incoming{Source: t, Reference: ref})
			}
		}
	}
	return out
}

// ReferencedID returns the id held by ref on e. It reports false when the
// column is empty or, for polymorphic references, when the discriminator
// names another type.
func ReferencedID(e Entity, ref Reference) (string, bool) {
	if ref.Discriminator != "" {
		disc, err := FieldValue(e, ref.Discriminator)
		if err != nil {
			return "", false
		}
		if s, ok := disc.(string); !ok || s != ref.Target {
			return "", false
		}
	}
	v, err := FieldValue(e, ref.Field)
	if err != nil || v == nil {
		return "", false
	}
	id, ok := v.(string)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

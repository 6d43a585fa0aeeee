package sietch

// Entity is a record managed by a Store. Implementations are pointers to
// structs whose persisted fields carry a `db` tag; the `id` column is the
// primary key.
type Entity interface {
	// EntityType returns the registered type name of the entity
	EntityType() string

	// GetID returns the primary key
	GetID() string

	// SetID assigns the primary key
	SetID(id string)
}

// Ref returns "type#id", the form used in plans and logs.
func Ref(e Entity) string {
	return e.EntityType() + "#" + e.GetID()
}

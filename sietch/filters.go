package sietch

// Operator is a comparison applied by a Condition.
type Operator string

const (
	OpEqual          Operator = "="
	OpNotEqual       Operator = "!="
	OpGreaterThan    Operator = ">"
	OpGreaterOrEqual Operator = ">="
	OpLessThan       Operator = "<"
	OpLessOrEqual    Operator = "<="
	OpIn             Operator = "IN"
	OpIsNull         Operator = "IS NULL"
	OpIsNotNull      Operator = "IS NOT NULL"
)

// Condition represents a condition to filter queries
type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

// SortDirection orders query results.
type SortDirection string

const (
	SortAsc  SortDirection = "ASC"
	SortDesc SortDirection = "DESC"
)

// SortField orders results by one column.
type SortField struct {
	Field     string
	Direction SortDirection
}

// Filter groups a set of conditions, combined with AND
type Filter struct {
	Conditions []Condition
	Sort       []SortField
	Limit      int
}

// FilterBuilder builds a Filter fluently.
type FilterBuilder struct {
	filter Filter
}

// NewFilter starts an empty filter
func NewFilter() *FilterBuilder {
	return &FilterBuilder{}
}

// Where adds a condition
func (b *FilterBuilder) Where(field string, op Operator, value any) *FilterBuilder {
	b.filter.Conditions = append(b.filter.Conditions, Condition{Field: field, Operator: op, Value: value})
	return b
}

// Eq is shorthand for Where(field, OpEqual, value)
func (b *FilterBuilder) Eq(field string, value any) *FilterBuilder {
	return b.Where(field, OpEqual, value)
}

// OnlyDeleted restricts results to soft-deleted rows
func (b *FilterBuilder) OnlyDeleted() *FilterBuilder {
	return b.Where(ColumnIsDeleted, OpEqual, true)
}

// NotDeleted restricts results to live rows
func (b *FilterBuilder) NotDeleted() *FilterBuilder {
	return b.Where(ColumnIsDeleted, OpEqual, false)
}

// OrderBy appends a sort column
func (b *FilterBuilder) OrderBy(field string, dir SortDirection) *FilterBuilder {
	b.filter.Sort = append(b.filter.Sort, SortField{Field: field, Direction: dir})
	return b
}

// Limit caps the number of returned rows; zero means no limit
func (b *FilterBuilder) Limit(n int) *FilterBuilder {
	b.filter.Limit = n
	return b
}

// Build returns the filter. The builder may keep being used afterwards.
func (b *FilterBuilder) Build() *Filter {
	f := b.filter
	f.Conditions = append([]Condition(nil), b.filter.Conditions...)
	f.Sort = append([]SortField(nil), b.filter.Sort...)
	return &f
}

// fields returns every column the filter names.
func (f *Filter) fields() []string {
	if f == nil {
		return nil
	}
	out := make([]string, 0, len(f.Conditions)+len(f.Sort))
	for _, c := range f.Conditions {
		out = append(out, c.Field)
	}
	for _, s := range f.Sort {
		out = append(out, s.Field)
	}
	return out
}

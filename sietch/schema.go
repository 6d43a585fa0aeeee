package sietch

import (
	"context"
	"fmt"
	"reflect"
	"strings"
)

// ColumnType represents SQL column data types
type ColumnType string

const (
	ColumnTypeInteger   ColumnType = "INTEGER"
	ColumnTypeBigInt    ColumnType = "BIGINT"
	ColumnTypeText      ColumnType = "TEXT"
	ColumnTypeBoolean   ColumnType = "BOOLEAN"
	ColumnTypeTimestamp ColumnType = "TIMESTAMPTZ"
	ColumnTypeFloat     ColumnType = "FLOAT8"
	ColumnTypeJSON      ColumnType = "JSONB"
)

// ColumnDef defines a table column
type ColumnDef struct {
	Name         string
	Type         ColumnType
	PrimaryKey   bool
	NotNull      bool
	DefaultValue string
}

// IndexDef defines a table index
type IndexDef struct {
	Name    string
	Columns []string
	Where   string // Partial index condition
}

// TableDef defines a complete table schema
type TableDef struct {
	Name    string
	Columns []ColumnDef
	Indexes []IndexDef
}

// InferTableDef derives the table of a registered type. Pointer fields are
// nullable, the id column is the primary key, and every reference column
// (plus its discriminator) is indexed so cascades can find dependents.
func InferTableDef(t *EntityType) (*TableDef, error) {
	idx, err := indexOf(t.New())
	if err != nil {
		return nil, err
	}

	def := &TableDef{Name: t.Table}
	for _, col := range idx.columns {
		typ := idx.types[col]
		c := ColumnDef{
			Name:       col,
			Type:       inferColumnType(typ),
			PrimaryKey: col == "id",
			NotNull:    typ.Kind() != reflect.Ptr,
		}
		switch c.Type {
		case ColumnTypeBoolean:
			c.DefaultValue = "false"
		case ColumnTypeInteger, ColumnTypeBigInt:
			c.DefaultValue = "0"
		}
		def.Columns = append(def.Columns, c)
	}

	seen := make(map[string]bool)
	for _, ref := range t.References {
		cols := []string{ref.Field}
		if ref.Discriminator != "" {
			cols = []string{ref.Discriminator, ref.Field}
		}
		name := fmt.Sprintf("idx_%s_%s", t.Table, strings.Join(cols, "_"))
		if seen[name] || !t.HasColumn(ref.Field) {
			continue
		}
		seen[name] = true
		def.Indexes = append(def.Indexes, IndexDef{Name: name, Columns: cols})
	}
	if t.SoftDeletable() {
		def.Indexes = append(def.Indexes, IndexDef{
			Name:    fmt.Sprintf("idx_%s_deleted", t.Table),
			Columns: []string{ColumnDeletedAt},
			Where:   quoteIdentifier(ColumnIsDeleted),
		})
	}
	return def, nil
}

// inferColumnType maps Go types to SQL column types
func inferColumnType(t reflect.Type) ColumnType {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == timeType {
		return ColumnTypeTimestamp
	}

	switch t.Kind() {
	case reflect.Int, reflect.Int32, reflect.Int16, reflect.Int8:
		return ColumnTypeInteger
	case reflect.Int64:
		return ColumnTypeBigInt
	case reflect.String:
		return ColumnTypeText
	case reflect.Bool:
		return ColumnTypeBoolean
	case reflect.Float32, reflect.Float64:
		return ColumnTypeFloat
	case reflect.Map, reflect.Slice, reflect.Struct:
		return ColumnTypeJSON
	default:
		return ColumnTypeText
	}
}

// GenerateCreateTableSQL generates CREATE TABLE SQL from table definition
func GenerateCreateTableSQL(def *TableDef) string {
	parts := make([]string, 0, len(def.Columns))
	for _, col := range def.Columns {
		colDef := fmt.Sprintf("%s %s", quoteIdentifier(col.Name), col.Type)

		if col.PrimaryKey {
			colDef += " PRIMARY KEY"
		}
		if col.NotNull && !col.PrimaryKey {
			colDef += " NOT NULL"
		}
		if col.DefaultValue != "" {
			colDef += " DEFAULT " + col.DefaultValue
		}
		parts = append(parts, colDef)
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n)",
		quoteIdentifier(def.Name),
		strings.Join(parts, ",\n  "),
	)
}

// GenerateCreateIndexSQL generates CREATE INDEX SQL from index definition
func GenerateCreateIndexSQL(tableName string, idx IndexDef) string {
	sql := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
		quoteIdentifier(idx.Name),
		quoteIdentifier(tableName),
		joinQuotedColumns(idx.Columns),
	)
	if idx.Where != "" {
		sql += " WHERE " + idx.Where
	}
	return sql
}

// GenerateSchema returns the DDL statements for every registered type.
func GenerateSchema(registry *Registry) ([]string, error) {
	var stmts []string
	for _, t := range registry.Types() {
		def, err := InferTableDef(t)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", t.Name, err)
		}
		stmts = append(stmts, GenerateCreateTableSQL(def))
		for _, idx := range def.Indexes {
			stmts = append(stmts, GenerateCreateIndexSQL(def.Name, idx))
		}
	}
	return stmts, nil
}

// CreateSchema executes the registry DDL. It is idempotent.
func (s *CockroachStore) CreateSchema(ctx context.Context) error {
	stmts, err := GenerateSchema(s.registry)
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if _, err := s.queryable(ctx).Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

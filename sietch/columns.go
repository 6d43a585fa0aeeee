package sietch

import (
	"fmt"
	"reflect"
	"sync"
	"time"
)

// columnIndex maps the `db` tags of a struct type, including those of
// embedded structs, to their field index paths.
type columnIndex struct {
	columns []string
	fields  map[string][]int
	types   map[string]reflect.Type
}

var columnCache sync.Map // reflect.Type -> *columnIndex

func structType(v any) (reflect.Type, error) {
	typ := reflect.TypeOf(v)
	if typ == nil {
		return nil, fmt.Errorf("entity cannot be nil")
	}
	if typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	if typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("entity must be a pointer to a struct, got %s", typ.Kind())
	}
	return typ, nil
}

func indexOf(v any) (*columnIndex, error) {
	typ, err := structType(v)
	if err != nil {
		return nil, err
	}
	if idx, ok := columnCache.Load(typ); ok {
		return idx.(*columnIndex), nil
	}

	idx := &columnIndex{
		fields: make(map[string][]int),
		types:  make(map[string]reflect.Type),
	}
	collectColumns(typ, nil, idx)
	if len(idx.columns) == 0 {
		return nil, fmt.Errorf("no columns found in %s", typ.Name())
	}
	columnCache.Store(typ, idx)
	return idx, nil
}

func collectColumns(typ reflect.Type, parent []int, idx *columnIndex) {
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		path := append(append([]int(nil), parent...), i)
		tag := field.Tag.Get("db")
		if tag == "-" {
			continue
		}
		if tag == "" {
			if field.Anonymous && field.Type.Kind() == reflect.Struct {
				collectColumns(field.Type, path, idx)
			}
			continue
		}
		if _, dup := idx.fields[tag]; dup {
			continue
		}
		idx.columns = append(idx.columns, tag)
		idx.fields[tag] = path
		idx.types[tag] = field.Type
	}
}

func fieldByColumn(e Entity, column string) (reflect.Value, error) {
	idx, err := indexOf(e)
	if err != nil {
		return reflect.Value{}, err
	}
	path, ok := idx.fields[column]
	if !ok {
		return reflect.Value{}, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, e.EntityType(), column)
	}
	return reflect.ValueOf(e).Elem().FieldByIndex(path), nil
}

// FieldValue returns the value stored in column, dereferencing pointers.
// A nil pointer yields nil.
func FieldValue(e Entity, column string) (any, error) {
	v, err := fieldByColumn(e, column)
	if err != nil {
		return nil, err
	}
	return normalize(v.Interface()), nil
}

// SetFieldValue assigns value to column, converting between T and *T where needed.
func SetFieldValue(e Entity, column string, value any) error {
	field, err := fieldByColumn(e, column)
	if err != nil {
		return err
	}
	return assign(field, value)
}

func assign(field reflect.Value, value any) error {
	if value == nil {
		field.Set(reflect.Zero(field.Type()))
		return nil
	}
	v := reflect.ValueOf(value)
	switch {
	case v.Type().AssignableTo(field.Type()):
		field.Set(v)
	case field.Kind() == reflect.Ptr && v.Type().AssignableTo(field.Type().Elem()):
		p := reflect.New(field.Type().Elem())
		p.Elem().Set(v)
		field.Set(p)
	case v.Kind() == reflect.Ptr && !v.IsNil() && v.Elem().Type().AssignableTo(field.Type()):
		field.Set(v.Elem())
	case v.Type().ConvertibleTo(field.Type()) && isNumeric(v.Kind()) && isNumeric(field.Kind()):
		field.Set(v.Convert(field.Type()))
	default:
		return fmt.Errorf("cannot assign %T to field of type %s", value, field.Type())
	}
	return nil
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// normalize dereferences pointers so that *string and string compare equal.
func normalize(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		return rv.Elem().Interface()
	}
	return v
}

func valuesOf(e Entity, columns []string) ([]any, error) {
	idx, err := indexOf(e)
	if err != nil {
		return nil, err
	}
	v := reflect.ValueOf(e).Elem()
	values := make([]any, 0, len(columns))
	for _, col := range columns {
		path, ok := idx.fields[col]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownColumn, col)
		}
		values = append(values, v.FieldByIndex(path).Interface())
	}
	return values, nil
}

func scanDestinations(e Entity, columns []string) ([]any, error) {
	idx, err := indexOf(e)
	if err != nil {
		return nil, err
	}
	v := reflect.ValueOf(e).Elem()
	dest := make([]any, 0, len(columns))
	for _, col := range columns {
		path, ok := idx.fields[col]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownColumn, col)
		}
		dest = append(dest, v.FieldByIndex(path).Addr().Interface())
	}
	return dest, nil
}

// clone returns a shallow copy of e. Timestamps are replaced, never mutated
// in place, so sharing *time.Time between copies is safe.
func clone(e Entity) Entity {
	src := reflect.ValueOf(e).Elem()
	dst := reflect.New(src.Type())
	dst.Elem().Set(src)
	return dst.Interface().(Entity)
}

// CopyInto overwrites dst with the field values of src. Both must be of the same type.
func CopyInto(dst, src Entity) error {
	dv, sv := reflect.ValueOf(dst), reflect.ValueOf(src)
	if dv.Type() != sv.Type() {
		return fmt.Errorf("cannot copy %s into %s", sv.Type(), dv.Type())
	}
	dv.Elem().Set(sv.Elem())
	return nil
}

var timeType = reflect.TypeOf(time.Time{})

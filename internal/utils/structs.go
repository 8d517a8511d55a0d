package utils

import (
	"fmt"
	"reflect"
	"slices"
	"sync"
)

var ColumnTag = "db"

type columnField struct {
	name  string
	index int
}

// column layouts per struct type; row types never change at runtime
var columnCache sync.Map

func columnFields(input any) (reflect.Value, []columnField) {
	v := reflect.ValueOf(input)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}

	if v.Kind() != reflect.Struct {
		panic("input must be a pointer to a struct or a struct")
	}

	if cached, ok := columnCache.Load(v.Type()); ok {
		return v, cached.([]columnField)
	}

	t := v.Type()
	fields := make([]columnField, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}

		tag := f.Tag.Get(ColumnTag)
		if tag == "" || tag == "-" {
			continue
		}

		fields = append(fields, columnField{name: tag, index: i})
	}

	columnCache.Store(t, fields)
	return v, fields
}

// StructTagValues lists the column names of a db-tagged struct in field order.
func StructTagValues(input any, omit ...string) []string {
	_, fields := columnFields(input)

	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if !slices.Contains(omit, f.name) {
			out = append(out, f.name)
		}
	}
	return out
}

// StructToMap maps column name to field value, skipping the columns in omit
// (typically a serial primary key on insert).
func StructToMap(input any, omit ...string) map[string]any {
	v, fields := columnFields(input)

	out := make(map[string]any, len(fields))
	for _, f := range fields {
		if !slices.Contains(omit, f.name) {
			out[f.name] = v.Field(f.index).Interface()
		}
	}
	return out
}

func ErrorWrapOrNil(err error, msg string) error {
	if err == nil {
		return nil
	}

	if msg == "" {
		return err
	}

	return fmt.Errorf("%s: %w", msg, err)
}

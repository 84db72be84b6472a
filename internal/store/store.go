// Package store defines the record-store seam the lifecycle engine writes
// through: flat rows of named string fields, grouped into collections, with
// key-based lookup, partial field update, and append. The backing service
// offers read-then-write only; there is no compare-and-swap, so callers that
// need exclusion must serialize read-validate-write themselves.
package store

import (
	"context"
	"errors"
	"fmt"

	"orderflow/internal/domain"
)

// Row is one record: field name to value. An empty string means unset;
// typed interpretation lives in the domain codec.
type Row map[string]string

// Pos is an opaque position token identifying a row for update, valid only
// against the store instance that issued it.
type Pos string

var ErrNotFound = errors.New("not found")

type Store interface {
	// Find returns the first row whose field key equals value, with its
	// position token, or ErrNotFound.
	Find(ctx context.Context, collection, key, value string) (Row, Pos, error)
	// List returns all rows of a collection in append order.
	List(ctx context.Context, collection string) ([]Row, error)
	// Update overwrites only the given fields of the row at pos.
	Update(ctx context.Context, collection string, pos Pos, fields map[string]string) error
	// Append adds a new row. Fields marked auto in the collection schema
	// are assigned by the store and must not be supplied.
	Append(ctx context.Context, collection string, row Row) error
}

// Schema describes one collection's column set.
type Schema struct {
	Table  string // SQL table name
	Fields []string
	Auto   string // store-assigned monotonic field, "" if none
}

var collections = map[string]Schema{
	domain.CollectionProjects: {
		Table:  "projects",
		Fields: domain.ProjectFields,
	},
	domain.CollectionWorkOrders: {
		Table:  "work_orders",
		Fields: domain.WorkOrderFields,
	},
	domain.CollectionEvents: {
		Table:  "events",
		Fields: domain.EventFields,
		Auto:   domain.FieldSeq,
	},
}

func schemaFor(collection string) (Schema, error) {
	s, ok := collections[collection]
	if !ok {
		return Schema{}, fmt.Errorf("unknown collection %s", collection)
	}
	return s, nil
}

func (s Schema) hasField(name string) bool {
	for _, f := range s.Fields {
		if f == name {
			return true
		}
	}
	return false
}

func (s Schema) checkFields(collection string, fields map[string]string) error {
	for name := range fields {
		if !s.hasField(name) {
			return fmt.Errorf("unknown field %s in collection %s", name, collection)
		}
		if s.Auto != "" && name == s.Auto {
			return fmt.Errorf("field %s in collection %s is store-assigned", name, collection)
		}
	}
	return nil
}

package store

import (
	"context"
	"strconv"
	"sync"
)

// Memory is the in-memory reference implementation: a single mutex over all
// collections, rows kept in append order. Position tokens are row indexes,
// stable because rows are never physically removed.
type Memory struct {
	mu   sync.Mutex
	rows map[string][]Row
	seq  map[string]int64
}

func NewMemory() *Memory {
	return &Memory{
		rows: make(map[string][]Row),
		seq:  make(map[string]int64),
	}
}

func (m *Memory) Find(ctx context.Context, collection, key, value string) (Row, Pos, error) {
	schema, err := schemaFor(collection)
	if err != nil {
		return nil, "", err
	}
	if !schema.hasField(key) {
		return nil, "", ErrNotFound
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.rows[collection] {
		if r[key] == value {
			return cloneRow(r), Pos(strconv.Itoa(i)), nil
		}
	}
	return nil, "", ErrNotFound
}

func (m *Memory) List(ctx context.Context, collection string) ([]Row, error) {
	if _, err := schemaFor(collection); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Row, 0, len(m.rows[collection]))
	for _, r := range m.rows[collection] {
		out = append(out, cloneRow(r))
	}
	return out, nil
}

func (m *Memory) Update(ctx context.Context, collection string, pos Pos, fields map[string]string) error {
	schema, err := schemaFor(collection)
	if err != nil {
		return err
	}
	if err := schema.checkFields(collection, fields); err != nil {
		return err
	}
	idx, err := strconv.Atoi(string(pos))
	if err != nil {
		return ErrNotFound
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.rows[collection]
	if idx < 0 || idx >= len(rows) {
		return ErrNotFound
	}
	for k, v := range fields {
		rows[idx][k] = v
	}
	return nil
}

func (m *Memory) Append(ctx context.Context, collection string, row Row) error {
	schema, err := schemaFor(collection)
	if err != nil {
		return err
	}
	if err := schema.checkFields(collection, row); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r := cloneRow(row)
	if schema.Auto != "" {
		m.seq[collection]++
		r[schema.Auto] = strconv.FormatInt(m.seq[collection], 10)
	}
	m.rows[collection] = append(m.rows[collection], r)
	return nil
}

func cloneRow(r Row) Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
)

// SQLite implements Store over a SQLite database opened by internal/db.
// Columns are named exactly like record fields; position tokens are rowids.
// Like the interface it implements, it offers read-then-write only.
type SQLite struct {
	DB *sql.DB
}

func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{DB: db}
}

func (s *SQLite) Find(ctx context.Context, collection, key, value string) (Row, Pos, error) {
	schema, err := schemaFor(collection)
	if err != nil {
		return nil, "", err
	}
	if !schema.hasField(key) {
		return nil, "", ErrNotFound
	}
	query := fmt.Sprintf(`SELECT rowid, %s FROM %s WHERE %q=? LIMIT 1`,
		columnList(schema), schema.Table, key)
	row, rowid, err := scanRow(s.DB.QueryRowContext(ctx, query, value), schema)
	if err == sql.ErrNoRows {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", err
	}
	return row, Pos(strconv.FormatInt(rowid, 10)), nil
}

func (s *SQLite) List(ctx context.Context, collection string) ([]Row, error) {
	schema, err := schemaFor(collection)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT rowid, %s FROM %s ORDER BY rowid ASC`,
		columnList(schema), schema.Table)
	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Row
	for rows.Next() {
		r, _, err := scanRow(rows, schema)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLite) Update(ctx context.Context, collection string, pos Pos, fields map[string]string) error {
	schema, err := schemaFor(collection)
	if err != nil {
		return err
	}
	if err := schema.checkFields(collection, fields); err != nil {
		return err
	}
	if len(fields) == 0 {
		return nil
	}
	rowid, err := strconv.ParseInt(string(pos), 10, 64)
	if err != nil {
		return ErrNotFound
	}
	var (
		sets []string
		args []any
	)
	// Deterministic SET order keeps generated SQL stable.
	for _, name := range schema.Fields {
		if v, ok := fields[name]; ok {
			sets = append(sets, fmt.Sprintf("%q=?", name))
			args = append(args, v)
		}
	}
	args = append(args, rowid)
	res, err := s.DB.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET %s WHERE rowid=?`, schema.Table, strings.Join(sets, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) Append(ctx context.Context, collection string, row Row) error {
	schema, err := schemaFor(collection)
	if err != nil {
		return err
	}
	if err := schema.checkFields(collection, row); err != nil {
		return err
	}
	var (
		cols         []string
		placeholders []string
		args         []any
	)
	for _, name := range schema.Fields {
		if name == schema.Auto {
			continue
		}
		cols = append(cols, fmt.Sprintf("%q", name))
		placeholders = append(placeholders, "?")
		args = append(args, row[name])
	}
	_, err = s.DB.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s(%s) VALUES (%s)`, schema.Table,
			strings.Join(cols, ","), strings.Join(placeholders, ",")), args...)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func columnList(schema Schema) string {
	quoted := make([]string, len(schema.Fields))
	for i, f := range schema.Fields {
		quoted[i] = fmt.Sprintf("%q", f)
	}
	return strings.Join(quoted, ", ")
}

func scanRow(src rowScanner, schema Schema) (Row, int64, error) {
	var rowid int64
	vals := make([]sql.NullString, len(schema.Fields))
	dest := make([]any, 0, len(schema.Fields)+1)
	dest = append(dest, &rowid)
	for i := range vals {
		dest = append(dest, &vals[i])
	}
	if err := src.Scan(dest...); err != nil {
		return nil, 0, err
	}
	r := make(Row, len(schema.Fields))
	for i, f := range schema.Fields {
		if vals[i].Valid {
			r[f] = vals[i].String
		}
	}
	return r, rowid, nil
}

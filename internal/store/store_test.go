package store_test

import (
	"context"
	"errors"
	"testing"

	"orderflow/internal/db"
	"orderflow/internal/domain"
	"orderflow/internal/migrate"
	"orderflow/internal/store"
)

// backends returns every Store implementation under test; the engine must
// behave identically over each.
func backends(t *testing.T) map[string]store.Store {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return map[string]store.Store{
		"memory": store.NewMemory(),
		"sqlite": store.NewSQLite(conn),
	}
}

func projectRow(id, title string) store.Row {
	return store.Row{
		domain.FieldProjectID:          id,
		domain.FieldChannelRef:         "chan-1",
		domain.FieldStatus:             string(domain.ProjectActive),
		domain.FieldTitle:              title,
		domain.FieldAccountableActorID: "lead",
		domain.FieldCreatedAt:          "2024-05-01T09:00:00Z",
	}
}

func TestFindUpdateRoundtrip(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := s.Append(ctx, domain.CollectionProjects, projectRow("proj-1001", "First")); err != nil {
				t.Fatalf("append: %v", err)
			}

			row, pos, err := s.Find(ctx, domain.CollectionProjects, domain.FieldProjectID, "proj-1001")
			if err != nil {
				t.Fatalf("find: %v", err)
			}
			if row[domain.FieldTitle] != "First" {
				t.Fatalf("unexpected title %q", row[domain.FieldTitle])
			}

			err = s.Update(ctx, domain.CollectionProjects, pos, map[string]string{
				domain.FieldTitle:  "Renamed",
				domain.FieldStatus: string(domain.ProjectFinished),
			})
			if err != nil {
				t.Fatalf("update: %v", err)
			}

			row, _, err = s.Find(ctx, domain.CollectionProjects, domain.FieldProjectID, "proj-1001")
			if err != nil {
				t.Fatalf("re-find: %v", err)
			}
			if row[domain.FieldTitle] != "Renamed" || row[domain.FieldStatus] != string(domain.ProjectFinished) {
				t.Fatalf("update not applied: %v", row)
			}
			// Untouched fields survive a partial update.
			if row[domain.FieldAccountableActorID] != "lead" {
				t.Fatalf("partial update clobbered other fields: %v", row)
			}
		})
	}
}

func TestListPreservesAppendOrder(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i, id := range []string{"proj-1001", "proj-1002", "proj-1003"} {
				if err := s.Append(ctx, domain.CollectionProjects, projectRow(id, "P")); err != nil {
					t.Fatalf("append %d: %v", i, err)
				}
			}
			rows, err := s.List(ctx, domain.CollectionProjects)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(rows) != 3 {
				t.Fatalf("expected 3 rows, got %d", len(rows))
			}
			for i, id := range []string{"proj-1001", "proj-1002", "proj-1003"} {
				if rows[i][domain.FieldProjectID] != id {
					t.Fatalf("row %d: expected %s, got %s", i, id, rows[i][domain.FieldProjectID])
				}
			}
		})
	}
}

func TestFindNotFound(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, _, err := s.Find(ctx, domain.CollectionProjects, domain.FieldProjectID, "proj-9999")
			if !errors.Is(err, store.ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
			err = s.Update(ctx, domain.CollectionProjects, store.Pos("12345"), map[string]string{
				domain.FieldTitle: "nope",
			})
			if !errors.Is(err, store.ErrNotFound) {
				t.Fatalf("expected ErrNotFound for stale pos, got %v", err)
			}
		})
	}
}

func TestRejectsUnknownFields(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			row := projectRow("proj-1001", "First")
			row["Bogus"] = "x"
			if err := s.Append(ctx, domain.CollectionProjects, row); err == nil {
				t.Fatalf("expected unknown field rejection on append")
			}
		})
	}
}

func TestEventSeqIsStoreAssigned(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			evt := store.Row{
				domain.FieldEventID:    "evt-1",
				domain.FieldTS:         "2024-05-01T09:00:00Z",
				domain.FieldType:       "project.created",
				domain.FieldEntityKind: "project",
				domain.FieldEntityID:   "proj-1001",
				domain.FieldActorID:    "lead",
				domain.FieldPayload:    "{}",
			}
			if err := s.Append(ctx, domain.CollectionEvents, evt); err != nil {
				t.Fatalf("append: %v", err)
			}
			evt2 := cloneWith(evt, domain.FieldEventID, "evt-2")
			if err := s.Append(ctx, domain.CollectionEvents, evt2); err != nil {
				t.Fatalf("append second: %v", err)
			}

			rows, err := s.List(ctx, domain.CollectionEvents)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(rows) != 2 {
				t.Fatalf("expected 2 events, got %d", len(rows))
			}
			if rows[0][domain.FieldSeq] != "1" || rows[1][domain.FieldSeq] != "2" {
				t.Fatalf("expected seq 1,2, got %q,%q", rows[0][domain.FieldSeq], rows[1][domain.FieldSeq])
			}

			bad := cloneWith(evt, domain.FieldSeq, "99")
			if err := s.Append(ctx, domain.CollectionEvents, bad); err == nil {
				t.Fatalf("expected rejection of caller-supplied seq")
			}
		})
	}
}

func cloneWith(r store.Row, key, value string) store.Row {
	out := make(store.Row, len(r)+1)
	for k, v := range r {
		out[k] = v
	}
	out[key] = value
	return out
}

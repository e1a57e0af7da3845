package migrations

import (
	"database/sql"
	"testing"

	"github.com/google/go-cmp/cmp"
	_ "modernc.org/sqlite"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func tables(t *testing.T, db *sql.DB) []string {
	t.Helper()
	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'goose%' AND name NOT LIKE 'sqlite%' ORDER BY name`)
	if err != nil {
		t.Fatalf("list tables: %v", err)
	}
	defer func() { _ = rows.Close() }()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("scan: %v", err)
		}
		out = append(out, name)
	}
	return out
}

func TestApply(t *testing.T) {
	db := openDB(t)

	steps := []struct {
		command string
		want    []string
	}{
		{command: "up", want: []string{"broadcasts", "subscriber_keywords", "subscribers"}},
		{command: "down", want: []string{"subscriber_keywords", "subscribers"}},
		{command: "up-one", want: []string{"broadcasts", "subscriber_keywords", "subscribers"}},
		{command: "reset", want: nil},
	}
	for _, step := range steps {
		if err := Apply(db, step.command); err != nil {
			t.Fatalf("%s: %v", step.command, err)
		}
		if diff := cmp.Diff(step.want, tables(t, db)); diff != "" {
			t.Errorf("tables after %s (-want +got):\n%s", step.command, diff)
		}
	}
}

func TestApplyUnknownCommand(t *testing.T) {
	if err := Apply(openDB(t), "sideways"); err == nil {
		t.Fatal("expected error, got nil")
	}
}

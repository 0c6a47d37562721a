// Package testdb provides an in-memory DuckDB row store for tests.
package testdb

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	_ "github.com/duckdb/duckdb-go/v2"
)

// Schema creates the commit index and row content tables.
const Schema = `
CREATE TABLE commit_rows (
    commit_id VARCHAR NOT NULL,
    logical_row_id VARCHAR NOT NULL,
    row_hash VARCHAR NOT NULL
);
CREATE TABLE row_contents (
    row_hash VARCHAR PRIMARY KEY,
    data JSON NOT NULL
);`

// Row is one logical row of a commit.
type Row struct {
	CommitID string
	RowID    string // "<table key>:<id>"
	Hash     string
	Data     string // JSON document
}

// Open opens an in-memory DuckDB database with Schema applied.
func Open(t testing.TB) *sql.DB {
	t.Helper()

	db, err := sql.Open("duckdb", "")
	if err != nil {
		t.Fatalf("DuckDB not available: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec(Schema); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}
	return db
}

// Insert stores rows. Row contents are written once per hash.
func Insert(t testing.TB, db *sql.DB, rows ...Row) {
	t.Helper()
	ctx := context.Background()

	seen := make(map[string]bool)
	for _, r := range rows {
		if _, err := db.ExecContext(ctx, "INSERT INTO commit_rows VALUES ($1, $2, $3)", r.CommitID, r.RowID, r.Hash); err != nil {
			t.Fatalf("Failed to insert commit row %s: %v", r.RowID, err)
		}
		if seen[r.Hash] {
			continue
		}
		seen[r.Hash] = true
		if _, err := db.ExecContext(ctx, "INSERT OR IGNORE INTO row_contents VALUES ($1, $2)", r.Hash, r.Data); err != nil {
			t.Fatalf("Failed to insert row content %s: %v", r.Hash, err)
		}
	}
}

// Users returns n rows of table "users" in commit. Even rows are stored
// flat, odd rows wrapped under a "data" key. Row i has age i%80 and name
// "u<i>".
func Users(commit string, n int) []Row {
	rows := make([]Row, n)
	for i := range rows {
		doc := fmt.Sprintf(`{"age": %d, "name": "u%d", "status": "%s"}`, i%80, i, status(i))
		if i%2 == 1 {
			doc = `{"data": ` + doc + `}`
		}
		rows[i] = Row{
			CommitID: commit,
			RowID:    fmt.Sprintf("users:%d", i),
			Hash:     fmt.Sprintf("users-%d", i),
			Data:     doc,
		}
	}
	return rows
}

func status(i int) string {
	if i%3 == 0 {
		return "inactive"
	}
	return "active"
}

// Orders returns n rows of table "orders" in commit. Order i belongs to user
// i%10 and has amount i.
func Orders(commit string, n int) []Row {
	rows := make([]Row, n)
	for i := range rows {
		rows[i] = Row{
			CommitID: commit,
			RowID:    fmt.Sprintf("orders:%d", i),
			Hash:     fmt.Sprintf("orders-%d", i),
			Data:     fmt.Sprintf(`{"user": "u%d", "amount": %d}`, i%10, i),
		}
	}
	return rows
}

package cache

import (
	"reflect"
	"testing"

	"github.com/hugr-lab/preview-go/sampling"
)

func TestKeySourceOrder(t *testing.T) {
	users := sampling.Source{Alias: "users", DatasetID: "ds1", CommitID: "c1", TableKey: "users"}
	orders := sampling.Source{Alias: "orders", DatasetID: "ds2", CommitID: "c2", TableKey: "orders"}

	q1 := &Query{SQL: "SELECT 1", Sources: []sampling.Source{users, orders}, Limit: 10}
	q2 := &Query{SQL: "SELECT 1", Sources: []sampling.Source{orders, users}, Limit: 10}

	k1, err := q1.Key()
	if err != nil {
		t.Fatalf("Key() error = %v", err)
	}
	k2, err := q2.Key()
	if err != nil {
		t.Fatalf("Key() error = %v", err)
	}
	if k1 != k2 {
		t.Errorf("source order changed the key: %s vs %s", k1, k2)
	}
	if len(k1) != 64 {
		t.Errorf("expected 64 hex characters, got %d", len(k1))
	}
	if q1.Sources[0].Alias != "users" {
		t.Error("Key() must not reorder the caller's sources")
	}
}

func TestKeyDistinguishes(t *testing.T) {
	base := func() *Query {
		return &Query{
			SQL:     "SELECT * FROM users",
			Sources: []sampling.Source{{Alias: "users", DatasetID: "ds1", CommitID: "c1", TableKey: "users"}},
			Limit:   10,
		}
	}
	baseKey, _ := base().Key()

	tests := []struct {
		name   string
		modify func(q *Query)
	}{
		{"sql", func(q *Query) { q.SQL = "SELECT 1 FROM users" }},
		{"limit", func(q *Query) { q.Limit = 11 }},
		{"offset", func(q *Query) { q.Offset = 1 }},
		{"commit", func(q *Query) { q.Sources[0].CommitID = "c2" }},
		{"table key", func(q *Query) { q.Sources[0].TableKey = "people" }},
		{"filter", func(q *Query) { q.Sources[0].Filter = "age > 1" }},
		{"columns", func(q *Query) { q.Sources[0].Columns = []string{"age"} }},
		{"column types", func(q *Query) { q.Sources[0].ColumnTypes = map[string]string{"age": "integer"} }},
		{"quick preview", func(q *Query) { q.QuickPreview = true }},
		{"sample percent", func(q *Query) { q.SamplePercent = 25 }},
		{"seed", func(q *Query) { q.Seed = "s" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := base()
			tt.modify(q)
			key, err := q.Key()
			if err != nil {
				t.Fatalf("Key() error = %v", err)
			}
			if key == baseKey {
				t.Errorf("expected %s to change the key", tt.name)
			}
		})
	}
}

func TestKeyDeterministic(t *testing.T) {
	q := &Query{
		SQL: "SELECT 1",
		Sources: []sampling.Source{{
			Alias:       "t",
			ColumnTypes: map[string]string{"a": "integer", "b": "numeric", "c": "text"},
		}},
	}
	first, _ := q.Key()
	for i := 0; i < 20; i++ {
		if key, _ := q.Key(); key != first {
			t.Fatalf("key changed between calls: %s vs %s", first, key)
		}
	}
}

func TestDatasets(t *testing.T) {
	q := &Query{Sources: []sampling.Source{
		{Alias: "a", DatasetID: "ds1"},
		{Alias: "b", DatasetID: "ds2"},
		{Alias: "c", DatasetID: "ds1"},
		{Alias: "d"},
	}}
	if got := q.datasets(); !reflect.DeepEqual(got, []string{"ds1", "ds2"}) {
		t.Errorf("expected [ds1 ds2], got %v", got)
	}
}

package store

import (
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

func sampleResult() *Result {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	return &Result{
		Columns: []Column{
			{Name: "id", DatabaseType: "BIGINT"},
			{Name: "score", DatabaseType: "DOUBLE"},
			{Name: "active", DatabaseType: "BOOLEAN"},
			{Name: "name", DatabaseType: "VARCHAR"},
			{Name: "seen", DatabaseType: "TIMESTAMP"},
			{Name: "doc", DatabaseType: "JSON"},
			{Name: "empty", DatabaseType: "NULL"},
		},
		Rows: []map[string]any{
			{"id": int64(1), "score": int64(2), "active": true, "name": "a", "seen": ts, "doc": map[string]any{"k": "v"}},
			{"id": int64(2), "score": 2.5, "active": nil, "name": nil, "seen": ts, "doc": "plain"},
		},
	}
}

func TestArrowSchema(t *testing.T) {
	schema := sampleResult().ArrowSchema()

	want := map[string]arrow.DataType{
		"id":     arrow.PrimitiveTypes.Int64,
		"score":  arrow.PrimitiveTypes.Float64,
		"active": arrow.FixedWidthTypes.Boolean,
		"name":   arrow.BinaryTypes.String,
		"seen":   arrow.FixedWidthTypes.Timestamp_us,
		"doc":    arrow.BinaryTypes.String,
		"empty":  arrow.BinaryTypes.String,
	}

	if schema.NumFields() != len(want) {
		t.Fatalf("expected %d fields, got %d", len(want), schema.NumFields())
	}
	for _, f := range schema.Fields() {
		if !arrow.TypeEqual(f.Type, want[f.Name]) {
			t.Errorf("field %s: expected %s, got %s", f.Name, want[f.Name], f.Type)
		}
		if !f.Nullable {
			t.Errorf("field %s: expected nullable", f.Name)
		}
		if _, ok := f.Metadata.GetValue("database_type"); !ok {
			t.Errorf("field %s: missing database_type metadata", f.Name)
		}
	}

	f, _ := schema.FieldsByName("score")
	if v, _ := f[0].Metadata.GetValue("database_type"); v != "DOUBLE" {
		t.Errorf("expected 'DOUBLE', got '%s'", v)
	}
}

func TestMerge(t *testing.T) {
	tests := []struct {
		a, b valueKind
		want valueKind
	}{
		{kindNull, kindInt, kindInt},
		{kindInt, kindNull, kindInt},
		{kindInt, kindInt, kindInt},
		{kindInt, kindUint, kindFloat},
		{kindInt, kindFloat, kindFloat},
		{kindBool, kindInt, kindString},
		{kindTimestamp, kindString, kindString},
	}
	for _, tt := range tests {
		if got := merge(tt.a, tt.b); got != tt.want {
			t.Errorf("merge(%d, %d): expected %d, got %d", tt.a, tt.b, tt.want, got)
		}
	}
}

func TestRecord(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	rec, err := sampleResult().Record(mem)
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	defer rec.Release()

	if rec.NumRows() != 2 {
		t.Fatalf("expected 2 rows, got %d", rec.NumRows())
	}

	ids := rec.Column(0).(*array.Int64)
	if ids.Value(0) != 1 || ids.Value(1) != 2 {
		t.Errorf("unexpected ids %v", ids)
	}

	scores := rec.Column(1).(*array.Float64)
	if scores.Value(0) != 2 || scores.Value(1) != 2.5 {
		t.Errorf("unexpected scores %v", scores)
	}

	active := rec.Column(2).(*array.Boolean)
	if !active.Value(0) || !active.IsNull(1) {
		t.Errorf("unexpected active %v", active)
	}

	names := rec.Column(3).(*array.String)
	if names.Value(0) != "a" || !names.IsNull(1) {
		t.Errorf("unexpected names %v", names)
	}

	seen := rec.Column(4).(*array.Timestamp)
	want := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC).UnixMicro()
	if int64(seen.Value(0)) != want {
		t.Errorf("expected %d, got %d", want, seen.Value(0))
	}

	docs := rec.Column(5).(*array.String)
	if docs.Value(0) != `{"k":"v"}` {
		t.Errorf("expected '{\"k\":\"v\"}', got '%s'", docs.Value(0))
	}
	if docs.Value(1) != "plain" {
		t.Errorf("expected 'plain', got '%s'", docs.Value(1))
	}

	if rec.Column(6).NullN() != 2 {
		t.Errorf("expected all-null column, got %d nulls", rec.Column(6).NullN())
	}
}

func TestRecordEmpty(t *testing.T) {
	res := &Result{Columns: []Column{{Name: "a", DatabaseType: "INTEGER"}}, Rows: []map[string]any{}}

	rec, err := res.Record(nil)
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	defer rec.Release()

	if rec.NumRows() != 0 || rec.NumCols() != 1 {
		t.Errorf("expected 0 rows and 1 column, got %d and %d", rec.NumRows(), rec.NumCols())
	}
}

func TestStringValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{"s", "s"},
		{true, "true"},
		{int64(3), "3"},
		{1.5, "1.5"},
		{[]any{int64(1), "a"}, `[1,"a"]`},
		{time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), "2024-01-02T00:00:00Z"},
	}
	for _, tt := range tests {
		got, err := stringValue(tt.in)
		if err != nil {
			t.Fatalf("stringValue(%v) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("expected '%s', got '%s'", tt.want, got)
		}
	}
}

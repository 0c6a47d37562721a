package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// valueKind is the Arrow representation chosen for a column.
type valueKind int

const (
	kindNull valueKind = iota
	kindBool
	kindInt
	kindUint
	kindFloat
	kindTimestamp
	kindString
)

func kindOf(v any) valueKind {
	switch v.(type) {
	case nil:
		return kindNull
	case bool:
		return kindBool
	case int64:
		return kindInt
	case uint64:
		return kindUint
	case float64:
		return kindFloat
	case time.Time:
		return kindTimestamp
	default:
		return kindString
	}
}

// merge returns the kind able to hold values of both kinds.
func merge(a, b valueKind) valueKind {
	switch {
	case a == b || b == kindNull:
		return a
	case a == kindNull:
		return b
	case isNumeric(a) && isNumeric(b):
		return kindFloat
	default:
		return kindString
	}
}

func isNumeric(k valueKind) bool {
	return k == kindInt || k == kindUint || k == kindFloat
}

func (k valueKind) arrowType() arrow.DataType {
	switch k {
	case kindBool:
		return arrow.FixedWidthTypes.Boolean
	case kindInt:
		return arrow.PrimitiveTypes.Int64
	case kindUint:
		return arrow.PrimitiveTypes.Uint64
	case kindFloat:
		return arrow.PrimitiveTypes.Float64
	case kindTimestamp:
		return arrow.FixedWidthTypes.Timestamp_us
	default:
		return arrow.BinaryTypes.String
	}
}

func (r *Result) columnKinds() []valueKind {
	kinds := make([]valueKind, len(r.Columns))
	for i, col := range r.Columns {
		for _, row := range r.Rows {
			kinds[i] = merge(kinds[i], kindOf(row[col.Name]))
		}
	}
	return kinds
}

// ArrowSchema infers an Arrow schema from the column values. Every field is
// nullable; each field carries its database type name as metadata.
func (r *Result) ArrowSchema() *arrow.Schema {
	kinds := r.columnKinds()
	fields := make([]arrow.Field, len(r.Columns))
	for i, col := range r.Columns {
		fields[i] = arrow.Field{
			Name:     col.Name,
			Type:     kinds[i].arrowType(),
			Nullable: true,
			Metadata: arrow.NewMetadata([]string{"database_type"}, []string{col.DatabaseType}),
		}
	}
	return arrow.NewSchema(fields, nil)
}

// Record converts the result to a single Arrow record batch.
// The caller must Release the record.
func (r *Result) Record(mem memory.Allocator) (arrow.RecordBatch, error) {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	kinds := r.columnKinds()
	schema := r.ArrowSchema()

	builder := array.NewRecordBuilder(mem, schema)
	defer builder.Release()

	for _, row := range r.Rows {
		for i, col := range r.Columns {
			if err := appendValue(builder.Field(i), kinds[i], row[col.Name]); err != nil {
				return nil, fmt.Errorf("column %q: %w", col.Name, err)
			}
		}
	}

	return builder.NewRecordBatch(), nil
}

func appendValue(b array.Builder, kind valueKind, v any) error {
	if v == nil {
		b.AppendNull()
		return nil
	}

	switch kind {
	case kindBool:
		b.(*array.BooleanBuilder).Append(v.(bool))
	case kindInt:
		b.(*array.Int64Builder).Append(v.(int64))
	case kindUint:
		b.(*array.Uint64Builder).Append(v.(uint64))
	case kindFloat:
		switch n := v.(type) {
		case int64:
			b.(*array.Float64Builder).Append(float64(n))
		case uint64:
			b.(*array.Float64Builder).Append(float64(n))
		default:
			b.(*array.Float64Builder).Append(n.(float64))
		}
	case kindTimestamp:
		b.(*array.TimestampBuilder).Append(arrow.Timestamp(v.(time.Time).UnixMicro()))
	default:
		s, err := stringValue(v)
		if err != nil {
			return err
		}
		b.(*array.StringBuilder).Append(s)
	}
	return nil
}

// stringValue renders a value for a string column. Structured values
// (JSON documents, lists, structs) are rendered as JSON.
func stringValue(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case bool, int64, uint64, float64:
		return fmt.Sprint(val), nil
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano), nil
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
}

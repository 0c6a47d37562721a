package flight

import (
	"errors"
	"testing"

	"github.com/hugr-lab/preview-go/engine"
	"github.com/hugr-lab/preview-go/sampling"
)

func TestEncodeDecodeTicket(t *testing.T) {
	pct := 25.0
	tests := []struct {
		name string
		req  *engine.Request
	}{
		{
			name: "exact",
			req: &engine.Request{Request: sampling.Request{
				SQL:     "SELECT * FROM users",
				Sources: []sampling.Source{{Alias: "users", CommitID: "c1", TableKey: "users"}},
				Limit:   10,
			}},
		},
		{
			name: "sampled with total",
			req: &engine.Request{
				Request: sampling.Request{
					SQL:           "SELECT count(*) FROM users",
					Sources:       []sampling.Source{{Alias: "users", DatasetID: "ds1", CommitID: "c1", Filter: "age > 3"}},
					Limit:         100,
					Offset:        5,
					QuickPreview:  true,
					SamplePercent: &pct,
					Seed:          "s",
				},
				IncludeTotal: true,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := EncodeTicket(tt.req)
			if err != nil {
				t.Fatalf("EncodeTicket() error = %v", err)
			}

			decoded, err := DecodeTicket(encoded)
			if err != nil {
				t.Fatalf("DecodeTicket() error = %v", err)
			}

			if decoded.SQL != tt.req.SQL {
				t.Errorf("SQL = %v, want %v", decoded.SQL, tt.req.SQL)
			}
			if decoded.Limit != tt.req.Limit || decoded.Offset != tt.req.Offset {
				t.Errorf("pagination = %d/%d, want %d/%d", decoded.Limit, decoded.Offset, tt.req.Limit, tt.req.Offset)
			}
			if decoded.QuickPreview != tt.req.QuickPreview || decoded.IncludeTotal != tt.req.IncludeTotal {
				t.Errorf("flags differ: %+v", decoded)
			}
			if (decoded.SamplePercent == nil) != (tt.req.SamplePercent == nil) {
				t.Errorf("SamplePercent = %v, want %v", decoded.SamplePercent, tt.req.SamplePercent)
			}
			if len(decoded.Sources) != 1 || decoded.Sources[0].Alias != "users" || decoded.Sources[0].Filter != tt.req.Sources[0].Filter {
				t.Errorf("Sources = %+v", decoded.Sources)
			}
		})
	}
}

func TestDecodeTicketJSON(t *testing.T) {
	tests := []struct {
		name      string
		json      string
		wantError bool
	}{
		{"minimal", `{"sql":"SELECT 1","sources":[],"limit":1}`, false},
		{"with total", `{"sql":"SELECT 1","sources":[],"limit":1,"include_total":true}`, false},
		{"empty", ``, true},
		{"empty sql", `{"sql":"","limit":1}`, true},
		{"not json", `select 1`, true},
		{"unknown field", `{"sql":"SELECT 1","schema":"main"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeTicket([]byte(tt.json))
			if tt.wantError {
				if !errors.Is(err, ErrInvalidTicket) {
					t.Errorf("expected ErrInvalidTicket, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("DecodeTicket() error = %v", err)
			}
		})
	}
}

func TestEncodeTicketErrors(t *testing.T) {
	if _, err := EncodeTicket(nil); !errors.Is(err, ErrInvalidTicket) {
		t.Errorf("expected ErrInvalidTicket for nil request, got %v", err)
	}
	if _, err := EncodeTicket(&engine.Request{}); !errors.Is(err, ErrInvalidTicket) {
		t.Errorf("expected ErrInvalidTicket for empty sql, got %v", err)
	}
}

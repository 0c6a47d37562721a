// Command preview-client runs one preview request against a preview server
// and prints the rows as JSON lines.
//
// Usage:
//
//	preview-client -addr localhost:50051 request.json
//
// The request file holds the JSON ticket body:
//
//	{
//	  "sql": "SELECT name FROM users ORDER BY name",
//	  "sources": [{"alias": "users", "commit_id": "c1", "table_key": "users", "columns": ["name"]}],
//	  "limit": 20,
//	  "quick_preview": true,
//	  "include_total": true
//	}
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/apache/arrow-go/v18/arrow/flight"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	pflight "github.com/hugr-lab/preview-go/flight"
)

func main() {
	addr := flag.String("addr", "localhost:50051", "preview server address")
	timeout := flag.Duration("timeout", time.Minute, "request timeout")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: preview-client [-addr host:port] request.json")
		os.Exit(2)
	}
	if err := run(*addr, flag.Arg(0), *timeout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(addr, path string, timeout time.Duration) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	req, err := pflight.DecodeTicket(data)
	if err != nil {
		return err
	}
	ticket, err := pflight.EncodeTicket(req)
	if err != nil {
		return err
	}

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("failed to dial: %w", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	stream, err := flight.NewFlightServiceClient(conn).DoGet(ctx, &flight.Ticket{Ticket: ticket})
	if err != nil {
		return err
	}
	reader, err := flight.NewRecordReader(stream)
	if err != nil {
		return err
	}
	defer reader.Release()

	out := json.NewEncoder(os.Stdout)
	for reader.Next() {
		rec := reader.RecordBatch()
		for row := 0; row < int(rec.NumRows()); row++ {
			doc := make(map[string]any, rec.NumCols())
			for col := 0; col < int(rec.NumCols()); col++ {
				doc[rec.ColumnName(col)] = rec.Column(col).GetOneForMarshal(row)
			}
			if err := out.Encode(doc); err != nil {
				return err
			}
		}
	}
	if err := reader.Err(); err != nil {
		return err
	}

	md, err := stream.Header()
	if err != nil {
		return err
	}
	for _, key := range []string{
		pflight.HeaderRequestID,
		pflight.HeaderApproximate,
		pflight.HeaderSamplePercent,
		pflight.HeaderFallback,
		pflight.HeaderFallbackReason,
		pflight.HeaderTotalRows,
		pflight.HeaderCached,
		pflight.HeaderExecutionMS,
	} {
		if values := md.Get(key); len(values) > 0 {
			fmt.Fprintf(os.Stderr, "%s: %s\n", key, values[0])
		}
	}
	return nil
}

package flight

import (
	"strconv"

	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/hugr-lab/preview-go/engine"
	"github.com/hugr-lab/preview-go/internal/recovery"
	"github.com/hugr-lab/preview-go/store"
)

// DoGet runs the preview request held by the ticket and streams its rows.
//
// The handler:
//  1. Decodes the ticket into an engine.Request
//  2. Runs the preview
//  3. Sends the preview flags as header metadata
//  4. Streams the rows as one Arrow record batch
func (s *Server) DoGet(ticket *flight.Ticket, stream flight.FlightService_DoGetServer) error {
	return recovery.RecoverToError(s.logger, "DoGet", func() error {
		return s.doGet(ticket, stream)
	})
}

func (s *Server) doGet(ticket *flight.Ticket, stream flight.FlightService_DoGetServer) error {
	ctx := EnrichContextMetadata(stream.Context())
	logger := s.logger.With("trace_id", TraceIDFromContext(ctx))

	logger.Debug("DoGet called", "ticket_size", len(ticket.GetTicket()))

	req, err := DecodeTicket(ticket.GetTicket())
	if err != nil {
		logger.Debug("Failed to decode ticket", "error", err)
		return toStatus(err)
	}

	resp, err := s.engine.Preview(ctx, req)
	if err != nil {
		if engine.IsClientError(err) {
			logger.Debug("Preview rejected", "error", err)
		} else {
			logger.Error("Preview failed", "error", err)
		}
		return toStatus(err)
	}

	if err := stream.SetHeader(responseHeader(resp)); err != nil {
		logger.Error("Failed to set header", "error", err)
		return status.Errorf(codes.Internal, "failed to set header: %v", err)
	}

	result := &store.Result{Columns: resp.Columns, Rows: resp.Rows}
	record, err := result.Record(s.allocator)
	if err != nil {
		logger.Error("Failed to build record batch", "request_id", resp.RequestID, "error", err)
		return status.Error(codes.Internal, "failed to build record batch")
	}
	defer record.Release()

	writer := flight.NewRecordWriter(stream, ipc.WithSchema(record.Schema()), ipc.WithAllocator(s.allocator))
	defer writer.Close()

	select {
	case <-ctx.Done():
		logger.Debug("DoGet cancelled by client", "request_id", resp.RequestID)
		return status.Error(codes.Canceled, "request cancelled")
	default:
	}

	if err := writer.Write(record); err != nil {
		logger.Error("Failed to write record batch", "request_id", resp.RequestID, "error", err)
		return status.Errorf(codes.Internal, "failed to write batch: %v", err)
	}

	logger.Debug("DoGet completed",
		"request_id", resp.RequestID,
		"rows", record.NumRows(),
		"approximate", resp.Approximate,
		"fallback", resp.Fallback,
		"cached", resp.Cached,
	)
	return nil
}

// responseHeader renders the preview flags of resp.
func responseHeader(resp *engine.Response) metadata.MD {
	md := metadata.Pairs(
		HeaderRequestID, resp.RequestID,
		HeaderApproximate, strconv.FormatBool(resp.Approximate),
		HeaderSamplePercent, strconv.FormatFloat(resp.SamplePercent, 'f', -1, 64),
		HeaderFallback, strconv.FormatBool(resp.Fallback),
		HeaderCached, strconv.FormatBool(resp.Cached),
		HeaderTruncated, strconv.FormatBool(resp.Truncated),
		HeaderExecutionMS, strconv.FormatInt(resp.ExecutionTime.Milliseconds(), 10),
	)
	if resp.FallbackReason != "" {
		md.Set(HeaderFallbackReason, resp.FallbackReason)
	}
	if resp.TotalRowCount != nil {
		md.Set(HeaderTotalRows, strconv.FormatInt(*resp.TotalRowCount, 10))
	}
	return md
}

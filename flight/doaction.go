package flight

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow/flight"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/hugr-lab/preview-go/filter"
	"github.com/hugr-lab/preview-go/internal/msgpack"
	"github.com/hugr-lab/preview-go/internal/recovery"
)

// Action types handled by DoAction.
const (
	ActionInvalidateDataset = "invalidate_dataset"
	ActionCompileFilter     = "compile_filter"
)

// InvalidateDatasetRequest is the MessagePack body of ActionInvalidateDataset.
type InvalidateDatasetRequest struct {
	DatasetID string `msgpack:"dataset_id"`
}

// InvalidateDatasetResponse reports how many cached results were dropped.
type InvalidateDatasetResponse struct {
	DatasetID   string `msgpack:"dataset_id"`
	Invalidated int    `msgpack:"invalidated"`
}

// CompileFilterRequest is the MessagePack body of ActionCompileFilter.
type CompileFilterRequest struct {
	Filter         string            `msgpack:"filter"`
	ValidColumns   []string          `msgpack:"valid_columns"`
	ColumnTypes    map[string]string `msgpack:"column_types,omitempty"`
	ParamStart     int               `msgpack:"param_start,omitempty"`
	DataColumn     string            `msgpack:"data_column,omitempty"`
	DisableNesting bool              `msgpack:"disable_nesting,omitempty"`
}

// CompileFilterResponse holds the compiled fragment.
type CompileFilterResponse struct {
	SQL    string `msgpack:"sql"`
	Params []any  `msgpack:"params"`
}

// DoAction executes server actions:
//   - invalidate_dataset: drop cached results of a dataset
//   - compile_filter: compile a filter expression to a SQL fragment
func (s *Server) DoAction(action *flight.Action, stream flight.FlightService_DoActionServer) error {
	return recovery.RecoverToError(s.logger, "DoAction", func() error {
		ctx := EnrichContextMetadata(stream.Context())

		s.logger.Info("DoAction called",
			"type", action.GetType(),
			"body_size", len(action.GetBody()),
			"trace_id", TraceIDFromContext(ctx),
		)

		switch action.GetType() {
		case ActionInvalidateDataset:
			return s.handleInvalidateDataset(action, stream)
		case ActionCompileFilter:
			return s.handleCompileFilter(ctx, action, stream)
		default:
			return status.Errorf(codes.Unimplemented, "unknown action type: %s", action.GetType())
		}
	})
}

func (s *Server) handleInvalidateDataset(action *flight.Action, stream flight.FlightService_DoActionServer) error {
	var req InvalidateDatasetRequest
	if err := msgpack.Decode(action.GetBody(), &req); err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid parameters: %v", err)
	}
	if req.DatasetID == "" {
		return status.Error(codes.InvalidArgument, "dataset_id is required")
	}

	n := s.engine.InvalidateDataset(req.DatasetID)
	return sendResult(stream, &InvalidateDatasetResponse{DatasetID: req.DatasetID, Invalidated: n})
}

func (s *Server) handleCompileFilter(ctx context.Context, action *flight.Action, stream flight.FlightService_DoActionServer) error {
	var req CompileFilterRequest
	if err := msgpack.Decode(action.GetBody(), &req); err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid parameters: %v", err)
	}

	frag, err := s.engine.CompileFilter(ctx, req.Filter, &filter.CompilerOptions{
		ValidColumns:   req.ValidColumns,
		ColumnTypes:    req.ColumnTypes,
		ParamStart:     req.ParamStart,
		DataColumn:     req.DataColumn,
		DisableNesting: req.DisableNesting,
	})
	if err != nil {
		s.logger.Debug("Filter rejected", "error", err)
		return toStatus(err)
	}
	return sendResult(stream, &CompileFilterResponse{SQL: frag.SQL, Params: frag.Params})
}

func sendResult(stream flight.FlightService_DoActionServer, v any) error {
	body, err := msgpack.Encode(v)
	if err != nil {
		return status.Errorf(codes.Internal, "failed to encode result: %v", err)
	}
	if err := stream.Send(&flight.Result{Body: body}); err != nil {
		return status.Errorf(codes.Internal, "failed to send result: %v", err)
	}
	return nil
}

package flight

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hugr-lab/preview-go/engine"
)

// ErrInvalidTicket is returned for tickets that do not hold a preview request.
var ErrInvalidTicket = errors.New("invalid ticket")

// EncodeTicket creates an opaque DoGet ticket for req.
// The ticket is JSON-encoded for simplicity and transparency.
func EncodeTicket(req *engine.Request) ([]byte, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: nil request", ErrInvalidTicket)
	}
	if req.SQL == "" {
		return nil, fmt.Errorf("%w: sql cannot be empty", ErrInvalidTicket)
	}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode ticket: %w", err)
	}
	return data, nil
}

// DecodeTicket parses a ticket produced by EncodeTicket.
// Unknown fields are rejected.
func DecodeTicket(data []byte) (*engine.Request, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: ticket cannot be empty", ErrInvalidTicket)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var req engine.Request
	if err := dec.Decode(&req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTicket, err)
	}
	if req.SQL == "" {
		return nil, fmt.Errorf("%w: decoded ticket has empty sql", ErrInvalidTicket)
	}
	return &req, nil
}

// Package msgpack provides MessagePack encoding for cache keys and cached
// preview payloads.
package msgpack

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// ErrEmpty is returned when decoding empty input.
var ErrEmpty = errors.New("empty MessagePack data")

// Encode serializes a Go value into MessagePack format.
// Map keys are written in sorted order, so equal values always encode to
// equal bytes and the output can be hashed.
//
// Example:
//
//	type key struct {
//	    SQL   string `msgpack:"sql"`
//	    Limit int    `msgpack:"limit"`
//	}
//	data, err := msgpack.Encode(key{SQL: "SELECT 1", Limit: 10})
func Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("failed to encode MessagePack: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode deserializes MessagePack data into a Go value.
// The v parameter should be a pointer to the target structure.
//
// Untyped numbers decode as int64, uint64 or float64, and untyped maps as
// map[string]any, matching what database/sql drivers return for row values.
func Decode(data []byte, v any) error {
	if len(data) == 0 {
		return ErrEmpty
	}

	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.UseLooseInterfaceDecoding(true)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("failed to decode MessagePack: %w", err)
	}
	return nil
}

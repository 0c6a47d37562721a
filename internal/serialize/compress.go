// Package serialize encodes cached preview payloads: MessagePack, optionally
// followed by ZStandard compression.
package serialize

import (
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/hugr-lab/preview-go/internal/msgpack"
)

// Compressor handles ZStandard compression of cache payloads.
// Create once and reuse to eliminate allocations.
type Compressor struct {
	encoder *zstd.Encoder
}

// NewCompressor creates a reusable ZStandard compressor.
// Uses SpeedFastest (level 1).
// Caller must call Close() when done to release resources.
func NewCompressor() (*Compressor, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}

	return &Compressor{
		encoder: encoder,
	}, nil
}

// Compress compresses data using ZStandard.
// Safe for concurrent use from multiple goroutines.
func (c *Compressor) Compress(data []byte) []byte {
	if len(data) == 0 {
		return []byte{}
	}

	// EncodeAll is goroutine-safe
	return c.encoder.EncodeAll(data, make([]byte, 0, len(data)/2))
}

// Close releases compressor resources.
func (c *Compressor) Close() error {
	if c.encoder != nil {
		return c.encoder.Close()
	}
	return nil
}

// Decompressor handles ZStandard decompression.
// Create once and reuse to eliminate allocations.
type Decompressor struct {
	decoder *zstd.Decoder
}

// NewDecompressor creates a reusable ZStandard decompressor.
// Caller must call Close() when done to release resources.
func NewDecompressor() (*Decompressor, error) {
	decoder, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	return &Decompressor{
		decoder: decoder,
	}, nil
}

// Decompress decompresses ZStandard data.
// Safe for concurrent use from multiple goroutines.
func (d *Decompressor) Decompress(compressed []byte) ([]byte, error) {
	if len(compressed) == 0 {
		return []byte{}, nil
	}

	// DecodeAll is goroutine-safe
	decompressed, err := d.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress: %w", err)
	}

	return decompressed, nil
}

// Close releases decompressor resources.
func (d *Decompressor) Close() {
	if d.decoder != nil {
		d.decoder.Close()
	}
}

// Codec marshals values to cache payloads.
// The zero value is not usable; create with NewCodec.
type Codec struct {
	compressor   *Compressor
	decompressor *Decompressor
}

// NewCodec creates a codec. With compress set, payloads are zstd-compressed.
func NewCodec(compress bool) (*Codec, error) {
	if !compress {
		return &Codec{}, nil
	}

	c, err := NewCompressor()
	if err != nil {
		return nil, err
	}
	d, err := NewDecompressor()
	if err != nil {
		c.Close()
		return nil, err
	}
	return &Codec{compressor: c, decompressor: d}, nil
}

// Compressed reports whether payloads are compressed.
func (c *Codec) Compressed() bool {
	return c.compressor != nil
}

// Marshal encodes v as a payload.
func (c *Codec) Marshal(v any) ([]byte, error) {
	data, err := msgpack.Encode(v)
	if err != nil {
		return nil, err
	}
	if c.compressor != nil {
		data = c.compressor.Compress(data)
	}
	return data, nil
}

// Unmarshal decodes a payload produced by Marshal into v.
func (c *Codec) Unmarshal(data []byte, v any) error {
	if c.decompressor != nil {
		var err error
		if data, err = c.decompressor.Decompress(data); err != nil {
			return err
		}
	}
	return msgpack.Decode(data, v)
}

// Close releases compression resources.
func (c *Codec) Close() error {
	if c.decompressor != nil {
		c.decompressor.Close()
	}
	if c.compressor != nil {
		return c.compressor.Close()
	}
	return nil
}

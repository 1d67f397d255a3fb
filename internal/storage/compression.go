package storage

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Compression names a per-frame compression codec.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionGzip Compression = "gzip"
	CompressionZstd Compression = "zstd"
)

// ParseCompression converts a configuration string into a Compression.
func ParseCompression(s string) (Compression, error) {
	switch Compression(strings.ToLower(s)) {
	case "", CompressionNone, "uncompressed":
		return CompressionNone, nil
	case CompressionGzip:
		return CompressionGzip, nil
	case CompressionZstd:
		return CompressionZstd, nil
	default:
		return "", fmt.Errorf("unsupported compression: %s", s)
	}
}

// Extension returns the suffix appended to blob keys.
func (c Compression) Extension() string {
	switch c {
	case CompressionGzip:
		return ".gz"
	case CompressionZstd:
		return ".zst"
	default:
		return ""
	}
}

// compressor encodes each frame independently. Concatenated gzip members and
// zstd frames decode as a single stream, so blocks can be staged separately.
type compressor struct {
	codec Compression
	zstd  *zstd.Encoder
}

func newCompressor(codec Compression) (*compressor, error) {
	c := &compressor{codec: codec}
	if codec == CompressionZstd {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		c.zstd = enc
	}
	return c, nil
}

// block returns the bytes to store for one frame. Without compression the
// frame's own bytes are returned and must not be retained past the write.
func (c *compressor) block(data []byte) ([]byte, error) {
	switch c.codec {
	case CompressionGzip:
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(data); err != nil {
			return nil, fmt.Errorf("failed to gzip frame: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("failed to gzip frame: %w", err)
		}
		return buf.Bytes(), nil
	case CompressionZstd:
		return c.zstd.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
	default:
		return data, nil
	}
}

func (c *compressor) close() {
	if c.zstd != nil {
		_ = c.zstd.Close()
	}
}

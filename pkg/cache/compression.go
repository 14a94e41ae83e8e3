package cache

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
)

// maxDecompressedBytes bounds decompression output to guard against
// decompression bombs in corrupted or hostile payloads.
const maxDecompressedBytes = 100 * 1024 * 1024 // 100MB max

// compressor handles gzip compression for cache payloads
type compressor struct {
	compressionLevel int
	minSizeBytes     int64
}

// newCompressor creates a compressor with the given level and size floor
func newCompressor(level int, minSize int64) *compressor {
	if level < gzip.NoCompression || level > gzip.BestCompression {
		level = gzip.BestSpeed // Fast compression for cache
	}
	return &compressor{
		compressionLevel: level,
		minSizeBytes:     minSize,
	}
}

// CompressOnly compresses data when it is large enough to benefit. The
// original slice is returned unchanged when compression does not help.
func (c *compressor) CompressOnly(data []byte) ([]byte, error) {
	if int64(len(data)) < c.minSizeBytes {
		return data, nil
	}

	compressed, err := c.compress(data)
	if err != nil {
		return nil, err
	}

	// Return original if compression didn't help
	if len(compressed) >= len(data) {
		return data, nil
	}

	return compressed, nil
}

// DecompressOnly reverses CompressOnly. Data without the gzip magic bytes
// passes through untouched.
func (c *compressor) DecompressOnly(data []byte) ([]byte, error) {
	if !c.isCompressed(data) {
		return data, nil
	}

	return c.decompress(data)
}

func (c *compressor) compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gz, err := gzip.NewWriterLevel(&buf, c.compressionLevel)
	if err != nil {
		return nil, err
	}

	if _, err := gz.Write(data); err != nil {
		_ = gz.Close()
		return nil, fmt.Errorf("compression write failed: %w", err)
	}

	if err := gz.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func (c *compressor) decompress(data []byte) ([]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = gz.Close()
	}()

	// Limit reader to prevent decompression bombs
	limitedReader := io.LimitReader(gz, maxDecompressedBytes)
	return io.ReadAll(limitedReader)
}

func (c *compressor) isCompressed(data []byte) bool {
	// Check for gzip magic bytes
	return len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b
}

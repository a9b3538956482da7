package modelstore

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies the codec applied to a blob payload. The numeric
// values are written to disk and must not change.
type Compression uint8

const (
	CompressionNone Compression = 0
	CompressionZstd Compression = 1
	CompressionS2   Compression = 2
	CompressionLZ4  Compression = 3
)

// ParseCompression converts a configuration value into a Compression
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "none", "":
		return CompressionNone, nil
	case "zstd":
		return CompressionZstd, nil
	case "s2":
		return CompressionS2, nil
	case "lz4":
		return CompressionLZ4, nil
	default:
		return 0, fmt.Errorf("invalid compression: %q", s)
	}
}

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	case CompressionS2:
		return "s2"
	case CompressionLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

// Codec compresses and decompresses whole payloads
type Codec interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

// GetCodec returns the codec for a compression type
func GetCodec(c Compression) (Codec, error) {
	switch c {
	case CompressionNone:
		return noopCodec{}, nil
	case CompressionZstd:
		return zstdCodec{}, nil
	case CompressionS2:
		return s2Codec{}, nil
	case CompressionLZ4:
		return lz4Codec{}, nil
	default:
		return nil, fmt.Errorf("unsupported compression type: %s", c)
	}
}

type noopCodec struct{}

func (noopCodec) Compress(data []byte) ([]byte, error)   { return append([]byte(nil), data...), nil }
func (noopCodec) Decompress(data []byte) ([]byte, error) { return append([]byte(nil), data...), nil }

// zstd encoders and decoders are safe for concurrent EncodeAll/DecodeAll
// and expensive to create, so one of each is shared
var (
	zstdOnce    sync.Once
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
	zstdErr     error
)

func zstdInit() error {
	zstdOnce.Do(func() {
		zstdEncoder, zstdErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if zstdErr != nil {
			return
		}
		zstdDecoder, zstdErr = zstd.NewReader(nil)
	})
	return zstdErr
}

type zstdCodec struct{}

func (zstdCodec) Compress(data []byte) ([]byte, error) {
	if err := zstdInit(); err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	return zstdEncoder.EncodeAll(data, nil), nil
}

func (zstdCodec) Decompress(data []byte) ([]byte, error) {
	if err := zstdInit(); err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	return zstdDecoder.DecodeAll(data, nil)
}

type s2Codec struct{}

func (s2Codec) Compress(data []byte) ([]byte, error) {
	return s2.Encode(nil, data), nil
}

func (s2Codec) Decompress(data []byte) ([]byte, error) {
	return s2.Decode(nil, data)
}

type lz4Codec struct{}

func (lz4Codec) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (lz4Codec) Decompress(data []byte) ([]byte, error) {
	return io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
}

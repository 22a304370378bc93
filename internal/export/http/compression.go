package http

import (
	"bytes"
	"fmt"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// Compression algorithm names accepted in configuration.
const (
	CompressionNone   = "none"
	CompressionGzip   = "gzip"
	CompressionZstd   = "zstd"
	CompressionZlib   = "zlib"
	CompressionSnappy = "snappy"
)

// Codec compresses request bodies and names the matching
// Content-Encoding.
type Codec interface {
	Encode(data []byte) ([]byte, error)
	Decode(data []byte) ([]byte, error)
	// ContentEncoding is empty for identity.
	ContentEncoding() string
	Close() error
}

// NewCodec returns the Codec for algorithm. An empty algorithm is
// identity.
func NewCodec(algorithm string) (Codec, error) {
	switch algorithm {
	case CompressionNone, "":
		return identityCodec{}, nil
	case CompressionGzip:
		return streamCodec{
			encoding: "gzip",
			writer:   func(w io.Writer) io.WriteCloser { return gzip.NewWriter(w) },
			reader: func(r io.Reader) (io.ReadCloser, error) {
				return gzip.NewReader(r)
			},
		}, nil
	case CompressionZlib:
		return streamCodec{
			encoding: "deflate",
			writer:   func(w io.Writer) io.WriteCloser { return zlib.NewWriter(w) },
			reader:   zlib.NewReader,
		}, nil
	case CompressionZstd:
		return newZstdCodec()
	case CompressionSnappy:
		return snappyCodec{}, nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", algorithm)
	}
}

type identityCodec struct{}

func (identityCodec) Encode(data []byte) ([]byte, error) { return data, nil }
func (identityCodec) Decode(data []byte) ([]byte, error) { return data, nil }
func (identityCodec) ContentEncoding() string            { return "" }
func (identityCodec) Close() error                       { return nil }

// streamCodec adapts writer/reader based formats.
type streamCodec struct {
	encoding string
	writer   func(io.Writer) io.WriteCloser
	reader   func(io.Reader) (io.ReadCloser, error)
}

func (c streamCodec) Encode(data []byte) ([]byte, error) {
	var buf bytes.Buffer

	w := c.writer(&buf)

	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("%s write: %w", c.encoding, err)
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("%s close: %w", c.encoding, err)
	}

	return buf.Bytes(), nil
}

func (c streamCodec) Decode(data []byte) ([]byte, error) {
	r, err := c.reader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s reader: %w", c.encoding, err)
	}
	defer r.Close()

	return io.ReadAll(r)
}

func (c streamCodec) ContentEncoding() string { return c.encoding }
func (c streamCodec) Close() error            { return nil }

// zstdCodec keeps one encoder and decoder; both are safe for concurrent
// EncodeAll/DecodeAll.
type zstdCodec struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func newZstdCodec() (*zstdCodec, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		_ = encoder.Close()

		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}

	return &zstdCodec{encoder: encoder, decoder: decoder}, nil
}

func (c *zstdCodec) Encode(data []byte) ([]byte, error) {
	return c.encoder.EncodeAll(data, make([]byte, 0, len(data))), nil
}

func (c *zstdCodec) Decode(data []byte) ([]byte, error) {
	return c.decoder.DecodeAll(data, nil)
}

func (c *zstdCodec) ContentEncoding() string { return "zstd" }

func (c *zstdCodec) Close() error {
	c.decoder.Close()

	return c.encoder.Close()
}

type snappyCodec struct{}

func (snappyCodec) Encode(data []byte) ([]byte, error) { return snappy.Encode(nil, data), nil }
func (snappyCodec) Decode(data []byte) ([]byte, error) { return snappy.Decode(nil, data) }
func (snappyCodec) ContentEncoding() string            { return "snappy" }
func (snappyCodec) Close() error                       { return nil }

package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/tinytelemetry/logmock/internal/model"
)

// MaxDecompressedSize bounds the size of a decompressed body.
const MaxDecompressedSize = 64 << 20

// Compression headers.
const (
	HeaderLogCompressType = "x-log-compresstype"
	HeaderLogBodyRawSize  = "x-log-bodyrawsize"
	HeaderContentEncoding = "Content-Encoding"
)

var errTooLarge = errors.New("decompressed body exceeds limit")

// decompress undoes the body compression announced by the collector header
// (x-log-compresstype) or, failing that, by Content-Encoding.
func decompress(body []byte, md model.Metadata) ([]byte, error) {
	if method := strings.ToLower(strings.TrimSpace(md.Header(HeaderLogCompressType))); method != "" {
		switch method {
		case "lz4":
			return decompressLZ4Block(body, md.Header(HeaderLogBodyRawSize))
		case "deflate":
			return readAllLimited(zlib.NewReader(bytes.NewReader(body)))
		case "zstd":
			return decompressZstd(body)
		default:
			return nil, fmt.Errorf("unsupported %s %q", HeaderLogCompressType, method)
		}
	}

	switch encoding := strings.ToLower(strings.TrimSpace(md.Header(HeaderContentEncoding))); encoding {
	case "", "identity":
		return body, nil
	case "gzip", "x-gzip":
		return readAllLimited(gzip.NewReader(bytes.NewReader(body)))
	case "deflate":
		return readAllLimited(zlib.NewReader(bytes.NewReader(body)))
	case "zstd":
		return decompressZstd(body)
	default:
		return nil, fmt.Errorf("unsupported %s %q", HeaderContentEncoding, encoding)
	}
}

// decompressLZ4Block handles the raw (frameless) LZ4 blocks collectors send;
// the uncompressed size travels in x-log-bodyrawsize.
func decompressLZ4Block(body []byte, rawSize string) ([]byte, error) {
	size, err := strconv.Atoi(strings.TrimSpace(rawSize))
	if err != nil || size < 0 {
		return nil, fmt.Errorf("lz4: invalid %s %q", HeaderLogBodyRawSize, rawSize)
	}
	if size > MaxDecompressedSize {
		return nil, errTooLarge
	}
	if size == 0 {
		return []byte{}, nil
	}
	dst := make([]byte, size)
	n, err := lz4.UncompressBlock(body, dst)
	if err != nil {
		return nil, fmt.Errorf("lz4: %w", err)
	}
	return dst[:n], nil
}

func decompressZstd(body []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxDecompressedSize))
	if err != nil {
		return nil, fmt.Errorf("zstd: %w", err)
	}
	defer dec.Close()
	out, err := dec.DecodeAll(body, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd: %w", err)
	}
	return out, nil
}

func readAllLimited(r io.ReadCloser, err error) ([]byte, error) {
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out, err := io.ReadAll(io.LimitReader(r, MaxDecompressedSize+1))
	if err != nil {
		return nil, err
	}
	if len(out) > MaxDecompressedSize {
		return nil, errTooLarge
	}
	return out, nil
}

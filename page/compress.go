package page

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

type Compression uint8

const (
	NoCompression     Compression = 0
	SnappyCompression Compression = 1
	LZ4Compression    Compression = 2
	ZstdCompression   Compression = 3
)

var compressionNames = map[Compression]string{
	NoCompression:     "none",
	SnappyCompression: "snappy",
	LZ4Compression:    "lz4",
	ZstdCompression:   "zstd",
}

func (c Compression) String() string {
	if s, ok := compressionNames[c]; ok {
		return s
	}
	return fmt.Sprintf("unknown(%d)", c)
}

func ParseCompression(s string) (Compression, error) {
	for c, n := range compressionNames {
		if strings.EqualFold(s, n) {
			return c, nil
		}
	}
	return NoCompression,
		fmt.Errorf("page: got %s for compression; want none, snappy, lz4, or zstd", s)
}

var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	zstdDecoder, _ = zstd.NewReader(nil)
)

func compress(c Compression, data []byte) ([]byte, error) {
	switch c {
	case NoCompression:
		return data, nil
	case SnappyCompression:
		return snappy.Encode(nil, data), nil
	case LZ4Compression:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		_, err := w.Write(data)
		if err != nil {
			return nil, fmt.Errorf("page: lz4 write: %w", err)
		}
		err = w.Close()
		if err != nil {
			return nil, fmt.Errorf("page: lz4 close: %w", err)
		}
		return buf.Bytes(), nil
	case ZstdCompression:
		return zstdEncoder.EncodeAll(data, nil), nil
	}
	return nil, fmt.Errorf("page: unsupported compression: %s", c)
}

func decompress(c Compression, data []byte) ([]byte, error) {
	switch c {
	case NoCompression:
		return data, nil
	case SnappyCompression:
		return snappy.Decode(nil, data)
	case LZ4Compression:
		return io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
	case ZstdCompression:
		return zstdDecoder.DecodeAll(data, nil)
	}
	return nil, fmt.Errorf("page: unsupported compression: %s", c)
}

package storage

import (
	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/zstd"
)

// Encoder and decoder are safe for concurrent use and reused across calls.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("storage: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("storage: zstd decoder initialization failed: " + err.Error())
	}
}

func compressBlob(raw []byte) []byte {
	return zstdEncoder.EncodeAll(raw, make([]byte, 0, len(raw)/2))
}

func decompressBlob(stored []byte, rawSize int64) ([]byte, error) {
	out, err := zstdDecoder.DecodeAll(stored, make([]byte, 0, rawSize))
	if err != nil {
		return nil, errors.Wrap(err, "zstd decompress")
	}
	if int64(len(out)) != rawSize {
		return nil, errors.Newf("zstd decompress: got %d bytes, expected %d", len(out), rawSize)
	}
	return out, nil
}

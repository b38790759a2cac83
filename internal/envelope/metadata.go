package envelope

import (
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/coblo/isccidx/internal/errors"
)

// compressThreshold is the envelope size, in bytes, above which metadata
// payloads are zstd-compressed before being written to the metadata
// sub-store. Small envelopes skip compression entirely to avoid its
// fixed overhead.
const compressThreshold = 4096

const (
	frameRaw        byte = 0x00
	frameZstd       byte = 0x01
	frameHeaderSize      = 1
)

var zstdEncoderPool = sync.Pool{
	New: func() any {
		enc, err := zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.SpeedDefault),
			zstd.WithEncoderCRC(false),
		)
		if err != nil {
			panic("envelope: failed to create zstd encoder: " + err.Error())
		}
		return enc
	},
}

var zstdDecoderPool = sync.Pool{
	New: func() any {
		dec, err := zstd.NewReader(nil,
			zstd.WithDecoderConcurrency(1),
		)
		if err != nil {
			panic("envelope: failed to create zstd decoder: " + err.Error())
		}
		return dec
	},
}

// EncodeMetadata marshals v and prefixes it with a one-byte frame tag,
// transparently zstd-compressing envelopes over compressThreshold.
func EncodeMetadata(v any) ([]byte, error) {
	data, err := Marshal(v)
	if err != nil {
		return nil, err
	}

	if len(data) <= compressThreshold {
		out := make([]byte, frameHeaderSize+len(data))
		out[0] = frameRaw
		copy(out[frameHeaderSize:], data)
		return out, nil
	}

	enc := zstdEncoderPool.Get().(*zstd.Encoder)
	defer zstdEncoderPool.Put(enc)
	compressed := enc.EncodeAll(data, nil)

	out := make([]byte, frameHeaderSize+len(compressed))
	out[0] = frameZstd
	copy(out[frameHeaderSize:], compressed)
	return out, nil
}

// DecodeMetadata reverses EncodeMetadata into v.
func DecodeMetadata(framed []byte, v any) error {
	if len(framed) < frameHeaderSize {
		return errors.MalformedCode("metadata envelope missing frame tag", nil)
	}

	tag, body := framed[0], framed[frameHeaderSize:]
	switch tag {
	case frameRaw:
		return Unmarshal(body, v)
	case frameZstd:
		dec := zstdDecoderPool.Get().(*zstd.Decoder)
		defer zstdDecoderPool.Put(dec)
		raw, err := dec.DecodeAll(body, nil)
		if err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err)
		}
		return Unmarshal(raw, v)
	default:
		return errors.MalformedCode("unknown metadata frame tag", nil).WithDetail("tag", itoa(tag))
	}
}

func itoa(b byte) string {
	const digits = "0123456789"
	if b < 10 {
		return string(digits[b])
	}
	if b < 100 {
		return string(digits[b/10]) + string(digits[b%10])
	}
	return string(digits[b/100]) + string(digits[b/10%10]) + string(digits[b%10])
}

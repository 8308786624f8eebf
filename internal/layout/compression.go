package layout

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects the record-section block codec.
type Compression uint8

const (
	// CompressionNone stores records raw; required for in-place mapping.
	CompressionNone Compression = 0
	// CompressionLZ4 uses LZ4 block compression (fast).
	CompressionLZ4 Compression = 1
	// CompressionZSTD uses ZSTD (better ratio).
	CompressionZSTD Compression = 2
)

// ParseCompression parses "none", "lz4" or "zstd".
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZSTD, nil
	}
	return CompressionNone, fmt.Errorf("layout: unknown compression %q", s)
}

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	}
	return fmt.Sprintf("compression(%d)", uint8(c))
}

// BlockRecords is the number of records per compressed block.
const BlockRecords = 1024

const blockHeaderSize = 8

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// compressBlock returns data framed with a block header, compressed when
// that saves at least a tenth of the size.
func compressBlock(data []byte, c Compression) ([]byte, error) {
	var compressed []byte
	switch c {
	case CompressionLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, err
		}
		compressed = buf[:n]
	case CompressionZSTD:
		enc := getZstdEncoder()
		compressed = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	}

	if len(compressed) == 0 || float64(len(compressed)) > float64(len(data))*0.9 {
		out := make([]byte, blockHeaderSize+len(data))
		binary.LittleEndian.PutUint32(out[0:], uint32(len(data)))
		copy(out[blockHeaderSize:], data)
		return out, nil
	}

	out := make([]byte, blockHeaderSize+len(compressed))
	binary.LittleEndian.PutUint32(out[0:], uint32(len(data)))
	binary.LittleEndian.PutUint32(out[4:], uint32(len(compressed)))
	copy(out[blockHeaderSize:], compressed)
	return out, nil
}

// decompressBlocks decodes a compressed record section into dst, which must
// have exactly the uncompressed size.
func decompressBlocks(dst, src []byte, c Compression) error {
	off := 0
	for len(src) > 0 {
		if len(src) < blockHeaderSize {
			return errors.New("block too small for header")
		}
		raw := int(binary.LittleEndian.Uint32(src[0:]))
		packed := int(binary.LittleEndian.Uint32(src[4:]))
		src = src[blockHeaderSize:]

		if raw > len(dst)-off {
			return errors.New("block exceeds record section")
		}
		out := dst[off : off+raw]

		if packed == 0 {
			if len(src) < raw {
				return errors.New("block data too small")
			}
			copy(out, src[:raw])
			src = src[raw:]
			off += raw
			continue
		}

		if len(src) < packed {
			return errors.New("compressed block data too small")
		}
		data := src[:packed]
		src = src[packed:]

		switch c {
		case CompressionLZ4:
			n, err := lz4.UncompressBlock(data, out)
			if err != nil {
				return err
			}
			if n != raw {
				return errors.New("decompressed size mismatch")
			}
		case CompressionZSTD:
			dec := getZstdDecoder()
			decoded, err := dec.DecodeAll(data, out[:0])
			zstdDecoderPool.Put(dec)
			if err != nil {
				return err
			}
			if len(decoded) != raw {
				return errors.New("decompressed size mismatch")
			}
		default:
			return fmt.Errorf("unexpected compressed block for %v", c)
		}
		off += raw
	}
	if off != len(dst) {
		return fmt.Errorf("record section holds %d bytes, expected %d", off, len(dst))
	}
	return nil
}

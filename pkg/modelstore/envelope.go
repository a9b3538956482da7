package modelstore

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Blob layout (little endian):
//
//	magic       [4]byte  "TWMP"
//	version     uint16
//	kind        uint8
//	compression uint8
//	length      uint64   payload length
//	checksum    uint64   xxhash64 of payload
//	payload     []byte   compressed gob document
const (
	blobMagic      = "TWMP"
	blobVersion    = uint16(1)
	blobHeaderSize = 4 + 2 + 1 + 1 + 8 + 8
)

type blobKind uint8

const (
	kindModels blobKind = 1
	kindStats  blobKind = 2
)

var errBadEnvelope = errors.New("invalid blob envelope")

// encodeBlob gob-encodes doc, compresses it and wraps it in an envelope
func encodeBlob(kind blobKind, compression Compression, doc any) ([]byte, error) {
	codec, err := GetCodec(compression)
	if err != nil {
		return nil, err
	}

	var raw bytes.Buffer
	if err := gob.NewEncoder(&raw).Encode(doc); err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	payload, err := codec.Compress(raw.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to compress document: %w", err)
	}

	out := make([]byte, blobHeaderSize, blobHeaderSize+len(payload))
	copy(out[0:4], blobMagic)
	binary.LittleEndian.PutUint16(out[4:6], blobVersion)
	out[6] = byte(kind)
	out[7] = byte(compression)
	binary.LittleEndian.PutUint64(out[8:16], uint64(len(payload)))
	binary.LittleEndian.PutUint64(out[16:24], xxhash.Sum64(payload))
	return append(out, payload...), nil
}

// decodeBlob validates the envelope and gob-decodes the payload into doc
func decodeBlob(data []byte, kind blobKind, doc any) (err error) {
	defer func() {
		// gob can panic on adversarial input
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: decode panic: %v", errBadEnvelope, r)
		}
	}()

	if len(data) < blobHeaderSize {
		return fmt.Errorf("%w: %d bytes is shorter than the header", errBadEnvelope, len(data))
	}
	if string(data[0:4]) != blobMagic {
		return fmt.Errorf("%w: bad magic %q", errBadEnvelope, data[0:4])
	}
	if v := binary.LittleEndian.Uint16(data[4:6]); v != blobVersion {
		return fmt.Errorf("%w: unsupported version %d", errBadEnvelope, v)
	}
	if k := blobKind(data[6]); k != kind {
		return fmt.Errorf("%w: kind %d, expected %d", errBadEnvelope, k, kind)
	}
	codec, err := GetCodec(Compression(data[7]))
	if err != nil {
		return fmt.Errorf("%w: %v", errBadEnvelope, err)
	}
	payload := data[blobHeaderSize:]
	if n := binary.LittleEndian.Uint64(data[8:16]); n != uint64(len(payload)) {
		return fmt.Errorf("%w: payload is %d bytes, header says %d", errBadEnvelope, len(payload), n)
	}
	if sum := binary.LittleEndian.Uint64(data[16:24]); sum != xxhash.Sum64(payload) {
		return fmt.Errorf("%w: checksum mismatch", errBadEnvelope)
	}

	raw, err := codec.Decompress(payload)
	if err != nil {
		return fmt.Errorf("failed to decompress document: %w", err)
	}
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(doc); err != nil {
		return fmt.Errorf("failed to decode document: %w", err)
	}
	return nil
}

package store

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
)

// Format names the encoding of a persisted index.
type Format string

const (
	FormatJSON Format = "json"
	FormatCBOR Format = "cbor"
)

const zstdSuffix = ".zst"

// encMode uses Core Deterministic Encoding so the same index always
// produces identical bytes and therefore an identical checksum.
var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("store: CBOR encoder initialization failed: " + err.Error())
	}
}

// formatFor derives the codec from the file name: "*.cbor" selects CBOR,
// anything else JSON, and a trailing ".zst" adds zstd compression.
func formatFor(path string) (Format, bool) {
	name := filepath.Base(path)
	compressed := strings.HasSuffix(name, zstdSuffix)
	name = strings.TrimSuffix(name, zstdSuffix)
	if strings.EqualFold(filepath.Ext(name), ".cbor") {
		return FormatCBOR, compressed
	}
	return FormatJSON, compressed
}

func encode(rec *record, format Format) ([]byte, error) {
	switch format {
	case FormatCBOR:
		return encMode.Marshal(rec)
	case FormatJSON:
		return json.Marshal(rec)
	default:
		return nil, fmt.Errorf("unsupported index format %q", format)
	}
}

func decode(data []byte, format Format, rec *record) error {
	switch format {
	case FormatCBOR:
		return cbor.Unmarshal(data, rec)
	case FormatJSON:
		return json.Unmarshal(data, rec)
	default:
		return fmt.Errorf("unsupported index format %q", format)
	}
}

func compress(data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(data, make([]byte, 0, len(data)/4)), nil
}

func decompress(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	defer dec.Close()
	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing index: %w", err)
	}
	return out, nil
}

// Package store persists an inverted index as a single self-describing
// record and reloads it with full schema validation. Callers always supply
// the path; the encoding follows the file extension.
package store

import (
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/bm25-retrieval/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/bm25-retrieval/pkg/errors"
)

// Info describes a persisted index file. Checksum is the CRC32 of the
// uncompressed payload and doubles as the index fingerprint.
type Info struct {
	Path       string
	Format     Format
	Compressed bool
	SizeBytes  int64
	Checksum   uint32
}

// Exists reports whether a regular file is present at path.
func Exists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.Mode().IsRegular()
}

// Save atomically writes idx to path. It writes to a temporary file in the
// same directory, syncs it, and renames it over path on success.
func Save(path string, idx *index.Index) (Info, error) {
	for id := range idx.DocLengths {
		if !utf8.ValidString(id) {
			return Info{}, apperrors.Malformed(path, 0, "document id %q is not valid UTF-8", id)
		}
	}
	format, compressed := formatFor(path)
	payload, err := encode(toRecord(idx), format)
	if err != nil {
		return Info{}, fmt.Errorf("encoding index: %w", err)
	}
	info := Info{
		Path:       path,
		Format:     format,
		Compressed: compressed,
		Checksum:   crc32.ChecksumIEEE(payload),
	}
	data := payload
	if compressed {
		if data, err = compress(payload); err != nil {
			return Info{}, err
		}
	}
	info.SizeBytes = int64(len(data))

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Info{}, fmt.Errorf("creating index directory: %w", err)
	}
	f, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return Info{}, fmt.Errorf("creating temp index file: %w", err)
	}
	tmpPath := f.Name()
	committed := false
	defer func() {
		f.Close()
		if !committed {
			os.Remove(tmpPath)
		}
	}()
	if _, err := f.Write(data); err != nil {
		return Info{}, fmt.Errorf("writing index: %w", err)
	}
	if err := f.Sync(); err != nil {
		return Info{}, fmt.Errorf("syncing index file: %w", err)
	}
	if err := f.Close(); err != nil {
		return Info{}, fmt.Errorf("closing index file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return Info{}, fmt.Errorf("renaming index file: %w", err)
	}
	committed = true
	return info, nil
}

// Load reads and validates the index at path. A missing file is a
// configuration error; anything that fails to decode or violates the schema
// is a corrupt-index error. No partially valid index is ever returned.
func Load(path string) (*index.Index, Info, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, Info{}, apperrors.Configuration(path, err)
		}
		return nil, Info{}, fmt.Errorf("opening index file: %w", err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, Info{}, fmt.Errorf("reading index file: %w", err)
	}

	format, compressed := formatFor(path)
	info := Info{
		Path:       path,
		Format:     format,
		Compressed: compressed,
		SizeBytes:  int64(len(data)),
	}
	payload := data
	if compressed {
		if payload, err = decompress(data); err != nil {
			return nil, Info{}, apperrors.CorruptIndex(path, "%v", err)
		}
	}
	info.Checksum = crc32.ChecksumIEEE(payload)

	var rec record
	if err := decode(payload, format, &rec); err != nil {
		return nil, Info{}, apperrors.CorruptIndex(path, "decoding %s: %v", format, err)
	}
	if problem := rec.validate(); problem != "" {
		return nil, Info{}, apperrors.CorruptIndex(path, "%s", problem)
	}
	return rec.toIndex(), info, nil
}

package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/bm25-retrieval/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/bm25-retrieval/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/bm25-retrieval/pkg/errors"
)

func buildFixture(t *testing.T) *index.Index {
	t.Helper()
	docs := map[string]string{
		"1":  "Experimental investigation of the aerodynamics of a wing in a slipstream.",
		"2":  "Simple shear flow past a flat plate in an incompressible fluid of small viscosity.",
		"3":  "The boundary layer in simple shear flow past a flat plate.",
		"4":  "Approximate solutions of the incompressible laminar boundary layer equations for a plate in shear flow.",
		"5":  "",
		"10": "One-dimensional transient heat conduction into a double-layer slab subjected to a linear heat input.",
	}
	norm := tokenizer.New(tokenizer.DefaultStopwords(), tokenizer.Snowball{})
	idx, err := index.Build(context.Background(), docs, norm, index.BuildOptions{Workers: 3})
	require.NoError(t, err)
	return idx
}

func TestSaveLoadRoundTrip(t *testing.T) {
	idx := buildFixture(t)
	for _, name := range []string{"index.json", "index.cbor", "index.json.zst", "index.cbor.zst"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)
			saved, err := Save(path, idx)
			require.NoError(t, err)
			assert.True(t, Exists(path))

			loaded, info, err := Load(path)
			require.NoError(t, err)
			assert.True(t, idx.Equal(loaded), "reloaded index must be identical")
			assert.Equal(t, saved.Checksum, info.Checksum)
			assert.Equal(t, saved.Format, info.Format)
			assert.Equal(t, saved.Compressed, info.Compressed)
			assert.Equal(t, saved.SizeBytes, info.SizeBytes)

			entries, err := os.ReadDir(filepath.Dir(path))
			require.NoError(t, err)
			assert.Len(t, entries, 1, "temp files must not be left behind")
		})
	}
}

func TestSaveIsDeterministic(t *testing.T) {
	idx := buildFixture(t)
	dir := t.TempDir()
	a, err := Save(filepath.Join(dir, "a.cbor"), idx)
	require.NoError(t, err)
	b, err := Save(filepath.Join(dir, "b.cbor"), idx)
	require.NoError(t, err)
	assert.Equal(t, a.Checksum, b.Checksum)
}

func TestFormatFor(t *testing.T) {
	tests := []struct {
		path       string
		format     Format
		compressed bool
	}{
		{"index.json", FormatJSON, false},
		{"/var/idx/index.CBOR", FormatCBOR, false},
		{"index.cbor.zst", FormatCBOR, true},
		{"index.json.zst", FormatJSON, true},
		{"index", FormatJSON, false},
	}
	for _, tt := range tests {
		format, compressed := formatFor(tt.path)
		assert.Equal(t, tt.format, format, tt.path)
		assert.Equal(t, tt.compressed, compressed, tt.path)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)
}

func TestLoadCorrupt(t *testing.T) {
	valid := `"version":1,"num_docs":2,"avg_doclen":1.5,` +
		`"index":{"flow":{"postings":["a","b"],"idf":-0.5108256237659907},"wing":{"postings":["a"],"idf":0.5108256237659907}},` +
		`"tf_dict":{"a":{"flow":1,"wing":1},"b":{"flow":1}},"len_dict":{"a":2,"b":1}`
	tests := []struct {
		name    string
		content string
		reason  string
	}{
		{"not json", "this is not an index", "decoding json"},
		{"wrong version", strings.Replace("{"+valid+"}", `"version":1`, `"version":7`, 1), "unsupported schema version"},
		{"missing num_docs", strings.Replace("{"+valid+"}", `"num_docs":2,`, "", 1), "missing num_docs"},
		{"missing tf_dict", `{"version":1,"num_docs":0,"avg_doclen":0,"index":{},"len_dict":{}}`, "missing tf_dict"},
		{"missing idf", strings.Replace("{"+valid+"}", `,"idf":0.5108256237659907`, "", 1), "has no idf"},
		{"unknown posting", strings.Replace("{"+valid+"}", `["a","b"]`, `["a","z"]`, 1), "unknown document z"},
		{"unsorted postings", strings.Replace("{"+valid+"}", `["a","b"]`, `["b","a"]`, 1), "not strictly ascending"},
		{"length mismatch", strings.Replace("{"+valid+"}", `"len_dict":{"a":2`, `"len_dict":{"a":3`, 1), "disagrees with tf_dict"},
		{"posting without tf", strings.Replace("{"+valid+"}", `"b":{"flow":1}`, `"b":{}`, 1), "list b without a tf entry"},
		{"doc count mismatch", strings.Replace("{"+valid+"}", `"num_docs":2`, `"num_docs":3`, 1), "num_docs does not match"},
		{"idf as string", strings.Replace("{"+valid+"}", `"idf":0.5108256237659907`, `"idf":"0.51"`, 1), "decoding json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "index.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))
			idx, _, err := Load(path)
			require.Error(t, err)
			assert.Nil(t, idx)
			assert.ErrorIs(t, err, apperrors.ErrCorruptIndex)
			assert.Contains(t, err.Error(), tt.reason)
		})
	}

	t.Run("valid baseline loads", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "index.json")
		require.NoError(t, os.WriteFile(path, []byte("{"+valid+"}"), 0o644))
		idx, _, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 2, idx.NumDocs)
		assert.Equal(t, 1, idx.TermFreq("b", "flow"))
	})
}

func TestLoadCorruptCompressed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.cbor.zst")
	require.NoError(t, os.WriteFile(path, []byte("not zstd at all"), 0o644))
	_, _, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrCorruptIndex)
}

func TestSaveRejectsInvalidUTF8IDs(t *testing.T) {
	docs := map[string]string{"doc\xff": "wing flow", "doc\xfe": "shear flow"}
	idx, err := index.Build(context.Background(), docs, tokenizer.New(nil, nil), index.BuildOptions{})
	require.NoError(t, err)

	for _, name := range []string{"index.json", "index.cbor"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			_, err := Save(path, idx)
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrMalformedInput)
			assert.False(t, Exists(path), "nothing must be written")
		})
	}
}

func TestSaveLoadEmptyIndex(t *testing.T) {
	idx, err := index.Build(context.Background(), map[string]string{}, tokenizer.New(nil, nil), index.BuildOptions{})
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "empty.json")
	_, err = Save(path, idx)
	require.NoError(t, err)
	loaded, _, err := Load(path)
	require.NoError(t, err)
	assert.True(t, idx.Equal(loaded))
}

func BenchmarkSaveLoad(b *testing.B) {
	docs := make(map[string]string, 1000)
	for i := 0; i < 1000; i++ {
		docs[fmt.Sprintf("doc-%04d", i)] = "search engine with distributed indexing and query processing"
	}
	idx, err := index.Build(context.Background(), docs, tokenizer.New(nil, nil), index.BuildOptions{})
	if err != nil {
		b.Fatal(err)
	}
	path := filepath.Join(b.TempDir(), "bench.cbor.zst")
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Save(path, idx); err != nil {
			b.Fatal(err)
		}
		if _, _, err := Load(path); err != nil {
			b.Fatal(err)
		}
	}
}

// Package corpus reads a document collection from disk. A collection is a
// directory of plain-text files, either flat or grouped into sub-folders;
// the file name is the document id.
package corpus

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	apperrors "github.com/Adithya-Monish-Kumar-K/bm25-retrieval/pkg/errors"
)

// ReadDocuments returns every document under dir keyed by file name. Hidden
// files and directories are skipped. Two files with the same name anywhere
// in the tree are rejected since ids must be unique within a corpus, and so
// are names that are not valid UTF-8.
func ReadDocuments(dir string) (map[string]string, error) {
	st, err := os.Stat(dir)
	if err != nil {
		return nil, apperrors.Configuration(dir, err)
	}
	if !st.IsDir() {
		return nil, apperrors.New(apperrors.ErrConfiguration, dir, "not a directory")
	}

	docs := make(map[string]string)
	origin := make(map[string]string)
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if path != dir && strings.HasPrefix(name, ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if !utf8.ValidString(name) {
			return apperrors.Malformed(path, 0, "document id %q is not valid UTF-8", name)
		}
		if prev, dup := origin[name]; dup {
			return fmt.Errorf("duplicate document id %q: %s and %s", name, prev, path)
		}
		text, err := readFile(path)
		if err != nil {
			return err
		}
		docs[name] = text
		origin[name] = path
		return nil
	})
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, apperrors.Configuration(dir, err)
	}
	return docs, nil
}

func readFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", apperrors.Configuration(path, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return "", apperrors.Configuration(path, err)
	}
	return string(data), nil
}

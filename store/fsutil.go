// Package store implements the three durable collaborators the
// coordinator depends on -- MetadataStore, PackStore and the domain
// rebuild lock -- as directories of JSON files, following the
// temp-file-then-rename write path and directory fsync used by
// github.com/cybozu-go/aptutil's Storage and mirror.DirSync.
package store

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// ErrNotFound is returned by MetadataStore.Get and PackStore.Get when no
// record exists for the given key, declared as a package-level sentinel
// the way cacher/urlmap.go declares ErrInvalidPrefix.
var ErrNotFound = errors.New("not found")

// dirSync calls fsync(2) on a directory so a preceding Create/Rename is
// durable, mirroring aptutil's mirror.DirSync.
func dirSync(dir string) error {
	f, err := os.OpenFile(dir, os.O_RDONLY, 0755)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}

// writeFileAtomic writes data to a temp file in dir, fsyncs it, then
// renames it into place at path, fsyncing dir afterward. This is the
// same crash-safety pattern as aptutil's Storage.Insert.
func writeFileAtomic(dir, path string, data []byte) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "mkdir")
	}

	tmp, err := os.CreateTemp(dir, "_tmp")
	if err != nil {
		return errors.Wrap(err, "create temp")
	}
	tmpName := tmp.Name()
	defer func() {
		tmp.Close()
		os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		return errors.Wrap(err, "write temp")
	}
	if err := tmp.Sync(); err != nil {
		return errors.Wrap(err, "sync temp")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close temp")
	}

	if err := os.Rename(tmpName, path); err != nil {
		return errors.Wrap(err, "rename")
	}
	return dirSync(dir)
}

// keyFile maps an arbitrary key to a filename safe under any OS by
// hashing it -- domains and URLs may contain characters that are not
// valid path components.
func keyFile(dir string, key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(dir, hex.EncodeToString(sum[:])+".json")
}

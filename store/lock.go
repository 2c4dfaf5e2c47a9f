package store

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// DomainLock provides single-flight rebuild serialization per domain.
// Acquisition inserts a lock file with O_CREATE|O_EXCL -- the
// file-based analogue of an insert into a uniqueness-enforcing table --
// descended from aptutil's mirror.Flock advisory-lock wrapper. It is
// not reentrant and not fair.
type DomainLock struct {
	dir string
}

// NewDomainLock opens dir as the backing directory for lock files.
func NewDomainLock(dir string) *DomainLock {
	return &DomainLock{dir: dir}
}

func (l *DomainLock) path(domain string) string {
	return keyFile(l.dir, domain)
}

// Acquire attempts to insert the lock row for domain, retrying every
// pollInterval until timeout elapses. It returns true iff it acquired
// the lock.
func (l *DomainLock) Acquire(domain string, timeout, pollInterval time.Duration) (bool, error) {
	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return false, errors.Wrap(err, "mkdir lock dir")
	}

	deadline := time.Now().Add(timeout)
	path := l.path(domain)

	for {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			_, werr := f.WriteString(strconv.FormatInt(time.Now().Unix(), 10))
			f.Close()
			if werr != nil {
				os.Remove(path)
				return false, errors.Wrap(werr, "write lock")
			}
			if err := dirSync(l.dir); err != nil {
				os.Remove(path)
				return false, errors.Wrap(err, "sync lock dir")
			}
			return true, nil
		}
		if !os.IsExist(err) {
			return false, errors.Wrap(err, "create lock")
		}

		if time.Now().After(deadline) {
			return false, nil
		}
		time.Sleep(pollInterval)
	}
}

// Release deletes the lock row for domain unconditionally. It is
// idempotent: releasing an already-released lock is not an error.
func (l *DomainLock) Release(domain string) error {
	err := os.Remove(l.path(domain))
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "remove lock")
	}
	return dirSync(filepath.Dir(l.path(domain)))
}

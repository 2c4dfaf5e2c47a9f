package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/cybozu-go/log"
	"github.com/pkg/errors"

	"github.com/weeklypack/pagepackd/page"
)

// PackStore is the durable per-domain weekly pack record.
type PackStore struct {
	dir string

	mu    sync.Mutex
	index map[string]*page.Pack
}

// NewPackStore opens dir as the backing directory for pack bodies.
func NewPackStore(dir string) *PackStore {
	return &PackStore{
		dir:   dir,
		index: make(map[string]*page.Pack),
	}
}

// Load populates the in-memory index from disk. Must be called once
// before first use.
func (s *PackStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "read pack dir")
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		p := filepath.Join(s.dir, entry.Name())
		data, err := os.ReadFile(p)
		if err != nil {
			return errors.Wrapf(err, "read %s", p)
		}
		var pk page.Pack
		if err := json.Unmarshal(data, &pk); err != nil {
			log.Warn("skipping corrupt pack record", map[string]interface{}{
				"_path": p,
				"_err":  err.Error(),
			})
			continue
		}
		s.index[pk.Domain] = &pk
	}
	return nil
}

// Purge deletes every pack whose ExpiresAt is strictly before now. The
// coordinator runs this at the start of every request.
func (s *PackStore) Purge(now float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for domain, pk := range s.index {
		if pk.ExpiresAt >= now {
			continue
		}
		if err := os.Remove(keyFile(s.dir, domain)); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "remove expired pack %s", domain)
		}
		delete(s.index, domain)
	}
	return nil
}

// Get returns the current pack for domain, or ErrNotFound if absent.
func (s *PackStore) Get(domain string) (*page.Pack, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pk, ok := s.index[domain]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *pk
	cp.Pages = append([]page.Page(nil), pk.Pages...)
	return &cp, nil
}

// Save inserts or overwrites the pack for domain.
func (s *PackStore) Save(domain string, pages []page.Page, packHash string, fetchedAt, expiresAt float64) error {
	pk := &page.Pack{
		Domain:    domain,
		Pages:     pages,
		PackHash:  packHash,
		FetchedAt: fetchedAt,
		ExpiresAt: expiresAt,
	}

	data, err := json.Marshal(pk)
	if err != nil {
		return errors.Wrap(err, "marshal pack")
	}
	if err := writeFileAtomic(s.dir, keyFile(s.dir, domain), data); err != nil {
		return errors.Wrap(err, "write pack")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.index[domain] = pk
	return nil
}

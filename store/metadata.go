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

// MetadataStore is the durable per-(domain, url) validator record. It
// has no TTL: rows survive pack expiry. Reads and writes are serialized
// by an in-process mutex over an index loaded from disk at startup, the
// same shape as aptutil's Storage.
type MetadataStore struct {
	dir string

	mu    sync.Mutex
	index map[string]*page.Metadata
}

func metaKey(domain, url string) string {
	return domain + "\x00" + url
}

// NewMetadataStore returns a store backed by dir. It does not touch the
// disk; dir is created on the first Upsert.
func NewMetadataStore(dir string) *MetadataStore {
	return &MetadataStore{
		dir:   dir,
		index: make(map[string]*page.Metadata),
	}
}

// Load populates the in-memory index from the files under dir. It must
// be called once before first use; an absent directory is not an error.
func (s *MetadataStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "read metadata dir")
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
		var m page.Metadata
		if err := json.Unmarshal(data, &m); err != nil {
			log.Warn("skipping corrupt metadata record", map[string]interface{}{
				"_path": p,
				"_err":  err.Error(),
			})
			continue
		}
		s.index[metaKey(m.Domain, m.URL)] = &m
	}
	return nil
}

// Get returns the stored metadata for (domain, url), or ErrNotFound if
// absent.
func (s *MetadataStore) Get(domain, url string) (*page.Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.index[metaKey(domain, url)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m
	return &cp, nil
}

// UpsertInput carries the fields of a metadata write. PackHash, ETag,
// LastModified and TextHash are nullable: an empty string means absent.
type UpsertInput struct {
	Domain        string
	URL           string
	PackHash      string
	ETag          string
	LastModified  string
	TextHash      string
	LastCheckedAt float64
}

// Upsert inserts or wholly replaces the row for (domain, url). There is
// no partial update.
func (s *MetadataStore) Upsert(in UpsertInput, now float64) error {
	m := &page.Metadata{
		Domain:        in.Domain,
		URL:           in.URL,
		PackHash:      in.PackHash,
		ETag:          in.ETag,
		LastModified:  in.LastModified,
		TextHash:      in.TextHash,
		LastCheckedAt: in.LastCheckedAt,
		UpdatedAt:     now,
	}

	data, err := json.Marshal(m)
	if err != nil {
		return errors.Wrap(err, "marshal metadata")
	}
	path := keyFile(s.dir, metaKey(in.Domain, in.URL))
	if err := writeFileAtomic(s.dir, path, data); err != nil {
		return errors.Wrap(err, "write metadata")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.index[metaKey(in.Domain, in.URL)] = m
	return nil
}

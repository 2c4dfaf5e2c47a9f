// Package coordinator implements PackCoordinator: the orchestration of
// cache-hit short-circuiting, single-flight rebuild, double-checked
// lookup, metadata refresh, conditional save and error aggregation
// described by the weekly-shared page-pack service.
package coordinator

import (
	"time"

	"github.com/cybozu-go/log"
	"github.com/pkg/errors"

	"github.com/weeklypack/pagepackd/page"
	"github.com/weeklypack/pagepackd/store"
)

// ErrLockTimeout is returned (as its message, in a FetchError) when a
// rebuilder could not acquire the domain lock in time, declared as a
// package-level sentinel the way cacher/urlmap.go declares
// ErrInvalidPrefix.
var ErrLockTimeout = errors.New("timed out waiting for domain rebuild lock")

// PageRequest is one page entry from the client's request, including
// any validator hints it already holds.
type PageRequest struct {
	URL            string
	ETag           string
	LastModified   string
	LastTextHash   string
	// LastChecked is accepted for forward compatibility and never
	// interpreted by the coordinator.
	LastChecked float64
}

// FetchError pairs a URL (or, for a lock timeout, the domain) with a
// human-readable message.
type FetchError struct {
	URL   string
	Error string
}

// Result is the outcome of one BuildOrFetchPack call.
type Result struct {
	CacheHit      bool
	Pages         []page.Page
	UnchangedURLs []string
	Errors        []FetchError
}

// Coordinator wires together the three durable collaborators and the
// fetch pipeline. It performs no internal parallelism across pages: one
// BuildOrFetchPack call fetches pages strictly in request order.
type Coordinator struct {
	Metadata *store.MetadataStore
	Packs    *store.PackStore
	Lock     *store.DomainLock

	LockTimeout      time.Duration
	LockPollInterval time.Duration

	// Now returns the current time; overridable in tests.
	Now func() time.Time
}

// New builds a Coordinator with the default lock bounds.
func New(metadata *store.MetadataStore, packs *store.PackStore, lock *store.DomainLock) *Coordinator {
	return &Coordinator{
		Metadata:         metadata,
		Packs:            packs,
		Lock:             lock,
		LockTimeout:      DefaultLockTimeout,
		LockPollInterval: DefaultLockPollInterval,
		Now:              time.Now,
	}
}

func (c *Coordinator) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// BuildOrFetchPack returns the live weekly pack for domain if one
// exists, otherwise rebuilds it by fetching pages, in order, with
// conditional requests driven by stored and client-supplied validators.
func (c *Coordinator) BuildOrFetchPack(domain string, pages []PageRequest, opts Options) (Result, error) {
	opts = NormalizeOptions(opts)
	nowTime := c.now()
	now := timestamp(nowTime)

	if err := c.Packs.Purge(now); err != nil {
		return Result{}, errors.Wrap(err, "purge expired packs")
	}

	if !opts.ForceRefresh {
		if cached, ok, err := c.cachedPack(domain); err != nil {
			return Result{}, err
		} else if ok {
			return Result{CacheHit: true, Pages: cached.Pages}, nil
		}
	}

	acquired, err := c.Lock.Acquire(domain, c.LockTimeout, c.LockPollInterval)
	if err != nil {
		return Result{}, errors.Wrap(err, "acquire domain lock")
	}
	if !acquired {
		return Result{
			Errors: []FetchError{{URL: domain, Error: ErrLockTimeout.Error()}},
		}, nil
	}
	defer func() {
		if err := c.Lock.Release(domain); err != nil {
			log.Error("failed to release domain lock", map[string]interface{}{
				"_domain": domain,
				"_err":    err.Error(),
			})
		}
	}()

	if !opts.ForceRefresh {
		if cached, ok, err := c.cachedPack(domain); err != nil {
			return Result{}, err
		} else if ok {
			return Result{CacheHit: true, Pages: cached.Pages}, nil
		}
	}

	return c.rebuild(domain, pages, opts, nowTime)
}

// cachedPack looks up the live pack for domain, translating
// store.ErrNotFound into a plain "absent" result; any other error from
// the store is fatal.
func (c *Coordinator) cachedPack(domain string) (*page.Pack, bool, error) {
	cached, err := c.Packs.Get(domain)
	if err == store.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "get pack")
	}
	return cached, true, nil
}

func timestamp(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

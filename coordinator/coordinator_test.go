package coordinator

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/weeklypack/pagepackd/store"
)

func newCoordinator(t *testing.T) *Coordinator {
	t.Helper()
	dir := t.TempDir()
	meta := store.NewMetadataStore(dir + "/metadata")
	packs := store.NewPackStore(dir + "/packs")
	lock := store.NewDomainLock(dir + "/locks")
	if err := meta.Load(); err != nil {
		t.Fatal(err)
	}
	if err := packs.Load(); err != nil {
		t.Fatal(err)
	}
	c := New(meta, packs, lock)
	c.LockTimeout = 300 * time.Millisecond
	c.LockPollInterval = 5 * time.Millisecond
	return c
}

func TestBuildOrFetchPackColdMiss(t *testing.T) {
	t.Parallel()

	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("ETag", `"v1"`)
		w.Write([]byte("<html><title>A</title><body>Hello  world</body></html>"))
	}))
	defer ts.Close()

	c := newCoordinator(t)
	res, err := c.BuildOrFetchPack("example.org", []PageRequest{{URL: ts.URL}}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if res.CacheHit {
		t.Error("cold request must not be a cache hit")
	}
	if len(res.Pages) != 1 {
		t.Fatalf("expected 1 page, got %d", len(res.Pages))
	}
	p := res.Pages[0]
	if p.Title != "A" {
		t.Errorf("Title = %q, want A", p.Title)
	}
	if p.NormalizedText != "Hello world" {
		t.Errorf("NormalizedText = %q", p.NormalizedText)
	}
	if p.ETag != `"v1"` {
		t.Errorf("ETag = %q", p.ETag)
	}
	if len(res.Errors) != 0 {
		t.Errorf("unexpected errors: %+v", res.Errors)
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Errorf("expected exactly one outbound GET, got %d", hits)
	}
}

func TestBuildOrFetchPackWarmHit(t *testing.T) {
	t.Parallel()

	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte("<html><body>Hello world</body></html>"))
	}))
	defer ts.Close()

	c := newCoordinator(t)
	pages := []PageRequest{{URL: ts.URL}}

	first, err := c.BuildOrFetchPack("example.org", pages, Options{})
	if err != nil {
		t.Fatal(err)
	}

	second, err := c.BuildOrFetchPack("example.org", pages, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if !second.CacheHit {
		t.Error("expected cache_hit=true on the second call")
	}
	if len(second.Pages) != len(first.Pages) || second.Pages[0].TextHash != first.Pages[0].TextHash {
		t.Errorf("second.Pages = %+v, want same content as first.Pages = %+v", second.Pages, first.Pages)
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Errorf("expected origin to be called exactly once, got %d", hits)
	}
}

func TestBuildOrFetchPackForceRefreshWithoutClientPack(t *testing.T) {
	t.Parallel()

	var reqs int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&reqs, 1)
		w.Header().Set("ETag", `"v1"`)
		if n > 1 && r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Write([]byte("<html><body>Hello world</body></html>"))
	}))
	defer ts.Close()

	c := newCoordinator(t)
	pages := []PageRequest{{URL: ts.URL}}

	if _, err := c.BuildOrFetchPack("example.org", pages, Options{}); err != nil {
		t.Fatal(err)
	}

	res, err := c.BuildOrFetchPack("example.org", pages, Options{ForceRefresh: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.CacheHit {
		t.Error("force_refresh must bypass the cache-hit short-circuit")
	}
	// The 304 confirms unchanged, and the follow-up unconditional fetch
	// (needed because the client has no pack) confirms it again via a
	// matching text_hash: the URL legitimately appears twice.
	if len(res.UnchangedURLs) != 2 || res.UnchangedURLs[0] != ts.URL || res.UnchangedURLs[1] != ts.URL {
		t.Errorf("UnchangedURLs = %v", res.UnchangedURLs)
	}
	if len(res.Pages) != 1 {
		t.Fatalf("expected an unconditional re-fetch to still populate changed_pages, got %+v", res.Pages)
	}
}

func TestBuildOrFetchPackClientHasPackSkipsRefetch(t *testing.T) {
	t.Parallel()

	var reqs int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&reqs, 1)
		w.Header().Set("ETag", `"v1"`)
		if n > 1 {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Write([]byte("<html><body>Hello world</body></html>"))
	}))
	defer ts.Close()

	c := newCoordinator(t)
	pages := []PageRequest{{URL: ts.URL}}

	if _, err := c.BuildOrFetchPack("example.org", pages, Options{}); err != nil {
		t.Fatal(err)
	}

	res, err := c.BuildOrFetchPack("example.org", pages, Options{ForceRefresh: true, ClientHasPack: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.UnchangedURLs) != 1 {
		t.Errorf("UnchangedURLs = %v, want 1 entry", res.UnchangedURLs)
	}
	if len(res.Pages) != 0 {
		t.Errorf("client_has_pack must skip the unconditional re-fetch, got %+v", res.Pages)
	}
	if atomic.LoadInt32(&reqs) != 2 {
		t.Errorf("expected exactly 2 outbound GETs (initial + conditional), got %d", reqs)
	}
}

func TestBuildOrFetchPackPartialFailure(t *testing.T) {
	t.Parallel()

	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body>fine</body></html>"))
	}))
	defer ok.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	c := newCoordinator(t)
	res, err := c.BuildOrFetchPack("example.org", []PageRequest{{URL: ok.URL}, {URL: bad.URL}}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Pages) != 1 {
		t.Fatalf("expected 1 successful page, got %+v", res.Pages)
	}
	if len(res.Errors) != 1 || res.Errors[0].URL != bad.URL || res.Errors[0].Error != "HTTP 500" {
		t.Errorf("Errors = %+v", res.Errors)
	}
}

func TestBuildOrFetchPackLockTimeout(t *testing.T) {
	t.Parallel()

	c := newCoordinator(t)
	ok, err := c.Lock.Acquire("example.org", time.Second, 5*time.Millisecond)
	if err != nil || !ok {
		t.Fatalf("pre-acquire: ok=%v err=%v", ok, err)
	}
	defer c.Lock.Release("example.org")

	res, err := c.BuildOrFetchPack("example.org", []PageRequest{{URL: "http://example.org/a"}}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if res.CacheHit {
		t.Error("lock timeout must not report a cache hit")
	}
	if len(res.Errors) != 1 || res.Errors[0].URL != "example.org" || res.Errors[0].Error != ErrLockTimeout.Error() {
		t.Errorf("Errors = %+v", res.Errors)
	}
}

func TestBuildOrFetchPackOrderPreservation(t *testing.T) {
	t.Parallel()

	var urls []string
	servers := make([]*httptest.Server, 5)
	for i := range servers {
		i := i
		servers[i] = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(fmt.Sprintf("<html><body>page %d</body></html>", i)))
		}))
		defer servers[i].Close()
	}

	var reqs []PageRequest
	for _, s := range servers {
		urls = append(urls, s.URL)
		reqs = append(reqs, PageRequest{URL: s.URL})
	}

	c := newCoordinator(t)
	res, err := c.BuildOrFetchPack("example.org", reqs, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Pages) != len(urls) {
		t.Fatalf("expected %d pages, got %d", len(urls), len(res.Pages))
	}
	for i, p := range res.Pages {
		if p.URL != urls[i] {
			t.Errorf("Pages[%d].URL = %q, want %q (order must be preserved)", i, p.URL, urls[i])
		}
	}
}

func TestNextSundayWeeklyHorizon(t *testing.T) {
	t.Parallel()

	for i := 0; i < 8; i++ {
		now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)
		next := NextSunday(now)
		if next.Weekday() != time.Sunday {
			t.Errorf("NextSunday(%v).Weekday() = %v, want Sunday", now, next.Weekday())
		}
		if next.Hour() != 23 || next.Minute() != 59 || next.Second() != 59 {
			t.Errorf("NextSunday(%v) time-of-day = %02d:%02d:%02d, want 23:59:59", now, next.Hour(), next.Minute(), next.Second())
		}
		if !next.After(now) {
			t.Errorf("NextSunday(%v) = %v is not strictly after now", now, next)
		}
	}
}

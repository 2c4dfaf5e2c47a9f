package api

import (
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/cybozu-go/log"

	"github.com/weeklypack/pagepackd/coordinator"
)

// Handler serves POST /scrape. Grounded on aptutil's cacher.cacheHandler:
// method-switch, one structured access-log line per request, JSON
// error bodies instead of plaintext http.Error.
type Handler struct {
	Coordinator *coordinator.Coordinator
}

func (h Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	accepted := time.Now()

	status := h.serve(w, r)

	fields := map[string]interface{}{
		log.FnType:           "access",
		log.FnResponseTime:   time.Since(accepted).Seconds(),
		log.FnProtocol:       r.Proto,
		log.FnHTTPStatusCode: status,
		log.FnHTTPMethod:     r.Method,
		log.FnURL:            r.RequestURI,
		log.FnHTTPHost:       r.Host,
	}
	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		fields[log.FnRemoteAddress] = ip
	}
	log.Info("HTTP", fields)
}

func (h Handler) serve(w http.ResponseWriter, r *http.Request) int {
	if r.URL.Path != "/scrape" {
		return writeError(w, http.StatusNotFound, "not found")
	}
	switch r.Method {
	case http.MethodPost:
		// handled below
	default:
		return writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}

	var req scrapeRequest
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil {
		return writeError(w, http.StatusBadRequest, "malformed request body")
	}
	if req.Domain == "" {
		return writeError(w, http.StatusBadRequest, "domain is required")
	}

	pages := make([]coordinator.PageRequest, len(req.Pages))
	for i, p := range req.Pages {
		pages[i] = coordinator.PageRequest{
			URL:          p.URL,
			ETag:         p.ETag,
			LastModified: p.LastModified,
			LastTextHash: p.LastTextHash,
			LastChecked:  p.LastChecked,
		}
	}
	opts := decodeOptions(req.Options)

	result, err := h.Coordinator.BuildOrFetchPack(req.Domain, pages, opts)
	if err != nil {
		log.Error("BuildOrFetchPack failed", map[string]interface{}{
			"_domain": req.Domain,
			"_err":    err.Error(),
		})
		return writeError(w, http.StatusInternalServerError, "internal error")
	}

	resp := toResponse(req.Domain, result)
	return writeJSON(w, http.StatusOK, resp)
}

func toResponse(domain string, result coordinator.Result) scrapeResponse {
	changed := make([]changedPage, len(result.Pages))
	for i, p := range result.Pages {
		changed[i] = changedPage{
			URL:            p.URL,
			Title:          p.Title,
			NormalizedText: p.NormalizedText,
			TextHash:       p.TextHash,
			ETag:           p.ETag,
			LastModified:   p.LastModified,
			FetchedAt:      p.FetchedAt,
		}
	}

	unchanged := result.UnchangedURLs
	if unchanged == nil {
		unchanged = []string{}
	}

	errs := make([]errorEntry, len(result.Errors))
	for i, e := range result.Errors {
		errs[i] = errorEntry{URL: e.URL, Error: e.Error}
	}

	return scrapeResponse{
		Domain:        domain,
		CheckedAt:     float64(time.Now().UnixNano()) / 1e9,
		CacheHit:      result.CacheHit,
		UnchangedURLs: unchanged,
		ChangedPages:  changed,
		Errors:        errs,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) int {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
	return status
}

func writeError(w http.ResponseWriter, status int, message string) int {
	return writeJSON(w, status, map[string]string{"error": message})
}

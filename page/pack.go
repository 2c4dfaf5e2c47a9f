package page

import (
	"encoding/json"
	"sort"
)

// Page is one fetched-and-normalized page held inside a Pack.
type Page struct {
	URL            string  `json:"url"`
	Title          string  `json:"title"`
	NormalizedText string  `json:"normalized_text"`
	TextHash       string  `json:"text_hash"`
	ETag           string  `json:"etag,omitempty"`
	LastModified   string  `json:"last_modified,omitempty"`
	FetchedAt      float64 `json:"fetched_at"`
}

// Pack is the weekly-shared snapshot for one domain.
type Pack struct {
	Domain    string  `json:"domain"`
	Pages     []Page  `json:"pages"`
	PackHash  string  `json:"pack_hash"`
	FetchedAt float64 `json:"fetched_at"`
	ExpiresAt float64 `json:"expires_at"`
}

// stableRow is the (url, text_hash) pair the pack hash is computed over.
// Everything else about a Page -- fetch time, headers, title -- is
// deliberately excluded so two packs built from identical content hash
// identically regardless of ordering or timing.
type stableRow struct {
	URL      string `json:"url"`
	TextHash string `json:"text_hash"`
}

// Hash computes the pack fingerprint: SHA-256 over the JSON encoding of
// the sorted multiset of (url, text_hash) pairs in pages.
func Hash(pages []Page) string {
	rows := make([]stableRow, len(pages))
	for i, p := range pages {
		rows[i] = stableRow{URL: p.URL, TextHash: p.TextHash}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].URL != rows[j].URL {
			return rows[i].URL < rows[j].URL
		}
		return rows[i].TextHash < rows[j].TextHash
	})
	// json.Marshal cannot fail for this concrete, non-cyclic type.
	data, _ := json.Marshal(rows)
	return Sha256Hex(data)
}

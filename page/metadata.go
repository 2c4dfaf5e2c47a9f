// Package page defines the data model shared by the fetch, store and
// coordinator packages: per-URL validator metadata, and the weekly pack
// and its pages.
package page

// Metadata is the durable per-(domain, url) record of the last HTTP
// validators and content hash observed for a page. It has no TTL: it
// survives pack expiry so the next rebuild can still send conditional
// headers and possibly receive a 304.
type Metadata struct {
	Domain        string  `json:"domain"`
	URL           string  `json:"url"`
	PackHash      string  `json:"pack_hash,omitempty"`
	ETag          string  `json:"etag,omitempty"`
	LastModified  string  `json:"last_modified,omitempty"`
	TextHash      string  `json:"text_hash,omitempty"`
	LastCheckedAt float64 `json:"last_checked_at"`
	UpdatedAt     float64 `json:"updated_at"`
}

// Validators is the merged set of conditional-request fields used to
// build a request and to compare against freshly fetched content.
type Validators struct {
	ETag         string
	LastModified string
	TextHash     string
}

// Merge returns the validators to use for a fetch: the client-supplied
// hint wins field by field, falling back to stored metadata.
func Merge(meta *Metadata, clientETag, clientLastModified, clientTextHash string) Validators {
	v := Validators{
		ETag:         clientETag,
		LastModified: clientLastModified,
		TextHash:     clientTextHash,
	}
	if meta == nil {
		return v
	}
	if v.ETag == "" {
		v.ETag = meta.ETag
	}
	if v.LastModified == "" {
		v.LastModified = meta.LastModified
	}
	if v.TextHash == "" {
		v.TextHash = meta.TextHash
	}
	return v
}

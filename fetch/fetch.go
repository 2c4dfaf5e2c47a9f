// Package fetch issues conditional HTTP GETs against origin pages and
// classifies the outcome, following the transport setup in
// github.com/cybozu-go/aptutil's mirror package.
package fetch

import (
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// NetworkError is returned for timeouts, DNS failures, connection
// resets, and any other failure that never produced an HTTP response.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %s", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// StatusError is returned when the origin responds with a status code
// of 400 or above.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d", e.Code)
}

// Outcome is the classified result of one fetch attempt.
type Outcome struct {
	// NotModified is true when the origin answered 304.
	NotModified bool

	// BodyText holds the raw response body for a 2xx response.
	BodyText string

	// ETag and LastModified are the validators the origin sent back,
	// if any, for a 2xx response.
	ETag         string
	LastModified string
}

// Validators are the conditional headers to send with a GET.
type Validators struct {
	ETag         string
	LastModified string
}

// Fetcher issues one conditional GET per call. Its *http.Client is
// shared across a single BuildOrFetchPack rebuild, mirroring the
// per-Mirror client built in aptutil's mirror.NewMirror.
type Fetcher struct {
	client *http.Client
}

// New builds a Fetcher whose requests are bounded by timeout.
func New(timeout time.Duration) *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
			},
			Timeout: timeout,
		},
	}
}

// Get performs one conditional GET against rawURL. The returned error is
// either a *NetworkError or a *StatusError; a nil error with
// Outcome.NotModified true indicates a confirmed 304.
func (f *Fetcher) Get(rawURL string, v Validators) (Outcome, error) {
	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return Outcome{}, &NetworkError{URL: rawURL, Err: err}
	}
	if v.ETag != "" {
		req.Header.Set("If-None-Match", v.ETag)
	}
	if v.LastModified != "" {
		req.Header.Set("If-Modified-Since", v.LastModified)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return Outcome{}, &NetworkError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return Outcome{NotModified: true}, nil
	}
	if resp.StatusCode >= 400 {
		return Outcome{}, &StatusError{URL: rawURL, Code: resp.StatusCode}
	}

	body, err := readAll(resp)
	if err != nil {
		return Outcome{}, &NetworkError{URL: rawURL, Err: errors.Wrap(err, "read body")}
	}

	return Outcome{
		BodyText:     string(body),
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
	}, nil
}

package fetch

import (
	"io"
	"net/http"
)

// readAll reads the full response body. Kept as its own function so the
// error site is distinguishable from connection-level failures.
func readAll(resp *http.Response) ([]byte, error) {
	return io.ReadAll(resp.Body)
}

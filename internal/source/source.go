// Package source provides the fetch side of the pipeline: transports that
// retrieve a source's raw payload as a single byte stream. Fetchers never
// parse; they hand the payload to the parser layer untouched.
package source

import (
	"fmt"
	"net/http"

	"github.com/seaward/sluice/internal/core"
)

// ErrorKind classifies fetch failures so callers can tell transport trouble
// apart from missing or forbidden payloads.
type ErrorKind string

const (
	KindNetwork    ErrorKind = "network"
	KindPermission ErrorKind = "permission"
	KindNotFound   ErrorKind = "notfound"
)

// FetchError is the failure type every fetcher returns. Kind carries the
// classification, Target names the URL or path, and Status holds the HTTP
// status code when a server answered (zero otherwise).
type FetchError struct {
	Kind   ErrorKind
	Target string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %s: %v", e.Target, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Factory returns the fetcher factory the operation layer consumes. The
// client backs http sources; nil selects a default with a request timeout.
func Factory(client *http.Client) core.FetcherFactory {
	return func(spec core.FetchSpec) (core.Fetcher, error) {
		switch spec.Type {
		case "http":
			return newHTTPFetcher(client, spec.URL)
		case "file":
			return newFileFetcher(spec.Path)
		case "directory":
			return newDirectoryFetcher(spec.Path, spec.Glob)
		case "inline":
			return &inlineFetcher{payload: spec.Inline}, nil
		default:
			return nil, fmt.Errorf("unknown fetcher type %q", spec.Type)
		}
	}
}

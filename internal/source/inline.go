package source

import (
	"context"
	"io"
	"strings"
)

// inlineFetcher serves a payload declared directly in the source
// configuration. Useful for fixed seed data and smoke tests.
type inlineFetcher struct {
	payload string
}

func (f *inlineFetcher) Fetch(ctx context.Context) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(f.payload)), nil
}

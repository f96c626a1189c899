package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
)

type fileFetcher struct {
	path string
}

func newFileFetcher(path string) (*fileFetcher, error) {
	if path == "" {
		return nil, fmt.Errorf("file source needs a path")
	}
	return &fileFetcher{path: path}, nil
}

func (f *fileFetcher) Fetch(ctx context.Context) (io.ReadCloser, error) {
	fh, err := os.Open(f.path)
	if err != nil {
		return nil, classifyFSError(f.path, err)
	}
	return fh, nil
}

// classifyFSError maps filesystem failures onto fetch error kinds.
func classifyFSError(target string, err error) *FetchError {
	kind := KindNetwork
	switch {
	case errors.Is(err, fs.ErrNotExist):
		kind = KindNotFound
	case errors.Is(err, fs.ErrPermission):
		kind = KindPermission
	}
	return &FetchError{Kind: kind, Target: target, Err: err}
}

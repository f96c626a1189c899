package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

type directoryFetcher struct {
	root string
	glob string
}

func newDirectoryFetcher(root, glob string) (*directoryFetcher, error) {
	if root == "" {
		return nil, fmt.Errorf("directory source needs a path")
	}
	if glob == "" {
		glob = "*"
	}
	if !doublestar.ValidatePattern(glob) {
		return nil, fmt.Errorf("invalid glob pattern %q", glob)
	}
	return &directoryFetcher{root: root, glob: glob}, nil
}

// Fetch concatenates every file matching the glob, in name order, into one
// payload. A newline separates adjacent files so a missing trailing newline
// cannot merge records across file boundaries.
func (f *directoryFetcher) Fetch(ctx context.Context) (io.ReadCloser, error) {
	if _, err := os.Stat(f.root); err != nil {
		return nil, classifyFSError(f.root, err)
	}

	matches, err := doublestar.Glob(os.DirFS(f.root), f.glob)
	if err != nil {
		return nil, &FetchError{Kind: KindNetwork, Target: f.root, Err: err}
	}
	sort.Strings(matches)

	payload := &multiFile{}
	for _, rel := range matches {
		full := filepath.Join(f.root, rel)
		info, err := os.Stat(full)
		if err != nil {
			payload.Close()
			return nil, classifyFSError(full, err)
		}
		if info.IsDir() {
			continue
		}
		fh, err := os.Open(full)
		if err != nil {
			payload.Close()
			return nil, classifyFSError(full, err)
		}
		payload.add(fh)
	}
	if len(payload.files) == 0 {
		return nil, &FetchError{
			Kind:   KindNotFound,
			Target: f.root,
			Err:    fmt.Errorf("no files match %q", f.glob),
		}
	}
	payload.seal()
	return payload, nil
}

// multiFile streams a set of files as one reader and closes them together.
type multiFile struct {
	io.Reader
	files []*os.File
}

func (m *multiFile) add(fh *os.File) {
	m.files = append(m.files, fh)
}

func (m *multiFile) seal() {
	readers := make([]io.Reader, 0, len(m.files)*2-1)
	for i, fh := range m.files {
		if i > 0 {
			readers = append(readers, strings.NewReader("\n"))
		}
		readers = append(readers, fh)
	}
	m.Reader = io.MultiReader(readers...)
}

func (m *multiFile) Close() error {
	var first error
	for _, fh := range m.files {
		if err := fh.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

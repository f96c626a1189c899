package source

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seaward/sluice/internal/core"
)

func fetchAll(t *testing.T, f core.Fetcher) string {
	t.Helper()
	body, err := f.Fetch(context.Background())
	require.NoError(t, err)
	defer body.Close()

	got, err := io.ReadAll(body)
	require.NoError(t, err)
	return string(got)
}

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func TestFileFetcher(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.csv")
	require.NoError(t, os.WriteFile(path, []byte("guid,title\n1,hello"), 0o644))

	f, err := newFileFetcher(path)
	require.NoError(t, err)
	assert.Equal(t, "guid,title\n1,hello", fetchAll(t, f))
}

func TestFileFetcherMissing(t *testing.T) {
	f, err := newFileFetcher(filepath.Join(t.TempDir(), "absent.csv"))
	require.NoError(t, err)

	_, err = f.Fetch(context.Background())
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, KindNotFound, fe.Kind)
}

func TestDirectoryFetcherConcatenatesInNameOrder(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"b.txt": "beta",
		"a.txt": "alpha",
	})

	f, err := newDirectoryFetcher(dir, "")
	require.NoError(t, err)
	assert.Equal(t, "alpha\nbeta", fetchAll(t, f))
}

func TestDirectoryFetcherGlob(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"data1.csv":    "one",
		"data2.csv":    "two",
		"notes.md":     "skip me",
		"sub/deep.csv": "three",
	})

	t.Run("top level", func(t *testing.T) {
		f, err := newDirectoryFetcher(dir, "*.csv")
		require.NoError(t, err)
		assert.Equal(t, "one\ntwo", fetchAll(t, f))
	})

	t.Run("recursive", func(t *testing.T) {
		f, err := newDirectoryFetcher(dir, "**/*.csv")
		require.NoError(t, err)
		assert.Equal(t, "one\ntwo\nthree", fetchAll(t, f))
	})
}

func TestDirectoryFetcherNoMatches(t *testing.T) {
	f, err := newDirectoryFetcher(t.TempDir(), "*.csv")
	require.NoError(t, err)

	_, err = f.Fetch(context.Background())
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, KindNotFound, fe.Kind)
}

func TestDirectoryFetcherMissingRoot(t *testing.T) {
	f, err := newDirectoryFetcher(filepath.Join(t.TempDir(), "absent"), "*")
	require.NoError(t, err)

	_, err = f.Fetch(context.Background())
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, KindNotFound, fe.Kind)
}

func TestDirectoryFetcherRejectsBadGlob(t *testing.T) {
	_, err := newDirectoryFetcher(t.TempDir(), "[")
	require.Error(t, err)
}

func TestFactory(t *testing.T) {
	factory := Factory(nil)

	t.Run("inline", func(t *testing.T) {
		f, err := factory(core.FetchSpec{Type: "inline", Inline: "a,b\n1,2"})
		require.NoError(t, err)
		assert.Equal(t, "a,b\n1,2", fetchAll(t, f))
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := factory(core.FetchSpec{Type: "carrier-pigeon"})
		require.Error(t, err)
	})

	t.Run("file needs path", func(t *testing.T) {
		_, err := factory(core.FetchSpec{Type: "file"})
		require.Error(t, err)
	})
}

package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactory(t *testing.T) {
	factory := Factory()

	for _, format := range []string{"csv", "feed", "opml", "jsonl"} {
		p, err := factory(format, nil)
		require.NoError(t, err, format)
		require.NotNil(t, p, format)
	}

	p, err := factory("htmllist", map[string]string{"selector": "li"})
	require.NoError(t, err)
	require.NotNil(t, p)

	_, err = factory("pigeon-post", nil)
	assert.Error(t, err)
}

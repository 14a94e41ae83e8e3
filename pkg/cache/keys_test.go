package cache_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicpulse/smartcache/pkg/cache"
)

func TestKeyBuilder_Build(t *testing.T) {
	kb := cache.NewKeyBuilder("sentiment")

	assert.Equal(t, "sentiment:politician:42", kb.Build("politician", "42"))
	assert.Equal(t, "sentiment:overview", kb.Build("", "overview"))
	assert.Equal(t, "sentiment", kb.Build())

	bare := cache.NewKeyBuilder("")
	assert.Equal(t, "a:b", bare.Build("a", "b"))
}

func TestKeyBuilder_BuildWithParams(t *testing.T) {
	kb := cache.NewKeyBuilder("sentiment")

	a := kb.BuildWithParams("query", map[string]interface{}{"region": "midwest", "days": 30})
	b := kb.BuildWithParams("query", map[string]interface{}{"days": 30, "region": "midwest"})
	assert.Equal(t, a, b, "parameter order must not change the key")

	c := kb.BuildWithParams("query", map[string]interface{}{"region": "midwest", "days": 7})
	assert.NotEqual(t, a, c)

	parts := strings.Split(a, ":")
	require.Len(t, parts, 3)
	assert.Equal(t, "sentiment", parts[0])
	assert.Equal(t, "query", parts[1])
	assert.Len(t, parts[2], 16)
}

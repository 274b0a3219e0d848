package serialscope

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatternCacheReusesCompiled(t *testing.T) {
	pc := NewPatternCache(DefaultPatternCacheConfig())

	first, err := pc.CompiledFor("ERROR.*timeout", true)
	require.NoError(t, err)

	second, err := pc.CompiledFor("ERROR.*timeout", true)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, pc.CompileCount(), "cache hit must not recompile")
}

func TestPatternCacheCaseSensitivityIsPartOfKey(t *testing.T) {
	pc := NewPatternCache(DefaultPatternCacheConfig())

	_, err := pc.CompiledFor("status", true)
	require.NoError(t, err)
	_, err = pc.CompiledFor("status", false)
	require.NoError(t, err)

	assert.Equal(t, 2, pc.CompileCount())
	assert.Equal(t, 2, pc.Size())
}

func TestPatternCacheInvalidPattern(t *testing.T) {
	pc := NewPatternCache(DefaultPatternCacheConfig())

	_, err := pc.CompiledFor("[unclosed", true)
	assert.ErrorIs(t, err, ErrPatternInvalid)

	// A malformed pattern degrades to non-match, never an error on the
	// ingestion path
	assert.False(t, pc.Matches("any text", "[unclosed", true))
}

func TestPatternCacheMatches(t *testing.T) {
	pc := NewPatternCache(DefaultPatternCacheConfig())

	assert.True(t, pc.Matches("TEMP=23.5 OK", `TEMP=\d+`, true))
	assert.False(t, pc.Matches("temp=23.5 ok", `TEMP=\d+`, true))
	assert.True(t, pc.Matches("temp=23.5 ok", `TEMP=\d+`, false))
}

func TestPatternCacheBoundedByEviction(t *testing.T) {
	cfg := DefaultPatternCacheConfig()
	pc := NewPatternCache(cfg)

	for i := 0; i < cfg.MaxSize+1; i++ {
		_, err := pc.CompiledFor(fmt.Sprintf("pattern-%d", i), true)
		require.NoError(t, err)
	}

	assert.LessOrEqual(t, pc.Size(), cfg.MaxSize)
	assert.Equal(t, cfg.MaxSize+1, pc.CompileCount())
}

func TestPatternCacheEvictsOldestHalf(t *testing.T) {
	pc := NewPatternCache(PatternCacheConfig{MaxSize: 4})

	for i := 0; i < 4; i++ {
		_, err := pc.CompiledFor(fmt.Sprintf("pattern-%d", i), true)
		require.NoError(t, err)
	}
	require.Equal(t, 4, pc.Size())

	// The fifth insert evicts the two least recently used entries
	_, err := pc.CompiledFor("pattern-4", true)
	require.NoError(t, err)
	assert.Equal(t, 3, pc.Size())

	// Evicted patterns recompile on next use
	before := pc.CompileCount()
	_, err = pc.CompiledFor("pattern-0", true)
	require.NoError(t, err)
	assert.Equal(t, before+1, pc.CompileCount())
}

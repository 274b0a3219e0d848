package serialscope

import (
	"regexp"
	"sort"
	"sync"
	"time"
)

// PatternCacheConfig bounds the cache and each match evaluation.
// The defaults are empirically tuned, not protocol invariants, so they
// stay configurable.
type PatternCacheConfig struct {
	MaxSize      int
	MatchTimeout time.Duration
}

// DefaultPatternCacheConfig returns the default cache bounds
func DefaultPatternCacheConfig() PatternCacheConfig {
	return PatternCacheConfig{
		MaxSize:      50,
		MatchTimeout: 100 * time.Millisecond,
	}
}

// CompiledPattern is a cache entry: the compiled matcher plus the
// last-used marker driving eviction. Callers get read-only access
// during a match call; the cache retains ownership.
type CompiledPattern struct {
	Source        string
	CaseSensitive bool
	re            *regexp.Regexp
	lastUsed      time.Time
}

// PatternCache compiles and caches match expressions. It sits on the hot
// ingestion path for display filtering, so lookups are cheap and
// eviction removes roughly the oldest half at once rather than one entry
// at a time, avoiding thrash under a stream of distinct one-off patterns.
type PatternCache struct {
	mu       sync.Mutex
	cfg      PatternCacheConfig
	entries  map[string]*CompiledPattern
	compiles int
}

// NewPatternCache creates a pattern cache with the given bounds
func NewPatternCache(cfg PatternCacheConfig) *PatternCache {
	if cfg.MaxSize < 2 {
		cfg.MaxSize = 2
	}
	if cfg.MatchTimeout <= 0 {
		cfg.MatchTimeout = 100 * time.Millisecond
	}
	return &PatternCache{
		cfg:     cfg,
		entries: make(map[string]*CompiledPattern),
	}
}

// cacheKey builds the (pattern, case-sensitivity) key
func cacheKey(pattern string, caseSensitive bool) string {
	if caseSensitive {
		return "cs:" + pattern
	}
	return "ci:" + pattern
}

// CompiledFor returns the compiled matcher for a pattern, compiling and
// caching it on first use.
func (pc *PatternCache) CompiledFor(pattern string, caseSensitive bool) (*CompiledPattern, error) {
	key := cacheKey(pattern, caseSensitive)

	pc.mu.Lock()
	defer pc.mu.Unlock()

	if entry, ok := pc.entries[key]; ok {
		entry.lastUsed = time.Now()
		return entry, nil
	}

	source := pattern
	if !caseSensitive {
		source = "(?i)" + pattern
	}
	re, err := regexp.Compile(source)
	if err != nil {
		return nil, ErrPatternInvalid
	}
	pc.compiles++

	if len(pc.entries) >= pc.cfg.MaxSize {
		pc.evictOldestHalf()
	}

	entry := &CompiledPattern{
		Source:        pattern,
		CaseSensitive: caseSensitive,
		re:            re,
		lastUsed:      time.Now(),
	}
	pc.entries[key] = entry
	return entry, nil
}

// Matches reports whether text matches the pattern. Compilation failures
// and evaluation timeouts both degrade to a non-match so a malformed or
// pathological pattern never stalls ingestion.
func (pc *PatternCache) Matches(text, pattern string, caseSensitive bool) bool {
	entry, err := pc.CompiledFor(pattern, caseSensitive)
	if err != nil {
		return false
	}

	resultCh := make(chan bool, 1)
	go func() {
		resultCh <- entry.re.MatchString(text)
	}()

	timer := time.NewTimer(pc.cfg.MatchTimeout)
	defer timer.Stop()

	select {
	case matched := <-resultCh:
		return matched
	case <-timer.C:
		return false
	}
}

// Size returns the current number of cached patterns
func (pc *PatternCache) Size() int {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return len(pc.entries)
}

// CompileCount returns how many patterns have been compiled since
// creation. Cache hits do not increment it.
func (pc *PatternCache) CompileCount() int {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.compiles
}

// evictOldestHalf drops the least recently used half of the cache.
// Caller must hold pc.mu.
func (pc *PatternCache) evictOldestHalf() {
	type aged struct {
		key      string
		lastUsed time.Time
	}
	all := make([]aged, 0, len(pc.entries))
	for key, entry := range pc.entries {
		all = append(all, aged{key: key, lastUsed: entry.lastUsed})
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].lastUsed.Before(all[j].lastUsed)
	})

	for _, victim := range all[:len(all)/2] {
		delete(pc.entries, victim.key)
	}
}

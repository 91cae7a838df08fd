// Package cache implements the persistent, differential per-symbol price
// cache spec §4.3 describes: one gob+gzip file per symbol, merged on
// write, with the original's "fall back to Date>=from" read semantics.
package cache

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/toshi0771/stock-screener-jp/internal/model"
)

// Cache is a directory of per-symbol gob+gzip files.
type Cache struct {
	dir string

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	hits   int64
	misses int64
}

// New returns a Cache rooted at dir, creating it if necessary.
func New(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Cache{dir: dir, locks: make(map[string]*sync.Mutex)}, nil
}

func (c *Cache) pathFor(symbolCode string) string {
	return filepath.Join(c.dir, symbolCode+".cache")
}

// lockFor returns the per-symbol mutex, serializing concurrent Put calls
// for the same symbol without taking a lock over the whole directory.
func (c *Cache) lockFor(symbolCode string) *sync.Mutex {
	c.locksMu.Lock()
	defer c.locksMu.Unlock()
	l, ok := c.locks[symbolCode]
	if !ok {
		l = &sync.Mutex{}
		c.locks[symbolCode] = l
	}
	return l
}

func (c *Cache) load(symbolCode string) (model.CacheEntry, error) {
	f, err := os.Open(c.pathFor(symbolCode))
	if err != nil {
		return model.CacheEntry{}, err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return model.CacheEntry{}, err
	}
	defer gz.Close()

	var entry model.CacheEntry
	if err := gob.NewDecoder(gz).Decode(&entry); err != nil {
		return model.CacheEntry{}, err
	}
	return entry, nil
}

// Get returns the cached series for symbolCode restricted to [from, to], or
// ok=false on a cache miss. A miss occurs on decode failure, on staleness
// (today - entry.LastDate > maxAgeDays), or when neither the exact-range
// filter nor the from-only fallback filter yields any bars — the fallback
// exists because `to` often lands on a non-trading day the cache never
// observed a bar for.
func (c *Cache) Get(symbolCode string, from, to time.Time, maxAgeDays int) (model.BarSeries, bool) {
	entry, err := c.load(symbolCode)
	if err != nil {
		atomic.AddInt64(&c.misses, 1)
		return model.BarSeries{}, false
	}

	if time.Since(entry.LastDate) > time.Duration(maxAgeDays)*24*time.Hour {
		atomic.AddInt64(&c.misses, 1)
		return model.BarSeries{}, false
	}

	exact := filterBars(entry.Series.Bars, func(b model.Bar) bool {
		return !b.Date.Before(from) && !b.Date.After(to)
	})
	if len(exact) > 0 {
		atomic.AddInt64(&c.hits, 1)
		return model.BarSeries{Symbol: entry.Series.Symbol, Bars: exact}, true
	}

	fromOnly := filterBars(entry.Series.Bars, func(b model.Bar) bool {
		return !b.Date.Before(from)
	})
	if len(fromOnly) > 0 {
		atomic.AddInt64(&c.hits, 1)
		return model.BarSeries{Symbol: entry.Series.Symbol, Bars: fromOnly}, true
	}

	atomic.AddInt64(&c.misses, 1)
	return model.BarSeries{}, false
}

func filterBars(bars []model.Bar, keep func(model.Bar) bool) []model.Bar {
	var out []model.Bar
	for _, b := range bars {
		if keep(b) {
			out = append(out, b)
		}
	}
	return out
}

// Put differentially merges series into the existing cache entry for its
// symbol: load what's there, concatenate, dedupe on Date keeping the last
// write, sort ascending, recompute LastDate, and atomically replace the
// file. A failure to write leaves the previous entry untouched.
func (c *Cache) Put(series model.BarSeries) error {
	code := series.Symbol.Code
	lock := c.lockFor(code)
	lock.Lock()
	defer lock.Unlock()

	merged := series.Bars
	if existing, err := c.load(code); err == nil {
		merged = append(append([]model.Bar{}, existing.Series.Bars...), series.Bars...)
	}

	byDate := make(map[time.Time]model.Bar, len(merged))
	for _, b := range merged {
		byDate[b.Date] = b // last write (later in slice) wins
	}
	deduped := make([]model.Bar, 0, len(byDate))
	for _, b := range byDate {
		deduped = append(deduped, b)
	}
	sort.Slice(deduped, func(i, j int) bool { return deduped[i].Date.Before(deduped[j].Date) })

	entry := model.CacheEntry{
		Series:   model.BarSeries{Symbol: series.Symbol, Bars: deduped},
		LastDate: deduped[len(deduped)-1].Date,
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if err := gob.NewEncoder(gz).Encode(entry); err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("close gzip writer: %w", err)
	}

	tmp, err := os.CreateTemp(c.dir, code+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp cache file: %w", err)
	}
	if err := os.Rename(tmpName, c.pathFor(code)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp cache file: %w", err)
	}
	return nil
}

// Stats reports aggregate cache usage.
type Stats struct {
	Files   int
	Bytes   int64
	Hits    int64
	Misses  int64
	HitRate float64
}

// Stats walks the cache directory and combines it with in-memory
// hit/miss counters.
func (c *Cache) Stats() (Stats, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return Stats{}, fmt.Errorf("read cache dir: %w", err)
	}
	var files int
	var size int64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files++
		size += info.Size()
	}

	hits := atomic.LoadInt64(&c.hits)
	misses := atomic.LoadInt64(&c.misses)
	var rate float64
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total)
	}
	return Stats{Files: files, Bytes: size, Hits: hits, Misses: misses, HitRate: rate}, nil
}

// EvictOlderThan deletes cache files whose mtime is older than days and
// returns how many were removed.
func (c *Cache) EvictOlderThan(days int) (int, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return 0, fmt.Errorf("read cache dir: %w", err)
	}
	cutoff := time.Now().Add(-time.Duration(days) * 24 * time.Hour)
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(c.dir, e.Name())); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}

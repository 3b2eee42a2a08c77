package interp

import (
	"encoding/binary"
	"math"
	"slices"
	"sync"

	"github.com/cespare/xxhash/v2"

	"go.ngs.io/forecast-prep/internal/domain"
)

// CacheObserver receives cache lookups, e.g. for metrics.
type CacheObserver interface {
	TriangulationCacheHit()
	TriangulationCacheMiss()
}

// Cache memoizes triangulations and destination weights per source point set.
// It belongs to one pipeline run; drop it when the run ends.
type Cache struct {
	mu       sync.Mutex
	entries  map[uint64][]*cacheEntry
	observer CacheObserver
	builds   int
}

type cacheEntry struct {
	lon, lat []float64
	tri      *Triangulation
	weights  map[uint64]Weights
}

// NewCache creates an empty cache. observer may be nil.
func NewCache(observer CacheObserver) *Cache {
	return &Cache{entries: make(map[uint64][]*cacheEntry), observer: observer}
}

// Builds returns the number of triangulations computed so far.
func (c *Cache) Builds() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.builds
}

// Triangulation returns the triangulation of the source grid, building it on first use.
// Point sets that hash equal are compared coordinate by coordinate before reuse.
func (c *Cache) Triangulation(src domain.SourceGrid) (*Triangulation, error) {
	e, err := c.entry(src)
	if err != nil {
		return nil, err
	}
	return e.tri, nil
}

// Weights returns interpolation stencils from src onto every point of dst.
func (c *Cache) Weights(src domain.SourceGrid, dst domain.RegularGrid) (Weights, error) {
	e, err := c.entry(src)
	if err != nil {
		return Weights{}, err
	}
	dstLon, dstLat := dst.Points()
	key := pointSetKey(dstLon, dstLat)

	c.mu.Lock()
	w, ok := e.weights[key]
	c.mu.Unlock()
	if ok {
		return w, nil
	}

	w, err = e.tri.Weights(dstLon, dstLat)
	if err != nil {
		return Weights{}, err
	}
	c.mu.Lock()
	e.weights[key] = w
	c.mu.Unlock()
	return w, nil
}

func (c *Cache) entry(src domain.SourceGrid) (*cacheEntry, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}
	key := pointSetKey(src.Lon, src.Lat)

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries[key] {
		if slices.Equal(e.lon, src.Lon) && slices.Equal(e.lat, src.Lat) {
			if c.observer != nil {
				c.observer.TriangulationCacheHit()
			}
			return e, nil
		}
	}
	if c.observer != nil {
		c.observer.TriangulationCacheMiss()
	}

	tri, err := Build(src.Lon, src.Lat)
	if err != nil {
		return nil, err
	}
	c.builds++
	e := &cacheEntry{
		lon:     slices.Clone(src.Lon),
		lat:     slices.Clone(src.Lat),
		tri:     tri,
		weights: make(map[uint64]Weights),
	}
	c.entries[key] = append(c.entries[key], e)
	return e, nil
}

// pointSetKey hashes the coordinate bits of a point set.
func pointSetKey(lon, lat []float64) uint64 {
	d := xxhash.New()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(len(lon)))
	_, _ = d.Write(buf[:])
	for _, axis := range [][]float64{lon, lat} {
		for _, v := range axis {
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
			_, _ = d.Write(buf[:])
		}
	}
	return d.Sum64()
}

// Package cache provides a sharded LRU cache of byte slices bounded by
// their total size.
//
// Readers of compressed tile containers keep recently decoded tiles here so
// that a tile requested again shortly after an eviction is not decoded
// twice:
//
//	c := cache.New[tile.Coord](64<<20, hashCoord)
//	if data, ok := c.Get(coord); ok {
//		return data
//	}
//	data := decode(coord)
//	c.Add(coord, data)
//
// # Thread Safety
//
// Cache is safe for concurrent use. Keys are spread over 16 shards, each
// with its own lock and an equal part of the byte budget. Cache must not be
// copied after creation.
package cache

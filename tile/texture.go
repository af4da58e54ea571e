package tile

// Source provides the texel data of a streamed texture.
//
// Implementations must be safe for concurrent use: backends read tiles from
// several goroutines at once.
type Source interface {
	// Layout describes the tiling of the texture.
	Layout() Layout

	// ReadTile fills dst, which is Bytes long, with the contents of c.
	ReadTile(c Coord, dst []byte) error

	// ReadPackedMips returns the packed tail, Layout().PackedBytes() long.
	ReadPackedMips() ([]byte, error)
}

// Texture is a streamed texture as seen by backends.
type Texture struct {
	// ID is unique among live textures of one manager.
	ID uint64

	Layout Layout
	Source Source
}

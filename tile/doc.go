// Package tile defines the vocabulary shared by every layer of tilestream:
// virtual tile coordinates, the residency state machine, the 64 KiB tile
// shape of a texture format and the tiling layout of a mip chain.
//
// A streamed texture is split into fixed-size tiles. Mips large enough to
// hold at least one full tile in both dimensions are "standard" and each of
// their tiles is mapped and evicted independently. The remaining tail of
// the chain is "packed": it is loaded once, as a unit, and stays resident
// for the lifetime of the texture.
//
//	layout, err := tile.NewLayout(gputypes.TextureFormatBC7RGBAUnorm,
//		gputypes.NewExtent2D(16384, 16384), 0)
//	if err != nil {
//		return err
//	}
//	fmt.Println(layout.NumStandardMips, layout.NumPackedMips, layout.NumTiles())
package tile

package main

import (
	"github.com/paulmach/orb/maptile"
)

// ZoomMin 最小级别
const ZoomMin = 0

// ZoomMax 最大级别
const ZoomMax = 20

// Tile 自定义瓦片存储
type Tile struct {
	T maptile.Tile
	C []byte
}

// flipY XYZ 行号转 TMS 行号
func (tile Tile) flipY() uint32 {
	return (1 << uint32(tile.T.Z)) - 1 - tile.T.Y
}

// Constants representing TileFormat types
const (
	GZIP string = "gzip" // encoding = gzip
	ZLIB        = "zlib" // encoding = deflate
	PNG         = "png"
	JPG         = "jpg"
	PBF         = "pbf"
	WEBP        = "webp"
)

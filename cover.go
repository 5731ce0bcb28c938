package main

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// TileIndex 覆盖指定范围的瓦片清单
type TileIndex []maptile.Tile

// CoverageError 输入范围非法, 任务在联网前终止
type CoverageError struct {
	Reason string
}

func (e *CoverageError) Error() string {
	return fmt.Sprintf("coverage: %s", e.Reason)
}

// BoundFromLonLat 由左下/右上经纬度点构造 3857 矩形范围
// 不支持跨越 180 度经线的范围, 调用方需先归一化
func BoundFromLonLat(leftbottom, righttop orb.Point) (orb.Bound, error) {
	if leftbottom[0] < -180 || righttop[0] > 180 {
		return orb.Bound{}, &CoverageError{Reason: "longitude out of range [-180, 180]"}
	}
	if leftbottom[0] > righttop[0] {
		return orb.Bound{}, &CoverageError{Reason: "inverted longitude range (antimeridian crossing is unsupported)"}
	}
	if leftbottom[1] > righttop[1] {
		return orb.Bound{}, &CoverageError{Reason: "inverted latitude range"}
	}
	if leftbottom[0] == righttop[0] || leftbottom[1] == righttop[1] {
		return orb.Bound{}, &CoverageError{Reason: "zero-area rectangle"}
	}
	if leftbottom[1] < -WebMercatorLatLimit || righttop[1] > WebMercatorLatLimit {
		return orb.Bound{}, &CoverageError{Reason: fmt.Sprintf("latitude out of range [%.4f, %.4f]", -WebMercatorLatLimit, WebMercatorLatLimit)}
	}

	min := LonLatToWebMercator(leftbottom)
	max := LonLatToWebMercator(righttop)
	return orb.Bound{Min: min, Max: max}, nil
}

// CoverBound 枚举指定级别下与矩形相交的全部瓦片
// 只碰到边界的瓦片同样计入, 矩形边恰好压线时分界线两侧都算, 避免边界要素丢失
func CoverBound(bound orb.Bound, zoom maptile.Zoom) (TileIndex, error) {
	for _, v := range []float64{bound.Min[0], bound.Min[1], bound.Max[0], bound.Max[1]} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, &CoverageError{Reason: "non-finite bound coordinate"}
		}
	}
	if bound.Min[0] > bound.Max[0] || bound.Min[1] > bound.Max[1] {
		return nil, &CoverageError{Reason: "inverted bound"}
	}
	if bound.Min[0] == bound.Max[0] || bound.Min[1] == bound.Max[1] {
		return nil, &CoverageError{Reason: "zero-area bound"}
	}

	dim := uint32(1) << zoom
	span := 2 * WebMercatorMax / float64(dim)

	minX := clampTile(coverFloor((bound.Min[0]+WebMercatorMax)/span, true), dim)
	maxX := clampTile(coverFloor((bound.Max[0]+WebMercatorMax)/span, false), dim)
	// 3857 的 y 向北增大, 瓦片 y 向南增大
	minY := clampTile(coverFloor((WebMercatorMax-bound.Max[1])/span, true), dim)
	maxY := clampTile(coverFloor((WebMercatorMax-bound.Min[1])/span, false), dim)

	index := make(TileIndex, 0, int(maxX-minX+1)*int(maxY-minY+1))
	for x := minX; x <= maxX; x++ {
		for y := minY; y <= maxY; y++ {
			index = append(index, maptile.New(x, y, zoom))
		}
	}
	return index, nil
}

// coverFloor 行列号取整; 起始边恰好压在瓦片分界线上时回退一格,
// 使分界线两侧只触边的瓦片都计入
func coverFloor(v float64, minSide bool) int64 {
	f := math.Floor(v)
	if minSide && v == f {
		f--
	}
	return int64(f)
}

func clampTile(v int64, dim uint32) uint32 {
	if v < 0 {
		return 0
	}
	if v >= int64(dim) {
		return dim - 1
	}
	return uint32(v)
}

// TileWebMercatorBound 瓦片在 3857 下的空间范围
func TileWebMercatorBound(t maptile.Tile) orb.Bound {
	span := 2 * WebMercatorMax / float64(uint32(1)<<t.Z)
	minX := -WebMercatorMax + float64(t.X)*span
	maxY := WebMercatorMax - float64(t.Y)*span
	return orb.Bound{
		Min: orb.Point{minX, maxY - span},
		Max: orb.Point{minX + span, maxY},
	}
}

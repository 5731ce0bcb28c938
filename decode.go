package main

import (
	"fmt"

	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"
)

// SourceLayerSpec 请求的数据源图层及其几何类型标签
type SourceLayerSpec struct {
	Name     string
	Datatype string
}

// GeometryType 标签映射到几何类型, 未识别的标签沿用面类型
func (s SourceLayerSpec) GeometryType() string {
	switch s.Datatype {
	case "point":
		return "Point"
	case "line":
		return "LineString"
	default:
		return "Polygon"
	}
}

// DecodeError 瓦片载荷无法解析, 任务跳过该瓦片继续执行
type DecodeError struct {
	Tile maptile.Tile
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode tile %d/%d/%d: %s", e.Tile.Z, e.Tile.X, e.Tile.Y, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// TileDataset 单瓦片筛选结果, 坐标系固定为 3857
type TileDataset struct {
	Tile         maptile.Tile
	GeometryType string
	Features     []*geojson.Feature
}

// DecodeTile 解析瓦片载荷, 只保留指定图层中匹配几何类型的要素
// 图层缺失返回空数据集, 不视为错误
func DecodeTile(raw []byte, t maptile.Tile, spec SourceLayerSpec) (*TileDataset, error) {
	var (
		layers mvt.Layers
		err    error
	)
	if isGzipped(raw) {
		layers, err = mvt.UnmarshalGzipped(raw)
	} else {
		layers, err = mvt.Unmarshal(raw)
	}
	if err != nil {
		return nil, &DecodeError{Tile: t, Err: err}
	}

	ds := &TileDataset{Tile: t, GeometryType: spec.GeometryType()}

	var layer *mvt.Layer
	for _, l := range layers {
		if l.Name == spec.Name {
			layer = l
			break
		}
	}
	if layer == nil {
		return ds, nil
	}
	layer.ProjectToWGS84(t)

	srcTile := fmt.Sprintf("%d/%d/%d", t.Z, t.X, t.Y)
	for _, f := range layer.Features {
		if f.Geometry == nil || !geometryKindMatches(f.Geometry.GeoJSONType(), ds.GeometryType) {
			continue
		}
		nf := geojson.NewFeature(GeometryToWebMercator(f.Geometry))
		nf.ID = f.ID
		for k, v := range f.Properties {
			nf.Properties[k] = v
		}
		nf.Properties["src_tile"] = srcTile
		ds.Features = append(ds.Features, nf)
	}
	return ds, nil
}

// geometryKindMatches Multi 变体归入同一类
func geometryKindMatches(got, want string) bool {
	switch want {
	case "Point":
		return got == "Point" || got == "MultiPoint"
	case "LineString":
		return got == "LineString" || got == "MultiLineString"
	case "Polygon":
		return got == "Polygon" || got == "MultiPolygon"
	}
	return false
}

func isGzipped(raw []byte) bool {
	return len(raw) >= 2 && raw[0] == 0x1f && raw[1] == 0x8b
}

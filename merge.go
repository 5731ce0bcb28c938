package main

import (
	"fmt"

	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"
)

// MergeError 数据集几何类型不一致, 属于不变量被破坏, 任务直接失败
type MergeError struct {
	Tile maptile.Tile
	Got  string
	Want string
}

func (e *MergeError) Error() string {
	return fmt.Sprintf("merge: tile %d/%d/%d dataset is %s, job expects %s",
		e.Tile.Z, e.Tile.X, e.Tile.Y, e.Got, e.Want)
}

// MergeDatasets 合并全部瓦片数据集
// 结果与数据集顺序无关, 同一瓦片只计一次, 坐标系固定 3857
func MergeDatasets(datasets []*TileDataset, geometryType string) (*geojson.FeatureCollection, error) {
	fc := geojson.NewFeatureCollection()

	seen := make(map[maptile.Tile]struct{}, len(datasets))
	for _, ds := range datasets {
		if ds == nil || len(ds.Features) == 0 {
			continue
		}
		if ds.GeometryType != geometryType {
			return nil, &MergeError{Tile: ds.Tile, Got: ds.GeometryType, Want: geometryType}
		}
		if _, ok := seen[ds.Tile]; ok {
			log.Warnf("merge: duplicate dataset for tile %d/%d/%d skipped", ds.Tile.Z, ds.Tile.X, ds.Tile.Y)
			continue
		}
		seen[ds.Tile] = struct{}{}
		fc.Features = append(fc.Features, ds.Features...)
	}
	return fc, nil
}

package main

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/clip"
	"github.com/paulmach/orb/geojson"
)

// ClipToExtent 按矩形范围裁剪合并结果
// 参数顺序固定为 xMin, xMax, yMin, yMax, 与上游调用约定保持一致
func ClipToExtent(fc *geojson.FeatureCollection, xMin, xMax, yMin, yMax float64) *geojson.FeatureCollection {
	bound := orb.Bound{Min: orb.Point{xMin, yMin}, Max: orb.Point{xMax, yMax}}

	out := geojson.NewFeatureCollection()
	for _, f := range fc.Features {
		g := clip.Geometry(bound, f.Geometry)
		if g == nil {
			continue
		}
		nf := geojson.NewFeature(g)
		nf.ID = f.ID
		for k, v := range f.Properties {
			nf.Properties[k] = v
		}
		out.Features = append(out.Features, nf)
	}
	return out
}

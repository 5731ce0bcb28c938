package main

import (
	"math"

	"github.com/paulmach/orb"
)

// WebMercatorMax 网络墨卡托半周长, EPSG:3857 坐标绝对值上限
const WebMercatorMax = 20037508.34

// WebMercatorLatLimit 投影有效纬度范围
const WebMercatorLatLimit = 85.05112877980659

// LonLatToWebMercator 经纬度转 3857 平面坐标
// lat=±90 处 tan 发散, 结果未定义, 调用方需提前裁剪
func LonLatToWebMercator(p orb.Point) orb.Point {
	x := p[0] * WebMercatorMax / 180
	y := math.Log(math.Tan((90+p[1])*math.Pi/360)) / (math.Pi / 180) * WebMercatorMax / 180
	return orb.Point{x, y}
}

// WebMercatorToLonLat 3857 平面坐标转经纬度
func WebMercatorToLonLat(p orb.Point) orb.Point {
	lon := p[0] / WebMercatorMax * 180
	lat := math.Atan(math.Exp(p[1]*math.Pi/WebMercatorMax))/math.Pi*360 - 90
	return orb.Point{lon, lat}
}

// GeometryToWebMercator 整体投影几何对象, 返回新对象不修改原值
func GeometryToWebMercator(g orb.Geometry) orb.Geometry {
	return transformGeometry(g, LonLatToWebMercator)
}

func transformGeometry(g orb.Geometry, fn func(orb.Point) orb.Point) orb.Geometry {
	switch g := g.(type) {
	case orb.Point:
		return fn(g)
	case orb.MultiPoint:
		mp := make(orb.MultiPoint, len(g))
		for i, p := range g {
			mp[i] = fn(p)
		}
		return mp
	case orb.LineString:
		ls := make(orb.LineString, len(g))
		for i, p := range g {
			ls[i] = fn(p)
		}
		return ls
	case orb.MultiLineString:
		mls := make(orb.MultiLineString, len(g))
		for i, ls := range g {
			mls[i] = transformGeometry(ls, fn).(orb.LineString)
		}
		return mls
	case orb.Ring:
		r := make(orb.Ring, len(g))
		for i, p := range g {
			r[i] = fn(p)
		}
		return r
	case orb.Polygon:
		pg := make(orb.Polygon, len(g))
		for i, r := range g {
			pg[i] = transformGeometry(r, fn).(orb.Ring)
		}
		return pg
	case orb.MultiPolygon:
		mpg := make(orb.MultiPolygon, len(g))
		for i, pg := range g {
			mpg[i] = transformGeometry(pg, fn).(orb.Polygon)
		}
		return mpg
	case orb.Collection:
		c := make(orb.Collection, len(g))
		for i, cg := range g {
			c[i] = transformGeometry(cg, fn)
		}
		return c
	case orb.Bound:
		return orb.Bound{Min: fn(g.Min), Max: fn(g.Max)}
	}
	return g
}

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/paulmach/orb/geojson"
)

// LayerRegistry 接收合并结果的外部协作方
type LayerRegistry interface {
	AddLayer(name string, fc *geojson.FeatureCollection) error
}

// GeojsonFileRegistry 把图层落盘为 geojson 文件
type GeojsonFileRegistry struct {
	Dir string
}

func (r *GeojsonFileRegistry) AddLayer(name string, fc *geojson.FeatureCollection) error {
	if err := os.MkdirAll(r.Dir, os.ModePerm); err != nil {
		return err
	}
	data, err := fc.MarshalJSON()
	if err != nil {
		return err
	}
	path := filepath.Join(r.Dir, fmt.Sprintf("%s.geojson", name))
	return os.WriteFile(path, data, os.ModePerm)
}

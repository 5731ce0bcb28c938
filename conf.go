package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

var conf *Conf

type Conf struct {
	App struct {
		Version string `toml:"version"`
		Title   string `toml:"title"`
	} `toml:"app"`
	Output struct {
		Directory      string `toml:"directory"`
		LogDir         string `toml:"logDir"`
		OutputTerminal bool   `toml:"outputTerminal"`
		MBTiles        bool   `toml:"mbtiles"`
	} `toml:"output"`
	Cache struct {
		Directory string `toml:"directory"`
	} `toml:"cache"`
	Task struct {
		Workers   int `toml:"workers"`
		Timedelay int `toml:"timedelay"`
		Retries   int `toml:"retries"`
		Backoff   int `toml:"backoff"`
	} `toml:"task"`
	Tm struct {
		Name   string `toml:"name"`
		Min    int    `toml:"min"`
		Max    int    `toml:"max"`
		Format string `toml:"format"`
		URL    string `toml:"url"`
	} `toml:"tm"`
	Job struct {
		Leftbottom []float64 `toml:"leftbottom"`
		Righttop   []float64 `toml:"righttop"`
		Zoom       int       `toml:"zoom"`
		Layer      string    `toml:"layer"`
		Clip       bool      `toml:"clip"`
	} `toml:"job"`
	Layers map[string]LayerConf `toml:"layers"`
}

// LayerConf 数据源图层的几何类型标签
type LayerConf struct {
	Datatype string `toml:"datatype"`
}

// InitConf 初始化配置
func InitConf(cfgFile string) {
	if cfgFile == "" {
		cfgFile = "conf.toml"
	}
	if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
		fmt.Printf("config file(%s) not exist", cfgFile)
		os.Exit(1)
	}
	viper.SetConfigType("toml")
	viper.SetConfigFile(cfgFile)
	viper.AutomaticEnv() // read in environment variables that match
	err := viper.ReadInConfig()
	if err != nil {
		log.Warnf("read config file(%s) error, details: %s", viper.ConfigFileUsed(), err)
	}
	// 设置默认值
	viper.SetDefault("app.version", "v 0.1.0")
	viper.SetDefault("app.title", "GSI VTDownloader")
	viper.SetDefault("output.directory", "output")
	viper.SetDefault("cache.directory", filepath.Join(os.TempDir(), "vtdownloader"))
	viper.SetDefault("task.workers", 4)
	viper.SetDefault("task.timedelay", 0)
	viper.SetDefault("task.retries", 3)
	viper.SetDefault("task.backoff", 200)
	viper.SetDefault("tm.name", "experimental_bvmap")
	viper.SetDefault("tm.format", "pbf")
	viper.SetDefault("tm.min", 4)
	viper.SetDefault("tm.max", 17)
	viper.SetDefault("tm.url", "https://cyberjapandata.gsi.go.jp/xyz/experimental_bvmap/{z}/{x}/{y}.pbf")
	// 国土地理院ベクトルタイル图层定义
	viper.SetDefault("layers.road.datatype", "line")
	viper.SetDefault("layers.railway.datatype", "line")
	viper.SetDefault("layers.river.datatype", "line")
	viper.SetDefault("layers.coastline.datatype", "line")
	viper.SetDefault("layers.contour.datatype", "line")
	viper.SetDefault("layers.boundary.datatype", "line")
	viper.SetDefault("layers.symbol.datatype", "point")
	viper.SetDefault("layers.label.datatype", "point")
	viper.SetDefault("layers.elevation.datatype", "point")
	viper.SetDefault("layers.building.datatype", "polygon")
	viper.SetDefault("layers.waterarea.datatype", "polygon")

	err = viper.Unmarshal(&conf)
	if err != nil {
		panic("配置文件解析失败")
	}
	if conf.Cache.Directory == "" {
		conf.Cache.Directory = filepath.Join(os.TempDir(), "vtdownloader")
	}
}

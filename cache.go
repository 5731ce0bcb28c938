package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/paulmach/orb/maptile"
)

// TileCache 瓦片磁盘缓存, 目录布局 <root>/<z>/<x>/<y>.<ext>
// 跨任务复用, 只增不删
type TileCache struct {
	Root string
	Ext  string
}

func NewTileCache(root, ext string) *TileCache {
	return &TileCache{Root: root, Ext: ext}
}

// PathFor 瓦片对应的本地文件路径
func (c *TileCache) PathFor(t maptile.Tile) string {
	return filepath.Join(c.Root,
		fmt.Sprintf("%d", t.Z),
		fmt.Sprintf("%d", t.X),
		fmt.Sprintf("%d.%s", t.Y, c.Ext))
}

// Exists 瓦片是否已缓存
func (c *TileCache) Exists(t maptile.Tile) bool {
	info, err := os.Stat(c.PathFor(t))
	return err == nil && !info.IsDir()
}

// Read 读取已缓存瓦片
func (c *TileCache) Read(t maptile.Tile) ([]byte, error) {
	return os.ReadFile(c.PathFor(t))
}

// Store 落盘瓦片, 先写临时文件再改名, 中途退出不会留下半截缓存
func (c *TileCache) Store(t maptile.Tile, data []byte) error {
	path := c.PathFor(t)
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), fmt.Sprintf(".%d.*", t.Y))
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

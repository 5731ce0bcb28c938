package main

import (
	"bytes"
	"compress/gzip"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// MBTilesWriter 把原始瓦片归档为 mbtiles
type MBTilesWriter struct {
	db     *sql.DB
	format string
}

func NewMBTilesWriter(path, name, format string) (*MBTilesWriter, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// 多个 worker 并发写入, 单连接避免 SQLITE_BUSY
	db.SetMaxOpenConns(1)
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS metadata (name TEXT, value TEXT)`,
		`CREATE TABLE IF NOT EXISTS tiles (zoom_level INTEGER, tile_column INTEGER, tile_row INTEGER, tile_data BLOB)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS tile_index ON tiles (zoom_level, tile_column, tile_row)`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			db.Close()
			return nil, err
		}
	}
	meta := map[string]string{
		"name":   name,
		"format": format,
	}
	for k, v := range meta {
		if _, err := db.Exec(`INSERT INTO metadata (name, value) VALUES (?, ?)`, k, v); err != nil {
			db.Close()
			return nil, err
		}
	}
	return &MBTilesWriter{db: db, format: format}, nil
}

// WriteTile 写入一块瓦片, pbf 载荷按规范 gzip 压缩后入库
func (w *MBTilesWriter) WriteTile(tile Tile) error {
	data := tile.C
	if w.format == PBF && !isGzipped(data) {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(data); err != nil {
			return err
		}
		if err := zw.Close(); err != nil {
			return err
		}
		data = buf.Bytes()
	}
	// mbtiles 采用 TMS 行号
	_, err := w.db.Exec(
		`INSERT OR REPLACE INTO tiles (zoom_level, tile_column, tile_row, tile_data) VALUES (?, ?, ?, ?)`,
		tile.T.Z, tile.T.X, tile.flipY(), data)
	if err != nil {
		return fmt.Errorf("mbtiles write %d/%d/%d: %w", tile.T.Z, tile.T.X, tile.T.Y, err)
	}
	return nil
}

func (w *MBTilesWriter) Close() error {
	return w.db.Close()
}

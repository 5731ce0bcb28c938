package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb/maptile"
)

// FetchError 单瓦片网络失败, 任务跳过该瓦片继续执行
type FetchError struct {
	Tile   maptile.Tile
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch tile %d/%d/%d: %s", e.Tile.Z, e.Tile.X, e.Tile.Y, e.Err)
	}
	return fmt.Sprintf("fetch tile %d/%d/%d: status code %d", e.Tile.Z, e.Tile.X, e.Tile.Y, e.Status)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Fetcher 瓦片下载器
type Fetcher struct {
	URL     string // 含 {x} {y} {z} 占位符
	Client  *http.Client
	Retries int
	Backoff time.Duration
}

func NewFetcher(url string, retries int, backoff time.Duration) *Fetcher {
	if retries < 1 {
		retries = 1
	}
	return &Fetcher{
		URL:     url,
		Client:  &http.Client{Timeout: 30 * time.Second},
		Retries: retries,
		Backoff: backoff,
	}
}

// TileURL 获取瓦片URL
func (f *Fetcher) TileURL(t maptile.Tile) string {
	url := strings.Replace(f.URL, "{x}", strconv.Itoa(int(t.X)), -1)
	url = strings.Replace(url, "{y}", strconv.Itoa(int(t.Y)), -1)
	url = strings.Replace(url, "{z}", strconv.Itoa(int(t.Z)), -1)
	return url
}

// Fetch 拉取单个瓦片, 5xx 和传输错误按次数重试, 4xx 直接失败
func (f *Fetcher) Fetch(ctx context.Context, t maptile.Tile) ([]byte, error) {
	url := f.TileURL(t)

	var lastErr error
	for attempt := 1; attempt <= f.Retries; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(f.Backoff * time.Duration(attempt-1)):
			}
		}

		body, retryable, err := f.fetchOnce(ctx, url, t)
		if err == nil {
			return body, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		if !retryable {
			break
		}
		log.Debugf("fetch %s attempt %d/%d failed: %s ~", url, attempt, f.Retries, err)
	}
	return nil, lastErr
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string, t maptile.Tile) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, &FetchError{Tile: t, Err: err}
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, true, &FetchError{Tile: t, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		retryable := resp.StatusCode >= 500
		return nil, retryable, &FetchError{Tile: t, Status: resp.StatusCode}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, &FetchError{Tile: t, Err: err}
	}
	if len(body) == 0 {
		// zero byte tiles
		return nil, false, &FetchError{Tile: t, Err: fmt.Errorf("empty body")}
	}
	return body, false, nil
}

package main

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// testJobBound 覆盖 z14 下 2x2 瓦片的矩形 (x 14552-14553, y 6450-6451)
func testJobBound(t *testing.T) orb.Bound {
	t.Helper()
	sw := maptile.New(14552, 6451, 14).Bound().Center()
	ne := maptile.New(14553, 6450, 14).Bound().Center()
	return mustBound(t, sw, ne)
}

// tileServer 按请求路径动态生成 mvt 瓦片, failStatus 指定特定瓦片的错误响应
func tileServer(t *testing.T, hits *int32, failStatus map[string]int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		var z, x, y uint32
		if _, err := fmt.Sscanf(r.URL.Path, "/%d/%d/%d.pbf", &z, &x, &y); err != nil {
			http.NotFound(w, r)
			return
		}
		key := fmt.Sprintf("%d/%d/%d", z, x, y)
		if status, ok := failStatus[key]; ok {
			w.WriteHeader(status)
			return
		}
		w.Write(tilePayload(t, maptile.New(x, y, maptile.Zoom(z)), "road", false))
	}))
}

func newTestTask(t *testing.T, srv *httptest.Server, cacheRoot string, workers int) *Task {
	t.Helper()
	job := JobSpec{
		Name:    "test",
		Bound:   testJobBound(t),
		Zoom:    14,
		Layer:   SourceLayerSpec{Name: "road", Datatype: "line"},
		Workers: workers,
	}
	cache := NewTileCache(cacheRoot, "pbf")
	fetcher := NewFetcher(srv.URL+"/{z}/{x}/{y}.pbf", 1, 0)
	task, err := NewTask(job, cache, fetcher)
	if err != nil {
		t.Fatal(err)
	}
	return task
}

func collectProgress(task *Task) []int {
	var got []int
	for p := range task.Progress {
		got = append(got, p)
	}
	return got
}

func TestTaskRunHappyPath(t *testing.T) {
	var hits int32
	srv := tileServer(t, &hits, nil)
	defer srv.Close()

	task := newTestTask(t, srv, t.TempDir(), 4)
	if len(task.Index) != 4 {
		t.Fatalf("expected 4 tiles, got %d", len(task.Index))
	}

	fc, err := task.Run()
	if err != nil {
		t.Fatal(err)
	}
	if task.State() != StateDone {
		t.Fatalf("state = %s, want Done", task.State())
	}
	if len(fc.Features) != 4 {
		t.Fatalf("got %d features, want 4", len(fc.Features))
	}

	tiles := make(map[interface{}]struct{})
	for _, f := range fc.Features {
		tiles[f.Properties["src_tile"]] = struct{}{}
	}
	if len(tiles) != 4 {
		t.Fatalf("expected features from 4 tiles, got %d", len(tiles))
	}

	progress := collectProgress(task)
	if len(progress) != 4 {
		t.Fatalf("expected 4 progress events, got %d", len(progress))
	}
	for i, p := range progress {
		if p != i+1 {
			t.Fatalf("progress not monotonic: %v", progress)
		}
	}
}

func TestTaskRunResilience(t *testing.T) {
	var hits int32
	srv := tileServer(t, &hits, map[string]int{
		"14/14552/6450": http.StatusNotFound,
	})
	defer srv.Close()

	task := newTestTask(t, srv, t.TempDir(), 2)
	fc, err := task.Run()
	if err != nil {
		t.Fatal(err)
	}
	if task.State() != StateDone {
		t.Fatalf("state = %s, want Done", task.State())
	}

	tiles := make(map[interface{}]struct{})
	for _, f := range fc.Features {
		tiles[f.Properties["src_tile"]] = struct{}{}
	}
	if len(tiles) != 3 {
		t.Fatalf("expected features from 3 tiles, got %d", len(tiles))
	}

	// 失败瓦片同样推进进度
	progress := collectProgress(task)
	if len(progress) != 4 {
		t.Fatalf("expected 4 progress events, got %d", len(progress))
	}
	if progress[len(progress)-1] != 4 {
		t.Fatalf("final progress = %d, want 4", progress[len(progress)-1])
	}
}

func TestTaskCacheReuse(t *testing.T) {
	var hits int32
	srv := tileServer(t, &hits, nil)
	defer srv.Close()

	cacheRoot := t.TempDir()

	task := newTestTask(t, srv, cacheRoot, 4)
	if _, err := task.Run(); err != nil {
		t.Fatal(err)
	}
	first := atomic.LoadInt32(&hits)
	if first != 4 {
		t.Fatalf("first run issued %d fetches, want 4", first)
	}

	again := newTestTask(t, srv, cacheRoot, 4)
	fc, err := again.Run()
	if err != nil {
		t.Fatal(err)
	}
	if atomic.LoadInt32(&hits) != first {
		t.Fatalf("second run issued %d extra fetches, want 0", atomic.LoadInt32(&hits)-first)
	}
	if len(fc.Features) != 4 {
		t.Fatalf("cached run produced %d features, want 4", len(fc.Features))
	}
}

func TestTaskAbort(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	task := newTestTask(t, srv, t.TempDir(), 1)
	go func() {
		time.Sleep(20 * time.Millisecond)
		task.Abort()
	}()

	_, err := task.Run()
	if !errors.Is(err, ErrAborted) {
		t.Fatalf("expected ErrAborted, got %v", err)
	}
	if task.State() != StateAborted {
		t.Fatalf("state = %s, want Aborted", task.State())
	}
}

func TestNewTaskCoverageErrorBeforeNetwork(t *testing.T) {
	var hits int32
	srv := tileServer(t, &hits, nil)
	defer srv.Close()

	job := JobSpec{
		Name:  "bad",
		Bound: orb.Bound{Min: orb.Point{10, 10}, Max: orb.Point{-10, -10}},
		Zoom:  14,
		Layer: SourceLayerSpec{Name: "road", Datatype: "line"},
	}
	_, err := NewTask(job, NewTileCache(t.TempDir(), "pbf"), NewFetcher(srv.URL+"/{z}/{x}/{y}.pbf", 1, 0))
	var ce *CoverageError
	if !errors.As(err, &ce) {
		t.Fatalf("expected CoverageError, got %v", err)
	}
	if atomic.LoadInt32(&hits) != 0 {
		t.Fatalf("coverage error must not trigger fetches, got %d", hits)
	}
}

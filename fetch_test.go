package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/paulmach/orb/maptile"
)

func TestTileURL(t *testing.T) {
	f := NewFetcher("https://example.com/xyz/{z}/{x}/{y}.pbf", 1, 0)
	got := f.TileURL(maptile.New(14552, 6451, 14))
	want := "https://example.com/xyz/14/14552/6451.pbf"
	if got != want {
		t.Fatalf("TileURL = %s, want %s", got, want)
	}
}

func TestFetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("tiledata"))
	}))
	defer srv.Close()

	f := NewFetcher(srv.URL+"/{z}/{x}/{y}.pbf", 1, 0)
	body, err := f.Fetch(context.Background(), maptile.New(1, 2, 3))
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != "tiledata" {
		t.Fatalf("body = %q", body)
	}
}

func TestFetchNotFoundNoRetry(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := NewFetcher(srv.URL+"/{z}/{x}/{y}.pbf", 3, 0)
	_, err := f.Fetch(context.Background(), maptile.New(1, 2, 3))
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fe.Status != http.StatusNotFound {
		t.Fatalf("status = %d", fe.Status)
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Fatalf("4xx should not be retried, got %d requests", hits)
	}
}

func TestFetchServerErrorRetries(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := NewFetcher(srv.URL+"/{z}/{x}/{y}.pbf", 3, time.Millisecond)
	body, err := f.Fetch(context.Background(), maptile.New(1, 2, 3))
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != "ok" {
		t.Fatalf("body = %q", body)
	}
	if atomic.LoadInt32(&hits) != 3 {
		t.Fatalf("expected 3 attempts, got %d", hits)
	}
}

func TestFetchEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := NewFetcher(srv.URL+"/{z}/{x}/{y}.pbf", 2, 0)
	_, err := f.Fetch(context.Background(), maptile.New(1, 2, 3))
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FetchError for empty body, got %v", err)
	}
}

func TestFetchCancelled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	f := NewFetcher(srv.URL+"/{z}/{x}/{y}.pbf", 3, time.Second)
	_, err := f.Fetch(ctx, maptile.New(1, 2, 3))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

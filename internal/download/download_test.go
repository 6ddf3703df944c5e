package download

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/EdvinCodes/offgrid/internal/media"
	"github.com/EdvinCodes/offgrid/internal/proxy"
)

func newSource() *proxy.Relay {
	return proxy.New(proxy.Options{AllowPrivate: true}, nil)
}

func TestSave(t *testing.T) {
	body := bytes.Repeat([]byte("v"), 100*1024)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.Write(body)
	}))
	defer upstream.Close()

	dir := t.TempDir()
	var last, total int64
	path, err := Save(context.Background(), newSource(), Request{
		URL:  upstream.URL + "/clip",
		Name: "Sunset reel",
		Dir:  dir,
		Progress: func(written, size int64) {
			last, total = written, size
		},
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	if filepath.Base(path) != "Sunset reel.mp4" {
		t.Errorf("name = %q, want %q", filepath.Base(path), "Sunset reel.mp4")
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, body) {
		t.Errorf("saved %d bytes, want %d", len(got), len(body))
	}
	if last != int64(len(body)) || total != int64(len(body)) {
		t.Errorf("progress = %d/%d, want %d/%d", last, total, len(body), len(body))
	}
}

func TestSaveDoesNotOverwrite(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("new"))
	}))
	defer upstream.Close()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "photo.jpg"), []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	path, err := Save(context.Background(), newSource(), Request{URL: upstream.URL, Name: "photo", Dir: dir})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if filepath.Base(path) != "photo (1).jpg" {
		t.Errorf("name = %q, want %q", filepath.Base(path), "photo (1).jpg")
	}
	old, _ := os.ReadFile(filepath.Join(dir, "photo.jpg"))
	if string(old) != "old" {
		t.Errorf("existing file was modified: %q", old)
	}
}

func TestSaveTruncatedLeavesNothing(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		w.Header().Set("Content-Length", "1000")
		w.Write([]byte("short"))
	}))
	defer upstream.Close()

	dir := t.TempDir()
	_, err := Save(context.Background(), newSource(), Request{URL: upstream.URL, Name: "clip", Dir: dir})
	if err == nil {
		t.Fatal("expected error for truncated body")
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("directory not empty after failure: %s", strings.Join(names, ", "))
	}
}

func TestSaveStalledUpstream(t *testing.T) {
	release := make(chan struct{})
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		w.Header().Set("Content-Length", "100")
		w.Write([]byte("0123456789"))
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer upstream.Close()
	defer close(release)

	src := proxy.New(proxy.Options{AllowPrivate: true, IdleTimeout: 200 * time.Millisecond}, nil)
	dir := t.TempDir()

	done := make(chan error, 1)
	go func() {
		_, err := Save(context.Background(), src, Request{URL: upstream.URL, Name: "clip", Dir: dir})
		done <- err
	}()

	select {
	case err := <-done:
		if media.KindOf(err) != media.ProxyUnreachable {
			t.Errorf("err = %v, want ProxyUnreachable", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Save still blocked on a stalled upstream")
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("directory not empty after failure: %d entries", len(entries))
	}
}

func TestSaveUpstreamError(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	defer upstream.Close()

	dir := t.TempDir()
	if _, err := Save(context.Background(), newSource(), Request{URL: upstream.URL, Name: "x", Dir: dir}); err == nil {
		t.Fatal("expected error for 404 upstream")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("directory not empty after failure: %d entries", len(entries))
	}
}

func TestSaveAllSameNameGetsDistinctPaths(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		time.Sleep(20 * time.Millisecond)
		w.Write([]byte(r.URL.Path))
	}))
	defer upstream.Close()

	dir := t.TempDir()
	reqs := make([]Request, 4)
	for i := range reqs {
		reqs[i] = Request{URL: upstream.URL + "/" + strconv.Itoa(i), Name: "same", Dir: dir}
	}
	paths, err := SaveAll(context.Background(), newSource(), reqs, len(reqs))
	if err != nil {
		t.Fatalf("SaveAll: %v", err)
	}

	seen := make(map[string]bool)
	for i, p := range paths {
		if seen[p] {
			t.Fatalf("path %q handed out twice", p)
		}
		seen[p] = true
		got, err := os.ReadFile(p)
		if err != nil {
			t.Fatal(err)
		}
		if want := "/" + strconv.Itoa(i); string(got) != want {
			t.Errorf("%s holds %q, want %q", filepath.Base(p), got, want)
		}
	}
}

func TestReserve(t *testing.T) {
	dir := t.TempDir()
	first, err := reserve(dir, "clip.mp4")
	if err != nil {
		t.Fatal(err)
	}
	second, err := reserve(dir, "clip.mp4")
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(first) != "clip.mp4" || filepath.Base(second) != "clip (1).mp4" {
		t.Errorf("reserve() = %q, %q", filepath.Base(first), filepath.Base(second))
	}
}

func TestSaveAll(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v":
			w.Header().Set("Content-Type", "video/mp4")
			w.Write([]byte("video"))
		case "/t":
			w.Header().Set("Content-Type", "image/jpeg")
			w.Write([]byte("thumb"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer upstream.Close()

	dir := t.TempDir()
	paths, err := SaveAll(context.Background(), newSource(), []Request{
		{URL: upstream.URL + "/v", Name: "post", Dir: dir},
		{URL: upstream.URL + "/t", Name: "post-thumbnail", Dir: dir},
	}, 2)
	if err != nil {
		t.Fatalf("SaveAll: %v", err)
	}
	want := []string{"post.mp4", "post-thumbnail.jpg"}
	for i, p := range paths {
		if filepath.Base(p) != want[i] {
			t.Errorf("paths[%d] = %q, want %q", i, filepath.Base(p), want[i])
		}
	}

	_, err = SaveAll(context.Background(), newSource(), []Request{
		{URL: upstream.URL + "/v", Name: "again", Dir: dir},
		{URL: upstream.URL + "/missing", Name: "gone", Dir: dir},
	}, 1)
	if err == nil {
		t.Fatal("expected error when one transfer fails")
	}
}

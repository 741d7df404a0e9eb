package library

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testIndex = `{"books":[
		{"id":"journey","title":"Journey to the West","manifest":"journey/manifest.json"},
		{"id":"poems","title":"","manifest":"poems/manifest.json"}
	]}`
	testManifest = `{"id":"journey","title":"Journey to the West","chapters":[
		{"id":"c3","title":"Chapter Three","file":"journey/c3.txt","order":3},
		{"id":"c1","title":"Chapter One","file":"journey/c1.txt","order":1},
		{"id":"c2","title":"","file":"journey/c2.txt","order":2}
	]}`
)

func writeLibrary(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"library.json":          testIndex,
		"journey/manifest.json": testManifest,
		"journey/c1.txt":        "第一回。靈根育孕源流出。",
		"journey/c2.txt":        "Second chapter.",
	}
	for name, content := range files {
		full := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0644))
	}
	return dir
}

func TestIndexSearch(t *testing.T) {
	idx := Index{Books: []Book{
		{ID: "journey", Title: "Journey to the West"},
		{ID: "poems", Title: "唐詩三百首"},
	}}

	assert.Len(t, idx.Search(""), 2)
	assert.Equal(t, "journey", idx.Search("WEST")[0].ID)
	assert.Equal(t, "poems", idx.Search("唐詩")[0].ID)
	assert.Equal(t, "poems", idx.Search("poe")[0].ID)
	assert.Empty(t, idx.Search("missing"))

	b, err := idx.Book("poems")
	require.NoError(t, err)
	assert.Equal(t, "唐詩三百首", b.DisplayTitle())
	_, err = idx.Book("nope")
	assert.ErrorIs(t, err, ErrBookNotFound)
	assert.Equal(t, "x", Book{ID: "x"}.DisplayTitle())
}

func TestManifest(t *testing.T) {
	m := Manifest{Chapters: []Chapter{
		{ID: "b", Order: 2},
		{ID: "a2", Order: 1},
		{ID: "a1", Order: 1},
		{ID: "z", Title: "Zero"},
	}}
	m.Sort()

	var ids []string
	for _, ch := range m.Chapters {
		ids = append(ids, ch.ID)
	}
	assert.Equal(t, []string{"z", "a2", "a1", "b"}, ids)

	ch, i, err := m.Chapter("a1")
	require.NoError(t, err)
	assert.Equal(t, 2, i)
	assert.Equal(t, "a1", ch.DisplayTitle())

	next, ok := m.Next("a1")
	assert.True(t, ok)
	assert.Equal(t, "b", next.ID)
	_, ok = m.Next("b")
	assert.False(t, ok)

	_, _, err = m.Chapter("nope")
	assert.ErrorIs(t, err, ErrChapterNotFound)
	assert.Len(t, m.Search("zero"), 1)
}

func TestCatalog_Directory(t *testing.T) {
	ctx := context.Background()
	c, err := NewCatalog(writeLibrary(t))
	require.NoError(t, err)
	assert.False(t, c.Remote())

	idx, err := c.Index(ctx)
	require.NoError(t, err)
	require.Len(t, idx.Books, 2)

	m, err := c.Manifest(ctx, idx.Books[0])
	require.NoError(t, err)
	require.Len(t, m.Chapters, 3)
	assert.Equal(t, "c1", m.Chapters[0].ID)
	assert.Equal(t, "c3", m.Chapters[2].ID)

	text, err := c.Text(ctx, m.Chapters[0])
	require.NoError(t, err)
	assert.Equal(t, "第一回。靈根育孕源流出。", text)

	_, err = c.Text(ctx, m.Chapters[2])
	assert.Error(t, err)

	_, err = c.Manifest(ctx, idx.Books[1])
	assert.Error(t, err)
	_, err = c.Manifest(ctx, Book{ID: "empty"})
	assert.ErrorContains(t, err, "no manifest")
}

func TestCatalog_StaysInsideRoot(t *testing.T) {
	dir := writeLibrary(t)
	c, err := NewCatalog(filepath.Join(dir, "journey"))
	require.NoError(t, err)

	_, err = c.Text(context.Background(), Chapter{ID: "x", File: "../library.json"})
	assert.Error(t, err)
	text, err := c.Text(context.Background(), Chapter{ID: "x", File: "../c2.txt"})
	require.NoError(t, err)
	assert.Equal(t, "Second chapter.", text)
}

func TestCatalog_HTTP(t *testing.T) {
	ctx := context.Background()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/texts/library.json":
			hits.Add(1)
			w.Write([]byte(testIndex))
		case "/texts/journey/manifest.json":
			w.Write([]byte(testManifest))
		case "/texts/journey/c2.txt":
			w.Write([]byte("Second chapter."))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c, err := NewCatalog(srv.URL+"/texts", WithTimeout(time.Second))
	require.NoError(t, err)
	assert.True(t, c.Remote())

	idx, err := c.Index(ctx)
	require.NoError(t, err)
	m, err := c.Manifest(ctx, idx.Books[0])
	require.NoError(t, err)
	assert.Equal(t, "c2", m.Chapters[1].ID)

	text, err := c.Text(ctx, m.Chapters[1])
	require.NoError(t, err)
	assert.Equal(t, "Second chapter.", text)

	_, err = c.Text(ctx, m.Chapters[0])
	assert.ErrorContains(t, err, "status 404")

	text, err = c.Text(ctx, Chapter{ID: "abs", File: srv.URL + "/texts/journey/c2.txt"})
	require.NoError(t, err)
	assert.Equal(t, "Second chapter.", text)
	assert.Equal(t, int32(1), hits.Load())
}

func TestCatalog_RemoteCache(t *testing.T) {
	ctx := context.Background()
	var hits atomic.Int32
	var down atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if down.Load() {
			http.Error(w, "down", http.StatusServiceUnavailable)
			return
		}
		hits.Add(1)
		w.Write([]byte(testIndex))
	}))
	defer srv.Close()

	cacheDir := t.TempDir()
	c, err := NewCatalog(srv.URL, WithCache(cacheDir, time.Hour))
	require.NoError(t, err)

	_, err = c.Index(ctx)
	require.NoError(t, err)
	idx, err := c.Index(ctx)
	require.NoError(t, err)
	assert.Len(t, idx.Books, 2)
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, true, c.CacheInfo()["exists"])

	// a stale cache is still served while the remote is down
	stale, err := NewCatalog(srv.URL, WithCache(cacheDir, 0))
	require.NoError(t, err)
	down.Store(true)
	idx, err = stale.Index(ctx)
	require.NoError(t, err)
	assert.Len(t, idx.Books, 2)

	require.NoError(t, stale.ClearCache())
	_, err = stale.Index(ctx)
	assert.ErrorContains(t, err, "no cache available")
	assert.Equal(t, false, stale.CacheInfo()["exists"])
}

func TestNewCatalog_Empty(t *testing.T) {
	_, err := NewCatalog("  ")
	assert.Error(t, err)
}

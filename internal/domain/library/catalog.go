package library

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const indexFile = "library.json"

// Catalog reads a library laid out as library.json, one manifest per book and
// one text file per chapter. Paths are relative to the catalog's location,
// which is either a directory or an http(s) base URL.
//
// A remote library.json is cached on disk and the cached copy is used while
// fresh, or when the remote cannot be reached.
type Catalog struct {
	location   string
	base       *url.URL
	cacheDir   string
	cacheFile  string
	maxAge     time.Duration
	httpClient *http.Client
}

type Option func(*Catalog)

// WithTimeout bounds every remote request.
func WithTimeout(d time.Duration) Option {
	return func(c *Catalog) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(c *Catalog) {
		c.httpClient = client
	}
}

// WithCache keeps a copy of a remote library.json in dir for maxAge.
func WithCache(dir string, maxAge time.Duration) Option {
	return func(c *Catalog) {
		c.cacheDir = dir
		c.cacheFile = filepath.Join(dir, "library_cache.json")
		c.maxAge = maxAge
	}
}

// cachedIndex is the on-disk form of a cached remote library.json.
type cachedIndex struct {
	Index       Index     `json:"library"`
	Location    string    `json:"location"`
	LastUpdated time.Time `json:"last_updated"`
	TotalBooks  int       `json:"total_books"`
}

// NewCatalog creates a catalog rooted at location.
func NewCatalog(location string, opts ...Option) (*Catalog, error) {
	if strings.TrimSpace(location) == "" {
		return nil, fmt.Errorf("library location is empty")
	}

	c := &Catalog{
		location: location,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		base, err := url.Parse(strings.TrimSuffix(location, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("invalid library URL %s: %w", location, err)
		}
		c.base = base
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.cacheDir != "" {
		// Create cache directory if it doesn't exist
		if err := os.MkdirAll(c.cacheDir, 0755); err != nil {
			logrus.WithError(err).Warn("Failed to create library cache directory")
		}
	}
	return c, nil
}

// Location returns the directory or URL the catalog reads from.
func (c *Catalog) Location() string {
	return c.location
}

// Remote reports whether the catalog reads over HTTP.
func (c *Catalog) Remote() bool {
	return c.base != nil
}

// Index returns library.json.
func (c *Catalog) Index(ctx context.Context) (*Index, error) {
	if !c.Remote() || c.cacheFile == "" {
		var idx Index
		if err := c.fetchJSON(ctx, indexFile, &idx); err != nil {
			return nil, err
		}
		return &idx, nil
	}

	if c.isCacheFresh() {
		if idx, err := c.loadFromCache(); err == nil {
			return idx, nil
		}
	}

	logrus.WithField("location", c.location).Debug("Fetching library index")
	var idx Index
	if err := c.fetchJSON(ctx, indexFile, &idx); err != nil {
		// If the remote fails, try the cache even if stale
		logrus.WithError(err).Warn("Library fetch failed, trying stale cache")
		if cached, cacheErr := c.loadFromCache(); cacheErr == nil {
			return cached, nil
		}
		return nil, fmt.Errorf("failed to fetch library and no cache available: %w", err)
	}

	if err := c.saveToCache(&idx); err != nil {
		logrus.WithError(err).Warn("Failed to save library to cache")
	}
	return &idx, nil
}

// Manifest loads a book's manifest with its chapters sorted.
func (c *Catalog) Manifest(ctx context.Context, book Book) (*Manifest, error) {
	if book.Manifest == "" {
		return nil, fmt.Errorf("book %s has no manifest", book.ID)
	}

	var m Manifest
	if err := c.fetchJSON(ctx, book.Manifest, &m); err != nil {
		return nil, err
	}
	if m.ID == "" {
		m.ID = book.ID
	}
	if m.Title == "" {
		m.Title = book.Title
	}
	m.Sort()
	return &m, nil
}

// Text loads a chapter's text.
func (c *Catalog) Text(ctx context.Context, ch Chapter) (string, error) {
	if ch.File == "" {
		return "", fmt.Errorf("chapter %s has no file", ch.ID)
	}

	body, err := c.read(ctx, ch.File)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (c *Catalog) fetchJSON(ctx context.Context, name string, v any) error {
	body, err := c.read(ctx, name)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return nil
}

// read returns the content at name, resolved against the location.
// Absolute URLs are fetched as they are.
func (c *Catalog) read(ctx context.Context, name string) ([]byte, error) {
	if strings.HasPrefix(name, "http://") || strings.HasPrefix(name, "https://") {
		return c.get(ctx, name)
	}

	if c.Remote() {
		ref, err := url.Parse(strings.TrimPrefix(path.Clean("/"+name), "/"))
		if err != nil {
			return nil, fmt.Errorf("invalid path %s: %w", name, err)
		}
		return c.get(ctx, c.base.ResolveReference(ref).String())
	}

	full := filepath.Join(c.location, filepath.FromSlash(path.Clean("/"+name)))
	body, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", full, err)
	}
	return body, nil
}

func (c *Catalog) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", rawURL, err)
	}
	req.Header.Set("Cache-Control", "no-store")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned status %d for URL %s", resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}

// isCacheFresh checks if the cache file exists and is within the max age
func (c *Catalog) isCacheFresh() bool {
	info, err := os.Stat(c.cacheFile)
	if err != nil {
		return false
	}
	return time.Since(info.ModTime()) < c.maxAge
}

func (c *Catalog) loadFromCache() (*Index, error) {
	file, err := os.Open(c.cacheFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache file: %w", err)
	}
	defer file.Close()

	var cached cachedIndex
	if err := json.NewDecoder(file).Decode(&cached); err != nil {
		return nil, fmt.Errorf("failed to decode cache file: %w", err)
	}
	if cached.Location != c.location {
		return nil, fmt.Errorf("cache holds %s, not %s", cached.Location, c.location)
	}

	logrus.WithFields(logrus.Fields{
		"books":        len(cached.Index.Books),
		"last_updated": cached.LastUpdated.Format(time.RFC3339),
	}).Debug("Loaded library from cache")

	return &cached.Index, nil
}

func (c *Catalog) saveToCache(idx *Index) error {
	cached := cachedIndex{
		Index:       *idx,
		Location:    c.location,
		LastUpdated: time.Now(),
		TotalBooks:  len(idx.Books),
	}

	file, err := os.Create(c.cacheFile)
	if err != nil {
		return fmt.Errorf("failed to create cache file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(cached); err != nil {
		return fmt.Errorf("failed to encode cache data: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"books": len(idx.Books),
		"file":  c.cacheFile,
	}).Debug("Saved library to cache")
	return nil
}

// ClearCache removes the cached library index.
func (c *Catalog) ClearCache() error {
	if c.cacheFile == "" {
		return nil
	}
	if err := os.Remove(c.cacheFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	logrus.Info("Cleared library cache")
	return nil
}

// CacheInfo returns information about the cache
func (c *Catalog) CacheInfo() map[string]interface{} {
	info := make(map[string]interface{})

	if c.cacheFile == "" {
		info["exists"] = false
		return info
	}

	if stat, err := os.Stat(c.cacheFile); err == nil {
		info["exists"] = true
		info["size"] = stat.Size()
		info["last_modified"] = stat.ModTime()
		info["is_fresh"] = c.isCacheFresh()
		info["max_age_hours"] = c.maxAge.Hours()
	} else {
		info["exists"] = false
	}
	return info
}

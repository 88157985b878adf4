package ics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	appLog "timetable/internal/log"
)

// Source is one calendar export: either a local file (Path) or a
// subscription URL.
type Source struct {
	ID   string
	Name string
	URL  string
	Path string
}

func (s Source) label() string {
	switch {
	case s.ID != "":
		return s.ID
	case s.Path != "":
		return s.Path
	default:
		return redactURL(s.URL)
	}
}

// LoadResult is the raw payload of one source.
type LoadResult struct {
	Source    Source
	Body      []byte
	FromCache bool
}

type cacheMeta struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Fetcher reads calendar sources. URL sources use conditional requests
// (ETag / Last-Modified) and fall back to the last cached body when the
// server is unreachable.
type Fetcher struct {
	client   *http.Client
	cacheDir string
}

// NewFetcher creates a Fetcher caching under cacheDir
// (default "./var/ics-cache").
func NewFetcher(cacheDir string) *Fetcher {
	if cacheDir == "" {
		cacheDir = "./var/ics-cache"
	}
	return &Fetcher{
		client:   &http.Client{Timeout: 15 * time.Second},
		cacheDir: cacheDir,
	}
}

// LoadAll loads every source; failures are logged, collected and skipped.
func (f *Fetcher) LoadAll(ctx context.Context, sources []Source) ([]LoadResult, []error) {
	results := make([]LoadResult, 0, len(sources))
	var errs []error
	for _, src := range sources {
		res, err := f.Load(ctx, src)
		if err != nil {
			appLog.Error("ics load failed", err, "source", src.label())
			errs = append(errs, err)
			continue
		}
		results = append(results, res)
	}
	return results, errs
}

// Load reads a single source.
func (f *Fetcher) Load(ctx context.Context, src Source) (LoadResult, error) {
	switch {
	case src.Path != "":
		body, err := os.ReadFile(src.Path)
		if err != nil {
			return LoadResult{}, fmt.Errorf("ics: read %s: %w", src.Path, err)
		}
		return LoadResult{Source: src, Body: body}, nil
	case src.URL != "":
		return f.fetch(ctx, src)
	default:
		return LoadResult{}, fmt.Errorf("ics: source %q has neither path nor url", src.ID)
	}
}

func (f *Fetcher) fetch(ctx context.Context, src Source) (LoadResult, error) {
	dir := f.cacheDirFor(src.URL)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return LoadResult{}, fmt.Errorf("ics: cache dir: %w", err)
	}
	meta, _ := loadMeta(dir)
	cached, _ := os.ReadFile(filepath.Join(dir, "body.ics"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return LoadResult{}, fmt.Errorf("ics: request: %w", err)
	}
	if meta.ETag != "" {
		req.Header.Set("If-None-Match", meta.ETag)
	}
	if meta.LastModified != "" {
		req.Header.Set("If-Modified-Since", meta.LastModified)
	}

	fromCache := func(reason error) (LoadResult, error) {
		if len(cached) == 0 {
			return LoadResult{}, fmt.Errorf("ics: fetch %s: %w", redactURL(src.URL), reason)
		}
		appLog.Warn("ics fetch fell back to cache", "source", src.label(), "reason", reason)
		return LoadResult{Source: src, Body: cached, FromCache: true}, nil
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fromCache(err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fromCache(err)
		}
		meta = cacheMeta{
			URL:          src.URL,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
		}
		if err := saveCache(dir, meta, body); err != nil {
			appLog.Error("ics cache save failed", err, "source", src.label())
		}
		appLog.Info("ics fetched", "source", src.label(), "bytes", len(body))
		return LoadResult{Source: src, Body: body}, nil
	case http.StatusNotModified:
		if len(cached) == 0 {
			return LoadResult{}, errors.New("ics: 304 Not Modified without cached body")
		}
		return LoadResult{Source: src, Body: cached, FromCache: true}, nil
	default:
		return fromCache(errors.New(resp.Status))
	}
}

func (f *Fetcher) cacheDirFor(url string) string {
	sum := sha256.Sum256([]byte(url))
	return filepath.Join(f.cacheDir, hex.EncodeToString(sum[:8]))
}

func loadMeta(dir string) (cacheMeta, error) {
	var meta cacheMeta
	data, err := os.ReadFile(filepath.Join(dir, "meta.json"))
	if err != nil {
		return meta, err
	}
	err = json.Unmarshal(data, &meta)
	return meta, err
}

// saveCache writes the body before the metadata so meta never points at a
// missing body.
func saveCache(dir string, meta cacheMeta, body []byte) error {
	if err := os.WriteFile(filepath.Join(dir, "body.ics"), body, 0o600); err != nil {
		return err
	}
	meta.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "meta.json"), data, 0o600)
}

// redactURL keeps only scheme and host, since subscription URLs usually embed
// a private token.
func redactURL(u string) string {
	i := -1
	for idx := 0; idx+2 < len(u); idx++ {
		if u[idx:idx+3] == "://" {
			i = idx + 3
			break
		}
	}
	if i == -1 {
		return "ics://...(redacted)"
	}
	j := i
	for j < len(u) && u[j] != '/' {
		j++
	}
	return u[:j] + "/...(redacted)"
}

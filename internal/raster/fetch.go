package raster

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// IsRemote reports whether src names an http(s) resource.
func IsRemote(src string) bool {
	return strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://")
}

// Fetcher downloads remote source rasters, and their sidecars when the
// server has them, into a local cache directory.
type Fetcher struct {
	client   *resty.Client
	cacheDir string
}

func NewFetcher(cacheDir string, timeout time.Duration) *Fetcher {
	client := resty.New()
	if timeout > 0 {
		client.SetTimeout(timeout)
	} else {
		client.SetTimeout(60 * time.Second)
	}
	client.SetRetryCount(3)
	client.SetRetryWaitTime(2 * time.Second)

	return &Fetcher{client: client, cacheDir: cacheDir}
}

// Fetch downloads rawURL into the cache and returns the local path. An
// already cached file is reused.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse source url: %w", err)
	}
	name := path.Base(u.Path)
	if name == "" || name == "/" || name == "." {
		return "", fmt.Errorf("source url %s has no file name", rawURL)
	}

	dir, err := filepath.Abs(f.cacheDir)
	if err != nil {
		return "", fmt.Errorf("resolve cache dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create cache dir: %w", err)
	}
	dst := filepath.Join(dir, name)

	if _, err := os.Stat(dst); err == nil {
		log.Debug().Str("path", dst).Msg("Using cached source raster")
		return dst, nil
	}

	if err := f.download(ctx, rawURL, dst); err != nil {
		return "", err
	}

	// Sidecar is optional.
	if err := f.download(ctx, rawURL+MetadataSuffix, MetadataPath(dst)); err != nil {
		log.Debug().Err(err).Str("url", rawURL).Msg("No raster metadata on server")
	}

	log.Info().Str("url", rawURL).Str("path", dst).Msg("Downloaded source raster")
	return dst, nil
}

func (f *Fetcher) download(ctx context.Context, rawURL, dst string) error {
	tmp := dst + ".part"
	resp, err := f.client.R().
		SetContext(ctx).
		SetOutput(tmp).
		Get(rawURL)
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("download %s: %w", rawURL, err)
	}
	if resp.StatusCode() != http.StatusOK {
		os.Remove(tmp)
		return fmt.Errorf("download %s: unexpected status %s", rawURL, resp.Status())
	}
	if err := os.Rename(tmp, dst); err != nil {
		return fmt.Errorf("move downloaded raster: %w", err)
	}
	return nil
}

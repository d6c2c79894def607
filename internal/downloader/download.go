package downloader

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
)

const userAgent = "hideaway (https://github.com/rm-hull/hideaway)"

type Downloader struct {
	client *http.Client
	logger *slog.Logger
	redact string
}

func NewDownloader(logger *slog.Logger) *Downloader {
	return &Downloader{
		client: &http.Client{Timeout: time.Minute},
		logger: logger,
	}
}

// WithRedaction masks secret in every URL written to the log.
func (d *Downloader) WithRedaction(secret string) *Downloader {
	clone := *d
	clone.redact = secret
	return &clone
}

func isRemote(uri string) bool {
	u, err := url.Parse(uri)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https")
}

// Open hands handler a reader over uri, which is either an http(s) URL or a
// local file path. The reader is closed once handler returns.
func (d *Downloader) Open(ctx context.Context, purpose string, uri string, handler func(r io.Reader) error) error {
	if !isRemote(uri) {
		file, err := os.Open(uri)
		if err != nil {
			return errors.Wrapf(err, "failed to open %s file", purpose)
		}
		defer func() {
			if err := file.Close(); err != nil {
				d.logger.Warn("error closing file", "purpose", purpose, "error", err)
			}
		}()
		return handler(file)
	}

	redacted := uri
	if d.redact != "" {
		redacted = strings.ReplaceAll(uri, d.redact, "********")
	}
	d.logger.Info("Retrieving file", "purpose", purpose, "uri", redacted)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "failed to fetch from %s", redacted)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			d.logger.Error("failed to close body", "error", err)
		}
	}()

	if resp.StatusCode > 299 {
		return errors.Newf("error response from %s: %s", redacted, resp.Status)
	}

	size := "unknown size"
	if resp.ContentLength >= 0 {
		size = humanize.Bytes(uint64(resp.ContentLength))
	}
	lastModified := resp.Header.Get("Last-Modified")
	if lastModified == "" {
		lastModified = "unknown"
	}
	d.logger.Info("Downloading content", "purpose", purpose, "size", size, "last_modified", lastModified)

	return handler(resp.Body)
}

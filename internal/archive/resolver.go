// Package archive resolves strip dates to web.archive.org snapshots and
// downloads archived pages and assets through the retry policy.
package archive

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/comic-archiver/internal/comics"
	"github.com/JakeFAU/comic-archiver/internal/metrics"
)

const (
	// DefaultBaseURL is the public Wayback Machine.
	DefaultBaseURL = "https://web.archive.org"

	indexPath = "/cdx/search/cdx"
	webPath   = "/web"
	// assetModifier asks the archive for the unmodified capture bytes.
	assetModifier = "im_"
)

// Fetch kinds used for metrics and logs.
const (
	KindIndex = "index"
	KindPage  = "page"
	KindAsset = "asset"
)

// ErrMalformedIndex is returned when the index body holds no timestamps but
// is not empty either.
var ErrMalformedIndex = errors.New("malformed index response")

// Retrier runs an operation under a retry budget. *retry.Policy satisfies it.
type Retrier interface {
	Do(ctx context.Context, name string, op func(ctx context.Context) error) error
}

// Config holds the archive endpoint.
type Config struct {
	BaseURL string
}

// Resolver talks to the archive index and snapshot endpoints.
type Resolver struct {
	base    string
	fetcher comics.Fetcher
	retrier Retrier
	logger  *zap.Logger
}

// New builds a Resolver.
func New(cfg Config, fetcher comics.Fetcher, retrier Retrier, logger *zap.Logger) *Resolver {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		base:    base,
		fetcher: fetcher,
		retrier: retrier,
		logger:  logger,
	}
}

// IndexURL returns the CDX query listing every 2xx capture of the strip page.
func (r *Resolver) IndexURL(date time.Time) string {
	q := url.Values{}
	q.Set("url", comics.SourceURL(date))
	q.Set("fl", "timestamp")
	q.Set("filter", "statuscode:^2")
	q.Set("limit", "-1")
	return r.base + indexPath + "?" + q.Encode()
}

// PageURL returns the archived copy of source at timestamp.
func (r *Resolver) PageURL(timestamp, source string) string {
	return fmt.Sprintf("%s%s/%s/%s", r.base, webPath, timestamp, source)
}

// archiveHosts are the forms in which archived pages link back into the
// archive after rewriting.
var archiveHosts = []string{
	"https://web.archive.org",
	"http://web.archive.org",
	"//web.archive.org",
	"",
}

// AssetURL anchors an image reference to the snapshot. References the archive
// already rewrote are re-anchored to the configured base without another
// /web/ wrapper.
func (r *Resolver) AssetURL(snapshot comics.Snapshot, ref string) string {
	ref = strings.TrimSpace(ref)
	if path, ok := r.archivePath(ref); ok {
		return r.base + path
	}
	return fmt.Sprintf("%s%s/%s%s/%s", r.base, webPath, snapshot.Timestamp, assetModifier, strings.TrimLeft(ref, "/"))
}

// archivePath returns the /web/... path of ref when ref points into the archive.
func (r *Resolver) archivePath(ref string) (string, bool) {
	for _, host := range append([]string{r.base}, archiveHosts...) {
		if rest, ok := strings.CutPrefix(ref, host); ok && strings.HasPrefix(rest, webPath+"/") {
			return rest, true
		}
	}
	return "", false
}

// Resolve finds the most recent successful capture of the strip page for date.
// It returns comics.ErrNoSnapshot when the archive has none.
func (r *Resolver) Resolve(ctx context.Context, date time.Time) (comics.Snapshot, error) {
	body, err := r.download(ctx, KindIndex, r.IndexURL(date))
	if err != nil {
		return comics.Snapshot{}, err
	}
	timestamp, err := LatestTimestamp(body)
	if err != nil {
		return comics.Snapshot{}, fmt.Errorf("resolve %s: %w", comics.FormatDate(date), err)
	}
	source := comics.SourceURL(date)
	return comics.Snapshot{
		Date:      date,
		Timestamp: timestamp,
		SourceURL: source,
		PageURL:   r.PageURL(timestamp, source),
	}, nil
}

// Page downloads the archived strip page.
func (r *Resolver) Page(ctx context.Context, snapshot comics.Snapshot) ([]byte, error) {
	return r.download(ctx, KindPage, snapshot.PageURL)
}

// Asset downloads an archived image.
func (r *Resolver) Asset(ctx context.Context, assetURL string) ([]byte, error) {
	return r.download(ctx, KindAsset, assetURL)
}

func (r *Resolver) download(ctx context.Context, kind, rawURL string) ([]byte, error) {
	var body []byte
	err := r.retrier.Do(ctx, kind, func(ctx context.Context) error {
		resp := r.fetcher.Fetch(ctx, rawURL)
		metrics.ObserveFetch(kind, resp.StatusCode, len(resp.Body), resp.Duration)
		if err := resp.Error(); err != nil {
			return err
		}
		body = resp.Body
		return nil
	})
	if err != nil {
		r.logger.Debug("archive download failed",
			zap.String("kind", kind),
			zap.String("url", rawURL),
			zap.Error(err),
		)
		return nil, err
	}
	return body, nil
}

// LatestTimestamp returns the last capture timestamp in a CDX timestamp list.
func LatestTimestamp(body []byte) (string, error) {
	var (
		latest   string
		nonBlank bool
	)
	scanner := bufio.NewScanner(bytes.NewReader(body))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		nonBlank = true
		if isTimestamp(line) {
			latest = line
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("scan index: %w", err)
	}
	switch {
	case latest != "":
		return latest, nil
	case nonBlank:
		return "", ErrMalformedIndex
	default:
		return "", comics.ErrNoSnapshot
	}
}

func isTimestamp(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

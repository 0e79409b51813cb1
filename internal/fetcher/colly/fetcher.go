// Package collyfetcher implements comics.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/comic-archiver/internal/comics"
)

// Default request headers; the archive varies its behavior for bare clients.
const (
	DefaultUserAgent = "Mozilla/5.0"
	DefaultAccept    = "image/webp,image/apng,image/*,*/*;q=0.8"
)

// ErrBodyTooLarge reports a response body longer than Config.MaxBodyBytes.
var ErrBodyTooLarge = errors.New("response body exceeds size limit")

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Accept    string
	Referer   string

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	PoolTimeout    time.Duration

	// MaxBodyBytes caps a response body; zero means unlimited. A larger
	// body fails with ErrBodyTooLarge instead of being truncated.
	MaxBodyBytes int
}

// Waiter paces outgoing requests. *ratelimit.Limiter satisfies it.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Fetcher implements comics.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	limiter       Waiter
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// fetchState is written by collector callbacks on the Visit goroutine only.
type fetchState struct {
	status int
	body   []byte
	url    string
	err    error
}

// New builds a Fetcher. limiter may be nil.
func New(cfg Config, limiter Waiter) *Fetcher {
	cfg = withDefaults(cfg)

	c := colly.NewCollector(colly.Async(false))
	c.AllowURLRevisit = true
	c.IgnoreRobotsTxt = true
	c.ParseHTTPErrorResponse = true
	// One extra byte lets OnResponse tell an exact fit from a cut body.
	c.MaxBodySize = 0
	if cfg.MaxBodyBytes > 0 {
		c.MaxBodySize = cfg.MaxBodyBytes + 1
	}
	c.UserAgent = cfg.UserAgent

	// The backend client is shared by every clone, so transport and timeout
	// are configured once here.
	c.WithTransport(newHTTPTransport(cfg))
	c.SetRequestTimeout(cfg.ConnectTimeout + cfg.WriteTimeout + cfg.ReadTimeout + cfg.PoolTimeout)

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
		limiter:       limiter,
	}
}

func withDefaults(cfg Config) Config {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Accept == "" {
		cfg.Accept = DefaultAccept
	}
	if cfg.Referer == "" {
		cfg.Referer = comics.SourceReferer
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 100 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.PoolTimeout <= 0 {
		cfg.PoolTimeout = 10 * time.Second
	}
	return cfg
}

// Fetch executes a single HTTP GET using Colly and classifies the result.
// Failures are reported through the Response, never returned.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) comics.Response {
	start := time.Now()
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, rawURL); err != nil {
			return transportFailure(rawURL, err, start)
		}
	}

	collector := f.buildCollector(ctx)
	state := &fetchState{}
	f.configureCollectorHooks(collector, state)
	return f.runCollector(ctx, collector, rawURL, state, start)
}

func (f *Fetcher) buildCollector(ctx context.Context) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.AllowURLRevisit = true
	collector.ParseHTTPErrorResponse = true
	collector.UserAgent = f.cfg.UserAgent
	collector.Context = ctx
	return collector
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, state *fetchState) {
	hooks.OnRequest(func(r *colly.Request) {
		f.setHeaders(r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		if f.cfg.MaxBodyBytes > 0 && len(r.Body) > f.cfg.MaxBodyBytes {
			state.status = 0
			state.body = nil
			state.err = fmt.Errorf("%w: more than %d bytes", ErrBodyTooLarge, f.cfg.MaxBodyBytes)
			return
		}
		state.status = r.StatusCode
		state.body = append([]byte(nil), r.Body...)
		if r.Request != nil && r.Request.URL != nil {
			state.url = r.Request.URL.String()
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		state.err = err
		if r != nil && r.StatusCode > 0 {
			state.status = r.StatusCode
			state.body = append([]byte(nil), r.Body...)
		}
	})
}

func (f *Fetcher) runCollector(
	ctx context.Context,
	collector *colly.Collector,
	rawURL string,
	state *fetchState,
	start time.Time,
) comics.Response {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		return transportFailure(rawURL, ctx.Err(), start)
	case err := <-done:
		if state.status == 0 {
			cause := state.err
			if cause == nil {
				cause = err
			}
			if cause == nil {
				cause = errors.New("no response received")
			}
			return transportFailure(rawURL, cause, start)
		}
		finalURL := state.url
		if finalURL == "" {
			finalURL = rawURL
		}
		return comics.Response{
			URL:        finalURL,
			StatusCode: state.status,
			Body:       state.body,
			Outcome:    comics.Classify(state.status),
			Duration:   time.Since(start),
		}
	}
}

func (f *Fetcher) setHeaders(r *colly.Request) {
	if r.Headers == nil {
		r.Headers = &http.Header{}
	}
	r.Headers.Set("User-Agent", f.cfg.UserAgent)
	r.Headers.Set("Accept", f.cfg.Accept)
	r.Headers.Set("Referer", f.cfg.Referer)
}

func transportFailure(rawURL string, err error, start time.Time) comics.Response {
	return comics.Response{
		URL:      rawURL,
		Outcome:  comics.OutcomeTransportError,
		Cause:    err,
		Duration: time.Since(start),
	}
}

func newHTTPTransport(cfg Config) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   cfg.ConnectTimeout,
		ResponseHeaderTimeout: cfg.ReadTimeout,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
	}
}

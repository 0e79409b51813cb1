package archive

import (
	"context"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/comic-archiver/internal/comics"
	"github.com/JakeFAU/comic-archiver/internal/retry"
)

type scriptedFetcher struct {
	mu        sync.Mutex
	responses map[string][]comics.Response
	calls     []string
}

func (f *scriptedFetcher) Fetch(_ context.Context, rawURL string) comics.Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, rawURL)
	queue := f.responses[rawURL]
	if len(queue) == 0 {
		return comics.Response{URL: rawURL, StatusCode: 404, Outcome: comics.OutcomeNonSuccess}
	}
	resp := queue[0]
	if len(queue) > 1 {
		f.responses[rawURL] = queue[1:]
	}
	resp.URL = rawURL
	return resp
}

func ok(body string) comics.Response {
	return comics.Response{StatusCode: 200, Outcome: comics.OutcomeOK, Body: []byte(body)}
}

func status(code int) comics.Response {
	return comics.Response{StatusCode: code, Outcome: comics.Classify(code)}
}

func noSleep(context.Context, time.Duration) error { return nil }

func newTestResolver(f comics.Fetcher) *Resolver {
	policy := retry.New(retry.Config{MaxAttempts: 3, DisableJitter: true}, retry.WithSleep(noSleep))
	return New(Config{}, f, policy, nil)
}

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := comics.ParseDate(s)
	require.NoError(t, err)
	return d
}

func TestIndexURL(t *testing.T) {
	t.Parallel()

	r := newTestResolver(&scriptedFetcher{})
	raw := r.IndexURL(mustDate(t, "2001-02-13"))

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "web.archive.org", u.Host)
	assert.Equal(t, "/cdx/search/cdx", u.Path)
	q := u.Query()
	assert.Equal(t, "https://dilbert.com/strip/2001-02-13", q.Get("url"))
	assert.Equal(t, "timestamp", q.Get("fl"))
	assert.Equal(t, "statuscode:^2", q.Get("filter"))
	assert.Equal(t, "-1", q.Get("limit"))
}

func TestAssetURL(t *testing.T) {
	t.Parallel()

	r := newTestResolver(&scriptedFetcher{})
	snap := comics.Snapshot{Timestamp: "20090101000000"}

	assert.Equal(t,
		"https://web.archive.org/web/20090101000000im_/dyn/str_strip/000000000/00000001.strip.gif",
		r.AssetURL(snap, "/dyn/str_strip/000000000/00000001.strip.gif"))
	assert.Equal(t,
		"https://web.archive.org/web/20090101000000im_/https://assets.amuniversal.com/abc",
		r.AssetURL(snap, "https://assets.amuniversal.com/abc"))
	assert.Equal(t,
		"https://web.archive.org/web/20090101000000im_/assets.amuniversal.com/abc",
		r.AssetURL(snap, "//assets.amuniversal.com/abc"))

	archived := "https://web.archive.org/web/20120101000000im_/https://assets.amuniversal.com/xyz"
	for _, ref := range []string{
		archived,
		"http://web.archive.org/web/20120101000000im_/https://assets.amuniversal.com/xyz",
		"//web.archive.org/web/20120101000000im_/https://assets.amuniversal.com/xyz",
		"/web/20120101000000im_/https://assets.amuniversal.com/xyz",
	} {
		assert.Equal(t, archived, r.AssetURL(snap, ref), ref)
	}
}

func TestAssetURLAnchorsArchiveRefsToBase(t *testing.T) {
	t.Parallel()

	r := New(Config{BaseURL: "http://127.0.0.1:9999/"}, &scriptedFetcher{}, nil, nil)
	snap := comics.Snapshot{Timestamp: "20090101000000"}
	want := "http://127.0.0.1:9999/web/2009im_/http://dilbert.com/a.gif"

	for _, ref := range []string{
		"https://web.archive.org/web/2009im_/http://dilbert.com/a.gif",
		"//web.archive.org/web/2009im_/http://dilbert.com/a.gif",
		"/web/2009im_/http://dilbert.com/a.gif",
		"http://127.0.0.1:9999/web/2009im_/http://dilbert.com/a.gif",
	} {
		assert.Equal(t, want, r.AssetURL(snap, ref), ref)
	}
	assert.Equal(t,
		"http://127.0.0.1:9999/web/20090101000000im_/https://web.archive.org.example/x.gif",
		r.AssetURL(snap, "https://web.archive.org.example/x.gif"))
}

func TestResolvePicksLatestCapture(t *testing.T) {
	t.Parallel()

	date := mustDate(t, "2001-02-13")
	f := &scriptedFetcher{responses: map[string][]comics.Response{}}
	r := newTestResolver(f)
	f.responses[r.IndexURL(date)] = []comics.Response{ok("20050101000000\n20090101000000\n\n")}

	snap, err := r.Resolve(context.Background(), date)
	require.NoError(t, err)
	assert.Equal(t, "20090101000000", snap.Timestamp)
	assert.Equal(t, "https://web.archive.org/web/20090101000000/https://dilbert.com/strip/2001-02-13", snap.PageURL)
	assert.Equal(t, "https://dilbert.com/strip/2001-02-13", snap.SourceURL)
}

func TestResolveNoSnapshot(t *testing.T) {
	t.Parallel()

	date := mustDate(t, "1989-04-16")
	f := &scriptedFetcher{responses: map[string][]comics.Response{}}
	r := newTestResolver(f)
	f.responses[r.IndexURL(date)] = []comics.Response{ok("")}

	_, err := r.Resolve(context.Background(), date)
	require.ErrorIs(t, err, comics.ErrNoSnapshot)
	assert.Len(t, f.calls, 1)
}

func TestResolveRetriesTransientIndexFailures(t *testing.T) {
	t.Parallel()

	date := mustDate(t, "1995-06-01")
	f := &scriptedFetcher{responses: map[string][]comics.Response{}}
	r := newTestResolver(f)
	f.responses[r.IndexURL(date)] = []comics.Response{status(503), status(429), ok("19990101000000")}

	snap, err := r.Resolve(context.Background(), date)
	require.NoError(t, err)
	assert.Equal(t, "19990101000000", snap.Timestamp)
	assert.Len(t, f.calls, 3)
}

func TestResolveExhausted(t *testing.T) {
	t.Parallel()

	date := mustDate(t, "1995-06-02")
	f := &scriptedFetcher{responses: map[string][]comics.Response{}}
	r := newTestResolver(f)
	f.responses[r.IndexURL(date)] = []comics.Response{status(500)}

	_, err := r.Resolve(context.Background(), date)
	require.ErrorIs(t, err, comics.ErrRetryExhausted)
	assert.Len(t, f.calls, 3)
}

func TestLatestTimestamp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		want    string
		wantErr error
	}{
		{name: "single", body: "20090101000000\n", want: "20090101000000"},
		{name: "crlf", body: "20010101000000\r\n20020101000000\r\n", want: "20020101000000"},
		{name: "empty", body: "", wantErr: comics.ErrNoSnapshot},
		{name: "blank lines", body: "\n \n", wantErr: comics.ErrNoSnapshot},
		{name: "html", body: "<html>oops</html>", wantErr: ErrMalformedIndex},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := LatestTimestamp([]byte(tt.body))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

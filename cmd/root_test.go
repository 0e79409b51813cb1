package cmd

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/comic-archiver/internal/app"
	"github.com/JakeFAU/comic-archiver/internal/comics"
	"github.com/JakeFAU/comic-archiver/internal/config"
	"github.com/JakeFAU/comic-archiver/internal/pipeline"
)

type fakeCatalog struct {
	comics.Catalog

	tags    []string
	records []comics.Record
	stats   comics.Stats
	calls   []string
	err     error
}

func (f *fakeCatalog) AllTags(context.Context) ([]string, error) { return f.tags, f.err }

func (f *fakeCatalog) ComicsForTag(_ context.Context, tag string) ([]comics.Record, error) {
	f.calls = append(f.calls, "show:"+tag)
	return f.records, f.err
}

func (f *fakeCatalog) AddTag(_ context.Context, date, tag string) error {
	f.calls = append(f.calls, "add:"+date+":"+tag)
	return f.err
}

func (f *fakeCatalog) RemoveTag(_ context.Context, date, tag string) error {
	f.calls = append(f.calls, "rm:"+date+":"+tag)
	return f.err
}

func (f *fakeCatalog) RenameTag(_ context.Context, oldName, newName string) error {
	f.calls = append(f.calls, "rename:"+oldName+":"+newName)
	return f.err
}

func (f *fakeCatalog) Stats(context.Context) (comics.Stats, error) { return f.stats, f.err }

type fakeApp struct {
	catalog   *fakeCatalog
	summary   pipeline.Summary
	fetchErr  error
	fetchOpts app.FetchOptions
	served    bool
	closed    bool
}

func (f *fakeApp) Logger() *zap.Logger         { return zap.NewNop() }
func (f *fakeApp) Catalog() comics.Catalog     { return f.catalog }
func (f *fakeApp) Serve(context.Context) error { f.served = true; return nil }
func (f *fakeApp) Close() error                { f.closed = true; return nil }

func (f *fakeApp) Fetch(_ context.Context, opts app.FetchOptions) (pipeline.Summary, error) {
	f.fetchOpts = opts
	return f.summary, f.fetchErr
}

// runCommand executes the root command with a fake app and returns stdout
// together with the config the factory received.
func runCommand(t *testing.T, fake *fakeApp, args ...string) (string, config.Config, error) {
	t.Helper()
	var got config.Config
	originalFactory := newApp
	newApp = func(_ context.Context, cfg config.Config) (App, error) {
		got = cfg
		return fake, nil
	}
	originalProgress := progressOutput
	progressOutput = func() io.Writer { return nil }
	t.Cleanup(func() {
		newApp = originalFactory
		progressOutput = originalProgress
	})

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := run(context.Background(), root)
	return out.String(), got, err
}

func TestFetchAppliesFlagsAndPrintsSummary(t *testing.T) {
	fake := &fakeApp{
		catalog: &fakeCatalog{},
		summary: pipeline.Summary{
			RunID: "run-1",
			Total: 3,
			Counts: map[comics.ItemOutcome]int{
				comics.ItemCompleted:       2,
				comics.ItemAlreadyComplete: 1,
			},
			Elapsed: 1500 * time.Millisecond,
		},
	}
	root := t.TempDir()

	out, cfg, err := runCommand(t, fake, "fetch",
		"--root", root, "--start", "2001-02-12", "--end", "2001-02-14", "--concurrency", "4")
	require.NoError(t, err)

	assert.Equal(t, root, cfg.Storage.Root)
	assert.Equal(t, "2001-02-12", cfg.Range.Start)
	assert.Equal(t, "2001-02-14", cfg.Range.End)
	assert.Equal(t, 4, cfg.Pipeline.Concurrency)
	assert.Nil(t, fake.fetchOpts.Progress)
	assert.True(t, fake.closed)

	assert.Contains(t, out, string(comics.ItemCompleted))
	assert.Contains(t, out, "total")
	assert.Contains(t, out, "run run-1 finished in 1.5s")
}

func TestFetchKeepsConfigDefaultsWithoutFlags(t *testing.T) {
	fake := &fakeApp{catalog: &fakeCatalog{}}

	out, cfg, err := runCommand(t, fake, "fetch")
	require.NoError(t, err)

	assert.Equal(t, comics.FormatDate(comics.FirstStrip), cfg.Range.Start)
	assert.Equal(t, comics.FormatDate(comics.LastStrip), cfg.Range.End)
	assert.Equal(t, pipeline.DefaultWorkers, cfg.Pipeline.Concurrency)
	assert.Empty(t, out, "empty runs print no table")
}

func TestFetchReturnsRunError(t *testing.T) {
	fake := &fakeApp{
		catalog:  &fakeCatalog{},
		summary:  pipeline.Summary{RunID: "run-2", Total: 1, Counts: map[comics.ItemOutcome]int{}},
		fetchErr: context.Canceled,
	}

	out, _, err := runCommand(t, fake, "fetch")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, out, "run run-2", "summary is printed before the error")
	assert.True(t, fake.closed)
}

func TestFetchRejectsInvalidRange(t *testing.T) {
	fake := &fakeApp{catalog: &fakeCatalog{}}

	_, _, err := runCommand(t, fake, "fetch", "--start", "2023-03-12", "--end", "1989-04-16")
	require.Error(t, err)
	assert.False(t, fake.closed, "app is never built for invalid config")
}

func TestServeRunsServer(t *testing.T) {
	fake := &fakeApp{catalog: &fakeCatalog{}}

	_, _, err := runCommand(t, fake, "serve")
	require.NoError(t, err)
	assert.True(t, fake.served)
}

func TestTagsCommands(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantCall string
		wantOut  string
	}{
		{
			name:     "add trims tag",
			args:     []string{"tags", "add", "2001-02-03", "  #Dogbert "},
			wantCall: "add:2001-02-03:Dogbert",
			wantOut:  `Tagged 2001-02-03 with "Dogbert"`,
		},
		{
			name:     "rm",
			args:     []string{"tags", "rm", "2001-02-03", "Dogbert"},
			wantCall: "rm:2001-02-03:Dogbert",
			wantOut:  `Removed "Dogbert" from 2001-02-03`,
		},
		{
			name:     "rename",
			args:     []string{"tags", "rename", "Boss", "PHB"},
			wantCall: "rename:Boss:PHB",
			wantOut:  `Renamed "Boss" to "PHB"`,
		},
		{
			name:     "show",
			args:     []string{"tags", "show", "Dogbert"},
			wantCall: "show:Dogbert",
			wantOut:  "2001-02-03",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			catalog := &fakeCatalog{records: []comics.Record{
				{Date: "2001-02-03", ImagePath: "2001/2001-02-03.png", Transcript: "hello"},
			}}
			fake := &fakeApp{catalog: catalog}

			out, _, err := runCommand(t, fake, tc.args...)
			require.NoError(t, err)
			assert.Equal(t, []string{tc.wantCall}, catalog.calls)
			assert.Contains(t, out, tc.wantOut)
		})
	}
}

func TestTagsAddRejectsBadDate(t *testing.T) {
	catalog := &fakeCatalog{}
	_, _, err := runCommand(t, &fakeApp{catalog: catalog}, "tags", "add", "yesterday", "x")
	require.Error(t, err)
	assert.Empty(t, catalog.calls)
}

func TestTagsListAndStats(t *testing.T) {
	catalog := &fakeCatalog{
		tags:  []string{"boss", "dogbert"},
		stats: comics.Stats{Comics: 2, Tags: 2, Links: 3, FirstDate: "1989-04-16"},
	}

	out, _, err := runCommand(t, &fakeApp{catalog: catalog}, "tags", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "dogbert")

	out, _, err = runCommand(t, &fakeApp{catalog: catalog}, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "1989-04-16")
	assert.Contains(t, out, "tag links")
}

func TestCatalogErrorsPropagate(t *testing.T) {
	catalog := &fakeCatalog{err: errors.New("db down")}
	_, _, err := runCommand(t, &fakeApp{catalog: catalog}, "stats")
	require.ErrorContains(t, err, "db down")
}

func TestRenderTableAlignsColumns(t *testing.T) {
	out := renderTable([]string{"A", "B"}, [][]string{{"x"}, {"long", "7"}}, []columnAlignment{alignLeft, alignRight})
	assert.Contains(t, out, "long")
	assert.Contains(t, out, "╭")
	assert.Empty(t, renderTable(nil, nil, nil))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abc…", truncate("abcdefgh", 4))
}

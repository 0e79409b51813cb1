package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/comic-archiver/internal/comics"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultFileName)
	store, err := Open(context.Background(), Config{Path: path}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, path
}

func record(date, transcript string) comics.Record {
	return comics.Record{Date: date, ImagePath: "2000/Dilbert_" + date + ".png", Transcript: transcript}
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(context.Background(), Config{}, nil)
	require.Error(t, err)
}

func TestUpsertIsVisibleBeforeCommit(t *testing.T) {
	ctx := context.Background()
	store, _ := openTestStore(t)

	exists, err := store.RecordExists(ctx, "2000-01-01")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, store.Upsert(ctx, record("2000-01-01", "hello"), []string{"Dogbert"}))
	assert.Equal(t, 1, store.Pending())

	exists, err = store.RecordExists(ctx, "2000-01-01")
	require.NoError(t, err)
	assert.True(t, exists)

	tags, err := store.TagsForComic(ctx, "2000-01-01")
	require.NoError(t, err)
	assert.Equal(t, []string{"Dogbert"}, tags)
}

func TestUpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store, _ := openTestStore(t)

	for range 3 {
		require.NoError(t, store.Upsert(ctx, record("2000-01-01", "same"), []string{"Boss", "#Boss", " Boss "}))
	}
	require.NoError(t, store.Commit(ctx))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Comics)
	assert.Equal(t, 1, stats.Tags)
	assert.Equal(t, 1, stats.Links)
}

func TestUpsertReplacesTranscriptKeepsLinks(t *testing.T) {
	ctx := context.Background()
	store, _ := openTestStore(t)

	require.NoError(t, store.Upsert(ctx, record("2000-01-01", "first"), []string{"Wally"}))
	require.NoError(t, store.Upsert(ctx, record("2000-01-01", "second"), nil))

	got, err := store.ComicForDate(ctx, "2000-01-01")
	require.NoError(t, err)
	assert.Equal(t, "second", got.Transcript)

	tags, err := store.TagsForComic(ctx, "2000-01-01")
	require.NoError(t, err)
	assert.Equal(t, []string{"Wally"}, tags)
}

func TestTagsAreSharedAcrossComics(t *testing.T) {
	ctx := context.Background()
	store, _ := openTestStore(t)

	require.NoError(t, store.Upsert(ctx, record("2000-01-01", ""), []string{"Dogbert", "Catbert"}))
	require.NoError(t, store.Upsert(ctx, record("2000-01-02", ""), []string{"Dogbert"}))

	all, err := store.AllTags(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Catbert", "Dogbert"}, all)

	strips, err := store.ComicsForTag(ctx, "Dogbert")
	require.NoError(t, err)
	require.Len(t, strips, 2)
	assert.Equal(t, "2000-01-01", strips[0].Date)
	assert.Equal(t, "2000-01-02", strips[1].Date)
}

func TestEmptyTagsAreSkipped(t *testing.T) {
	ctx := context.Background()
	store, _ := openTestStore(t)

	require.NoError(t, store.Upsert(ctx, record("2000-01-01", ""), []string{"", "  ", "#"}))
	all, err := store.AllTags(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCommitPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), DefaultFileName)

	store, err := Open(ctx, Config{Path: path}, nil)
	require.NoError(t, err)
	require.NoError(t, store.Upsert(ctx, record("1989-04-16", "first strip"), []string{"Dilbert"}))
	require.NoError(t, store.Commit(ctx))
	assert.Equal(t, 0, store.Pending())
	require.NoError(t, store.Upsert(ctx, record("1989-04-17", ""), nil))
	require.NoError(t, store.Close())

	reopened, err := Open(ctx, Config{Path: path}, nil)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	for _, date := range []string{"1989-04-16", "1989-04-17"} {
		exists, err := reopened.RecordExists(ctx, date)
		require.NoError(t, err)
		assert.True(t, exists, date)
	}
}

func TestCommitWithoutSessionIsNoop(t *testing.T) {
	store, _ := openTestStore(t)
	require.NoError(t, store.Commit(context.Background()))
}

func TestUpsertSurvivesCanceledContextAfterBegin(t *testing.T) {
	store, _ := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, store.Upsert(ctx, record("2000-01-01", ""), nil))
	cancel()
	require.NoError(t, store.Commit(context.Background()))

	exists, err := store.RecordExists(context.Background(), "2000-01-01")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestComicForDateNotFound(t *testing.T) {
	store, _ := openTestStore(t)
	_, err := store.ComicForDate(context.Background(), "2000-01-01")
	require.ErrorIs(t, err, comics.ErrNotFound)
}

func TestSearchTranscript(t *testing.T) {
	ctx := context.Background()
	store, _ := openTestStore(t)
	require.NoError(t, store.Upsert(ctx, record("2000-01-02", "The pointy-haired boss"), nil))
	require.NoError(t, store.Upsert(ctx, record("2000-01-01", "Dogbert consults"), nil))
	require.NoError(t, store.Upsert(ctx, record("2000-01-03", "boss again"), nil))

	got, err := store.SearchTranscript(ctx, "boss")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "2000-01-02", got[0].Date)
	assert.Equal(t, "2000-01-03", got[1].Date)
}

func TestSearchTranscriptTreatsWildcardsLiterally(t *testing.T) {
	ctx := context.Background()
	store, _ := openTestStore(t)
	require.NoError(t, store.Upsert(ctx, record("2000-01-01", "Raise productivity 100%"), nil))
	require.NoError(t, store.Upsert(ctx, record("2000-01-02", "Raise productivity 1000 times"), nil))
	require.NoError(t, store.Upsert(ctx, record("2000-01-03", "file_name.txt"), nil))
	require.NoError(t, store.Upsert(ctx, record("2000-01-04", "filename.txt"), nil))

	got, err := store.SearchTranscript(ctx, "100%")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "2000-01-01", got[0].Date)

	got, err = store.SearchTranscript(ctx, "file_")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "2000-01-03", got[0].Date)

	got, err = store.SearchTranscript(ctx, "%")
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestAddAndRemoveTag(t *testing.T) {
	ctx := context.Background()
	store, _ := openTestStore(t)
	require.NoError(t, store.Upsert(ctx, record("2000-01-01", ""), nil))

	require.ErrorIs(t, store.AddTag(ctx, "1999-12-31", "Ratbert"), comics.ErrNotFound)
	require.NoError(t, store.AddTag(ctx, "2000-01-01", "#Ratbert"))
	require.NoError(t, store.AddTag(ctx, "2000-01-01", "Ratbert"))

	tags, err := store.TagsForComic(ctx, "2000-01-01")
	require.NoError(t, err)
	assert.Equal(t, []string{"Ratbert"}, tags)

	require.NoError(t, store.RemoveTag(ctx, "2000-01-01", "Ratbert"))
	require.ErrorIs(t, store.RemoveTag(ctx, "2000-01-01", "Ratbert"), comics.ErrNotFound)

	all, err := store.AllTags(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Ratbert"}, all)
}

func TestRenameTag(t *testing.T) {
	ctx := context.Background()
	store, _ := openTestStore(t)
	require.NoError(t, store.Upsert(ctx, record("2000-01-01", ""), []string{"PHB", "Alice"}))

	require.ErrorIs(t, store.RenameTag(ctx, "Missing", "Other"), comics.ErrNotFound)
	require.ErrorIs(t, store.RenameTag(ctx, "PHB", "Alice"), comics.ErrTagExists)
	require.NoError(t, store.RenameTag(ctx, "PHB", "Pointy-Haired Boss"))

	tags, err := store.TagsForComic(ctx, "2000-01-01")
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice", "Pointy-Haired Boss"}, tags)
}

func TestStatsEmpty(t *testing.T) {
	store, _ := openTestStore(t)
	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, comics.Stats{}, stats)
}

func TestDSNIncludesPragmas(t *testing.T) {
	got := dsn(Config{Path: "/tmp/x.db"})
	assert.Contains(t, got, "file:/tmp/x.db?")
	assert.Contains(t, got, "busy_timeout%285000%29")
	assert.Contains(t, got, "foreign_keys%281%29")
}

package comics

import (
	"context"
	"time"
)

// Fetcher issues a single GET and classifies the outcome. It never retries.
type Fetcher interface {
	Fetch(ctx context.Context, url string) Response
}

// Store is the write side used by the pipeline.
type Store interface {
	RecordExists(ctx context.Context, date string) (bool, error)
	Upsert(ctx context.Context, record Record, tags []string) error
	Commit(ctx context.Context) error
	Close() error
}

// Catalog is the read and curation side used by the API and CLI.
type Catalog interface {
	AllTags(ctx context.Context) ([]string, error)
	TagsForComic(ctx context.Context, date string) ([]string, error)
	ComicsForTag(ctx context.Context, tag string) ([]Record, error)
	ComicForDate(ctx context.Context, date string) (Record, error)
	SearchTranscript(ctx context.Context, text string) ([]Record, error)
	AddTag(ctx context.Context, date, tag string) error
	RemoveTag(ctx context.Context, date, tag string) error
	RenameTag(ctx context.Context, oldName, newName string) error
	Stats(ctx context.Context) (Stats, error)
}

// AssetStore persists strip images by relative path.
type AssetStore interface {
	Exists(ctx context.Context, path string) (bool, error)
	Put(ctx context.Context, path string, data []byte) (string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}

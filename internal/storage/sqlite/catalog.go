package sqlite

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/JakeFAU/comic-archiver/internal/comics"
)

// AllTags lists every tag name alphabetically.
func (s *Store) AllTags(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := []string{}
	if err := sqlx.SelectContext(ctx, s.ext(), &names, allTagsSQL); err != nil {
		return nil, fmt.Errorf("all tags: %w", err)
	}
	return names, nil
}

// TagsForComic lists the tags linked to date.
func (s *Store) TagsForComic(ctx context.Context, date string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := []string{}
	if err := sqlx.SelectContext(ctx, s.ext(), &names, tagsForComicSQL, date); err != nil {
		return nil, fmt.Errorf("tags for %s: %w", date, err)
	}
	return names, nil
}

// ComicsForTag lists strips carrying tag, oldest first.
func (s *Store) ComicsForTag(ctx context.Context, tag string) ([]comics.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := []comics.Record{}
	if err := sqlx.SelectContext(ctx, s.ext(), &records, comicsForTagSQL, tag); err != nil {
		return nil, fmt.Errorf("comics for tag %q: %w", tag, err)
	}
	return records, nil
}

// ComicForDate returns the row for date or comics.ErrNotFound.
func (s *Store) ComicForDate(ctx context.Context, date string) (comics.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var record comics.Record
	if err := sqlx.GetContext(ctx, s.ext(), &record, comicForDateSQL, date); err != nil {
		if isNoRows(err) {
			return comics.Record{}, fmt.Errorf("comic %s: %w", date, comics.ErrNotFound)
		}
		return comics.Record{}, fmt.Errorf("comic %s: %w", date, err)
	}
	return record, nil
}

// SearchTranscript returns strips whose transcript contains text.
func (s *Store) SearchTranscript(ctx context.Context, text string) ([]comics.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := []comics.Record{}
	if err := sqlx.SelectContext(ctx, s.ext(), &records, searchTranscriptSQL, comics.ContainsPattern(text)); err != nil {
		return nil, fmt.Errorf("search transcript: %w", err)
	}
	return records, nil
}

// AddTag links tag to an existing strip, creating the tag if needed.
func (s *Store) AddTag(ctx context.Context, date, tag string) error {
	name := comics.NormalizeTag(tag)
	if name == "" {
		return fmt.Errorf("tag name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.ext()
	var exists bool
	if err := sqlx.GetContext(ctx, q, &exists, recordExistsSQL, date); err != nil {
		return fmt.Errorf("add tag: %w", err)
	}
	if !exists {
		return fmt.Errorf("add tag to %s: %w", date, comics.ErrNotFound)
	}
	id, err := upsertTag(ctx, q, name)
	if err != nil {
		return err
	}
	if _, err := q.ExecContext(ctx, linkTagSQL, date, id); err != nil {
		return fmt.Errorf("link tag %q: %w", name, err)
	}
	return nil
}

// RemoveTag unlinks tag from date. The tag itself is kept.
func (s *Store) RemoveTag(ctx context.Context, date, tag string) error {
	name := comics.NormalizeTag(tag)
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.ext().ExecContext(ctx, removeLinkSQL, date, name)
	if err != nil {
		return fmt.Errorf("remove tag %q from %s: %w", name, date, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove tag rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("tag %q on %s: %w", name, date, comics.ErrNotFound)
	}
	return nil
}

// RenameTag renames a tag everywhere it is linked.
func (s *Store) RenameTag(ctx context.Context, oldName, newName string) error {
	from, to := comics.NormalizeTag(oldName), comics.NormalizeTag(newName)
	if to == "" {
		return fmt.Errorf("new tag name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.ext()
	var id int64
	if err := sqlx.GetContext(ctx, q, &id, tagIDSQL, from); err != nil {
		if isNoRows(err) {
			return fmt.Errorf("tag %q: %w", from, comics.ErrNotFound)
		}
		return fmt.Errorf("rename tag: %w", err)
	}
	if from == to {
		return nil
	}
	err := sqlx.GetContext(ctx, q, &id, tagIDSQL, to)
	switch {
	case err == nil:
		return fmt.Errorf("tag %q: %w", to, comics.ErrTagExists)
	case !isNoRows(err):
		return fmt.Errorf("rename tag: %w", err)
	}
	if _, err := q.ExecContext(ctx, renameTagSQL, to, from); err != nil {
		return fmt.Errorf("rename tag %q: %w", from, err)
	}
	return nil
}

// Stats summarizes the catalog.
func (s *Store) Stats(ctx context.Context) (comics.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var stats comics.Stats
	if err := sqlx.GetContext(ctx, s.ext(), &stats, statsSQL); err != nil {
		return comics.Stats{}, fmt.Errorf("stats: %w", err)
	}
	return stats, nil
}

var _ comics.Catalog = (*Store)(nil)

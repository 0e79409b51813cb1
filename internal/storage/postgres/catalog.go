package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/comic-archiver/internal/comics"
)

// AllTags lists every tag name alphabetically.
func (s *Store) AllTags(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names, err := s.names(ctx, allTagsSQL)
	if err != nil {
		return nil, fmt.Errorf("all tags: %w", err)
	}
	return names, nil
}

// TagsForComic lists the tags linked to date.
func (s *Store) TagsForComic(ctx context.Context, date string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names, err := s.names(ctx, tagsForComicSQL, date)
	if err != nil {
		return nil, fmt.Errorf("tags for %s: %w", date, err)
	}
	return names, nil
}

func (s *Store) names(ctx context.Context, sql string, args ...any) ([]string, error) {
	rows, err := s.q().Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *Store) records(ctx context.Context, sql string, args ...any) ([]comics.Record, error) {
	rows, err := s.q().Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	records := []comics.Record{}
	for rows.Next() {
		var r comics.Record
		if err := rows.Scan(&r.Date, &r.ImagePath, &r.Transcript); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// ComicsForTag lists strips carrying tag, oldest first.
func (s *Store) ComicsForTag(ctx context.Context, tag string) ([]comics.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.records(ctx, comicsForTagSQL, tag)
	if err != nil {
		return nil, fmt.Errorf("comics for tag %q: %w", tag, err)
	}
	return records, nil
}

// ComicForDate returns the row for date or comics.ErrNotFound.
func (s *Store) ComicForDate(ctx context.Context, date string) (comics.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var r comics.Record
	err := s.q().QueryRow(ctx, comicForDateSQL, date).Scan(&r.Date, &r.ImagePath, &r.Transcript)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return comics.Record{}, fmt.Errorf("comic %s: %w", date, comics.ErrNotFound)
		}
		return comics.Record{}, fmt.Errorf("comic %s: %w", date, err)
	}
	return r, nil
}

// SearchTranscript returns strips whose transcript contains text, ignoring case.
func (s *Store) SearchTranscript(ctx context.Context, text string) ([]comics.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.records(ctx, searchTranscriptSQL, comics.ContainsPattern(text))
	if err != nil {
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

	q := s.q()
	var exists bool
	if err := q.QueryRow(ctx, recordExistsSQL, date).Scan(&exists); err != nil {
		return fmt.Errorf("add tag: %w", err)
	}
	if !exists {
		return fmt.Errorf("add tag to %s: %w", date, comics.ErrNotFound)
	}
	id, err := upsertTag(ctx, q, name)
	if err != nil {
		return err
	}
	if _, err := q.Exec(ctx, linkTagSQL, date, id); err != nil {
		return fmt.Errorf("link tag %q: %w", name, err)
	}
	return nil
}

// RemoveTag unlinks tag from date. The tag itself is kept.
func (s *Store) RemoveTag(ctx context.Context, date, tag string) error {
	name := comics.NormalizeTag(tag)
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.q().Exec(ctx, removeLinkSQL, date, name)
	if err != nil {
		return fmt.Errorf("remove tag %q from %s: %w", name, date, err)
	}
	if res.RowsAffected() == 0 {
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

	q := s.q()
	var id int64
	if err := q.QueryRow(ctx, tagIDSQL, from).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("tag %q: %w", from, comics.ErrNotFound)
		}
		return fmt.Errorf("rename tag: %w", err)
	}
	if from == to {
		return nil
	}
	err := q.QueryRow(ctx, tagIDSQL, to).Scan(&id)
	switch {
	case err == nil:
		return fmt.Errorf("tag %q: %w", to, comics.ErrTagExists)
	case !errors.Is(err, pgx.ErrNoRows):
		return fmt.Errorf("rename tag: %w", err)
	}
	if _, err := q.Exec(ctx, renameTagSQL, to, from); err != nil {
		return fmt.Errorf("rename tag %q: %w", from, err)
	}
	return nil
}

// Stats summarizes the catalog.
func (s *Store) Stats(ctx context.Context) (comics.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		st                  comics.Stats
		nComics, nTags, nLn int64
	)
	err := s.q().QueryRow(ctx, statsSQL).Scan(&nComics, &nTags, &nLn, &st.FirstDate, &st.LastDate)
	if err != nil {
		return comics.Stats{}, fmt.Errorf("stats: %w", err)
	}
	st.Comics, st.Tags, st.Links = int(nComics), int(nTags), int(nLn)
	return st, nil
}

var _ comics.Catalog = (*Store)(nil)

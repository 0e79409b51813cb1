package postgres

const savepoint = "comic_upsert"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS comics (
		date TEXT PRIMARY KEY,
		image_path TEXT,
		transcript TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS tags (
		id BIGSERIAL PRIMARY KEY,
		name TEXT UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS comic_tags (
		comic_date TEXT REFERENCES comics(date),
		tag_id BIGINT REFERENCES tags(id),
		PRIMARY KEY (comic_date, tag_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_comic_tags_tag_id ON comic_tags(tag_id)`,
}

const (
	upsertComicSQL = `INSERT INTO comics (date, image_path, transcript) VALUES ($1, $2, $3)
ON CONFLICT (date) DO UPDATE SET image_path = EXCLUDED.image_path, transcript = EXCLUDED.transcript`

	upsertTagSQL = `INSERT INTO tags (name) VALUES ($1)
ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name RETURNING id`

	linkTagSQL = `INSERT INTO comic_tags (comic_date, tag_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`

	recordExistsSQL = `SELECT EXISTS(SELECT 1 FROM comics WHERE date = $1)`

	allTagsSQL = `SELECT name FROM tags ORDER BY name ASC`

	tagsForComicSQL = `SELECT tags.name FROM tags
JOIN comic_tags ON comic_tags.tag_id = tags.id
WHERE comic_tags.comic_date = $1
ORDER BY tags.name`

	comicsForTagSQL = `SELECT comics.date, COALESCE(comics.image_path, ''), COALESCE(comics.transcript, '')
FROM comics
JOIN comic_tags ON comic_tags.comic_date = comics.date
JOIN tags ON tags.id = comic_tags.tag_id
WHERE tags.name = $1
ORDER BY comics.date`

	comicForDateSQL = `SELECT date, COALESCE(image_path, ''), COALESCE(transcript, '') FROM comics WHERE date = $1`

	searchTranscriptSQL = `SELECT date, COALESCE(image_path, ''), COALESCE(transcript, '')
FROM comics WHERE transcript ILIKE $1 ESCAPE '\' ORDER BY date`

	tagIDSQL = `SELECT id FROM tags WHERE name = $1`

	removeLinkSQL = `DELETE FROM comic_tags WHERE comic_date = $1 AND tag_id = (SELECT id FROM tags WHERE name = $2)`

	renameTagSQL = `UPDATE tags SET name = $1 WHERE name = $2`

	statsSQL = `SELECT
	(SELECT COUNT(*) FROM comics),
	(SELECT COUNT(*) FROM tags),
	(SELECT COUNT(*) FROM comic_tags),
	COALESCE((SELECT MIN(date) FROM comics), ''),
	COALESCE((SELECT MAX(date) FROM comics), '')`
)

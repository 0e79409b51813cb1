package sqlite

// schema is compatible with databases written by earlier downloader runs.
const schema = `
CREATE TABLE IF NOT EXISTS comics (
	date TEXT PRIMARY KEY,
	image_path TEXT,
	transcript TEXT
);

CREATE TABLE IF NOT EXISTS tags (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT UNIQUE
);

CREATE TABLE IF NOT EXISTS comic_tags (
	comic_date TEXT,
	tag_id INTEGER,
	PRIMARY KEY (comic_date, tag_id),
	FOREIGN KEY (comic_date) REFERENCES comics(date),
	FOREIGN KEY (tag_id) REFERENCES tags(id)
);

CREATE INDEX IF NOT EXISTS idx_comic_tags_tag_id ON comic_tags(tag_id);
`

const (
	upsertComicSQL = `INSERT INTO comics (date, image_path, transcript) VALUES (?, ?, ?)
ON CONFLICT(date) DO UPDATE SET image_path = excluded.image_path, transcript = excluded.transcript`

	upsertTagSQL = `INSERT INTO tags (name) VALUES (?)
ON CONFLICT(name) DO UPDATE SET name = excluded.name RETURNING id`

	linkTagSQL = `INSERT INTO comic_tags (comic_date, tag_id) VALUES (?, ?) ON CONFLICT DO NOTHING`

	recordExistsSQL = `SELECT EXISTS(SELECT 1 FROM comics WHERE date = ?)`

	allTagsSQL = `SELECT name FROM tags ORDER BY name ASC`

	tagsForComicSQL = `SELECT tags.name
FROM tags
JOIN comic_tags ON comic_tags.tag_id = tags.id
WHERE comic_tags.comic_date = ?
ORDER BY tags.name`

	comicsForTagSQL = `SELECT comics.date, COALESCE(comics.image_path, '') AS image_path, COALESCE(comics.transcript, '') AS transcript
FROM comics
JOIN comic_tags ON comic_tags.comic_date = comics.date
JOIN tags ON tags.id = comic_tags.tag_id
WHERE tags.name = ?
ORDER BY comics.date`

	comicForDateSQL = `SELECT date, COALESCE(image_path, '') AS image_path, COALESCE(transcript, '') AS transcript
FROM comics WHERE date = ?`

	searchTranscriptSQL = `SELECT date, COALESCE(image_path, '') AS image_path, COALESCE(transcript, '') AS transcript
FROM comics WHERE transcript LIKE ? ESCAPE '\' ORDER BY date`

	tagIDSQL = `SELECT id FROM tags WHERE name = ?`

	removeLinkSQL = `DELETE FROM comic_tags WHERE comic_date = ? AND tag_id = (SELECT id FROM tags WHERE name = ?)`

	renameTagSQL = `UPDATE tags SET name = ? WHERE name = ?`

	statsSQL = `SELECT
	(SELECT COUNT(*) FROM comics) AS comics,
	(SELECT COUNT(*) FROM tags) AS tags,
	(SELECT COUNT(*) FROM comic_tags) AS links,
	COALESCE((SELECT MIN(date) FROM comics), '') AS first_date,
	COALESCE((SELECT MAX(date) FROM comics), '') AS last_date`
)

//go:build !sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
	"strings"
)

// Without the sqlite_fts5 build tag the full-text projection degrades to a
// plain table searched with LIKE. Slower and unranked, but the same surface.
const ftsSchema = `
CREATE TABLE IF NOT EXISTS notes_fts (
	uid     TEXT PRIMARY KEY,
	title   TEXT NOT NULL,
	content TEXT NOT NULL
);
`

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(ftsSchema)
	return err
}

func ftsUpsert(tx *sql.Tx, uid, title, content string) error {
	if _, err := tx.Exec(
		`INSERT OR REPLACE INTO notes_fts (uid, title, content) VALUES (?, ?, ?)`,
		uid, title, content,
	); err != nil {
		return fmt.Errorf("index: fts insert: %w", err)
	}
	return nil
}

func ftsDelete(tx *sql.Tx, uid string) error {
	if _, err := tx.Exec(`DELETE FROM notes_fts WHERE uid = ?`, uid); err != nil {
		return fmt.Errorf("index: fts delete: %w", err)
	}
	return nil
}

// SearchFTS approximates full-text search with case-insensitive LIKE
// matching, title matches first.
func (db *DB) SearchFTS(query string, limit int) ([]FTSResult, error) {
	pattern := "%" + escapeLike(query) + "%"
	rows, err := db.conn.Query(
		`SELECT uid, title, substr(content, 1, 200)
		 FROM notes_fts
		 WHERE title LIKE ? ESCAPE '\' OR content LIKE ? ESCAPE '\'
		 ORDER BY (title LIKE ? ESCAPE '\') DESC, uid DESC LIMIT ?`,
		pattern, pattern, pattern, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("index: fts search: %w", err)
	}
	defer rows.Close()

	var results []FTSResult
	for rows.Next() {
		var r FTSResult
		if err := rows.Scan(&r.UID, &r.Title, &r.Snippet); err != nil {
			return nil, fmt.Errorf("index: scan fts result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("index: fts search: %w", err)
	}
	return results, nil
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

//go:build sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
)

const ftsSchema = `
CREATE VIRTUAL TABLE IF NOT EXISTS notes_fts USING fts5(
	uid UNINDEXED,
	title,
	content,
	tokenize = 'unicode61'
);
`

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(ftsSchema)
	return err
}

func ftsUpsert(tx *sql.Tx, uid, title, content string) error {
	if _, err := tx.Exec(`DELETE FROM notes_fts WHERE uid = ?`, uid); err != nil {
		return fmt.Errorf("index: fts delete: %w", err)
	}
	if _, err := tx.Exec(
		`INSERT INTO notes_fts (uid, title, content) VALUES (?, ?, ?)`,
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

// SearchFTS runs a ranked fts5 MATCH query with highlighted snippets.
func (db *DB) SearchFTS(query string, limit int) ([]FTSResult, error) {
	rows, err := db.conn.Query(
		`SELECT uid, title, snippet(notes_fts, 2, '<b>', '</b>', '...', 64)
		 FROM notes_fts WHERE notes_fts MATCH ? ORDER BY rank LIMIT ?`,
		query, limit,
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

package convo

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

type SQLiteLibrary struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLiteLibrary, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS contexts (
		name TEXT PRIMARY KEY,
		preamble TEXT NOT NULL,
		exchanges TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);`); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteLibrary{db: db}, nil
}

func (l *SQLiteLibrary) Get(name string) (ConversationContext, error) {
	var preamble, exchanges string
	err := l.db.QueryRow(`SELECT preamble, exchanges FROM contexts WHERE name=?`, name).Scan(&preamble, &exchanges)
	if errors.Is(err, sql.ErrNoRows) {
		return ConversationContext{}, fmt.Errorf("%w: %s", ErrContextNotFound, name)
	}
	if err != nil {
		return ConversationContext{}, err
	}
	c := ConversationContext{Name: name, Preamble: preamble}
	if err := json.Unmarshal([]byte(exchanges), &c.Exchanges); err != nil {
		return ConversationContext{}, fmt.Errorf("context %s: parse exchanges: %w", name, err)
	}
	return c, nil
}

func (l *SQLiteLibrary) Put(c ConversationContext) error {
	if err := ValidName(c.Name); err != nil {
		return err
	}
	ex := c.Exchanges
	if ex == nil {
		ex = []Exchange{}
	}
	b, err := json.Marshal(ex)
	if err != nil {
		return err
	}
	_, err = l.db.Exec(`INSERT INTO contexts(name, preamble, exchanges, updated_at) VALUES(?,?,?,?)
		ON CONFLICT(name) DO UPDATE SET preamble=excluded.preamble, exchanges=excluded.exchanges, updated_at=excluded.updated_at`,
		c.Name, c.Preamble, string(b), time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

func (l *SQLiteLibrary) Names() ([]string, error) {
	rows, err := l.db.Query(`SELECT name FROM contexts ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (l *SQLiteLibrary) Close() error {
	return l.db.Close()
}

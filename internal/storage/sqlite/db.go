package sqlite

import (
	"database/sql"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS prompt_token_baselines (
	prompt_name         TEXT PRIMARY KEY,
	baseline            INTEGER NOT NULL,
	last_adjusted_at    DATETIME NOT NULL,
	last_reason         TEXT DEFAULT '',
	last_correlation_id TEXT DEFAULT '',
	created_at          DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS escalation_runs (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	correlation_id  TEXT NOT NULL,
	prompt_name     TEXT NOT NULL,
	baseline_tokens INTEGER NOT NULL,
	final_tokens    INTEGER NOT NULL,
	attempts        INTEGER NOT NULL,
	escalations     INTEGER NOT NULL,
	outcome         TEXT NOT NULL,
	finish_reason   TEXT DEFAULT '',
	input_tokens    INTEGER DEFAULT 0,
	output_tokens   INTEGER DEFAULT 0,
	error_text      TEXT DEFAULT '',
	started_at      DATETIME NOT NULL,
	finished_at     DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_er_prompt ON escalation_runs(prompt_name);
CREATE INDEX IF NOT EXISTS idx_er_started ON escalation_runs(started_at);
`

// InitDB opens the database at path and applies the schema.
func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, err
	}
	// One connection serializes writers inside the process; busy_timeout
	// covers other processes sharing the file.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func dsn(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	return path + "?_busy_timeout=5000"
}

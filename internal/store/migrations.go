package store

import "database/sql"

// migration is one forward-only schema step. Versions are applied in order
// and recorded in schema_migrations so a restart never re-applies a step —
// spec.md §6 requires the schema be "versioned" with "forward migrations
// only".
type migration struct {
	version int
	name    string
	stmts   []string
}

var migrations = []migration{
	{
		version: 1,
		name:    "initial_schema",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS instances (
				instance_id    TEXT PRIMARY KEY,
				name           TEXT NOT NULL,
				base_url       TEXT NOT NULL,
				api_key_enc    TEXT NOT NULL DEFAULT '',
				enabled        INTEGER NOT NULL DEFAULT 1,
				status         TEXT NOT NULL DEFAULT 'INITIALIZING',
				last_error     TEXT NOT NULL DEFAULT '',
				last_active_ts DATETIME,
				config_json    TEXT NOT NULL DEFAULT '{}',
				created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			)`,
			`CREATE TABLE IF NOT EXISTS listeners (
				instance_id          TEXT NOT NULL,
				chat_name            TEXT NOT NULL,
				added_ts             DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				last_message_ts      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				marked_for_removal   INTEGER NOT NULL DEFAULT 0,
				manual               INTEGER NOT NULL DEFAULT 0,
				conversation_started INTEGER NOT NULL DEFAULT 0,
				fixed                INTEGER NOT NULL DEFAULT 0,
				state                TEXT NOT NULL DEFAULT 'INACTIVE',
				PRIMARY KEY (instance_id, chat_name)
			)`,
			`CREATE TABLE IF NOT EXISTS messages (
				message_id        TEXT PRIMARY KEY,
				instance_id       TEXT NOT NULL,
				chat_name         TEXT NOT NULL,
				sender            TEXT NOT NULL DEFAULT '',
				sender_remark     TEXT NOT NULL DEFAULT '',
				content           TEXT NOT NULL DEFAULT '',
				mtype             TEXT NOT NULL DEFAULT 'text',
				content_hash      TEXT NOT NULL DEFAULT '',
				local_file_path   TEXT NOT NULL DEFAULT '',
				received_ts       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				delivery_status   TEXT NOT NULL DEFAULT 'PENDING',
				delivery_attempts INTEGER NOT NULL DEFAULT 0,
				reply_content     TEXT NOT NULL DEFAULT '',
				reply_status      TEXT NOT NULL DEFAULT '',
				delivering_since  DATETIME
			)`,
			`CREATE INDEX IF NOT EXISTS idx_messages_dedup ON messages(instance_id, chat_name, sender, content_hash, received_ts)`,
			`CREATE INDEX IF NOT EXISTS idx_messages_status ON messages(delivery_status, received_ts)`,
			`CREATE INDEX IF NOT EXISTS idx_messages_chat ON messages(instance_id, chat_name, received_ts)`,
			`CREATE TABLE IF NOT EXISTS platforms (
				platform_id TEXT PRIMARY KEY,
				name        TEXT NOT NULL,
				kind        TEXT NOT NULL,
				config_enc  TEXT NOT NULL DEFAULT '',
				enabled     INTEGER NOT NULL DEFAULT 1,
				created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			)`,
			`CREATE TABLE IF NOT EXISTS rules (
				rule_id          TEXT PRIMARY KEY,
				name             TEXT NOT NULL,
				instance_id      TEXT NOT NULL DEFAULT '*',
				chat_pattern     TEXT NOT NULL DEFAULT '*',
				platform_id      TEXT NOT NULL,
				priority         INTEGER NOT NULL DEFAULT 0,
				enabled          INTEGER NOT NULL DEFAULT 1,
				only_at_messages INTEGER NOT NULL DEFAULT 0,
				created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			)`,
			`CREATE TABLE IF NOT EXISTS delivery_attempts (
				id          INTEGER PRIMARY KEY AUTOINCREMENT,
				message_id  TEXT NOT NULL,
				platform_id TEXT NOT NULL DEFAULT '',
				rule_id     TEXT NOT NULL DEFAULT '',
				attempt     INTEGER NOT NULL DEFAULT 1,
				outcome     TEXT NOT NULL,
				error       TEXT NOT NULL DEFAULT '',
				latency_ms  INTEGER NOT NULL DEFAULT 0,
				created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			)`,
			`CREATE INDEX IF NOT EXISTS idx_delivery_attempts_msg ON delivery_attempts(message_id)`,
			`CREATE TABLE IF NOT EXISTS config_entries (
				key        TEXT PRIMARY KEY,
				value      TEXT NOT NULL DEFAULT '',
				encrypted  INTEGER NOT NULL DEFAULT 0,
				updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			)`,
		},
	},
}

func applyMigrations(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version     INTEGER PRIMARY KEY,
		name        TEXT NOT NULL,
		applied_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return err
	}

	applied := map[int]bool{}
	rows, err := db.Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return err
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return err
		}
		applied[v] = true
	}
	rows.Close()

	for _, m := range migrations {
		if applied[m.version] {
			continue
		}
		tx, err := db.Begin()
		if err != nil {
			return err
		}
		for _, stmt := range m.stmts {
			if _, err := tx.Exec(stmt); err != nil {
				tx.Rollback()
				return err
			}
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (version, name) VALUES (?, ?)`, m.version, m.name); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

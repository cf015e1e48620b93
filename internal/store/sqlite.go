package store

import (
	"database/sql"
	"encoding/json"
	"time"

	_ "modernc.org/sqlite"

	"github.com/zj591227045/wxauto-mgt/internal/cryptobox"
)

// SQLiteStore implements Store with modernc.org/sqlite (pure Go, no cgo),
// the teacher's own choice of driver for an embedded management database.
// Per the design note that "the store API transparently decrypts on read
// for authorized components", SQLiteStore owns the master-key Box and
// seals/opens Instance.APIKey and Platform.Config itself; callers never
// see ciphertext.
type SQLiteStore struct {
	db   *sql.DB
	box  *cryptobox.Box // nil means secrets round-trip as plaintext (tests, key not yet provisioned)
	path string
}

// Path returns the path the store was opened with (":memory:" for an
// in-memory database). Used by the management API's system
// resources endpoint to report database size.
func (s *SQLiteStore) Path() string { return s.path }

// Open creates or opens a SQLite database at path and enables WAL mode so
// the HTTP API's readers don't block the ingest/dispatch writers. box may
// be nil, in which case API keys and platform config are stored as
// plaintext JSON rather than ciphertext — callers outside tests should
// always provide one.
func Open(path string, box *cryptobox.Box) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db, box: box, path: path}, nil
}

// seal encrypts plaintext for storage, or passes it through unchanged when
// no box is configured.
func (s *SQLiteStore) seal(plaintext string) (string, error) {
	if s.box == nil {
		return plaintext, nil
	}
	return s.box.Seal(plaintext)
}

// open decrypts a value sealed by seal, or passes it through unchanged
// when no box is configured.
func (s *SQLiteStore) open(ciphertext string) (string, error) {
	if s.box == nil {
		return ciphertext, nil
	}
	return s.box.Open(ciphertext)
}

func (s *SQLiteStore) Init() error {
	return applyMigrations(s.db)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Instances ---------------------------------------------------------

func (s *SQLiteStore) UpsertInstance(i Instance) error {
	cfg, err := json.Marshal(i.Config)
	if err != nil {
		return err
	}
	apiKeyEnc, err := s.seal(i.APIKey)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO instances (instance_id, name, base_url, api_key_enc, enabled, status, last_error, last_active_ts, config_json, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, COALESCE((SELECT created_at FROM instances WHERE instance_id = ?), CURRENT_TIMESTAMP), CURRENT_TIMESTAMP)
		 ON CONFLICT(instance_id) DO UPDATE SET
		   name=excluded.name, base_url=excluded.base_url, api_key_enc=excluded.api_key_enc,
		   enabled=excluded.enabled, status=excluded.status, last_error=excluded.last_error,
		   last_active_ts=excluded.last_active_ts, config_json=excluded.config_json, updated_at=CURRENT_TIMESTAMP`,
		i.InstanceID, i.Name, i.BaseURL, apiKeyEnc, i.Enabled, i.Status, i.LastError, nullableTime(i.LastActiveTS), string(cfg), i.InstanceID,
	)
	return err
}

func (s *SQLiteStore) GetInstance(instanceID string) (Instance, error) {
	row := s.db.QueryRow(
		`SELECT instance_id, name, base_url, api_key_enc, enabled, status, last_error, last_active_ts, config_json, created_at, updated_at
		 FROM instances WHERE instance_id = ?`, instanceID,
	)
	return s.scanInstance(row)
}

func (s *SQLiteStore) ListInstances() ([]Instance, error) {
	rows, err := s.db.Query(
		`SELECT instance_id, name, base_url, api_key_enc, enabled, status, last_error, last_active_ts, config_json, created_at, updated_at
		 FROM instances ORDER BY instance_id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Instance
	for rows.Next() {
		inst, err := s.scanInstance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteInstance(instanceID string) error {
	_, err := s.db.Exec(`DELETE FROM instances WHERE instance_id = ?`, instanceID)
	return err
}

func (s *SQLiteStore) SetInstanceStatus(instanceID string, status InstanceStatus, lastError string) error {
	_, err := s.db.Exec(
		`UPDATE instances SET status = ?, last_error = ?, updated_at = CURRENT_TIMESTAMP WHERE instance_id = ?`,
		status, lastError, instanceID,
	)
	return err
}

func (s *SQLiteStore) TouchInstance(instanceID string, at time.Time) error {
	_, err := s.db.Exec(`UPDATE instances SET last_active_ts = ? WHERE instance_id = ?`, at, instanceID)
	return err
}

type scannable interface {
	Scan(dest ...any) error
}

func (s *SQLiteStore) scanInstance(row scannable) (Instance, error) {
	var i Instance
	var apiKeyEnc, cfg string
	var lastActive sql.NullTime
	if err := row.Scan(
		&i.InstanceID, &i.Name, &i.BaseURL, &apiKeyEnc, &i.Enabled, &i.Status,
		&i.LastError, &lastActive, &cfg, &i.CreatedAt, &i.UpdatedAt,
	); err != nil {
		return Instance{}, err
	}
	if lastActive.Valid {
		i.LastActiveTS = lastActive.Time
	}
	if cfg != "" {
		if err := json.Unmarshal([]byte(cfg), &i.Config); err != nil {
			return Instance{}, err
		}
	}
	apiKey, err := s.open(apiKeyEnc)
	if err != nil {
		return Instance{}, err
	}
	i.APIKey = apiKey
	i.APIKeyEnc = apiKeyEnc
	i.APIKeyRedacted = "********"
	return i, nil
}

// --- Listeners -----------------------------------------------------------

func (s *SQLiteStore) UpsertListener(l Listener) error {
	_, err := s.db.Exec(
		`INSERT INTO listeners (instance_id, chat_name, added_ts, last_message_ts, marked_for_removal, manual, conversation_started, fixed, state)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(instance_id, chat_name) DO UPDATE SET
		   last_message_ts=excluded.last_message_ts, marked_for_removal=excluded.marked_for_removal,
		   manual=excluded.manual, conversation_started=excluded.conversation_started,
		   fixed=excluded.fixed, state=excluded.state`,
		l.InstanceID, l.ChatName, l.AddedTS, l.LastMessageTS, l.MarkedForRemoval, l.Manual,
		l.ConversationStarted, l.Fixed, l.State,
	)
	return err
}

func (s *SQLiteStore) GetListener(instanceID, chatName string) (Listener, error) {
	row := s.db.QueryRow(
		`SELECT instance_id, chat_name, added_ts, last_message_ts, marked_for_removal, manual, conversation_started, fixed, state
		 FROM listeners WHERE instance_id = ? AND chat_name = ?`, instanceID, chatName,
	)
	return scanListener(row)
}

func (s *SQLiteStore) ListListeners(instanceID string) ([]Listener, error) {
	rows, err := s.db.Query(
		`SELECT instance_id, chat_name, added_ts, last_message_ts, marked_for_removal, manual, conversation_started, fixed, state
		 FROM listeners WHERE instance_id = ? ORDER BY chat_name`, instanceID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectListeners(rows)
}

func (s *SQLiteStore) ListAllListeners() ([]Listener, error) {
	rows, err := s.db.Query(
		`SELECT instance_id, chat_name, added_ts, last_message_ts, marked_for_removal, manual, conversation_started, fixed, state
		 FROM listeners ORDER BY instance_id, chat_name`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectListeners(rows)
}

func collectListeners(rows *sql.Rows) ([]Listener, error) {
	var out []Listener
	for rows.Next() {
		l, err := scanListener(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func scanListener(row scannable) (Listener, error) {
	var l Listener
	if err := row.Scan(
		&l.InstanceID, &l.ChatName, &l.AddedTS, &l.LastMessageTS, &l.MarkedForRemoval,
		&l.Manual, &l.ConversationStarted, &l.Fixed, &l.State,
	); err != nil {
		return Listener{}, err
	}
	return l, nil
}

func (s *SQLiteStore) CountListeners(instanceID string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM listeners WHERE instance_id = ? AND state != ?`, instanceID, ListenerRemoved).Scan(&n)
	return n, err
}

func (s *SQLiteStore) DeleteListener(instanceID, chatName string) error {
	_, err := s.db.Exec(`DELETE FROM listeners WHERE instance_id = ? AND chat_name = ?`, instanceID, chatName)
	return err
}

func (s *SQLiteStore) TouchListener(instanceID, chatName string, at time.Time) error {
	_, err := s.db.Exec(
		`UPDATE listeners SET last_message_ts = ? WHERE instance_id = ? AND chat_name = ?`,
		at, instanceID, chatName,
	)
	return err
}

func (s *SQLiteStore) MarkListenerForRemoval(instanceID, chatName string) error {
	_, err := s.db.Exec(
		`UPDATE listeners SET marked_for_removal = 1, state = ? WHERE instance_id = ? AND chat_name = ?`,
		ListenerMarkedForRemoval, instanceID, chatName,
	)
	return err
}

// --- Messages --------------------------------------------------------------

func (s *SQLiteStore) InsertMessage(m Message) error {
	_, err := s.db.Exec(
		`INSERT INTO messages (message_id, instance_id, chat_name, sender, sender_remark, content, mtype, content_hash, local_file_path, received_ts, delivery_status, delivery_attempts, reply_content, reply_status, delivering_since)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.MessageID, m.InstanceID, m.ChatName, m.Sender, m.SenderRemark, m.Content, m.MType,
		m.ContentHash, m.LocalFilePath, m.ReceivedTS, m.DeliveryStatus, m.DeliveryAttempts,
		m.ReplyContent, m.ReplyStatus, nullableTimePtr(m.DeliveringSince),
	)
	return err
}

func (s *SQLiteStore) FindRecentByHash(instanceID, chatName, sender, hash string, since time.Time) (bool, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM messages
		 WHERE instance_id = ? AND chat_name = ? AND sender = ? AND content_hash = ? AND received_ts >= ?`,
		instanceID, chatName, sender, hash, since,
	).Scan(&n)
	return n > 0, err
}

func (s *SQLiteStore) GetMessage(messageID string) (Message, error) {
	row := s.db.QueryRow(
		`SELECT message_id, instance_id, chat_name, sender, sender_remark, content, mtype, content_hash, local_file_path, received_ts, delivery_status, delivery_attempts, reply_content, reply_status, delivering_since
		 FROM messages WHERE message_id = ?`, messageID,
	)
	return scanMessage(row)
}

func (s *SQLiteStore) ListPending(limit int, now time.Time) ([]Message, error) {
	rows, err := s.db.Query(
		`SELECT message_id, instance_id, chat_name, sender, sender_remark, content, mtype, content_hash, local_file_path, received_ts, delivery_status, delivery_attempts, reply_content, reply_status, delivering_since
		 FROM messages WHERE delivery_status = ? ORDER BY received_ts ASC LIMIT ?`,
		DeliveryPending, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) MarkDelivering(messageID string, at time.Time) error {
	_, err := s.db.Exec(
		`UPDATE messages SET delivery_status = ?, delivering_since = ?, delivery_attempts = delivery_attempts + 1 WHERE message_id = ?`,
		DeliveryDelivering, at, messageID,
	)
	return err
}

func (s *SQLiteStore) MarkDelivered(messageID, reply string) error {
	_, err := s.db.Exec(
		`UPDATE messages SET delivery_status = ?, reply_content = ?, reply_status = 'ok', delivering_since = NULL WHERE message_id = ?`,
		DeliveryDelivered, reply, messageID,
	)
	return err
}

func (s *SQLiteStore) MarkFailed(messageID, errMsg string, retryable bool) error {
	status := DeliveryFailed
	if retryable {
		status = DeliveryPending
	}
	_, err := s.db.Exec(
		`UPDATE messages SET delivery_status = ?, reply_status = ?, delivering_since = NULL WHERE message_id = ?`,
		status, errMsg, messageID,
	)
	return err
}

func (s *SQLiteStore) SkipMessage(messageID, reason string) error {
	_, err := s.db.Exec(
		`UPDATE messages SET delivery_status = ?, reply_status = ?, delivering_since = NULL WHERE message_id = ?`,
		DeliverySkipped, reason, messageID,
	)
	return err
}

func (s *SQLiteStore) ReclaimStaleDelivering(olderThan time.Time) (int, error) {
	res, err := s.db.Exec(
		`UPDATE messages SET delivery_status = ?, delivering_since = NULL
		 WHERE delivery_status = ? AND delivering_since IS NOT NULL AND delivering_since < ?`,
		DeliveryPending, DeliveryDelivering, olderThan,
	)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *SQLiteStore) PendingCounts() (PendingCounts, error) {
	rows, err := s.db.Query(`SELECT delivery_status, COUNT(*) FROM messages GROUP BY delivery_status`)
	if err != nil {
		return PendingCounts{}, err
	}
	defer rows.Close()

	var c PendingCounts
	for rows.Next() {
		var status DeliveryStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return PendingCounts{}, err
		}
		switch status {
		case DeliveryPending:
			c.Pending = n
		case DeliveryDelivering:
			c.Delivering = n
		case DeliveryDelivered:
			c.Delivered = n
		case DeliveryFailed:
			c.Failed = n
		case DeliverySkipped:
			c.Skipped = n
		}
	}
	return c, rows.Err()
}

func (s *SQLiteStore) ListMessages(instanceID, chatName string, since time.Time, limit int) ([]Message, error) {
	rows, err := s.db.Query(
		`SELECT message_id, instance_id, chat_name, sender, sender_remark, content, mtype, content_hash, local_file_path, received_ts, delivery_status, delivery_attempts, reply_content, reply_status, delivering_since
		 FROM messages WHERE instance_id = ? AND chat_name = ? AND received_ts >= ?
		 ORDER BY received_ts DESC LIMIT ?`,
		instanceID, chatName, since, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanMessage(row scannable) (Message, error) {
	var m Message
	var deliveringSince sql.NullTime
	if err := row.Scan(
		&m.MessageID, &m.InstanceID, &m.ChatName, &m.Sender, &m.SenderRemark, &m.Content,
		&m.MType, &m.ContentHash, &m.LocalFilePath, &m.ReceivedTS, &m.DeliveryStatus,
		&m.DeliveryAttempts, &m.ReplyContent, &m.ReplyStatus, &deliveringSince,
	); err != nil {
		return Message{}, err
	}
	if deliveringSince.Valid {
		t := deliveringSince.Time
		m.DeliveringSince = &t
	}
	return m, nil
}

// --- Platforms ---------------------------------------------------------

func (s *SQLiteStore) UpsertPlatform(p Platform) error {
	cfg, err := json.Marshal(p.Config)
	if err != nil {
		return err
	}
	configEnc, err := s.seal(string(cfg))
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO platforms (platform_id, name, kind, config_enc, enabled, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, COALESCE((SELECT created_at FROM platforms WHERE platform_id = ?), CURRENT_TIMESTAMP), CURRENT_TIMESTAMP)
		 ON CONFLICT(platform_id) DO UPDATE SET
		   name=excluded.name, kind=excluded.kind, config_enc=excluded.config_enc,
		   enabled=excluded.enabled, updated_at=CURRENT_TIMESTAMP`,
		p.PlatformID, p.Name, p.Kind, configEnc, p.Enabled, p.PlatformID,
	)
	return err
}

func (s *SQLiteStore) GetPlatform(platformID string) (Platform, error) {
	row := s.db.QueryRow(
		`SELECT platform_id, name, kind, config_enc, enabled, created_at, updated_at FROM platforms WHERE platform_id = ?`,
		platformID,
	)
	return s.scanPlatform(row)
}

func (s *SQLiteStore) ListPlatforms() ([]Platform, error) {
	rows, err := s.db.Query(
		`SELECT platform_id, name, kind, config_enc, enabled, created_at, updated_at FROM platforms ORDER BY platform_id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Platform
	for rows.Next() {
		p, err := s.scanPlatform(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeletePlatform(platformID string) error {
	_, err := s.db.Exec(`DELETE FROM platforms WHERE platform_id = ?`, platformID)
	return err
}

func (s *SQLiteStore) scanPlatform(row scannable) (Platform, error) {
	var p Platform
	var configEnc string
	if err := row.Scan(&p.PlatformID, &p.Name, &p.Kind, &configEnc, &p.Enabled, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return Platform{}, err
	}
	cfg, err := s.open(configEnc)
	if err != nil {
		return Platform{}, err
	}
	p.ConfigEnc = configEnc
	if cfg != "" {
		if err := json.Unmarshal([]byte(cfg), &p.Config); err != nil {
			return Platform{}, err
		}
	}
	return p, nil
}

// --- Rules ---------------------------------------------------------------

func (s *SQLiteStore) UpsertRule(r Rule) error {
	_, err := s.db.Exec(
		`INSERT INTO rules (rule_id, name, instance_id, chat_pattern, platform_id, priority, enabled, only_at_messages, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, COALESCE((SELECT created_at FROM rules WHERE rule_id = ?), CURRENT_TIMESTAMP), CURRENT_TIMESTAMP)
		 ON CONFLICT(rule_id) DO UPDATE SET
		   name=excluded.name, instance_id=excluded.instance_id, chat_pattern=excluded.chat_pattern,
		   platform_id=excluded.platform_id, priority=excluded.priority, enabled=excluded.enabled,
		   only_at_messages=excluded.only_at_messages, updated_at=CURRENT_TIMESTAMP`,
		r.RuleID, r.Name, r.InstanceID, r.ChatPattern, r.PlatformID, r.Priority, r.Enabled, r.OnlyAtMessages, r.RuleID,
	)
	return err
}

func (s *SQLiteStore) GetRule(ruleID string) (Rule, error) {
	row := s.db.QueryRow(
		`SELECT rule_id, name, instance_id, chat_pattern, platform_id, priority, enabled, only_at_messages, created_at, updated_at
		 FROM rules WHERE rule_id = ?`, ruleID,
	)
	return scanRule(row)
}

func (s *SQLiteStore) ListRules() ([]Rule, error) {
	rows, err := s.db.Query(
		`SELECT rule_id, name, instance_id, chat_pattern, platform_id, priority, enabled, only_at_messages, created_at, updated_at
		 FROM rules ORDER BY priority DESC, rule_id ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRules(rows)
}

func (s *SQLiteStore) ListEnabledRules() ([]Rule, error) {
	rows, err := s.db.Query(
		`SELECT rule_id, name, instance_id, chat_pattern, platform_id, priority, enabled, only_at_messages, created_at, updated_at
		 FROM rules WHERE enabled = 1 ORDER BY priority DESC, rule_id ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRules(rows)
}

func collectRules(rows *sql.Rows) ([]Rule, error) {
	var out []Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteRule(ruleID string) error {
	_, err := s.db.Exec(`DELETE FROM rules WHERE rule_id = ?`, ruleID)
	return err
}

func scanRule(row scannable) (Rule, error) {
	var r Rule
	if err := row.Scan(
		&r.RuleID, &r.Name, &r.InstanceID, &r.ChatPattern, &r.PlatformID, &r.Priority,
		&r.Enabled, &r.OnlyAtMessages, &r.CreatedAt, &r.UpdatedAt,
	); err != nil {
		return Rule{}, err
	}
	return r, nil
}

// --- Delivery ledger ---------------------------------------------------

func (s *SQLiteStore) InsertDeliveryAttempt(a DeliveryAttempt) error {
	_, err := s.db.Exec(
		`INSERT INTO delivery_attempts (message_id, platform_id, rule_id, attempt, outcome, error, latency_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.MessageID, a.PlatformID, a.RuleID, a.Attempt, a.Outcome, a.Error, a.LatencyMs,
	)
	return err
}

func (s *SQLiteStore) ListDeliveryAttempts(messageID string) ([]DeliveryAttempt, error) {
	rows, err := s.db.Query(
		`SELECT id, message_id, platform_id, rule_id, attempt, outcome, error, latency_ms, created_at
		 FROM delivery_attempts WHERE message_id = ? ORDER BY id ASC`, messageID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DeliveryAttempt
	for rows.Next() {
		var a DeliveryAttempt
		if err := rows.Scan(&a.ID, &a.MessageID, &a.PlatformID, &a.RuleID, &a.Attempt, &a.Outcome, &a.Error, &a.LatencyMs, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// --- Config registry backing store -------------------------------------

func (s *SQLiteStore) SetConfig(key, value string, encrypted bool) error {
	_, err := s.db.Exec(
		`INSERT INTO config_entries (key, value, encrypted, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value, encrypted=excluded.encrypted, updated_at=CURRENT_TIMESTAMP`,
		key, value, encrypted,
	)
	return err
}

func (s *SQLiteStore) GetConfig(key string) (ConfigEntry, error) {
	var c ConfigEntry
	err := s.db.QueryRow(`SELECT key, value, encrypted, updated_at FROM config_entries WHERE key = ?`, key).
		Scan(&c.Key, &c.Value, &c.Encrypted, &c.UpdatedAt)
	return c, err
}

func (s *SQLiteStore) ListConfig() ([]ConfigEntry, error) {
	rows, err := s.db.Query(`SELECT key, value, encrypted, updated_at FROM config_entries ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ConfigEntry
	for rows.Next() {
		var c ConfigEntry
		if err := rows.Scan(&c.Key, &c.Value, &c.Encrypted, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func nullableTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

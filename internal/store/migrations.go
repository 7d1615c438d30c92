package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS mailboxes (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	group_name    TEXT NOT NULL DEFAULT '',
	provider      TEXT NOT NULL,
	host          TEXT NOT NULL,
	port          INTEGER NOT NULL,
	tls           INTEGER NOT NULL DEFAULT 1,
	username      TEXT NOT NULL DEFAULT '',
	read_only     INTEGER NOT NULL DEFAULT 0,
	uid_validity  INTEGER NOT NULL DEFAULT 0,
	last_seen_uid INTEGER NOT NULL DEFAULT 0,
	last_pass_at  DATETIME,
	last_error    TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS topics (
	id         TEXT PRIMARY KEY,
	mailbox_id TEXT NOT NULL REFERENCES mailboxes(id) ON DELETE CASCADE,
	title      TEXT NOT NULL,
	archived   INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS posts (
	id          TEXT PRIMARY KEY,
	topic_id    TEXT NOT NULL REFERENCES topics(id) ON DELETE CASCADE,
	post_number INTEGER NOT NULL,
	author      TEXT NOT NULL DEFAULT '',
	body        TEXT NOT NULL DEFAULT '',
	message_id  TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL,
	UNIQUE (topic_id, post_number)
);

CREATE TABLE IF NOT EXISTS incoming_messages (
	id           TEXT PRIMARY KEY,
	mailbox_id   TEXT NOT NULL REFERENCES mailboxes(id) ON DELETE CASCADE,
	uid_validity INTEGER NOT NULL,
	uid          INTEGER NOT NULL,
	message_id   TEXT NOT NULL DEFAULT '',
	topic_id     TEXT NOT NULL REFERENCES topics(id) ON DELETE CASCADE,
	post_id      TEXT NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
	post_number  INTEGER NOT NULL,
	sync_enabled INTEGER NOT NULL DEFAULT 0,
	raw_key      TEXT NOT NULL DEFAULT '',
	created_at   DATETIME NOT NULL,
	UNIQUE (mailbox_id, uid_validity, uid)
);

CREATE TABLE IF NOT EXISTS tags (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS topic_tags (
	topic_id TEXT NOT NULL REFERENCES topics(id) ON DELETE CASCADE,
	tag_id   TEXT NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
	PRIMARY KEY (topic_id, tag_id)
);

CREATE INDEX IF NOT EXISTS idx_posts_message_id ON posts(message_id);
CREATE INDEX IF NOT EXISTS idx_incoming_message_id ON incoming_messages(mailbox_id, message_id);
CREATE INDEX IF NOT EXISTS idx_incoming_topic ON incoming_messages(topic_id);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}

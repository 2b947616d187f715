package postgres

// schemaSQL creates the persisted schema, plus the additive
// lease_owner/leased_at columns the stuck-task sweep needs (see
// DESIGN.md "Open Question decisions").
const schemaSQL = `
CREATE TABLE IF NOT EXISTS tasks (
	task_id     TEXT PRIMARY KEY,
	user_id     TEXT,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	params      JSONB NOT NULL,
	status      JSONB NOT NULL,
	is_pending  BOOLEAN NOT NULL,
	lease_owner TEXT,
	leased_at   TIMESTAMPTZ,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS tasks_is_pending_idx ON tasks (is_pending, created_at);
CREATE INDEX IF NOT EXISTS tasks_user_id_idx ON tasks (user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS task_assets (
	task_id  TEXT NOT NULL REFERENCES tasks (task_id),
	asset_id TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS task_assets_task_id_idx ON task_assets (task_id, asset_id);

CREATE TABLE IF NOT EXISTS chat_messages (
	task_id       TEXT NOT NULL REFERENCES tasks (task_id),
	message_id    TEXT NOT NULL,
	content       TEXT NOT NULL,
	role          TEXT NOT NULL,
	message_index INT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (task_id, message_index)
);

CREATE TABLE IF NOT EXISTS users (
	id    TEXT PRIMARY KEY,
	email TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS workers (
	owner_id     TEXT PRIMARY KEY,
	last_ping_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

package storage

// The schema sticks to types both sqlite and postgres accept so one DDL serves both drivers.
const schema = `
CREATE TABLE IF NOT EXISTS cases (
	id               TEXT PRIMARY KEY,
	external_id      TEXT NOT NULL,
	dataset          TEXT NOT NULL,
	tier             TEXT NOT NULL,
	category_code    TEXT NOT NULL,
	sub_code         TEXT NOT NULL DEFAULT '',
	label            TEXT NOT NULL,
	scenario         TEXT NOT NULL,
	claim            TEXT NOT NULL DEFAULT '',
	variables_json   TEXT NOT NULL DEFAULT '{}',
	causal_structure TEXT NOT NULL DEFAULT '',
	key_insight      TEXT NOT NULL DEFAULT '',
	rationale        TEXT NOT NULL DEFAULT '',
	wise_answer      TEXT NOT NULL DEFAULT '',
	hidden_question  TEXT NOT NULL DEFAULT '',
	resolution_a     TEXT,
	resolution_b     TEXT,
	difficulty       TEXT NOT NULL DEFAULT '',
	author           TEXT NOT NULL DEFAULT '',
	source_prompt    TEXT NOT NULL DEFAULT '',
	status           TEXT NOT NULL,
	rubric_json      TEXT,
	is_verified      INTEGER NOT NULL DEFAULT 0,
	created_at       TEXT NOT NULL,
	updated_at       TEXT NOT NULL,
	UNIQUE (dataset, external_id)
);

CREATE INDEX IF NOT EXISTS cases_cell_idx ON cases (dataset, tier, category_code, sub_code);
CREATE INDEX IF NOT EXISTS cases_status_idx ON cases (status);

CREATE TABLE IF NOT EXISTS evaluations (
	id               TEXT PRIMARY KEY,
	case_id          TEXT NOT NULL,
	seq              INTEGER NOT NULL,
	verdict          TEXT NOT NULL,
	confidence       DOUBLE PRECISION NOT NULL DEFAULT 0,
	assessments_json TEXT NOT NULL DEFAULT '{}',
	flag_ambiguity   INTEGER NOT NULL DEFAULT 0,
	flag_logical     INTEGER NOT NULL DEFAULT 0,
	flag_domain      INTEGER NOT NULL DEFAULT 0,
	notes            TEXT NOT NULL DEFAULT '',
	source           TEXT NOT NULL,
	reviewer         TEXT NOT NULL DEFAULT '',
	created_at       TEXT NOT NULL,
	UNIQUE (case_id, seq)
);

CREATE TABLE IF NOT EXISTS bulk_jobs (
	id             TEXT PRIMARY KEY,
	run_id         TEXT NOT NULL,
	external_id    TEXT NOT NULL DEFAULT '',
	input_file_id  TEXT NOT NULL DEFAULT '',
	output_file_id TEXT NOT NULL DEFAULT '',
	error_file_id  TEXT NOT NULL DEFAULT '',
	state          TEXT NOT NULL,
	total          INTEGER NOT NULL DEFAULT 0,
	completed      INTEGER NOT NULL DEFAULT 0,
	failed         INTEGER NOT NULL DEFAULT 0,
	requests_json  TEXT NOT NULL,
	failure_reason TEXT NOT NULL DEFAULT '',
	collected      INTEGER NOT NULL DEFAULT 0,
	created_at     TEXT NOT NULL,
	updated_at     TEXT NOT NULL
);
`

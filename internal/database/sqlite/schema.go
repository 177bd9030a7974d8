package sqlite

// schema mirrors migrations/ for the local store. Timestamps are stored in
// the driver's text format and compare lexically when written in UTC.
const schema = `
CREATE TABLE IF NOT EXISTS postings (
	natural_id TEXT PRIMARY KEY,
	title TEXT,
	company TEXT,
	company_url TEXT,
	location TEXT,
	description TEXT,
	publication_date DATE,
	last_seen TIMESTAMP NOT NULL,
	retired_at TIMESTAMP,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	relevance_score INTEGER,
	scored_at TIMESTAMP,
	content_hash TEXT,
	embedding_created_at TIMESTAMP,
	region TEXT
);
CREATE INDEX IF NOT EXISTS idx_postings_retired_last_seen ON postings (retired_at, last_seen);
CREATE INDEX IF NOT EXISTS idx_postings_created_natural ON postings (created_at DESC, natural_id DESC);
CREATE TABLE IF NOT EXISTS crawl_runs (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	status TEXT NOT NULL,
	started_at TIMESTAMP NOT NULL,
	finished_at TIMESTAMP,
	stop_reason TEXT,
	pages INTEGER NOT NULL DEFAULT 0,
	seen INTEGER NOT NULL DEFAULT 0,
	inserted INTEGER NOT NULL DEFAULT 0,
	refreshed INTEGER NOT NULL DEFAULT 0,
	retired INTEGER NOT NULL DEFAULT 0,
	errored INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_crawl_runs_started ON crawl_runs (started_at DESC);
CREATE TABLE IF NOT EXISTS run_logs (
	id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL REFERENCES crawl_runs (id),
	level TEXT NOT NULL,
	message TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
`

package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create versioned records",
		SQL: `
			CREATE TABLE records (
				key         TEXT PRIMARY KEY,
				data        TEXT NOT NULL,
				version     INTEGER NOT NULL,
				created_at  TEXT NOT NULL DEFAULT (datetime('now')),
				updated_at  TEXT NOT NULL DEFAULT (datetime('now'))
			);
		`,
	},
	{
		Version: 2,
		Name:    "index records by update time",
		SQL: `
			CREATE INDEX idx_records_updated ON records (updated_at);
		`,
	},
}

package migrations

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Migration is one forward-only schema step
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all loader field migrations in order
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create games, loaders and project types",
			SQL: `
CREATE TABLE IF NOT EXISTS games (
	id SERIAL PRIMARY KEY,
	name VARCHAR(64) NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS project_types (
	id SERIAL PRIMARY KEY,
	name VARCHAR(64) NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS loaders (
	id SERIAL PRIMARY KEY,
	loader VARCHAR(255) NOT NULL UNIQUE,
	icon VARCHAR(2048) NOT NULL DEFAULT '',
	hidable BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS loaders_project_types (
	joining_loader_id INTEGER NOT NULL REFERENCES loaders(id) ON DELETE CASCADE,
	joining_project_type_id INTEGER NOT NULL REFERENCES project_types(id) ON DELETE CASCADE,
	PRIMARY KEY (joining_loader_id, joining_project_type_id)
);

CREATE TABLE IF NOT EXISTS loaders_project_types_games (
	loader_id INTEGER NOT NULL,
	project_type_id INTEGER NOT NULL,
	game_id INTEGER NOT NULL REFERENCES games(id) ON DELETE CASCADE,
	PRIMARY KEY (loader_id, project_type_id, game_id),
	FOREIGN KEY (loader_id, project_type_id)
		REFERENCES loaders_project_types(joining_loader_id, joining_project_type_id) ON DELETE CASCADE
);
`,
		},
		{
			Version:     2,
			Description: "Create versions and loader associations",
			SQL: `
CREATE TABLE IF NOT EXISTS versions (
	id BIGINT PRIMARY KEY,
	mod_id BIGINT NOT NULL,
	name VARCHAR(255) NOT NULL DEFAULT '',
	version_number VARCHAR(255) NOT NULL DEFAULT '',
	changelog TEXT NOT NULL DEFAULT '',
	status VARCHAR(128) NOT NULL DEFAULT 'listed',
	date_published TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_versions_mod_id ON versions(mod_id);

CREATE TABLE IF NOT EXISTS loaders_versions (
	loader_id INTEGER NOT NULL REFERENCES loaders(id),
	version_id BIGINT NOT NULL REFERENCES versions(id) ON DELETE CASCADE,
	PRIMARY KEY (loader_id, version_id)
);
`,
		},
		{
			Version:     3,
			Description: "Create loader field enums and values",
			SQL: `
CREATE TABLE IF NOT EXISTS loader_field_enums (
	id SERIAL PRIMARY KEY,
	game_id INTEGER NOT NULL REFERENCES games(id),
	enum_name VARCHAR(64) NOT NULL,
	ordering INTEGER,
	hidable BOOLEAN NOT NULL DEFAULT FALSE,
	UNIQUE (game_id, enum_name)
);

CREATE TABLE IF NOT EXISTS loader_field_enum_values (
	id SERIAL PRIMARY KEY,
	enum_id INTEGER NOT NULL REFERENCES loader_field_enums(id),
	value VARCHAR(255) NOT NULL,
	ordering INTEGER,
	created TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	metadata JSONB,
	featured BOOLEAN NOT NULL DEFAULT FALSE,
	deprecated BOOLEAN NOT NULL DEFAULT FALSE,
	UNIQUE (enum_id, value)
);

CREATE INDEX IF NOT EXISTS idx_loader_field_enum_values_metadata
	ON loader_field_enum_values USING GIN (metadata);
`,
		},
		{
			Version:     4,
			Description: "Create loader fields and version fields",
			SQL: `
CREATE TABLE IF NOT EXISTS loader_fields (
	id SERIAL PRIMARY KEY,
	field VARCHAR(64) NOT NULL UNIQUE,
	field_type VARCHAR(64) NOT NULL,
	enum_type INTEGER REFERENCES loader_field_enums(id),
	optional BOOLEAN NOT NULL DEFAULT TRUE,
	min_val INTEGER,
	max_val INTEGER,
	CHECK (field_type IN ('integer', 'text', 'boolean', 'enum',
		'array_integer', 'array_text', 'array_boolean', 'array_enum')),
	CHECK ((field_type IN ('enum', 'array_enum')) = (enum_type IS NOT NULL))
);

CREATE TABLE IF NOT EXISTS loader_fields_loaders (
	loader_id INTEGER NOT NULL REFERENCES loaders(id) ON DELETE RESTRICT,
	loader_field_id INTEGER NOT NULL REFERENCES loader_fields(id) ON DELETE CASCADE,
	PRIMARY KEY (loader_id, loader_field_id)
);

CREATE TABLE IF NOT EXISTS version_fields (
	id BIGSERIAL PRIMARY KEY,
	version_id BIGINT NOT NULL REFERENCES versions(id) ON DELETE CASCADE,
	field_id INTEGER NOT NULL REFERENCES loader_fields(id),
	int_value BIGINT,
	enum_value INTEGER REFERENCES loader_field_enum_values(id) ON DELETE RESTRICT,
	string_value TEXT,
	CHECK (num_nonnulls(int_value, enum_value, string_value) = 1)
);

CREATE INDEX IF NOT EXISTS idx_version_fields_version ON version_fields(version_id, field_id);
CREATE INDEX IF NOT EXISTS idx_version_fields_enum_value ON version_fields(enum_value);
`,
		},
		{
			Version:     5,
			Description: "Create search facet index",
			SQL: `
CREATE TABLE IF NOT EXISTS search_facets (
	project_id BIGINT NOT NULL,
	facet VARCHAR(64) NOT NULL,
	term VARCHAR(255) NOT NULL,
	indexed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (project_id, facet, term)
);

CREATE INDEX IF NOT EXISTS idx_search_facets_term ON search_facets(facet, term);
`,
		},
		{
			Version:     6,
			Description: "Move fixed game version and side columns into version fields",
			SQL:         legacyDataMigration,
		},
	}
}

// legacyDataMigration copies game_versions_versions and the mods side
// columns into version_fields, then retires the old columns. Every statement
// is guarded so it is a no-op on databases created without them.
const legacyDataMigration = `
DO $$
DECLARE
	mc_game INTEGER;
	gv_enum INTEGER;
	side_enum INTEGER;
	gv_field INTEGER;
	client_field INTEGER;
	server_field INTEGER;
BEGIN
	INSERT INTO games (name) VALUES ('minecraft-java') ON CONFLICT (name) DO NOTHING;
	SELECT id INTO mc_game FROM games WHERE name = 'minecraft-java';

	INSERT INTO loader_field_enums (game_id, enum_name, hidable)
	VALUES (mc_game, 'game_versions', TRUE), (mc_game, 'side_types', FALSE)
	ON CONFLICT (game_id, enum_name) DO NOTHING;
	SELECT id INTO gv_enum FROM loader_field_enums WHERE game_id = mc_game AND enum_name = 'game_versions';
	SELECT id INTO side_enum FROM loader_field_enums WHERE game_id = mc_game AND enum_name = 'side_types';

	INSERT INTO loader_field_enum_values (enum_id, value)
	VALUES (side_enum, 'required'), (side_enum, 'optional'), (side_enum, 'unsupported'), (side_enum, 'unknown')
	ON CONFLICT (enum_id, value) DO NOTHING;

	INSERT INTO loader_fields (field, field_type, enum_type, optional, min_val)
	VALUES ('game_versions', 'array_enum', gv_enum, FALSE, 1),
		('client_side', 'enum', side_enum, TRUE, NULL),
		('server_side', 'enum', side_enum, TRUE, NULL)
	ON CONFLICT (field) DO NOTHING;
	SELECT id INTO gv_field FROM loader_fields WHERE field = 'game_versions';
	SELECT id INTO client_field FROM loader_fields WHERE field = 'client_side';
	SELECT id INTO server_field FROM loader_fields WHERE field = 'server_side';

	IF to_regclass('game_versions') IS NOT NULL AND to_regclass('game_versions_versions') IS NOT NULL THEN
		INSERT INTO loader_field_enum_values (enum_id, value, created, metadata)
		SELECT gv_enum, gv.version, gv.created,
			jsonb_build_object('type', gv.type, 'major', gv.major)
		FROM game_versions gv
		ON CONFLICT (enum_id, value) DO NOTHING;

		INSERT INTO version_fields (version_id, field_id, enum_value)
		SELECT gvv.joining_version_id, gv_field, lfev.id
		FROM game_versions_versions gvv
		INNER JOIN game_versions gv ON gv.id = gvv.game_version_id
		INNER JOIN loader_field_enum_values lfev ON lfev.enum_id = gv_enum AND lfev.value = gv.version
		INNER JOIN versions v ON v.id = gvv.joining_version_id
		ORDER BY gvv.joining_version_id, gv.created;

		DROP TABLE game_versions_versions;
		DROP TABLE game_versions;
	END IF;

	IF to_regclass('mods') IS NOT NULL AND to_regclass('side_types') IS NOT NULL THEN
		INSERT INTO version_fields (version_id, field_id, enum_value)
		SELECT v.id, client_field, lfev.id
		FROM versions v
		INNER JOIN mods m ON m.id = v.mod_id
		INNER JOIN side_types st ON st.id = m.client_side
		INNER JOIN loader_field_enum_values lfev ON lfev.enum_id = side_enum AND lfev.value = st.name;

		INSERT INTO version_fields (version_id, field_id, enum_value)
		SELECT v.id, server_field, lfev.id
		FROM versions v
		INNER JOIN mods m ON m.id = v.mod_id
		INNER JOIN side_types st ON st.id = m.server_side
		INNER JOIN loader_field_enum_values lfev ON lfev.enum_id = side_enum AND lfev.value = st.name;

		ALTER TABLE mods DROP COLUMN client_side;
		ALTER TABLE mods DROP COLUMN server_side;
		DROP TABLE side_types;
	END IF;

	INSERT INTO loader_fields_loaders (loader_id, loader_field_id)
	SELECT l.id, lf.id
	FROM loaders l
	INNER JOIN loaders_project_types_games lptg ON lptg.loader_id = l.id AND lptg.game_id = mc_game
	CROSS JOIN loader_fields lf
	WHERE lf.id IN (gv_field, client_field, server_field)
	ON CONFLICT DO NOTHING;
END $$;
`

// RunMigrations applies every pending migration, each in its own transaction
func RunMigrations(ctx context.Context, db *sql.DB, log *logrus.Logger) error {
	if log == nil {
		log = logrus.New()
	}

	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS loader_field_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := AppliedVersions(ctx, db)
	if err != nil {
		return err
	}

	for _, migration := range GetMigrations() {
		if applied[migration.Version] {
			continue
		}

		entry := log.WithFields(logrus.Fields{"version": migration.Version, "description": migration.Description})
		entry.Info("Running migration")

		if err := apply(ctx, db, migration); err != nil {
			return err
		}

		entry.Info("Migration completed")
	}

	return nil
}

// AppliedVersions returns the set of recorded migration versions
func AppliedVersions(ctx context.Context, db *sql.DB) (map[int]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM loader_field_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("failed to query migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func apply(ctx context.Context, db *sql.DB, migration Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
		return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO loader_field_migrations (version, description) VALUES ($1, $2)",
		migration.Version, migration.Description,
	); err != nil {
		return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
	}
	return nil
}

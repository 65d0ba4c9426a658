package schema

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"

	"github.com/labrinth-go/labrinth/pkg/loaderfields"
	"github.com/labrinth-go/labrinth/pkg/storage/postgres"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("labrinth/schema")

const fieldColumns = `lf.id, lf.field, lf.field_type, lf.enum_type, lf.optional, lf.min_val, lf.max_val`

// Schema answers which loader fields apply to a set of loaders and
// administers games, loaders and field definitions.
type Schema struct {
	db      *sql.DB
	replica *sql.DB
	log     *logrus.Logger
}

// NewSchema creates a schema on the given connections
func NewSchema(conns *postgres.ConnectionManager, log *logrus.Logger) *Schema {
	return newSchema(conns.Primary(), conns.Replica(), log)
}

func newSchema(db, replica *sql.DB, log *logrus.Logger) *Schema {
	if log == nil {
		log = logrus.New()
	}
	if replica == nil {
		replica = db
	}
	return &Schema{db: db, replica: replica, log: log}
}

// ApplicableFields returns the union of fields associated with any of the
// given loaders, each field once, ordered by name.
func (s *Schema) ApplicableFields(ctx context.Context, loaderIDs []loaderfields.LoaderID) ([]loaderfields.LoaderField, error) {
	return s.fieldsForLoaders(ctx, "ApplicableFields", loaderIDs, false)
}

// RequiredFields returns the non-optional subset of ApplicableFields
func (s *Schema) RequiredFields(ctx context.Context, loaderIDs []loaderfields.LoaderID) ([]loaderfields.LoaderField, error) {
	return s.fieldsForLoaders(ctx, "RequiredFields", loaderIDs, true)
}

func (s *Schema) fieldsForLoaders(ctx context.Context, name string, loaderIDs []loaderfields.LoaderID, requiredOnly bool) ([]loaderfields.LoaderField, error) {
	ctx, span := tracer.Start(ctx, name, trace.WithAttributes(attribute.Int("loaders", len(loaderIDs))))
	defer span.End()

	if len(loaderIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT DISTINCT ` + fieldColumns + `
		FROM loader_fields lf
		INNER JOIN loader_fields_loaders lfl ON lfl.loader_field_id = lf.id
		WHERE lfl.loader_id = ANY($1)`
	if requiredOnly {
		query += ` AND NOT lf.optional`
	}
	query += ` ORDER BY lf.field`

	fields, err := s.queryFields(ctx, query, LoaderIDArray(loaderIDs))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load fields")
		return nil, loaderfields.Storage("load applicable fields", err)
	}
	return fields, nil
}

// GetField returns the field definition with the given name
func (s *Schema) GetField(ctx context.Context, name string) (*loaderfields.LoaderField, error) {
	fields, err := s.queryFields(ctx, `SELECT `+fieldColumns+` FROM loader_fields lf WHERE lf.field = $1`, name)
	if err != nil {
		return nil, loaderfields.Storage("get field", err)
	}
	if len(fields) == 0 {
		return nil, loaderfields.NotFound("loader field", name)
	}
	return &fields[0], nil
}

// ListFields returns every field definition ordered by name
func (s *Schema) ListFields(ctx context.Context) ([]loaderfields.LoaderField, error) {
	fields, err := s.queryFields(ctx, `SELECT `+fieldColumns+` FROM loader_fields lf ORDER BY lf.field`)
	if err != nil {
		return nil, loaderfields.Storage("list fields", err)
	}
	return fields, nil
}

// CreateField validates and stores a new field definition. Two concurrent
// creations of the same name leave exactly one winner; the other gets a
// conflict.
func (s *Schema) CreateField(ctx context.Context, f *loaderfields.LoaderField) error {
	if err := f.CheckDefinition(); err != nil {
		return err
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO loader_fields (field, field_type, enum_type, optional, min_val, max_val)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, f.Field, f.Type.String(), f.EnumType, f.Optional, f.MinVal, f.MaxVal).Scan(&f.ID)
	switch {
	case postgres.IsUniqueViolation(err):
		return loaderfields.Conflict("loader field", f.Field, "already exists")
	case postgres.IsForeignKeyViolation(err):
		return loaderfields.NotFound("enum", *f.EnumType)
	case err != nil:
		return loaderfields.Storage("create field", err)
	}

	s.log.WithFields(logrus.Fields{"field": f.Field, "type": f.Type.String()}).Info("Created loader field")
	return nil
}

// AssociateField makes a field applicable to the given loaders. Existing
// associations are kept.
func (s *Schema) AssociateField(ctx context.Context, fieldID loaderfields.LoaderFieldID, loaderIDs ...loaderfields.LoaderID) error {
	if len(loaderIDs) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO loader_fields_loaders (loader_id, loader_field_id)
		SELECT loader_id, $2 FROM UNNEST($1::int[]) AS loader_id
		ON CONFLICT DO NOTHING
	`, LoaderIDArray(loaderIDs), fieldID)
	if postgres.IsForeignKeyViolation(err) {
		return loaderfields.NotFound("loader or field", fieldID)
	}
	if err != nil {
		return loaderfields.Storage("associate field", err)
	}
	return nil
}

// DissociateField removes a field from a loader. Stored version values are
// left in place.
func (s *Schema) DissociateField(ctx context.Context, fieldID loaderfields.LoaderFieldID, loaderID loaderfields.LoaderID) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM loader_fields_loaders WHERE loader_field_id = $1 AND loader_id = $2
	`, fieldID, loaderID)
	if err != nil {
		return loaderfields.Storage("dissociate field", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return loaderfields.NotFound("field association", fieldID)
	}
	return nil
}

// GetGame looks a game up by name
func (s *Schema) GetGame(ctx context.Context, name string) (*loaderfields.Game, error) {
	var g loaderfields.Game
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM games WHERE name = $1`, name).Scan(&g.ID, &g.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, loaderfields.NotFound("game", name)
	}
	if err != nil {
		return nil, loaderfields.Storage("get game", err)
	}
	return &g, nil
}

// EnsureGame returns the named game, creating it if needed
func (s *Schema) EnsureGame(ctx context.Context, name string) (*loaderfields.Game, error) {
	g := loaderfields.Game{Name: name}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO games (name) VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id
	`, name).Scan(&g.ID)
	if err != nil {
		return nil, loaderfields.Storage("ensure game", err)
	}
	return &g, nil
}

// EnsureProjectType creates the named project type if it does not exist
func (s *Schema) EnsureProjectType(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO project_types (name) VALUES ($1) ON CONFLICT (name) DO NOTHING
	`, name); err != nil {
		return loaderfields.Storage("ensure project type", err)
	}
	return nil
}

// ListLoaders returns every loader with its supported project types and games
func (s *Schema) ListLoaders(ctx context.Context) ([]loaderfields.Loader, error) {
	rows, err := s.replica.QueryContext(ctx, `
		SELECT l.id, l.loader, l.icon, l.hidable,
			ARRAY_AGG(DISTINCT pt.name) FILTER (WHERE pt.name IS NOT NULL) project_types,
			ARRAY_AGG(DISTINCT g.name) FILTER (WHERE g.name IS NOT NULL) games
		FROM loaders l
		LEFT JOIN loaders_project_types lpt ON lpt.joining_loader_id = l.id
		LEFT JOIN project_types pt ON pt.id = lpt.joining_project_type_id
		LEFT JOIN loaders_project_types_games lptg ON lptg.loader_id = l.id AND lptg.project_type_id = lpt.joining_project_type_id
		LEFT JOIN games g ON g.id = lptg.game_id
		GROUP BY l.id
		ORDER BY l.loader
	`)
	if err != nil {
		return nil, loaderfields.Storage("list loaders", err)
	}
	defer rows.Close()

	var loaders []loaderfields.Loader
	for rows.Next() {
		var l loaderfields.Loader
		var projectTypes, games pq.StringArray
		if err := rows.Scan(&l.ID, &l.Name, &l.Icon, &l.Hidable, &projectTypes, &games); err != nil {
			return nil, loaderfields.Storage("scan loader", err)
		}
		l.SupportedProjectTypes = nonNil(projectTypes)
		l.SupportedGames = nonNil(games)
		loaders = append(loaders, l)
	}
	if err := rows.Err(); err != nil {
		return nil, loaderfields.Storage("list loaders", err)
	}
	return loaders, nil
}

// LoaderIDs resolves loader names to ids in input order. The first unknown
// name is reported as not found.
func (s *Schema) LoaderIDs(ctx context.Context, names []string) ([]loaderfields.LoaderID, error) {
	if len(names) == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, loader FROM loaders WHERE loader = ANY($1)`, pq.Array(names))
	if err != nil {
		return nil, loaderfields.Storage("resolve loaders", err)
	}
	defer rows.Close()

	byName := make(map[string]loaderfields.LoaderID, len(names))
	for rows.Next() {
		var id loaderfields.LoaderID
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, loaderfields.Storage("scan loader", err)
		}
		byName[name] = id
	}
	if err := rows.Err(); err != nil {
		return nil, loaderfields.Storage("resolve loaders", err)
	}

	ids := make([]loaderfields.LoaderID, 0, len(names))
	for _, name := range names {
		id, ok := byName[name]
		if !ok {
			return nil, loaderfields.NotFound("loader", name)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// CreateLoader stores a loader and links it to its supported project types
// and games by name.
func (s *Schema) CreateLoader(ctx context.Context, l *loaderfields.Loader) error {
	if strings.TrimSpace(l.Name) == "" {
		return &loaderfields.ValidationError{Field: "loader", Reason: "must not be empty"}
	}

	err := postgres.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			INSERT INTO loaders (loader, icon, hidable) VALUES ($1, $2, $3) RETURNING id
		`, l.Name, l.Icon, l.Hidable).Scan(&l.ID)
		if postgres.IsUniqueViolation(err) {
			return loaderfields.Conflict("loader", l.Name, "already exists")
		}
		if err != nil {
			return loaderfields.Storage("create loader", err)
		}

		if len(l.SupportedProjectTypes) == 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO loaders_project_types (joining_loader_id, joining_project_type_id)
			SELECT $1, id FROM project_types WHERE name = ANY($2)
		`, l.ID, pq.Array(l.SupportedProjectTypes)); err != nil {
			return loaderfields.Storage("link loader project types", err)
		}

		if len(l.SupportedGames) == 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO loaders_project_types_games (loader_id, project_type_id, game_id)
			SELECT $1, pt.id, g.id
			FROM project_types pt, games g
			WHERE pt.name = ANY($2) AND g.name = ANY($3)
		`, l.ID, pq.Array(l.SupportedProjectTypes), pq.Array(l.SupportedGames)); err != nil {
			return loaderfields.Storage("link loader games", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.log.WithField("loader", l.Name).Info("Created loader")
	return nil
}

// DeleteLoader removes a loader that no field or version depends on
func (s *Schema) DeleteLoader(ctx context.Context, id loaderfields.LoaderID) error {
	return postgres.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var dependents bool
		if err := tx.QueryRowContext(ctx, `
			SELECT EXISTS (SELECT 1 FROM loader_fields_loaders WHERE loader_id = $1)
				OR EXISTS (SELECT 1 FROM loaders_versions WHERE loader_id = $1)
		`, id).Scan(&dependents); err != nil {
			return loaderfields.Storage("check loader dependents", err)
		}
		if dependents {
			return loaderfields.Conflict("loader", id, "has dependent fields or versions")
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM loaders WHERE id = $1`, id)
		if postgres.IsForeignKeyViolation(err) {
			return loaderfields.Conflict("loader", id, "has dependent fields or versions")
		}
		if err != nil {
			return loaderfields.Storage("delete loader", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return loaderfields.NotFound("loader", id)
		}
		return nil
	})
}

func (s *Schema) queryFields(ctx context.Context, query string, args ...any) ([]loaderfields.LoaderField, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fields []loaderfields.LoaderField
	for rows.Next() {
		f, err := ScanField(rows)
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return fields, rows.Err()
}

// ScanField reads the columns id, field, field_type, enum_type, optional,
// min_val, max_val into a LoaderField
func ScanField(row interface{ Scan(...any) error }) (loaderfields.LoaderField, error) {
	var f loaderfields.LoaderField
	var fieldType string
	var enumType, minVal, maxVal sql.NullInt32
	if err := row.Scan(&f.ID, &f.Field, &fieldType, &enumType, &f.Optional, &minVal, &maxVal); err != nil {
		return f, err
	}
	f.Type = loaderfields.ParseFieldType(fieldType)
	if enumType.Valid {
		id := loaderfields.EnumID(enumType.Int32)
		f.EnumType = &id
	}
	if minVal.Valid {
		v := minVal.Int32
		f.MinVal = &v
	}
	if maxVal.Valid {
		v := maxVal.Int32
		f.MaxVal = &v
	}
	return f, nil
}

// LoaderIDArray converts loader ids for use with ANY($n)
func LoaderIDArray(ids []loaderfields.LoaderID) pq.Int64Array {
	out := make(pq.Int64Array, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func nonNil(a pq.StringArray) []string {
	if a == nil {
		return []string{}
	}
	return []string(a)
}

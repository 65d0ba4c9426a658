package versionfields

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/labrinth-go/labrinth/pkg/loaderfields"
	"github.com/labrinth-go/labrinth/pkg/storage/postgres"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("labrinth/versionfields")

// maxWriteAttempts bounds retries of a field write that hit a deadlock or
// serialization failure.
const maxWriteAttempts = 3

// Store persists version field rows. A logical value occupies one row per
// element; insertion order (the row id) is element order.
type Store struct {
	db  *sql.DB
	log *logrus.Logger
}

// NewStore creates a store on the primary connection. Reads must observe
// committed writes, so replicas are not used here.
func NewStore(db *sql.DB, log *logrus.Logger) *Store {
	if log == nil {
		log = logrus.New()
	}
	return &Store{db: db, log: log}
}

// SetFields replaces the stored rows of every field in values and leaves
// all other fields of the version untouched. Concurrent calls for the same
// version are serialized on an advisory lock keyed by the version id, so the
// outcome is one call's values or the other's. A cancelled ctx rolls the
// whole write back.
func (s *Store) SetFields(ctx context.Context, versionID loaderfields.VersionID, values []loaderfields.ValidatedField) error {
	ctx, span := tracer.Start(ctx, "SetFields", trace.WithAttributes(
		attribute.Int64("version_id", int64(versionID)),
		attribute.Int("fields", len(values)),
	))
	defer span.End()

	if len(values) == 0 {
		return nil
	}

	rows, err := buildFieldRows(values)
	if err != nil {
		return err
	}

	err = s.inTx(ctx, versionID, func(tx *sql.Tx) error {
		return rows.write(ctx, tx, versionID)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to set fields")
		if postgres.IsForeignKeyViolation(err) {
			return loaderfields.NotFound("version", versionID)
		}
		return loaderfields.Storage("set version fields", err)
	}
	return nil
}

// CreateVersion registers a version of projectID with its loader set and
// stores its initial field values, all in one transaction.
func (s *Store) CreateVersion(ctx context.Context, projectID loaderfields.ProjectID, versionID loaderfields.VersionID, loaderIDs []loaderfields.LoaderID, values []loaderfields.ValidatedField) error {
	ctx, span := tracer.Start(ctx, "CreateVersion", trace.WithAttributes(
		attribute.Int64("project_id", int64(projectID)),
		attribute.Int64("version_id", int64(versionID)),
		attribute.Int("fields", len(values)),
	))
	defer span.End()

	if len(loaderIDs) == 0 {
		verrs := &loaderfields.ValidationErrors{}
		verrs.Add("loaders", "at least one loader is required")
		return verrs.ErrOrNil()
	}
	rows, err := buildFieldRows(values)
	if err != nil {
		return err
	}

	err = s.inTx(ctx, versionID, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO versions (id, mod_id) VALUES ($1, $2)
		`, versionID, projectID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO loaders_versions (loader_id, version_id)
			SELECT l, $2 FROM UNNEST($1::int[]) AS l
		`, loaderIDArray(loaderIDs), versionID); err != nil {
			return err
		}
		return rows.write(ctx, tx, versionID)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create version")
		switch {
		case postgres.IsUniqueViolation(err):
			return loaderfields.Conflict("version", versionID, "already exists")
		case postgres.IsForeignKeyViolation(err):
			return loaderfields.NotFound("loader", loaderIDs)
		}
		return loaderfields.Storage("create version", err)
	}

	s.log.WithFields(logrus.Fields{
		"project_id": projectID,
		"version_id": versionID,
		"loaders":    len(loaderIDs),
	}).Debug("Registered version")
	return nil
}

// inTx runs fn in a transaction, retrying deadlocks and serialization
// failures.
func (s *Store) inTx(ctx context.Context, versionID loaderfields.VersionID, fn func(tx *sql.Tx) error) error {
	var err error
	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		err = postgres.WithTx(ctx, s.db, fn)
		if err == nil || !postgres.IsRetryable(err) || ctx.Err() != nil {
			break
		}
		s.log.WithError(err).WithField("version_id", versionID).Warn("Retrying version field write")
	}
	return err
}

// fieldRows is a field set flattened into UNNEST-ready columns
type fieldRows struct {
	fieldIDs pq.Int64Array
	fields   []int64
	ints     []sql.NullInt64
	enums    []sql.NullInt32
	texts    []sql.NullString
}

func buildFieldRows(values []loaderfields.ValidatedField) (fieldRows, error) {
	rows := fieldRows{fieldIDs: make(pq.Int64Array, 0, len(values))}
	seen := make(map[loaderfields.LoaderFieldID]bool, len(values))
	for _, vf := range values {
		if seen[vf.Field.ID] {
			return rows, fmt.Errorf("field %s submitted twice", vf.Field.Field)
		}
		seen[vf.Field.ID] = true
		rows.fieldIDs = append(rows.fieldIDs, int64(vf.Field.ID))
		if vf.Value.Len() == 0 {
			// cleared: delete only
			continue
		}

		serialized, err := loaderfields.Serialize(vf.Value)
		if err != nil {
			return rows, fmt.Errorf("failed to serialize field %s: %w", vf.Field.Field, err)
		}
		for _, row := range serialized {
			i, e, str := row.Columns()
			rows.fields = append(rows.fields, int64(vf.Field.ID))
			rows.ints = append(rows.ints, i)
			rows.enums = append(rows.enums, e)
			rows.texts = append(rows.texts, str)
		}
	}
	return rows, nil
}

// write takes the per-version lock, deletes the touched fields and inserts
// their new rows.
func (r fieldRows) write(ctx context.Context, tx *sql.Tx, versionID loaderfields.VersionID) error {
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(versionID)); err != nil {
		return err
	}
	if len(r.fieldIDs) == 0 {
		return nil
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM version_fields WHERE version_id = $1 AND field_id = ANY($2)
	`, versionID, r.fieldIDs); err != nil {
		return err
	}

	if len(r.fields) == 0 {
		return nil
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO version_fields (version_id, field_id, int_value, enum_value, string_value)
		SELECT $1, f, i, e, s
		FROM UNNEST($2::int[], $3::bigint[], $4::int[], $5::text[]) AS t(f, i, e, s)
	`, versionID, pq.Array(r.fields), pq.Array(r.ints), pq.Array(r.enums), pq.Array(r.texts))
	return err
}

// VersionLoaders returns the project and loader ids of a version
func (s *Store) VersionLoaders(ctx context.Context, versionID loaderfields.VersionID) (loaderfields.ProjectID, []loaderfields.LoaderID, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT v.mod_id, lv.loader_id
		FROM versions v
		LEFT JOIN loaders_versions lv ON lv.version_id = v.id
		WHERE v.id = $1
		ORDER BY lv.loader_id
	`, versionID)
	if err != nil {
		return 0, nil, loaderfields.Storage("load version loaders", err)
	}
	defer rows.Close()

	var (
		projectID loaderfields.ProjectID
		loaderIDs []loaderfields.LoaderID
		found     bool
	)
	for rows.Next() {
		var loaderID sql.NullInt32
		if err := rows.Scan(&projectID, &loaderID); err != nil {
			return 0, nil, loaderfields.Storage("scan version loader", err)
		}
		found = true
		if loaderID.Valid {
			loaderIDs = append(loaderIDs, loaderfields.LoaderID(loaderID.Int32))
		}
	}
	if err := rows.Err(); err != nil {
		return 0, nil, loaderfields.Storage("load version loaders", err)
	}
	if !found {
		return 0, nil, loaderfields.NotFound("version", versionID)
	}
	return projectID, loaderIDs, nil
}

// GetFields returns the logical field values of one version keyed by field
// name. Fields with no stored rows are absent.
func (s *Store) GetFields(ctx context.Context, versionID loaderfields.VersionID) (map[string]loaderfields.FieldValue, error) {
	all, err := s.GetFieldsBulk(ctx, []loaderfields.VersionID{versionID})
	if err != nil {
		return nil, err
	}
	meta, ok := all[versionID]
	if !ok {
		return nil, loaderfields.NotFound("version", versionID)
	}
	return meta.Fields, nil
}

// GetFieldsBulk loads the metadata of many versions in two queries. Unknown
// ids are absent from the result; callers index it by version id.
func (s *Store) GetFieldsBulk(ctx context.Context, versionIDs []loaderfields.VersionID) (map[loaderfields.VersionID]*loaderfields.VersionMetadata, error) {
	ctx, span := tracer.Start(ctx, "GetFieldsBulk", trace.WithAttributes(attribute.Int("versions", len(versionIDs))))
	defer span.End()

	out := make(map[loaderfields.VersionID]*loaderfields.VersionMetadata, len(versionIDs))
	if len(versionIDs) == 0 {
		return out, nil
	}
	ids := versionIDArray(versionIDs)

	var (
		versions []*loaderfields.VersionMetadata
		fields   []fieldRow
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		versions, err = s.queryVersions(gctx, ids)
		return err
	})
	g.Go(func() error {
		var err error
		fields, err = s.queryFieldRows(gctx, ids)
		return err
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load version fields")
		return nil, loaderfields.Storage("load version fields", err)
	}

	for _, v := range versions {
		out[v.VersionID] = v
	}
	s.fold(out, fields)
	return out, nil
}

// ProjectVersionIDs lists the versions of a project
func (s *Store) ProjectVersionIDs(ctx context.Context, projectID loaderfields.ProjectID) ([]loaderfields.VersionID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM versions WHERE mod_id = $1 ORDER BY id`, projectID)
	if err != nil {
		return nil, loaderfields.Storage("list project versions", err)
	}
	defer rows.Close()

	var ids []loaderfields.VersionID
	for rows.Next() {
		var id loaderfields.VersionID
		if err := rows.Scan(&id); err != nil {
			return nil, loaderfields.Storage("scan version id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, loaderfields.Storage("list project versions", err)
	}
	return ids, nil
}

// ProjectIDs lists every project that has at least one version
func (s *Store) ProjectIDs(ctx context.Context) ([]loaderfields.ProjectID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT mod_id FROM versions ORDER BY mod_id`)
	if err != nil {
		return nil, loaderfields.Storage("list projects", err)
	}
	defer rows.Close()

	var ids []loaderfields.ProjectID
	for rows.Next() {
		var id loaderfields.ProjectID
		if err := rows.Scan(&id); err != nil {
			return nil, loaderfields.Storage("scan project id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, loaderfields.Storage("list projects", err)
	}
	return ids, nil
}

func (s *Store) queryVersions(ctx context.Context, ids pq.Int64Array) ([]*loaderfields.VersionMetadata, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT v.id, v.mod_id,
			ARRAY_AGG(DISTINCT l.loader) FILTER (WHERE l.loader IS NOT NULL) loaders,
			ARRAY_AGG(DISTINCT pt.name) FILTER (WHERE pt.name IS NOT NULL) project_types
		FROM versions v
		LEFT JOIN loaders_versions lv ON lv.version_id = v.id
		LEFT JOIN loaders l ON l.id = lv.loader_id
		LEFT JOIN loaders_project_types lpt ON lpt.joining_loader_id = l.id
		LEFT JOIN project_types pt ON pt.id = lpt.joining_project_type_id
		WHERE v.id = ANY($1)
		GROUP BY v.id
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*loaderfields.VersionMetadata
	for rows.Next() {
		m := &loaderfields.VersionMetadata{Fields: map[string]loaderfields.FieldValue{}}
		var loaders, projectTypes pq.StringArray
		if err := rows.Scan(&m.VersionID, &m.ProjectID, &loaders, &projectTypes); err != nil {
			return nil, err
		}
		m.Loaders = nonNil(loaders)
		m.ProjectTypes = nonNil(projectTypes)
		out = append(out, m)
	}
	return out, rows.Err()
}

// fieldRow is one version_fields row joined with its definition and, for
// enum rows, its enum value.
type fieldRow struct {
	versionID loaderfields.VersionID
	fieldName string
	fieldType loaderfields.FieldType
	intValue  sql.NullInt64
	strValue  sql.NullString
	enumValue *loaderfields.EnumValue
}

func (s *Store) queryFieldRows(ctx context.Context, ids pq.Int64Array) ([]fieldRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT vf.version_id, lf.field, lf.field_type, vf.int_value, vf.string_value,
			lfev.id, lfev.enum_id, lfev.value, lfev.ordering, lfev.created, lfev.metadata,
			lfev.featured, lfev.deprecated
		FROM version_fields vf
		INNER JOIN loader_fields lf ON lf.id = vf.field_id
		LEFT JOIN loader_field_enum_values lfev ON lfev.id = vf.enum_value
		WHERE vf.version_id = ANY($1)
		ORDER BY vf.version_id, vf.id
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []fieldRow
	for rows.Next() {
		var (
			r          fieldRow
			fieldType  string
			evID       sql.NullInt32
			evEnumID   sql.NullInt32
			evValue    sql.NullString
			evOrdering sql.NullInt32
			evCreated  sql.NullTime
			evMetadata []byte
			evFeatured sql.NullBool
			evDeprec   sql.NullBool
		)
		if err := rows.Scan(&r.versionID, &r.fieldName, &fieldType, &r.intValue, &r.strValue,
			&evID, &evEnumID, &evValue, &evOrdering, &evCreated, &evMetadata, &evFeatured, &evDeprec); err != nil {
			return nil, err
		}
		r.fieldType = loaderfields.ParseFieldType(fieldType)
		if evID.Valid {
			ev := &loaderfields.EnumValue{
				ID:         loaderfields.EnumValueID(evID.Int32),
				EnumID:     loaderfields.EnumID(evEnumID.Int32),
				Value:      evValue.String,
				Created:    evCreated.Time,
				Featured:   evFeatured.Bool,
				Deprecated: evDeprec.Bool,
			}
			if evOrdering.Valid {
				o := evOrdering.Int32
				ev.Ordering = &o
			}
			if len(evMetadata) > 0 {
				ev.Metadata = json.RawMessage(evMetadata)
			}
			r.enumValue = ev
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// fold groups consecutive rows of the same (version, field) and attaches the
// deserialized value to its version. Rows that violate the storage invariants
// are logged and the affected field is omitted.
func (s *Store) fold(out map[loaderfields.VersionID]*loaderfields.VersionMetadata, rows []fieldRow) {
	type key struct {
		version loaderfields.VersionID
		field   string
	}
	grouped := make(map[key][]loaderfields.RowValue)
	types := make(map[key]loaderfields.FieldType)
	var order []key

	for _, r := range rows {
		k := key{r.versionID, r.fieldName}
		if _, ok := types[k]; !ok {
			types[k] = r.fieldType
			order = append(order, k)
		}
		rv, err := loaderfields.RowFromColumns(r.intValue, r.enumValue, r.strValue)
		if err != nil {
			s.corrupt(k.version, k.field, err)
			types[k] = loaderfields.TypeUnknown
			continue
		}
		grouped[k] = append(grouped[k], rv)
	}

	for _, k := range order {
		meta, ok := out[k.version]
		if !ok || types[k] == loaderfields.TypeUnknown {
			continue
		}
		value, err := loaderfields.Deserialize(types[k], grouped[k])
		if err != nil {
			s.corrupt(k.version, k.field, err)
			continue
		}
		meta.Fields[k.field] = value
	}
}

func (s *Store) corrupt(versionID loaderfields.VersionID, field string, err error) {
	s.log.WithError(err).WithFields(logrus.Fields{
		"version_id": versionID,
		"field":      field,
	}).Warn("Skipping unreadable version field")
}

func loaderIDArray(ids []loaderfields.LoaderID) pq.Int64Array {
	out := make(pq.Int64Array, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out
}

func versionIDArray(ids []loaderfields.VersionID) pq.Int64Array {
	out := make(pq.Int64Array, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out
}

func nonNil(a pq.StringArray) []string {
	if a == nil {
		return []string{}
	}
	return []string(a)
}

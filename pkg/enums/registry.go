package enums

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/labrinth-go/labrinth/pkg/loaderfields"
	"github.com/labrinth-go/labrinth/pkg/storage/postgres"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("labrinth/enums")

const valueColumns = `id, enum_id, value, ordering, created, metadata, featured, deprecated`

const valueOrder = `ORDER BY ordering ASC NULLS LAST, created DESC, id ASC`

// Registry reads and administers game-scoped enum vocabularies. Every call
// reads through to PostgreSQL; nothing is cached.
type Registry struct {
	db      *sql.DB
	replica *sql.DB
	log     *logrus.Logger
}

// NewRegistry creates a registry on the given connections. Listings are
// served from a replica, resolution and mutation from the primary.
func NewRegistry(conns *postgres.ConnectionManager, log *logrus.Logger) *Registry {
	return newRegistry(conns.Primary(), conns.Replica(), log)
}

func newRegistry(db, replica *sql.DB, log *logrus.Logger) *Registry {
	if log == nil {
		log = logrus.New()
	}
	if replica == nil {
		replica = db
	}
	return &Registry{db: db, replica: replica, log: log}
}

// GetEnum returns the enum named enumName within gameID
func (r *Registry) GetEnum(ctx context.Context, enumName string, gameID loaderfields.GameID) (*loaderfields.Enum, error) {
	var e loaderfields.Enum
	var ordering sql.NullInt32
	err := r.db.QueryRowContext(ctx, `
		SELECT id, game_id, enum_name, ordering, hidable
		FROM loader_field_enums
		WHERE enum_name = $1 AND game_id = $2
	`, enumName, gameID).Scan(&e.ID, &e.GameID, &e.Name, &ordering, &e.Hidable)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, loaderfields.NotFound("enum", enumName)
	}
	if err != nil {
		return nil, loaderfields.Storage("get enum", err)
	}
	e.Ordering = nullInt32Ptr(ordering)
	return &e, nil
}

// GetEnumByID returns the enum with the given id
func (r *Registry) GetEnumByID(ctx context.Context, id loaderfields.EnumID) (*loaderfields.Enum, error) {
	var e loaderfields.Enum
	var ordering sql.NullInt32
	err := r.db.QueryRowContext(ctx, `
		SELECT id, game_id, enum_name, ordering, hidable
		FROM loader_field_enums
		WHERE id = $1
	`, id).Scan(&e.ID, &e.GameID, &e.Name, &ordering, &e.Hidable)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, loaderfields.NotFound("enum", id)
	}
	if err != nil {
		return nil, loaderfields.Storage("get enum", err)
	}
	e.Ordering = nullInt32Ptr(ordering)
	return &e, nil
}

// Resolve maps a value string to its id within the named enum of a game
func (r *Registry) Resolve(ctx context.Context, enumName string, gameID loaderfields.GameID, value string) (loaderfields.EnumValueID, error) {
	ctx, span := tracer.Start(ctx, "Resolve", trace.WithAttributes(
		attribute.String("enum", enumName),
		attribute.String("value", value),
	))
	defer span.End()

	var id loaderfields.EnumValueID
	err := r.db.QueryRowContext(ctx, `
		SELECT lfev.id
		FROM loader_field_enum_values lfev
		INNER JOIN loader_field_enums lfe ON lfe.id = lfev.enum_id
		WHERE lfe.enum_name = $1 AND lfe.game_id = $2 AND lfev.value = $3
	`, enumName, gameID, value).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, loaderfields.NotFound("enum value", enumName+"/"+value)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to resolve enum value")
		return 0, loaderfields.Storage("resolve enum value", err)
	}
	return id, nil
}

// List returns the values of the named enum in display order. Unless
// includeHidden is set, deprecated values are dropped and hidable enums only
// yield featured values.
func (r *Registry) List(ctx context.Context, enumName string, gameID loaderfields.GameID, includeHidden bool) ([]loaderfields.EnumValue, error) {
	e, err := r.GetEnum(ctx, enumName, gameID)
	if err != nil {
		return nil, err
	}
	return r.ListByEnum(ctx, e, includeHidden)
}

// ListByEnum lists the values of an already loaded enum
func (r *Registry) ListByEnum(ctx context.Context, e *loaderfields.Enum, includeHidden bool) ([]loaderfields.EnumValue, error) {
	query := `SELECT ` + valueColumns + ` FROM loader_field_enum_values WHERE enum_id = $1`
	if !includeHidden {
		query += ` AND NOT deprecated`
		if e.Hidable {
			query += ` AND featured`
		}
	}
	query += ` ` + valueOrder

	return r.queryValues(ctx, r.replica, "list enum values", query, e.ID)
}

// ListFiltered returns the values of an enum whose metadata contains every
// key/value pair of filters. An empty filter matches every value.
func (r *Registry) ListFiltered(ctx context.Context, enumID loaderfields.EnumID, filters map[string]any) ([]loaderfields.EnumValue, error) {
	if len(filters) == 0 {
		filters = map[string]any{}
	}
	data, err := json.Marshal(filters)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata filter: %w", err)
	}

	query := `SELECT ` + valueColumns + ` FROM loader_field_enum_values
		WHERE enum_id = $1 AND COALESCE(metadata, '{}'::jsonb) @> $2::jsonb ` + valueOrder
	return r.queryValues(ctx, r.replica, "list filtered enum values", query, enumID, string(data))
}

// LookupValues fetches the named values of one enum in a single round trip.
// Missing names are simply absent from the result.
func (r *Registry) LookupValues(ctx context.Context, enumID loaderfields.EnumID, values []string) (map[string]loaderfields.EnumValue, error) {
	out := make(map[string]loaderfields.EnumValue, len(values))
	if len(values) == 0 {
		return out, nil
	}

	query := `SELECT ` + valueColumns + ` FROM loader_field_enum_values WHERE enum_id = $1 AND value = ANY($2)`
	found, err := r.queryValues(ctx, r.db, "look up enum values", query, enumID, pq.Array(values))
	if err != nil {
		return nil, err
	}
	for _, v := range found {
		out[v.Value] = v
	}
	return out, nil
}

// CreateEnum registers a new enum. A duplicate (game, name) pair is a conflict.
func (r *Registry) CreateEnum(ctx context.Context, e *loaderfields.Enum) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO loader_field_enums (game_id, enum_name, ordering, hidable)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, e.GameID, e.Name, e.Ordering, e.Hidable).Scan(&e.ID)
	switch {
	case postgres.IsUniqueViolation(err):
		return loaderfields.Conflict("enum", e.Name, "already exists")
	case postgres.IsForeignKeyViolation(err):
		return loaderfields.NotFound("game", e.GameID)
	case err != nil:
		return loaderfields.Storage("create enum", err)
	}

	r.log.WithFields(logrus.Fields{"enum": e.Name, "game_id": e.GameID}).Info("Created enum")
	return nil
}

// ValueInput describes an enum value to insert or refresh. Nil Created keeps
// the existing timestamp, or uses now for new values.
type ValueInput struct {
	EnumID   loaderfields.EnumID
	Value    string
	Ordering *int32
	Created  *time.Time
	Metadata json.RawMessage
	Featured bool
}

// UpsertValue inserts a value or refreshes the metadata, ordering and
// creation time of an existing one. The value string is never changed.
func (r *Registry) UpsertValue(ctx context.Context, in ValueInput) (loaderfields.EnumValueID, error) {
	if in.Value == "" {
		return 0, &loaderfields.ValidationError{Field: "value", Reason: "must not be empty"}
	}
	metadata, err := normalizeMetadata(in.Metadata)
	if err != nil {
		return 0, err
	}

	var id loaderfields.EnumValueID
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO loader_field_enum_values (enum_id, value, ordering, created, metadata, featured)
		VALUES ($1, $2, $3, COALESCE($4, NOW()), $5, $6)
		ON CONFLICT (enum_id, value) DO UPDATE SET
			ordering = COALESCE(EXCLUDED.ordering, loader_field_enum_values.ordering),
			created = COALESCE($4, loader_field_enum_values.created),
			metadata = COALESCE(EXCLUDED.metadata, loader_field_enum_values.metadata),
			featured = EXCLUDED.featured
		RETURNING id
	`, in.EnumID, in.Value, in.Ordering, in.Created, metadata, in.Featured).Scan(&id)
	switch {
	case postgres.IsForeignKeyViolation(err):
		return 0, loaderfields.NotFound("enum", in.EnumID)
	case err != nil:
		return 0, loaderfields.Storage("upsert enum value", err)
	}
	return id, nil
}

// ValueUpdate lists the mutable attributes of an enum value. Nil fields are
// left unchanged.
type ValueUpdate struct {
	Ordering   *int32
	Metadata   json.RawMessage
	Featured   *bool
	Deprecated *bool
}

// UpdateValue changes the mutable attributes of a value
func (r *Registry) UpdateValue(ctx context.Context, id loaderfields.EnumValueID, upd ValueUpdate) error {
	metadata, err := normalizeMetadata(upd.Metadata)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE loader_field_enum_values SET
			ordering = COALESCE($2, ordering),
			metadata = COALESCE($3, metadata),
			featured = COALESCE($4, featured),
			deprecated = COALESCE($5, deprecated)
		WHERE id = $1
	`, id, upd.Ordering, metadata, upd.Featured, upd.Deprecated)
	if err != nil {
		return loaderfields.Storage("update enum value", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return loaderfields.NotFound("enum value", id)
	}
	return nil
}

// DeleteValue removes an unreferenced enum value. Values still referenced by
// a version field are a conflict.
func (r *Registry) DeleteValue(ctx context.Context, id loaderfields.EnumValueID) error {
	return postgres.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var referenced bool
		if err := tx.QueryRowContext(ctx, `
			SELECT EXISTS (SELECT 1 FROM version_fields WHERE enum_value = $1)
		`, id).Scan(&referenced); err != nil {
			return loaderfields.Storage("check enum value references", err)
		}
		if referenced {
			return loaderfields.Conflict("enum value", id, "referenced by version fields")
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM loader_field_enum_values WHERE id = $1`, id)
		if postgres.IsForeignKeyViolation(err) {
			return loaderfields.Conflict("enum value", id, "referenced by version fields")
		}
		if err != nil {
			return loaderfields.Storage("delete enum value", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return loaderfields.NotFound("enum value", id)
		}

		r.log.WithField("enum_value_id", id).Info("Deleted enum value")
		return nil
	})
}

func (r *Registry) queryValues(ctx context.Context, db *sql.DB, op, query string, args ...any) ([]loaderfields.EnumValue, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, loaderfields.Storage(op, err)
	}
	defer rows.Close()

	var values []loaderfields.EnumValue
	for rows.Next() {
		v, err := scanValue(rows)
		if err != nil {
			return nil, loaderfields.Storage(op, err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, loaderfields.Storage(op, err)
	}
	return values, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanValue(s scanner) (loaderfields.EnumValue, error) {
	var v loaderfields.EnumValue
	var ordering sql.NullInt32
	var metadata []byte
	if err := s.Scan(&v.ID, &v.EnumID, &v.Value, &ordering, &v.Created, &metadata, &v.Featured, &v.Deprecated); err != nil {
		return v, err
	}
	v.Ordering = nullInt32Ptr(ordering)
	if len(metadata) > 0 {
		v.Metadata = json.RawMessage(metadata)
	}
	return v, nil
}

// normalizeMetadata rejects non-object metadata and maps empty input to SQL NULL
func normalizeMetadata(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, &loaderfields.ValidationError{Field: "metadata", Reason: "must be a JSON object"}
	}
	if obj == nil {
		return nil, nil
	}
	return string(raw), nil
}

func nullInt32Ptr(n sql.NullInt32) *int32 {
	if !n.Valid {
		return nil
	}
	v := n.Int32
	return &v
}

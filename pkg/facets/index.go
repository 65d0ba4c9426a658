package facets

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/labrinth-go/labrinth/pkg/loaderfields"
	"github.com/labrinth-go/labrinth/pkg/storage/postgres"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var indexTracer = otel.Tracer("labrinth/facets/index")

// PostgresIndex stores facet documents in the search_facets table, one row
// per (project, axis, term).
type PostgresIndex struct {
	db  *sql.DB
	log *logrus.Logger
}

// NewPostgresIndex creates a facet index on db
func NewPostgresIndex(db *sql.DB, log *logrus.Logger) *PostgresIndex {
	if log == nil {
		log = logrus.New()
	}
	return &PostgresIndex{db: db, log: log}
}

// Index replaces the stored terms of doc's project
func (idx *PostgresIndex) Index(ctx context.Context, doc Document) error {
	ctx, span := indexTracer.Start(ctx, "Index",
		trace.WithAttributes(attribute.Int64("project_id", int64(doc.ProjectID))),
	)
	defer span.End()

	axes, terms := doc.Terms()
	err := postgres.WithTx(ctx, idx.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM search_facets WHERE project_id = $1`, int64(doc.ProjectID)); err != nil {
			return fmt.Errorf("failed to clear facets: %w", err)
		}
		if len(terms) == 0 {
			return nil
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO search_facets (project_id, facet, term)
			SELECT $1, t.facet, t.term
			FROM UNNEST($2::text[], $3::text[]) AS t(facet, term)
			ON CONFLICT DO NOTHING
		`, int64(doc.ProjectID), pq.StringArray(axes), pq.StringArray(terms))
		if err != nil {
			return fmt.Errorf("failed to insert facets: %w", err)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to index project")
		return err
	}

	span.SetAttributes(attribute.Int("terms", len(terms)))
	idx.log.WithFields(logrus.Fields{
		"project_id": doc.ProjectID,
		"terms":      len(terms),
	}).Debug("Indexed project facets")
	return nil
}

// Remove drops every stored term of a project
func (idx *PostgresIndex) Remove(ctx context.Context, projectID loaderfields.ProjectID) error {
	if _, err := idx.db.ExecContext(ctx, `DELETE FROM search_facets WHERE project_id = $1`, int64(projectID)); err != nil {
		return fmt.Errorf("failed to remove facets: %w", err)
	}
	return nil
}

// Document loads the stored document of a project. Terms within an axis come
// back sorted.
func (idx *PostgresIndex) Document(ctx context.Context, projectID loaderfields.ProjectID) (*Document, error) {
	rows, err := idx.db.QueryContext(ctx, `
		SELECT facet, term FROM search_facets
		WHERE project_id = $1
		ORDER BY facet, term
	`, int64(projectID))
	if err != nil {
		return nil, loaderfields.Storage("load facets", err)
	}
	defer rows.Close()

	doc := &Document{
		ProjectID:    projectID,
		Loaders:      []string{},
		ProjectTypes: []string{},
		Facets:       make(map[string][]string),
	}
	found := false
	for rows.Next() {
		var axis, term string
		if err := rows.Scan(&axis, &term); err != nil {
			return nil, loaderfields.Storage("scan facet", err)
		}
		found = true
		switch axis {
		case AxisLoaders:
			doc.Loaders = append(doc.Loaders, term)
		case AxisProjectTypes:
			doc.ProjectTypes = append(doc.ProjectTypes, term)
		default:
			doc.Facets[axis] = append(doc.Facets[axis], term)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, loaderfields.Storage("load facets", err)
	}
	if !found {
		return nil, loaderfields.NotFound("project", projectID)
	}
	return doc, nil
}

// Search returns the ids of indexed projects matching pred, ascending
func (idx *PostgresIndex) Search(ctx context.Context, pred Predicate, limit, offset int) ([]loaderfields.ProjectID, error) {
	ctx, span := indexTracer.Start(ctx, "Search",
		trace.WithAttributes(attribute.String("filter", pred.String())),
	)
	defer span.End()

	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	cond, args := pred.SQL(0)
	args = append(args, limit, offset)
	query := fmt.Sprintf(`
		SELECT DISTINCT p.project_id FROM search_facets p
		WHERE %s
		ORDER BY p.project_id
		LIMIT $%d OFFSET $%d
	`, cond, len(args)-1, len(args))

	rows, err := idx.db.QueryContext(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "search failed")
		return nil, loaderfields.Storage("search facets", err)
	}
	defer rows.Close()

	var ids []loaderfields.ProjectID
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, loaderfields.Storage("scan project id", err)
		}
		ids = append(ids, loaderfields.ProjectID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, loaderfields.Storage("search facets", err)
	}
	span.SetAttributes(attribute.Int("results", len(ids)))
	return ids, nil
}

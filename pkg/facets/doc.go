// Package facets projects version field values into project-level search
// documents and evaluates facet filters against them.
//
// Every enum and array-enum field becomes one facet axis named after the
// field. Terms are deduplicated across all versions of a project, and a
// field missing from a version adds nothing. Integer, text and boolean
// fields are never faceted.
//
// # Projection
//
// Projector reads a project's versions through the version field store,
// builds a Document and writes it to an Index. Failed projections are pushed
// onto a RetryQueue and drained by the indexer binary:
//
//	projector := facets.NewProjector(store, facets.NewPostgresIndex(db, log), queue, log)
//	if err := projector.ProjectProject(ctx, projectID); err != nil {
//		// already queued for retry
//	}
//
// # Filtering
//
// Filters use the nested-array syntax of the search API. Terms inside a
// group are OR'd and groups are AND'd:
//
//	pred, err := facets.ParseFilter(`[["game_versions:1.20.1","game_versions:1.20"],["client_side:required"]]`)
//	ids, err := index.Search(ctx, pred, 20, 0)
package facets

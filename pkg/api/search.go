package api

import (
	"errors"
	"net/http"

	"github.com/labrinth-go/labrinth/pkg/facets"
	"github.com/labrinth-go/labrinth/pkg/httputil"
	"github.com/labrinth-go/labrinth/pkg/legacy"
	"github.com/labrinth-go/labrinth/pkg/loaderfields"
)

const (
	defaultSearchLimit = 10
	maxSearchLimit     = 100
)

type searchResults[T any] struct {
	Hits   []T `json:"hits"`
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// searchProjects handles GET /v3/search
func (s *Server) searchProjects(w http.ResponseWriter, r *http.Request) {
	pred, limit, offset, ok := parseSearch(w, r)
	if !ok {
		return
	}

	docs, err := s.searchDocuments(r, pred, limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, searchResults[facets.Document]{Hits: docs, Offset: offset, Limit: limit})
}

// searchLegacyProjects handles GET /v2/search
func (s *Server) searchLegacyProjects(w http.ResponseWriter, r *http.Request) {
	pred, limit, offset, ok := parseSearch(w, r)
	if !ok {
		return
	}

	docs, err := s.searchDocuments(r, legacy.TranslateFacets(pred), limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}

	hits := make([]legacy.SearchHit, 0, len(docs))
	for _, doc := range docs {
		hits = append(hits, legacy.SearchHitFromDocument(doc))
	}
	httputil.WriteSuccess(w, searchResults[legacy.SearchHit]{Hits: hits, Offset: offset, Limit: limit})
}

func parseSearch(w http.ResponseWriter, r *http.Request) (facets.Predicate, int, int, bool) {
	pred, err := facets.ParseFilter(httputil.ParseQueryString(r, "facets", ""))
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return facets.Predicate{}, 0, 0, false
	}

	limit, err := httputil.ParseQueryInt(r, "limit", defaultSearchLimit)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return facets.Predicate{}, 0, 0, false
	}
	if limit < 1 || limit > maxSearchLimit {
		limit = defaultSearchLimit
	}

	offset, err := httputil.ParseQueryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		httputil.WriteBadRequest(w, "offset must be a non-negative integer")
		return facets.Predicate{}, 0, 0, false
	}
	return pred, limit, offset, true
}

// searchDocuments loads the document of every matching project. Projects
// removed between the two reads are skipped.
func (s *Server) searchDocuments(r *http.Request, pred facets.Predicate, limit, offset int) ([]facets.Document, error) {
	ids, err := s.search.Search(r.Context(), pred, limit, offset)
	if err != nil {
		return nil, err
	}

	docs := make([]facets.Document, 0, len(ids))
	for _, id := range ids {
		doc, err := s.search.Document(r.Context(), id)
		if errors.Is(err, loaderfields.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, nil
}

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"

	"github.com/labrinth-go/labrinth/pkg/httputil"
	"github.com/labrinth-go/labrinth/pkg/legacy"
	"github.com/labrinth-go/labrinth/pkg/loaderfields"
)

const maxBulkVersions = 500

type createFieldsRequest struct {
	ProjectID int64                      `json:"project_id"`
	Loaders   []string                   `json:"loaders"`
	Fields    map[string]json.RawMessage `json:"fields"`
}

type createdVersion struct {
	ID        loaderfields.VersionID `json:"id"`
	ProjectID loaderfields.ProjectID `json:"project_id"`
	Loaders   []string               `json:"loaders"`
}

// getVersionFields handles GET /v3/version/{id}/fields
func (s *Server) getVersionFields(w http.ResponseWriter, r *http.Request) {
	meta, ok := s.loadVersion(w, r)
	if !ok {
		return
	}
	httputil.WriteSuccess(w, meta)
}

// createVersionFields handles POST /v3/version/{id}/fields. It registers the
// version under its project and loader set and stores the initial values.
func (s *Server) createVersionFields(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req createFieldsRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	verrs := &loaderfields.ValidationErrors{}
	if req.ProjectID <= 0 {
		verrs.Add("project_id", "must be a positive id")
	}
	if len(req.Loaders) == 0 {
		verrs.Add("loaders", "at least one loader is required")
	}
	if err := verrs.ErrOrNil(); err != nil {
		writeError(w, r, err)
		return
	}

	loaderIDs, err := s.loaders.LoaderIDs(r.Context(), req.Loaders)
	if errors.Is(err, loaderfields.ErrNotFound) {
		verrs.Add("loaders", err.Error())
		writeError(w, r, verrs)
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	projectID := loaderfields.ProjectID(req.ProjectID)
	if err := s.fields.CreateVersionFields(r.Context(), projectID, loaderfields.VersionID(id), loaderIDs, req.Fields); err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, createdVersion{
		ID:        loaderfields.VersionID(id),
		ProjectID: projectID,
		Loaders:   req.Loaders,
	})
}

// patchVersionFields handles PATCH /v3/version/{id}/fields
func (s *Server) patchVersionFields(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var submitted map[string]json.RawMessage
	if !httputil.ParseJSONOrError(w, r, &submitted) {
		return
	}

	if err := s.fields.UpdateVersionFields(r.Context(), loaderfields.VersionID(id), submitted); err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// getVersionFieldsBulk handles GET /v3/versions/fields?ids=[...]
func (s *Server) getVersionFieldsBulk(w http.ResponseWriter, r *http.Request) {
	var raw []int64
	present, err := httputil.ParseQueryJSON(r, "ids", &raw)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if !present {
		httputil.WriteBadRequest(w, "ids is required")
		return
	}
	if len(raw) > maxBulkVersions {
		httputil.WriteBadRequest(w, "too many ids requested")
		return
	}

	ids := make([]loaderfields.VersionID, 0, len(raw))
	for _, id := range raw {
		ids = append(ids, loaderfields.VersionID(id))
	}

	metas, err := s.fields.GetFieldsBulk(r.Context(), ids)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]*loaderfields.VersionMetadata, 0, len(metas))
	for _, meta := range metas {
		out = append(out, meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VersionID < out[j].VersionID })
	httputil.WriteSuccess(w, out)
}

// getLegacyVersion handles GET /v2/version/{id}
func (s *Server) getLegacyVersion(w http.ResponseWriter, r *http.Request) {
	meta, ok := s.loadVersion(w, r)
	if !ok {
		return
	}
	httputil.WriteSuccess(w, legacy.FromVersion(meta))
}

// patchLegacyVersion handles PATCH /v2/version/{id}
func (s *Server) patchLegacyVersion(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var update legacy.VersionUpdate
	if !httputil.ParseJSONOrError(w, r, &update) {
		return
	}
	if update.IsEmpty() {
		httputil.WriteNoContent(w)
		return
	}

	submitted, err := update.FieldValues()
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if err := s.fields.UpdateVersionFields(r.Context(), loaderfields.VersionID(id), submitted); err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) loadVersion(w http.ResponseWriter, r *http.Request) (*loaderfields.VersionMetadata, bool) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return nil, false
	}

	metas, err := s.fields.GetFieldsBulk(r.Context(), []loaderfields.VersionID{loaderfields.VersionID(id)})
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	meta, found := metas[loaderfields.VersionID(id)]
	if !found {
		writeError(w, r, loaderfields.NotFound("version", id))
		return nil, false
	}
	return meta, true
}

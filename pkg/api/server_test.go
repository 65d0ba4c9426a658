package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"

	"github.com/labrinth-go/labrinth/pkg/facets"
	"github.com/labrinth-go/labrinth/pkg/httputil"
	"github.com/labrinth-go/labrinth/pkg/legacy"
	"github.com/labrinth-go/labrinth/pkg/loaderfields"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCatalog struct {
	loaders  []loaderfields.Loader
	fields   map[string]loaderfields.LoaderField
	byLoader map[loaderfields.LoaderID][]string
	err      error
}

func (f *fakeCatalog) ListLoaders(ctx context.Context) ([]loaderfields.Loader, error) {
	return f.loaders, f.err
}

func (f *fakeCatalog) LoaderIDs(ctx context.Context, names []string) ([]loaderfields.LoaderID, error) {
	ids := make([]loaderfields.LoaderID, 0, len(names))
	for _, name := range names {
		found := false
		for _, l := range f.loaders {
			if strings.EqualFold(l.Name, name) {
				ids = append(ids, l.ID)
				found = true
			}
		}
		if !found {
			return nil, loaderfields.NotFound("loader", name)
		}
	}
	return ids, nil
}

func (f *fakeCatalog) ListFields(ctx context.Context) ([]loaderfields.LoaderField, error) {
	out := make([]loaderfields.LoaderField, 0, len(f.fields))
	for _, field := range f.fields {
		out = append(out, field)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, f.err
}

func (f *fakeCatalog) ApplicableFields(ctx context.Context, loaderIDs []loaderfields.LoaderID) ([]loaderfields.LoaderField, error) {
	seen := make(map[string]bool)
	var out []loaderfields.LoaderField
	for _, id := range loaderIDs {
		for _, name := range f.byLoader[id] {
			if !seen[name] {
				seen[name] = true
				out = append(out, f.fields[name])
			}
		}
	}
	return out, f.err
}

func (f *fakeCatalog) RequiredFields(ctx context.Context, loaderIDs []loaderfields.LoaderID) ([]loaderfields.LoaderField, error) {
	all, err := f.ApplicableFields(ctx, loaderIDs)
	var out []loaderfields.LoaderField
	for _, field := range all {
		if !field.Optional {
			out = append(out, field)
		}
	}
	return out, err
}

func (f *fakeCatalog) GetField(ctx context.Context, name string) (*loaderfields.LoaderField, error) {
	if f.err != nil {
		return nil, f.err
	}
	field, ok := f.fields[name]
	if !ok {
		return nil, loaderfields.NotFound("loader field", name)
	}
	return &field, nil
}

type fakeEnums struct {
	enums   map[loaderfields.EnumID]*loaderfields.Enum
	values  map[loaderfields.EnumID][]loaderfields.EnumValue
	filters map[string]any
	hidden  bool
}

func (f *fakeEnums) GetEnumByID(ctx context.Context, id loaderfields.EnumID) (*loaderfields.Enum, error) {
	e, ok := f.enums[id]
	if !ok {
		return nil, loaderfields.NotFound("enum", id)
	}
	return e, nil
}

func (f *fakeEnums) ListByEnum(ctx context.Context, e *loaderfields.Enum, includeHidden bool) ([]loaderfields.EnumValue, error) {
	f.hidden = includeHidden
	return f.values[e.ID], nil
}

func (f *fakeEnums) ListFiltered(ctx context.Context, enumID loaderfields.EnumID, filters map[string]any) ([]loaderfields.EnumValue, error) {
	f.filters = filters
	return f.values[enumID], nil
}

type fakeFields struct {
	versions  map[loaderfields.VersionID]*loaderfields.VersionMetadata
	updated   map[string]json.RawMessage
	updatedID loaderfields.VersionID
	updateErr error

	created        map[string]json.RawMessage
	createdID      loaderfields.VersionID
	createdProject loaderfields.ProjectID
	createdLoaders []loaderfields.LoaderID
	createErr      error
}

func (f *fakeFields) CreateVersionFields(ctx context.Context, projectID loaderfields.ProjectID, id loaderfields.VersionID, loaderIDs []loaderfields.LoaderID, submitted map[string]json.RawMessage) error {
	f.createdProject = projectID
	f.createdID = id
	f.createdLoaders = loaderIDs
	f.created = submitted
	return f.createErr
}

func (f *fakeFields) GetFieldsBulk(ctx context.Context, ids []loaderfields.VersionID) (map[loaderfields.VersionID]*loaderfields.VersionMetadata, error) {
	out := make(map[loaderfields.VersionID]*loaderfields.VersionMetadata)
	for _, id := range ids {
		if meta, ok := f.versions[id]; ok {
			out[id] = meta
		}
	}
	return out, nil
}

func (f *fakeFields) UpdateVersionFields(ctx context.Context, id loaderfields.VersionID, submitted map[string]json.RawMessage) error {
	f.updatedID = id
	f.updated = submitted
	return f.updateErr
}

type fakeSearch struct {
	docs map[loaderfields.ProjectID]facets.Document
	pred facets.Predicate
}

func (f *fakeSearch) Search(ctx context.Context, pred facets.Predicate, limit, offset int) ([]loaderfields.ProjectID, error) {
	f.pred = pred
	var ids []loaderfields.ProjectID
	for id := loaderfields.ProjectID(1); id <= loaderfields.ProjectID(len(f.docs)+1); id++ {
		if doc, ok := f.docs[id]; ok && pred.Matches(doc) {
			ids = append(ids, id)
		}
	}
	// a project removed between search and load
	return append(ids, 99), nil
}

func (f *fakeSearch) Document(ctx context.Context, id loaderfields.ProjectID) (*facets.Document, error) {
	doc, ok := f.docs[id]
	if !ok {
		return nil, loaderfields.NotFound("project", id)
	}
	return &doc, nil
}

func enumID(id loaderfields.EnumID) *loaderfields.EnumID { return &id }

func gameVersion(id int32, value, kind string, major bool) loaderfields.EnumValue {
	meta, _ := json.Marshal(map[string]any{"type": kind, "major": major})
	return loaderfields.EnumValue{ID: loaderfields.EnumValueID(id), EnumID: 1, Value: value, Metadata: meta}
}

type fixture struct {
	catalog *fakeCatalog
	enums   *fakeEnums
	fields  *fakeFields
	search  *fakeSearch
	server  *Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		catalog: &fakeCatalog{
			loaders: []loaderfields.Loader{
				{ID: 2, Name: "forge", SupportedProjectTypes: []string{"mod"}, SupportedGames: []string{"minecraft"}},
				{ID: 1, Name: "Fabric", Icon: "<svg/>", SupportedProjectTypes: []string{"mod"}},
			},
			fields: map[string]loaderfields.LoaderField{
				"game_versions": {ID: 1, Field: "game_versions", Type: loaderfields.TypeArrayEnum, EnumType: enumID(1)},
				"client_side":   {ID: 2, Field: "client_side", Type: loaderfields.TypeEnum, EnumType: enumID(2), Optional: true},
				"mrpack_size":   {ID: 3, Field: "mrpack_size", Type: loaderfields.TypeInteger},
			},
			byLoader: map[loaderfields.LoaderID][]string{
				1: {"game_versions", "client_side"},
				2: {"game_versions", "mrpack_size"},
			},
		},
		enums: &fakeEnums{
			enums: map[loaderfields.EnumID]*loaderfields.Enum{
				1: {ID: 1, GameID: 1, Name: "game_versions"},
				2: {ID: 2, GameID: 1, Name: "side_types"},
			},
			values: map[loaderfields.EnumID][]loaderfields.EnumValue{
				1: {gameVersion(10, "1.20.1", "release", true), gameVersion(11, "23w31a", "snapshot", false)},
				2: {{ID: 20, EnumID: 2, Value: "required"}, {ID: 21, EnumID: 2, Value: "optional"}},
			},
		},
		fields: &fakeFields{
			versions: map[loaderfields.VersionID]*loaderfields.VersionMetadata{
				5: {
					VersionID: 5,
					ProjectID: 1,
					Loaders:   []string{"fabric"},
					Fields: map[string]loaderfields.FieldValue{
						"game_versions": loaderfields.ArrayEnumValue(gameVersion(10, "1.20.1", "release", true)),
					},
				},
			},
		},
		search: &fakeSearch{
			docs: map[loaderfields.ProjectID]facets.Document{
				1: {ProjectID: 1, Loaders: []string{"fabric"}, ProjectTypes: []string{"mod"}, Facets: map[string][]string{"game_versions": {"1.20.1"}}},
				2: {ProjectID: 2, Loaders: []string{"forge"}, ProjectTypes: []string{"mod"}, Facets: map[string][]string{"game_versions": {"1.19.4"}}},
			},
		},
	}
	log, _ := test.NewNullLogger()
	f.server = NewServer(f.catalog, f.enums, f.fields, f.search, log)
	return f
}

func (f *fixture) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rr := httptest.NewRecorder()
	f.server.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) httputil.ErrorResponse {
	t.Helper()
	var body httputil.ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	return body
}

func TestListLoaders(t *testing.T) {
	f := newFixture(t)

	rr := f.do(http.MethodGet, "/v3/tag/loader", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var loaders []loaderData
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&loaders))
	require.Len(t, loaders, 2)
	assert.Equal(t, "Fabric", loaders[0].Name)
	assert.Equal(t, "<svg/>", loaders[0].Icon)
	assert.Equal(t, []string{}, loaders[0].SupportedGames)
	assert.Equal(t, "forge", loaders[1].Name)
}

func TestListLoaderFieldValues(t *testing.T) {
	t.Run("missing field name", func(t *testing.T) {
		rr := newFixture(t).do(http.MethodGet, "/v3/tag/loader_field", "")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("unknown field", func(t *testing.T) {
		rr := newFixture(t).do(http.MethodGet, "/v3/tag/loader_field?loader_field=colour", "")
		require.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "'colour' was not a valid loader field.", decodeError(t, rr).Description)
	})

	t.Run("non-enum field", func(t *testing.T) {
		rr := newFixture(t).do(http.MethodGet, "/v3/tag/loader_field?loader_field=mrpack_size", "")
		require.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, decodeError(t, rr).Description, "'integer' field")
	})

	t.Run("lists values", func(t *testing.T) {
		f := newFixture(t)
		rr := f.do(http.MethodGet, "/v3/tag/loader_field?loader_field=client_side&include_hidden=true", "")
		require.Equal(t, http.StatusOK, rr.Code)

		var values []loaderfields.EnumValue
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&values))
		require.Len(t, values, 2)
		assert.Equal(t, "required", values[0].Value)
		assert.True(t, f.enums.hidden)
	})

	t.Run("metadata filters", func(t *testing.T) {
		f := newFixture(t)
		q := url.Values{"loader_field": {"game_versions"}, "filters": {`{"type":"release"}`}}
		rr := f.do(http.MethodGet, "/v3/tag/loader_field?"+q.Encode(), "")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, map[string]any{"type": "release"}, f.enums.filters)
	})

	t.Run("malformed filters", func(t *testing.T) {
		q := url.Values{"loader_field": {"game_versions"}, "filters": {`{"type":`}}
		rr := newFixture(t).do(http.MethodGet, "/v3/tag/loader_field?"+q.Encode(), "")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestGetVersionFields(t *testing.T) {
	f := newFixture(t)

	rr := f.do(http.MethodGet, "/v3/version/5/fields", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		VersionID int64          `json:"version_id"`
		Fields    map[string]any `json:"fields"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, int64(5), body.VersionID)
	assert.Equal(t, []any{"1.20.1"}, body.Fields["game_versions"])

	rr = f.do(http.MethodGet, "/v3/version/6/fields", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, httputil.CodeNotFound, decodeError(t, rr).Error)
}

func TestGetVersionFieldsBulk(t *testing.T) {
	f := newFixture(t)

	q := url.Values{"ids": {"[5,6]"}}
	rr := f.do(http.MethodGet, "/v3/versions/fields?"+q.Encode(), "")
	require.Equal(t, http.StatusOK, rr.Code)

	var body []map[string]any
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	require.Len(t, body, 1)
	assert.Equal(t, 5.0, body[0]["version_id"])

	rr = f.do(http.MethodGet, "/v3/versions/fields", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPatchVersionFields(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		f := newFixture(t)
		rr := f.do(http.MethodPatch, "/v3/version/5/fields", `{"game_versions":["1.20.1"],"client_side":null}`)
		require.Equal(t, http.StatusNoContent, rr.Code)
		assert.Equal(t, loaderfields.VersionID(5), f.fields.updatedID)
		assert.JSONEq(t, `["1.20.1"]`, string(f.fields.updated["game_versions"]))
		assert.Equal(t, "null", string(f.fields.updated["client_side"]))
	})

	t.Run("validation failure lists every field", func(t *testing.T) {
		f := newFixture(t)
		verrs := &loaderfields.ValidationErrors{}
		verrs.Add("game_versions", "'1.99' is not a valid game_versions value")
		verrs.Add("client_side", "expected a string")
		f.fields.updateErr = verrs

		rr := f.do(http.MethodPatch, "/v3/version/5/fields", `{"game_versions":["1.99"],"client_side":3}`)
		require.Equal(t, http.StatusBadRequest, rr.Code)

		var body struct {
			Error   string                         `json:"error"`
			Details []loaderfields.ValidationError `json:"details"`
		}
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
		assert.Equal(t, httputil.CodeInvalidInput, body.Error)
		require.Len(t, body.Details, 2)
		assert.Equal(t, "game_versions", body.Details[0].Field)
	})

	t.Run("storage failure is retryable", func(t *testing.T) {
		f := newFixture(t)
		f.fields.updateErr = loaderfields.Storage("set version fields", errors.New("connection reset"))

		rr := f.do(http.MethodPatch, "/v3/version/5/fields", `{"game_versions":["1.20.1"]}`)
		require.Equal(t, http.StatusServiceUnavailable, rr.Code)
		assert.NotContains(t, rr.Body.String(), "connection reset")
	})

	t.Run("conflict", func(t *testing.T) {
		f := newFixture(t)
		f.fields.updateErr = loaderfields.Conflict("version", 5, "concurrent update")

		rr := f.do(http.MethodPatch, "/v3/version/5/fields", `{}`)
		assert.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("unexpected error hides detail", func(t *testing.T) {
		f := newFixture(t)
		f.fields.updateErr = errors.New("nil map write")

		rr := f.do(http.MethodPatch, "/v3/version/5/fields", `{}`)
		require.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.NotContains(t, rr.Body.String(), "nil map")
	})

	t.Run("malformed body", func(t *testing.T) {
		rr := newFixture(t).do(http.MethodPatch, "/v3/version/5/fields", `[`)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestLegacyVersion(t *testing.T) {
	t.Run("missing sides report the default", func(t *testing.T) {
		rr := newFixture(t).do(http.MethodGet, "/v2/version/5", "")
		require.Equal(t, http.StatusOK, rr.Code)

		var v legacy.Version
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&v))
		assert.Equal(t, []string{"1.20.1"}, v.GameVersions)
		assert.Equal(t, []string{"fabric"}, v.Loaders)
		assert.Equal(t, legacy.DefaultSide, v.ClientSide)
		assert.Equal(t, legacy.DefaultSide, v.ServerSide)
	})

	t.Run("patch writes through the field service", func(t *testing.T) {
		f := newFixture(t)
		rr := f.do(http.MethodPatch, "/v2/version/5", `{"game_versions":["1.20.1"],"client_side":"required"}`)
		require.Equal(t, http.StatusNoContent, rr.Code)
		assert.Len(t, f.fields.updated, 2)
		assert.JSONEq(t, `"required"`, string(f.fields.updated["client_side"]))
	})

	t.Run("empty patch touches nothing", func(t *testing.T) {
		f := newFixture(t)
		rr := f.do(http.MethodPatch, "/v2/version/5", `{}`)
		require.Equal(t, http.StatusNoContent, rr.Code)
		assert.Nil(t, f.fields.updated)
	})
}

func TestLegacyTags(t *testing.T) {
	t.Run("game versions with filters", func(t *testing.T) {
		f := newFixture(t)
		rr := f.do(http.MethodGet, "/v2/tag/game_version?type=release&major=true", "")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, map[string]any{"type": "release", "major": true}, f.enums.filters)

		var versions []legacy.GameVersion
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&versions))
		require.Len(t, versions, 2)
		assert.Equal(t, "1.20.1", versions[0].Version)
		assert.Equal(t, "release", versions[0].VersionType)
		assert.True(t, versions[0].Major)
	})

	t.Run("invalid major flag", func(t *testing.T) {
		rr := newFixture(t).do(http.MethodGet, "/v2/tag/game_version?major=sometimes", "")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("side types", func(t *testing.T) {
		rr := newFixture(t).do(http.MethodGet, "/v2/tag/side_type", "")
		require.Equal(t, http.StatusOK, rr.Code)

		var sides []string
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&sides))
		assert.Equal(t, []string{"required", "optional"}, sides)
	})
}

func TestSearch(t *testing.T) {
	t.Run("v3 facets", func(t *testing.T) {
		f := newFixture(t)
		q := url.Values{"facets": {`[["loaders:fabric"]]`}}
		rr := f.do(http.MethodGet, "/v3/search?"+q.Encode(), "")
		require.Equal(t, http.StatusOK, rr.Code)

		var body searchResults[facets.Document]
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
		require.Len(t, body.Hits, 1)
		assert.Equal(t, loaderfields.ProjectID(1), body.Hits[0].ProjectID)
		assert.Equal(t, defaultSearchLimit, body.Limit)
	})

	t.Run("v2 facets are translated", func(t *testing.T) {
		f := newFixture(t)
		q := url.Values{"facets": {`[["versions:1.19.4"]]`}, "limit": {"5"}}
		rr := f.do(http.MethodGet, "/v2/search?"+q.Encode(), "")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "game_versions", f.search.pred.Groups[0][0].Axis)

		var body searchResults[legacy.SearchHit]
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
		require.Len(t, body.Hits, 1)
		assert.Equal(t, loaderfields.ProjectID(2), body.Hits[0].ProjectID)
		assert.Equal(t, "mod", body.Hits[0].ProjectType)
		assert.Equal(t, 5, body.Limit)
	})

	t.Run("malformed facets", func(t *testing.T) {
		q := url.Values{"facets": {`[["loaders"]]`}}
		rr := newFixture(t).do(http.MethodGet, "/v3/search?"+q.Encode(), "")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("negative offset", func(t *testing.T) {
		rr := newFixture(t).do(http.MethodGet, "/v3/search?offset=-1", "")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestSearchRoutesOptional(t *testing.T) {
	f := newFixture(t)
	s := NewServer(f.catalog, f.enums, f.fields, nil, nil)

	rr := httptest.NewRecorder()
	s.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v3/search", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCreateVersionFields(t *testing.T) {
	t.Run("registers with resolved loaders", func(t *testing.T) {
		f := newFixture(t)
		rr := f.do(http.MethodPost, "/v3/version/70/fields",
			`{"project_id":7,"loaders":["fabric","forge"],"fields":{"game_versions":["1.20.1"]}}`)
		require.Equal(t, http.StatusCreated, rr.Code)

		assert.Equal(t, loaderfields.VersionID(70), f.fields.createdID)
		assert.Equal(t, loaderfields.ProjectID(7), f.fields.createdProject)
		assert.Equal(t, []loaderfields.LoaderID{1, 2}, f.fields.createdLoaders)
		assert.JSONEq(t, `["1.20.1"]`, string(f.fields.created["game_versions"]))

		var body createdVersion
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
		assert.Equal(t, loaderfields.VersionID(70), body.ID)
		assert.Equal(t, []string{"fabric", "forge"}, body.Loaders)
	})

	t.Run("missing project and loaders", func(t *testing.T) {
		f := newFixture(t)
		rr := f.do(http.MethodPost, "/v3/version/70/fields", `{"fields":{}}`)
		require.Equal(t, http.StatusBadRequest, rr.Code)

		var body struct {
			Details []loaderfields.ValidationError `json:"details"`
		}
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
		require.Len(t, body.Details, 2)
		assert.Equal(t, "project_id", body.Details[0].Field)
		assert.Equal(t, "loaders", body.Details[1].Field)
		assert.Zero(t, f.fields.createdID)
	})

	t.Run("unknown loader is a client error", func(t *testing.T) {
		f := newFixture(t)
		rr := f.do(http.MethodPost, "/v3/version/70/fields", `{"project_id":7,"loaders":["rift"]}`)
		require.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), "rift")
		assert.Zero(t, f.fields.createdID)
	})

	t.Run("existing version conflicts", func(t *testing.T) {
		f := newFixture(t)
		f.fields.createErr = loaderfields.Conflict("version", 70, "already exists")

		rr := f.do(http.MethodPost, "/v3/version/70/fields", `{"project_id":7,"loaders":["fabric"]}`)
		assert.Equal(t, http.StatusConflict, rr.Code)
	})
}

func TestListLoaderFields(t *testing.T) {
	decodeFields := func(t *testing.T, rr *httptest.ResponseRecorder) []string {
		t.Helper()
		require.Equal(t, http.StatusOK, rr.Code)
		var fields []loaderfields.LoaderField
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&fields))
		names := make([]string, 0, len(fields))
		for _, field := range fields {
			names = append(names, field.Field)
		}
		return names
	}

	t.Run("every field", func(t *testing.T) {
		rr := newFixture(t).do(http.MethodGet, "/v3/loader_fields", "")
		assert.Equal(t, []string{"game_versions", "client_side", "mrpack_size"}, decodeFields(t, rr))
	})

	t.Run("applicable to a loader set", func(t *testing.T) {
		q := url.Values{"loaders": {`["fabric"]`}}
		rr := newFixture(t).do(http.MethodGet, "/v3/loader_fields?"+q.Encode(), "")
		assert.Equal(t, []string{"game_versions", "client_side"}, decodeFields(t, rr))
	})

	t.Run("required only", func(t *testing.T) {
		q := url.Values{"loaders": {`["fabric"]`}, "required": {"true"}}
		rr := newFixture(t).do(http.MethodGet, "/v3/loader_fields?"+q.Encode(), "")
		assert.Equal(t, []string{"game_versions"}, decodeFields(t, rr))

		rr = newFixture(t).do(http.MethodGet, "/v3/loader_fields?required=true", "")
		assert.Equal(t, []string{"game_versions", "mrpack_size"}, decodeFields(t, rr))
	})

	t.Run("unknown loader", func(t *testing.T) {
		q := url.Values{"loaders": {`["rift"]`}}
		rr := newFixture(t).do(http.MethodGet, "/v3/loader_fields?"+q.Encode(), "")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("malformed loaders", func(t *testing.T) {
		q := url.Values{"loaders": {`fabric`}}
		rr := newFixture(t).do(http.MethodGet, "/v3/loader_fields?"+q.Encode(), "")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

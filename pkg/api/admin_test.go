package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labrinth-go/labrinth/pkg/enums"
	"github.com/labrinth-go/labrinth/pkg/loaderfields"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdmin struct {
	*fakeCatalog

	games  map[string]loaderfields.Game
	values map[string][]loaderfields.EnumValue
	hidden bool

	updated     map[loaderfields.EnumValueID]enums.ValueUpdate
	deleted     []loaderfields.EnumValueID
	deletedLdr  []loaderfields.LoaderID
	dissociated [][2]int64
	mutateErr   error
}

func (f *fakeAdmin) GetGame(ctx context.Context, name string) (*loaderfields.Game, error) {
	g, ok := f.games[name]
	if !ok {
		return nil, loaderfields.NotFound("game", name)
	}
	return &g, nil
}

func (f *fakeAdmin) List(ctx context.Context, enumName string, gameID loaderfields.GameID, includeHidden bool) ([]loaderfields.EnumValue, error) {
	f.hidden = includeHidden
	values, ok := f.values[enumName]
	if !ok {
		return nil, loaderfields.NotFound("enum", enumName)
	}
	return values, nil
}

func (f *fakeAdmin) Resolve(ctx context.Context, enumName string, gameID loaderfields.GameID, value string) (loaderfields.EnumValueID, error) {
	for _, v := range f.values[enumName] {
		if v.Value == value {
			return v.ID, nil
		}
	}
	return 0, loaderfields.NotFound("enum value", value)
}

func (f *fakeAdmin) UpdateValue(ctx context.Context, id loaderfields.EnumValueID, upd enums.ValueUpdate) error {
	if f.updated == nil {
		f.updated = make(map[loaderfields.EnumValueID]enums.ValueUpdate)
	}
	f.updated[id] = upd
	return f.mutateErr
}

func (f *fakeAdmin) DeleteValue(ctx context.Context, id loaderfields.EnumValueID) error {
	if f.mutateErr != nil {
		return f.mutateErr
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeAdmin) DissociateField(ctx context.Context, fieldID loaderfields.LoaderFieldID, loaderID loaderfields.LoaderID) error {
	if f.mutateErr != nil {
		return f.mutateErr
	}
	f.dissociated = append(f.dissociated, [2]int64{int64(fieldID), int64(loaderID)})
	return nil
}

func (f *fakeAdmin) DeleteLoader(ctx context.Context, id loaderfields.LoaderID) error {
	if f.mutateErr != nil {
		return f.mutateErr
	}
	f.deletedLdr = append(f.deletedLdr, id)
	return nil
}

func newAdminFixture(t *testing.T) (*fixture, *fakeAdmin) {
	t.Helper()
	f := newFixture(t)
	admin := &fakeAdmin{
		fakeCatalog: f.catalog,
		games:       map[string]loaderfields.Game{"minecraft-java": {ID: 1, Name: "minecraft-java"}},
		values: map[string][]loaderfields.EnumValue{
			"side_types": {{ID: 20, EnumID: 2, Value: "required"}, {ID: 21, EnumID: 2, Value: "optional"}},
		},
	}
	log, _ := test.NewNullLogger()
	f.server = NewServer(f.catalog, f.enums, f.fields, f.search, log, WithAdmin(admin, admin))
	return f, admin
}

func TestAdminRoutesOptional(t *testing.T) {
	f := newFixture(t)

	for _, target := range []string{"/v3/tag/enum/side_types/required", "/v3/tag/loader/forge"} {
		rr := f.do(http.MethodDelete, target, "")
		assert.Equal(t, http.StatusNotFound, rr.Code, target)
	}
	rr := f.do(http.MethodGet, "/v3/tag/enum/side_types", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestAdminListEnumValues(t *testing.T) {
	t.Run("lists with hidden values", func(t *testing.T) {
		f, admin := newAdminFixture(t)
		rr := f.do(http.MethodGet, "/v3/tag/enum/side_types?include_hidden=true", "")
		require.Equal(t, http.StatusOK, rr.Code)

		var values []loaderfields.EnumValue
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&values))
		assert.Len(t, values, 2)
		assert.True(t, admin.hidden)
	})

	t.Run("unknown game", func(t *testing.T) {
		f, _ := newAdminFixture(t)
		rr := f.do(http.MethodGet, "/v3/tag/enum/side_types?game=terraria", "")
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("unknown enum", func(t *testing.T) {
		f, _ := newAdminFixture(t)
		rr := f.do(http.MethodGet, "/v3/tag/enum/colours", "")
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestAdminUpdateEnumValue(t *testing.T) {
	t.Run("applies partial update", func(t *testing.T) {
		f, admin := newAdminFixture(t)
		rr := f.do(http.MethodPatch, "/v3/tag/enum/side_types/optional", `{"ordering":3,"deprecated":true}`)
		require.Equal(t, http.StatusNoContent, rr.Code)

		upd, ok := admin.updated[21]
		require.True(t, ok)
		require.NotNil(t, upd.Ordering)
		assert.Equal(t, int32(3), *upd.Ordering)
		require.NotNil(t, upd.Deprecated)
		assert.True(t, *upd.Deprecated)
		assert.Nil(t, upd.Featured)
		assert.Nil(t, upd.Metadata)
	})

	t.Run("unknown value", func(t *testing.T) {
		f, admin := newAdminFixture(t)
		rr := f.do(http.MethodPatch, "/v3/tag/enum/side_types/sometimes", `{"featured":true}`)
		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.Empty(t, admin.updated)
	})

	t.Run("malformed body", func(t *testing.T) {
		f, _ := newAdminFixture(t)
		rr := f.do(http.MethodPatch, "/v3/tag/enum/side_types/optional", `{"ordering":"first"}`)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestAdminDeleteEnumValue(t *testing.T) {
	t.Run("deletes", func(t *testing.T) {
		f, admin := newAdminFixture(t)
		rr := f.do(http.MethodDelete, "/v3/tag/enum/side_types/required?game=minecraft-java", "")
		require.Equal(t, http.StatusNoContent, rr.Code)
		assert.Equal(t, []loaderfields.EnumValueID{20}, admin.deleted)
	})

	t.Run("referenced value conflicts", func(t *testing.T) {
		f, admin := newAdminFixture(t)
		admin.mutateErr = loaderfields.Conflict("enum value", 20, "referenced by version fields")

		rr := f.do(http.MethodDelete, "/v3/tag/enum/side_types/required", "")
		assert.Equal(t, http.StatusConflict, rr.Code)
	})
}

func TestAdminDeleteLoader(t *testing.T) {
	t.Run("deletes by name", func(t *testing.T) {
		f, admin := newAdminFixture(t)
		rr := f.do(http.MethodDelete, "/v3/tag/loader/forge", "")
		require.Equal(t, http.StatusNoContent, rr.Code)
		assert.Equal(t, []loaderfields.LoaderID{2}, admin.deletedLdr)
	})

	t.Run("unknown loader", func(t *testing.T) {
		f, _ := newAdminFixture(t)
		rr := f.do(http.MethodDelete, "/v3/tag/loader/rift", "")
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("loader with dependents", func(t *testing.T) {
		f, admin := newAdminFixture(t)
		admin.mutateErr = loaderfields.Conflict("loader", 2, "has dependent fields or versions")

		rr := f.do(http.MethodDelete, "/v3/tag/loader/forge", "")
		assert.Equal(t, http.StatusConflict, rr.Code)
	})
}

func TestAdminDissociateField(t *testing.T) {
	t.Run("removes the association", func(t *testing.T) {
		f, admin := newAdminFixture(t)
		rr := f.do(http.MethodDelete, "/v3/tag/loader/fabric/field/client_side", "")
		require.Equal(t, http.StatusNoContent, rr.Code)
		assert.Equal(t, [][2]int64{{2, 1}}, admin.dissociated)
	})

	t.Run("unknown field", func(t *testing.T) {
		f, admin := newAdminFixture(t)
		rr := f.do(http.MethodDelete, "/v3/tag/loader/fabric/field/colour", "")
		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.Empty(t, admin.dissociated)
	})
}

func TestAdminRoutesKeepPublicTags(t *testing.T) {
	f, _ := newAdminFixture(t)

	rr := httptest.NewRecorder()
	f.server.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v3/tag/loader", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

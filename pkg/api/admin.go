package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/labrinth-go/labrinth/pkg/enums"
	"github.com/labrinth-go/labrinth/pkg/httputil"
	"github.com/labrinth-go/labrinth/pkg/loaderfields"
	"github.com/labrinth-go/labrinth/pkg/observability"
)

const defaultGame = "minecraft-java"

// SchemaAdmin edits loaders and their field associations
type SchemaAdmin interface {
	GetGame(ctx context.Context, name string) (*loaderfields.Game, error)
	LoaderIDs(ctx context.Context, names []string) ([]loaderfields.LoaderID, error)
	GetField(ctx context.Context, name string) (*loaderfields.LoaderField, error)
	DissociateField(ctx context.Context, fieldID loaderfields.LoaderFieldID, loaderID loaderfields.LoaderID) error
	DeleteLoader(ctx context.Context, id loaderfields.LoaderID) error
}

// EnumAdmin edits enum values addressed by enum name and game
type EnumAdmin interface {
	List(ctx context.Context, enumName string, gameID loaderfields.GameID, includeHidden bool) ([]loaderfields.EnumValue, error)
	Resolve(ctx context.Context, enumName string, gameID loaderfields.GameID, value string) (loaderfields.EnumValueID, error)
	UpdateValue(ctx context.Context, id loaderfields.EnumValueID, upd enums.ValueUpdate) error
	DeleteValue(ctx context.Context, id loaderfields.EnumValueID) error
}

type adminRoutes struct {
	schema SchemaAdmin
	enums  EnumAdmin
}

type enumValueUpdate struct {
	Ordering   *int32          `json:"ordering"`
	Metadata   json.RawMessage `json:"metadata"`
	Featured   *bool           `json:"featured"`
	Deprecated *bool           `json:"deprecated"`
}

func (a *adminRoutes) register(tag *mux.Router) {
	tag.HandleFunc("/enum/{enum}", a.listEnumValues).Methods(http.MethodGet)
	tag.HandleFunc("/enum/{enum}/{value}", a.updateEnumValue).Methods(http.MethodPatch)
	tag.HandleFunc("/enum/{enum}/{value}", a.deleteEnumValue).Methods(http.MethodDelete)
	tag.HandleFunc("/loader/{name}", a.deleteLoader).Methods(http.MethodDelete)
	tag.HandleFunc("/loader/{name}/field/{field}", a.dissociateField).Methods(http.MethodDelete)
}

// listEnumValues handles GET /v3/tag/enum/{enum}?game=&include_hidden=
func (a *adminRoutes) listEnumValues(w http.ResponseWriter, r *http.Request) {
	includeHidden, err := httputil.ParseQueryBool(r, "include_hidden")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	game, ok := a.game(w, r)
	if !ok {
		return
	}

	values, err := a.enums.List(r.Context(), mux.Vars(r)["enum"], game.ID, includeHidden != nil && *includeHidden)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, nonNilValues(values))
}

// updateEnumValue handles PATCH /v3/tag/enum/{enum}/{value}?game=
func (a *adminRoutes) updateEnumValue(w http.ResponseWriter, r *http.Request) {
	var body enumValueUpdate
	if !httputil.ParseJSONOrError(w, r, &body) {
		return
	}
	id, ok := a.enumValue(w, r)
	if !ok {
		return
	}

	err := a.enums.UpdateValue(r.Context(), id, enums.ValueUpdate{
		Ordering:   body.Ordering,
		Metadata:   body.Metadata,
		Featured:   body.Featured,
		Deprecated: body.Deprecated,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// deleteEnumValue handles DELETE /v3/tag/enum/{enum}/{value}?game=
func (a *adminRoutes) deleteEnumValue(w http.ResponseWriter, r *http.Request) {
	id, ok := a.enumValue(w, r)
	if !ok {
		return
	}
	if err := a.enums.DeleteValue(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	observability.FromContext(r.Context()).WithField("enum_value_id", id).Info("Enum value removed")
	httputil.WriteNoContent(w)
}

// deleteLoader handles DELETE /v3/tag/loader/{name}
func (a *adminRoutes) deleteLoader(w http.ResponseWriter, r *http.Request) {
	loaderID, ok := a.loader(w, r)
	if !ok {
		return
	}
	if err := a.schema.DeleteLoader(r.Context(), loaderID); err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// dissociateField handles DELETE /v3/tag/loader/{name}/field/{field}
func (a *adminRoutes) dissociateField(w http.ResponseWriter, r *http.Request) {
	loaderID, ok := a.loader(w, r)
	if !ok {
		return
	}
	field, err := a.schema.GetField(r.Context(), mux.Vars(r)["field"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := a.schema.DissociateField(r.Context(), field.ID, loaderID); err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (a *adminRoutes) game(w http.ResponseWriter, r *http.Request) (*loaderfields.Game, bool) {
	game, err := a.schema.GetGame(r.Context(), httputil.ParseQueryString(r, "game", defaultGame))
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return game, true
}

func (a *adminRoutes) enumValue(w http.ResponseWriter, r *http.Request) (loaderfields.EnumValueID, bool) {
	game, ok := a.game(w, r)
	if !ok {
		return 0, false
	}
	vars := mux.Vars(r)
	id, err := a.enums.Resolve(r.Context(), vars["enum"], game.ID, vars["value"])
	if err != nil {
		writeError(w, r, err)
		return 0, false
	}
	return id, true
}

func (a *adminRoutes) loader(w http.ResponseWriter, r *http.Request) (loaderfields.LoaderID, bool) {
	ids, err := a.schema.LoaderIDs(r.Context(), []string{mux.Vars(r)["name"]})
	if err != nil {
		writeError(w, r, err)
		return 0, false
	}
	return ids[0], true
}

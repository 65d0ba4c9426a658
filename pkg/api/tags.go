package api

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/labrinth-go/labrinth/pkg/httputil"
	"github.com/labrinth-go/labrinth/pkg/legacy"
	"github.com/labrinth-go/labrinth/pkg/loaderfields"
)

type loaderData struct {
	Icon                  string   `json:"icon"`
	Name                  string   `json:"name"`
	SupportedProjectTypes []string `json:"supported_project_types"`
	SupportedGames        []string `json:"supported_games"`
}

// listLoaders handles GET /v3/tag/loader
func (s *Server) listLoaders(w http.ResponseWriter, r *http.Request) {
	loaders, err := s.loaders.ListLoaders(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]loaderData, 0, len(loaders))
	for _, l := range loaders {
		out = append(out, loaderData{
			Icon:                  l.Icon,
			Name:                  l.Name,
			SupportedProjectTypes: nonNil(l.SupportedProjectTypes),
			SupportedGames:        nonNil(l.SupportedGames),
		})
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name) })

	httputil.WriteSuccess(w, out)
}

// listLoaderFieldValues handles GET /v3/tag/loader_field
func (s *Server) listLoaderFieldValues(w http.ResponseWriter, r *http.Request) {
	name := httputil.ParseQueryString(r, "loader_field", "")
	if name == "" {
		httputil.WriteBadRequest(w, "loader_field is required")
		return
	}

	var filters map[string]any
	hasFilters, err := httputil.ParseQueryJSON(r, "filters", &filters)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	includeHidden, err := httputil.ParseQueryBool(r, "include_hidden")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	enum, ok := s.fieldEnum(w, r, name)
	if !ok {
		return
	}

	var values []loaderfields.EnumValue
	if hasFilters {
		values, err = s.enums.ListFiltered(r.Context(), enum.ID, filters)
	} else {
		values, err = s.enums.ListByEnum(r.Context(), enum, includeHidden != nil && *includeHidden)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, nonNilValues(values))
}

// listLoaderFields handles GET /v3/loader_fields. With loaders=[...] it
// returns the fields applicable to that loader set, otherwise every field.
// required=true keeps only fields a version must carry.
func (s *Server) listLoaderFields(w http.ResponseWriter, r *http.Request) {
	var names []string
	hasLoaders, err := httputil.ParseQueryJSON(r, "loaders", &names)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	required, err := httputil.ParseQueryBool(r, "required")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	var fields []loaderfields.LoaderField
	switch {
	case !hasLoaders:
		fields, err = s.loaders.ListFields(r.Context())
	default:
		var ids []loaderfields.LoaderID
		ids, err = s.loaders.LoaderIDs(r.Context(), names)
		if errors.Is(err, loaderfields.ErrNotFound) {
			httputil.WriteBadRequest(w, err.Error())
			return
		}
		if err != nil {
			break
		}
		if required != nil && *required {
			fields, err = s.loaders.RequiredFields(r.Context(), ids)
		} else {
			fields, err = s.loaders.ApplicableFields(r.Context(), ids)
		}
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]loaderfields.LoaderField, 0, len(fields))
	for _, f := range fields {
		if required != nil && *required && f.Optional {
			continue
		}
		out = append(out, f)
	}
	httputil.WriteSuccess(w, out)
}

// listGameVersions handles GET /v2/tag/game_version
func (s *Server) listGameVersions(w http.ResponseWriter, r *http.Request) {
	major, err := httputil.ParseQueryBool(r, "major")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	enum, ok := s.fieldEnum(w, r, loaderfields.FieldGameVersions)
	if !ok {
		return
	}

	filters := legacy.GameVersionFilters(httputil.ParseQueryString(r, "type", ""), major)
	values, err := s.enums.ListFiltered(r.Context(), enum.ID, filters)
	if err != nil {
		writeError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, legacy.GameVersions(values))
}

// listSideTypes handles GET /v2/tag/side_type
func (s *Server) listSideTypes(w http.ResponseWriter, r *http.Request) {
	// client_side and server_side share one enum
	enum, ok := s.fieldEnum(w, r, loaderfields.FieldClientSide)
	if !ok {
		return
	}

	values, err := s.enums.ListByEnum(r.Context(), enum, false)
	if err != nil {
		writeError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, legacy.SideTypes(values))
}

// fieldEnum resolves the enum behind an enumerable field, writing a 400 for
// unknown or non-enum fields.
func (s *Server) fieldEnum(w http.ResponseWriter, r *http.Request, name string) (*loaderfields.Enum, bool) {
	field, err := s.loaders.GetField(r.Context(), name)
	if errors.Is(err, loaderfields.ErrNotFound) {
		httputil.WriteBadRequest(w, fmt.Sprintf("'%s' was not a valid loader field.", name))
		return nil, false
	}
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}

	if !field.Type.IsEnum() || field.EnumType == nil {
		httputil.WriteBadRequest(w, fmt.Sprintf("'%s' is not an enumerable field, but an '%s' field.", name, field.Type))
		return nil, false
	}

	enum, err := s.enums.GetEnumByID(r.Context(), *field.EnumType)
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return enum, true
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilValues(v []loaderfields.EnumValue) []loaderfields.EnumValue {
	if v == nil {
		return []loaderfields.EnumValue{}
	}
	return v
}

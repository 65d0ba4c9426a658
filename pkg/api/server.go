package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/labrinth-go/labrinth/pkg/facets"
	"github.com/labrinth-go/labrinth/pkg/loaderfields"
	"github.com/sirupsen/logrus"
)

// LoaderCatalog reads loader and field definitions
type LoaderCatalog interface {
	ListLoaders(ctx context.Context) ([]loaderfields.Loader, error)
	LoaderIDs(ctx context.Context, names []string) ([]loaderfields.LoaderID, error)
	GetField(ctx context.Context, name string) (*loaderfields.LoaderField, error)
	ListFields(ctx context.Context) ([]loaderfields.LoaderField, error)
	ApplicableFields(ctx context.Context, loaderIDs []loaderfields.LoaderID) ([]loaderfields.LoaderField, error)
	RequiredFields(ctx context.Context, loaderIDs []loaderfields.LoaderID) ([]loaderfields.LoaderField, error)
}

// EnumCatalog lists enum values
type EnumCatalog interface {
	GetEnumByID(ctx context.Context, id loaderfields.EnumID) (*loaderfields.Enum, error)
	ListByEnum(ctx context.Context, e *loaderfields.Enum, includeHidden bool) ([]loaderfields.EnumValue, error)
	ListFiltered(ctx context.Context, enumID loaderfields.EnumID, filters map[string]any) ([]loaderfields.EnumValue, error)
}

// VersionFields reads and writes version field values
type VersionFields interface {
	GetFieldsBulk(ctx context.Context, versionIDs []loaderfields.VersionID) (map[loaderfields.VersionID]*loaderfields.VersionMetadata, error)
	CreateVersionFields(ctx context.Context, projectID loaderfields.ProjectID, versionID loaderfields.VersionID, loaderIDs []loaderfields.LoaderID, submitted map[string]json.RawMessage) error
	UpdateVersionFields(ctx context.Context, versionID loaderfields.VersionID, submitted map[string]json.RawMessage) error
}

// FacetSearch queries the facet index
type FacetSearch interface {
	Search(ctx context.Context, pred facets.Predicate, limit, offset int) ([]loaderfields.ProjectID, error)
	Document(ctx context.Context, projectID loaderfields.ProjectID) (*facets.Document, error)
}

// Server routes API requests to the loader field components
type Server struct {
	router  *mux.Router
	loaders LoaderCatalog
	enums   EnumCatalog
	fields  VersionFields
	search  FacetSearch
	admin   *adminRoutes
	log     *logrus.Logger
}

// Option configures a Server
type Option func(*Server)

// WithAdmin registers the tag catalog mutation routes under /v3/tag
func WithAdmin(schema SchemaAdmin, enums EnumAdmin) Option {
	return func(s *Server) {
		s.admin = &adminRoutes{schema: schema, enums: enums}
	}
}

// NewServer creates a server and registers its routes. search may be nil,
// in which case the search routes are not registered.
func NewServer(loaders LoaderCatalog, enums EnumCatalog, fields VersionFields, search FacetSearch, log *logrus.Logger, opts ...Option) *Server {
	if log == nil {
		log = logrus.New()
	}
	s := &Server{
		router:  mux.NewRouter(),
		loaders: loaders,
		enums:   enums,
		fields:  fields,
		search:  search,
		log:     log,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.RegisterRoutes(s.router)
	return s
}

// RegisterRoutes registers every route on router
func (s *Server) RegisterRoutes(router *mux.Router) {
	v3 := router.PathPrefix("/v3").Subrouter()
	v3.HandleFunc("/tag/loader", s.listLoaders).Methods(http.MethodGet)
	v3.HandleFunc("/tag/loader_field", s.listLoaderFieldValues).Methods(http.MethodGet)
	v3.HandleFunc("/loader_fields", s.listLoaderFields).Methods(http.MethodGet)
	v3.HandleFunc("/version/{id:[0-9]+}/fields", s.getVersionFields).Methods(http.MethodGet)
	v3.HandleFunc("/version/{id:[0-9]+}/fields", s.createVersionFields).Methods(http.MethodPost)
	v3.HandleFunc("/version/{id:[0-9]+}/fields", s.patchVersionFields).Methods(http.MethodPatch)
	v3.HandleFunc("/versions/fields", s.getVersionFieldsBulk).Methods(http.MethodGet)

	v2 := router.PathPrefix("/v2").Subrouter()
	v2.HandleFunc("/tag/game_version", s.listGameVersions).Methods(http.MethodGet)
	v2.HandleFunc("/tag/side_type", s.listSideTypes).Methods(http.MethodGet)
	v2.HandleFunc("/version/{id:[0-9]+}", s.getLegacyVersion).Methods(http.MethodGet)
	v2.HandleFunc("/version/{id:[0-9]+}", s.patchLegacyVersion).Methods(http.MethodPatch)

	if s.search != nil {
		v3.HandleFunc("/search", s.searchProjects).Methods(http.MethodGet)
		v2.HandleFunc("/search", s.searchLegacyProjects).Methods(http.MethodGet)
	}

	if s.admin != nil {
		s.admin.register(v3.PathPrefix("/tag").Subrouter())
	}
}

// Router exposes the router so binaries can add health and metrics routes
func (s *Server) Router() *mux.Router {
	return s.router
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

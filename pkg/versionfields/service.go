package versionfields

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/labrinth-go/labrinth/pkg/async"
	"github.com/labrinth-go/labrinth/pkg/loaderfields"
	"github.com/labrinth-go/labrinth/pkg/observability"
	"github.com/sirupsen/logrus"
)

// unknownFieldLabel stands in for submitted names that are not applicable
const unknownFieldLabel = "unknown"

// FieldSchema resolves the fields applicable to a set of loaders
type FieldSchema interface {
	ApplicableFields(ctx context.Context, loaderIDs []loaderfields.LoaderID) ([]loaderfields.LoaderField, error)
}

// FieldStore is the persistence the service writes through
type FieldStore interface {
	SetFields(ctx context.Context, versionID loaderfields.VersionID, values []loaderfields.ValidatedField) error
	CreateVersion(ctx context.Context, projectID loaderfields.ProjectID, versionID loaderfields.VersionID, loaderIDs []loaderfields.LoaderID, values []loaderfields.ValidatedField) error
	VersionLoaders(ctx context.Context, versionID loaderfields.VersionID) (loaderfields.ProjectID, []loaderfields.LoaderID, error)
	GetFields(ctx context.Context, versionID loaderfields.VersionID) (map[string]loaderfields.FieldValue, error)
	GetFieldsBulk(ctx context.Context, versionIDs []loaderfields.VersionID) (map[loaderfields.VersionID]*loaderfields.VersionMetadata, error)
}

// Projector pushes a project's facet document to the search index
type Projector interface {
	ProjectProject(ctx context.Context, projectID loaderfields.ProjectID) error
}

// Service validates submitted field values, stores them and schedules the
// search projection of the owning project.
type Service struct {
	schema            FieldSchema
	enums             loaderfields.EnumLookup
	store             FieldStore
	projector         Projector
	metrics           *observability.Metrics
	log               *logrus.Logger
	projectionTimeout time.Duration
}

// ServiceOption configures a Service
type ServiceOption func(*Service)

// WithMetrics records validation, write and projection outcomes
func WithMetrics(m *observability.Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithProjectionTimeout bounds each background projection
func WithProjectionTimeout(d time.Duration) ServiceOption {
	return func(s *Service) { s.projectionTimeout = d }
}

// NewService wires a Service. projector may be nil, in which case writes are
// not projected.
func NewService(schema FieldSchema, enums loaderfields.EnumLookup, store FieldStore, projector Projector, log *logrus.Logger, opts ...ServiceOption) *Service {
	if log == nil {
		log = logrus.New()
	}
	s := &Service{
		schema:            schema,
		enums:             enums,
		store:             store,
		projector:         projector,
		log:               log,
		projectionTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Validate checks a submission against the union of fields of loaderIDs
func (s *Service) Validate(ctx context.Context, loaderIDs []loaderfields.LoaderID, submitted map[string]json.RawMessage, opts loaderfields.ValidateOptions) ([]loaderfields.ValidatedField, error) {
	applicable, err := s.schema.ApplicableFields(ctx, loaderIDs)
	if err != nil {
		return nil, err
	}

	validated, err := loaderfields.ValidateFields(ctx, applicable, submitted, s.enums, opts)
	if err != nil {
		var verrs *loaderfields.ValidationErrors
		if errors.As(err, &verrs) {
			known := make(map[string]struct{}, len(applicable))
			for _, f := range applicable {
				known[f.Field] = struct{}{}
			}
			for _, fe := range verrs.Errors {
				// Submitted keys are client input; only defined fields get their own series.
				label := unknownFieldLabel
				if _, ok := known[fe.Field]; ok {
					label = fe.Field
				}
				s.metrics.RecordValidationFailure(label)
			}
		}
		return nil, err
	}
	return validated, nil
}

// CreateVersionFields registers a new version with its loaders and stores
// its complete field set. Every required field of loaderIDs must be present.
func (s *Service) CreateVersionFields(ctx context.Context, projectID loaderfields.ProjectID, versionID loaderfields.VersionID, loaderIDs []loaderfields.LoaderID, submitted map[string]json.RawMessage) error {
	validated, err := s.Validate(ctx, loaderIDs, submitted, loaderfields.ValidateOptions{})
	if err != nil {
		return err
	}
	err = s.store.CreateVersion(ctx, projectID, versionID, loaderIDs, validated)
	return s.written(ctx, projectID, versionID, len(validated), err)
}

// UpdateVersionFields merges submitted values into an existing version.
// Unmentioned fields keep their stored values; a JSON null clears an
// optional field.
func (s *Service) UpdateVersionFields(ctx context.Context, versionID loaderfields.VersionID, submitted map[string]json.RawMessage) error {
	projectID, loaderIDs, err := s.store.VersionLoaders(ctx, versionID)
	if err != nil {
		return err
	}

	validated, err := s.Validate(ctx, loaderIDs, submitted, loaderfields.ValidateOptions{Partial: true})
	if err != nil {
		return err
	}
	return s.write(ctx, projectID, versionID, validated)
}

// GetFields returns one version's field values
func (s *Service) GetFields(ctx context.Context, versionID loaderfields.VersionID) (map[string]loaderfields.FieldValue, error) {
	return s.store.GetFields(ctx, versionID)
}

// GetFieldsBulk returns the metadata of many versions keyed by version id
func (s *Service) GetFieldsBulk(ctx context.Context, versionIDs []loaderfields.VersionID) (map[loaderfields.VersionID]*loaderfields.VersionMetadata, error) {
	return s.store.GetFieldsBulk(ctx, versionIDs)
}

func (s *Service) write(ctx context.Context, projectID loaderfields.ProjectID, versionID loaderfields.VersionID, validated []loaderfields.ValidatedField) error {
	err := s.store.SetFields(ctx, versionID, validated)
	return s.written(ctx, projectID, versionID, len(validated), err)
}

// written records the outcome of a store write and projects on success
func (s *Service) written(ctx context.Context, projectID loaderfields.ProjectID, versionID loaderfields.VersionID, fields int, err error) error {
	if err != nil {
		s.metrics.RecordFieldWrite("error")
		return err
	}
	s.metrics.RecordFieldWrite("ok")

	s.log.WithFields(logrus.Fields{
		"version_id": versionID,
		"fields":     fields,
	}).Debug("Stored version fields")

	s.project(ctx, projectID)
	return nil
}

// project schedules the facet projection. It outlives the request and its
// failure never reaches the caller.
func (s *Service) project(ctx context.Context, projectID loaderfields.ProjectID) {
	if s.projector == nil {
		return
	}
	async.SafeGo(context.WithoutCancel(ctx), s.log, s.projectionTimeout, "facet projection", func(ctx context.Context) error {
		return s.projector.ProjectProject(ctx, projectID)
	})
}

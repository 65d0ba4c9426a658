package seed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/labrinth-go/labrinth/pkg/enums"
	"github.com/labrinth-go/labrinth/pkg/loaderfields"
	"github.com/sirupsen/logrus"
)

// SchemaWriter is the subset of the schema store the seeder writes through
type SchemaWriter interface {
	EnsureGame(ctx context.Context, name string) (*loaderfields.Game, error)
	EnsureProjectType(ctx context.Context, name string) error
	CreateLoader(ctx context.Context, l *loaderfields.Loader) error
	LoaderIDs(ctx context.Context, names []string) ([]loaderfields.LoaderID, error)
	CreateField(ctx context.Context, f *loaderfields.LoaderField) error
	GetField(ctx context.Context, name string) (*loaderfields.LoaderField, error)
	AssociateField(ctx context.Context, fieldID loaderfields.LoaderFieldID, loaderIDs ...loaderfields.LoaderID) error
}

// EnumWriter is the subset of the enum registry the seeder writes through
type EnumWriter interface {
	CreateEnum(ctx context.Context, e *loaderfields.Enum) error
	GetEnum(ctx context.Context, enumName string, gameID loaderfields.GameID) (*loaderfields.Enum, error)
	UpsertValue(ctx context.Context, in enums.ValueInput) (loaderfields.EnumValueID, error)
}

// Seeder applies seed catalogs. Applying the same catalog twice is a no-op
// apart from refreshing enum value metadata.
type Seeder struct {
	schema SchemaWriter
	enums  EnumWriter
	log    *logrus.Logger
}

// NewSeeder creates a seeder
func NewSeeder(schema SchemaWriter, enums EnumWriter, log *logrus.Logger) *Seeder {
	if log == nil {
		log = logrus.New()
	}
	return &Seeder{schema: schema, enums: enums, log: log}
}

// Stats counts what an Apply call touched
type Stats struct {
	Loaders     int
	Enums       int
	EnumValues  int
	Fields      int
	Preexisting int
}

// Apply writes the catalog in dependency order. Existing loaders, enums and
// fields are kept as they are; field associations and enum values are
// merged in.
func (s *Seeder) Apply(ctx context.Context, file *File) (Stats, error) {
	var stats Stats

	games := make(map[string]loaderfields.GameID, len(file.Games))
	for _, name := range file.Games {
		g, err := s.schema.EnsureGame(ctx, name)
		if err != nil {
			return stats, fmt.Errorf("failed to seed game %s: %w", name, err)
		}
		games[name] = g.ID
	}

	for _, name := range file.ProjectTypes {
		if err := s.schema.EnsureProjectType(ctx, name); err != nil {
			return stats, fmt.Errorf("failed to seed project type %s: %w", name, err)
		}
	}

	for _, ls := range file.Loaders {
		created, err := s.seedLoader(ctx, ls)
		if err != nil {
			return stats, err
		}
		if created {
			stats.Loaders++
		} else {
			stats.Preexisting++
		}
	}

	enumIDs := make(map[enumKey]loaderfields.EnumID, len(file.Enums))
	for _, es := range file.Enums {
		id, created, err := s.seedEnum(ctx, es, games[es.Game])
		if err != nil {
			return stats, err
		}
		enumIDs[enumKey{es.Game, es.Name}] = id
		if created {
			stats.Enums++
		} else {
			stats.Preexisting++
		}

		for _, vs := range es.Values {
			if err := s.seedValue(ctx, id, vs); err != nil {
				return stats, fmt.Errorf("failed to seed %s value %s: %w", es.Name, vs.Value, err)
			}
			stats.EnumValues++
		}
	}

	for _, fs := range file.Fields {
		var enumID *loaderfields.EnumID
		if fs.Enum != "" {
			id, ok := enumIDs[enumKey{fs.Game, fs.Enum}]
			if !ok {
				return stats, loaderfields.NotFound("enum", fs.Enum)
			}
			enumID = &id
		}

		created, err := s.seedField(ctx, fs, enumID)
		if err != nil {
			return stats, err
		}
		if created {
			stats.Fields++
		} else {
			stats.Preexisting++
		}
	}

	s.log.WithFields(logrus.Fields{
		"loaders":     stats.Loaders,
		"enums":       stats.Enums,
		"enum_values": stats.EnumValues,
		"fields":      stats.Fields,
		"preexisting": stats.Preexisting,
	}).Info("Applied seed catalog")
	return stats, nil
}

func (s *Seeder) seedLoader(ctx context.Context, ls LoaderSeed) (bool, error) {
	l := &loaderfields.Loader{
		Name:                  ls.Name,
		Icon:                  ls.Icon,
		Hidable:               ls.Hidable,
		SupportedProjectTypes: ls.ProjectTypes,
		SupportedGames:        ls.Games,
	}
	err := s.schema.CreateLoader(ctx, l)
	if errors.Is(err, loaderfields.ErrConflict) {
		s.log.WithField("loader", ls.Name).Debug("Loader already exists")
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to seed loader %s: %w", ls.Name, err)
	}
	return true, nil
}

func (s *Seeder) seedEnum(ctx context.Context, es EnumSeed, gameID loaderfields.GameID) (loaderfields.EnumID, bool, error) {
	e := &loaderfields.Enum{GameID: gameID, Name: es.Name, Ordering: es.Ordering, Hidable: es.Hidable}
	err := s.enums.CreateEnum(ctx, e)
	if err == nil {
		return e.ID, true, nil
	}
	if !errors.Is(err, loaderfields.ErrConflict) {
		return 0, false, fmt.Errorf("failed to seed enum %s: %w", es.Name, err)
	}

	existing, err := s.enums.GetEnum(ctx, es.Name, gameID)
	if err != nil {
		return 0, false, fmt.Errorf("failed to load enum %s: %w", es.Name, err)
	}
	return existing.ID, false, nil
}

func (s *Seeder) seedValue(ctx context.Context, enumID loaderfields.EnumID, vs ValueSeed) error {
	in := enums.ValueInput{
		EnumID:   enumID,
		Value:    vs.Value,
		Ordering: vs.Ordering,
		Created:  vs.Created,
		Featured: vs.Featured,
	}
	if len(vs.Metadata) > 0 {
		raw, err := json.Marshal(vs.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata: %w", err)
		}
		in.Metadata = raw
	}
	_, err := s.enums.UpsertValue(ctx, in)
	return err
}

func (s *Seeder) seedField(ctx context.Context, fs FieldSeed, enumID *loaderfields.EnumID) (bool, error) {
	def := fs.definition(enumID)
	created := true

	err := s.schema.CreateField(ctx, &def)
	if errors.Is(err, loaderfields.ErrConflict) {
		existing, getErr := s.schema.GetField(ctx, fs.Name)
		if getErr != nil {
			return false, fmt.Errorf("failed to load field %s: %w", fs.Name, getErr)
		}
		if existing.Type != def.Type {
			return false, loaderfields.Conflict("loader field", fs.Name,
				fmt.Sprintf("exists with type %s, seed declares %s", existing.Type, def.Type))
		}
		def, created, err = *existing, false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to seed field %s: %w", fs.Name, err)
	}

	loaderIDs, err := s.schema.LoaderIDs(ctx, fs.Loaders)
	if err != nil {
		return false, fmt.Errorf("failed to resolve loaders of %s: %w", fs.Name, err)
	}
	if err := s.schema.AssociateField(ctx, def.ID, loaderIDs...); err != nil {
		return false, fmt.Errorf("failed to associate %s: %w", fs.Name, err)
	}
	return created, nil
}

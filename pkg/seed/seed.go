package seed

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/labrinth-go/labrinth/pkg/loaderfields"
	"gopkg.in/yaml.v3"
)

//go:embed minecraft.yaml
var defaultCatalog []byte

// File is a seed catalog
type File struct {
	Games        []string     `yaml:"games"`
	ProjectTypes []string     `yaml:"project_types"`
	Loaders      []LoaderSeed `yaml:"loaders"`
	Enums        []EnumSeed   `yaml:"enums"`
	Fields       []FieldSeed  `yaml:"fields"`
}

// LoaderSeed declares a loader and the project types and games it supports
type LoaderSeed struct {
	Name         string   `yaml:"name"`
	Icon         string   `yaml:"icon"`
	Hidable      bool     `yaml:"hidable"`
	ProjectTypes []string `yaml:"project_types"`
	Games        []string `yaml:"games"`
}

// EnumSeed declares a game-scoped enum and its values
type EnumSeed struct {
	Name     string      `yaml:"name"`
	Game     string      `yaml:"game"`
	Ordering *int32      `yaml:"ordering"`
	Hidable  bool        `yaml:"hidable"`
	Values   []ValueSeed `yaml:"values"`
}

// ValueSeed declares one enum value
type ValueSeed struct {
	Value    string         `yaml:"value"`
	Ordering *int32         `yaml:"ordering"`
	Created  *time.Time     `yaml:"created"`
	Featured bool           `yaml:"featured"`
	Metadata map[string]any `yaml:"metadata"`
}

// FieldSeed declares a loader field. Enum fields name their enum and the
// game it belongs to.
type FieldSeed struct {
	Name     string   `yaml:"name"`
	Type     string   `yaml:"type"`
	Enum     string   `yaml:"enum"`
	Game     string   `yaml:"game"`
	Optional bool     `yaml:"optional"`
	Min      *int32   `yaml:"min"`
	Max      *int32   `yaml:"max"`
	Loaders  []string `yaml:"loaders"`
}

// Load reads and validates a seed file
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return Parse(data)
}

// Default returns the built-in minecraft-java catalog
func Default() (*File, error) {
	return Parse(defaultCatalog)
}

// Parse decodes and validates a seed catalog
func Parse(data []byte) (*File, error) {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	if err := file.Validate(); err != nil {
		return nil, err
	}
	return &file, nil
}

type enumKey struct {
	game string
	name string
}

// Validate checks the catalog is self-consistent. Every problem is reported.
func (f *File) Validate() error {
	verrs := &loaderfields.ValidationErrors{}

	games := make(map[string]bool, len(f.Games))
	for _, g := range f.Games {
		games[g] = true
	}
	projectTypes := make(map[string]bool, len(f.ProjectTypes))
	for _, pt := range f.ProjectTypes {
		projectTypes[pt] = true
	}

	loaders := make(map[string]bool, len(f.Loaders))
	for i, l := range f.Loaders {
		if l.Name == "" {
			verrs.Add(fmt.Sprintf("loaders[%d]", i), "name is required")
			continue
		}
		if loaders[l.Name] {
			verrs.Add("loaders."+l.Name, "declared more than once")
		}
		loaders[l.Name] = true
		for _, g := range l.Games {
			if !games[g] {
				verrs.Add("loaders."+l.Name, fmt.Sprintf("unknown game %q", g))
			}
		}
		for _, pt := range l.ProjectTypes {
			if !projectTypes[pt] {
				verrs.Add("loaders."+l.Name, fmt.Sprintf("unknown project type %q", pt))
			}
		}
	}

	enums := make(map[enumKey]bool, len(f.Enums))
	for i, e := range f.Enums {
		if e.Name == "" {
			verrs.Add(fmt.Sprintf("enums[%d]", i), "name is required")
			continue
		}
		if !games[e.Game] {
			verrs.Add("enums."+e.Name, fmt.Sprintf("unknown game %q", e.Game))
		}
		enums[enumKey{e.Game, e.Name}] = true
		for j, v := range e.Values {
			if v.Value == "" {
				verrs.Add(fmt.Sprintf("enums.%s.values[%d]", e.Name, j), "value is required")
			}
		}
	}

	fields := make(map[string]bool, len(f.Fields))
	for i, fs := range f.Fields {
		if fs.Name == "" {
			verrs.Add(fmt.Sprintf("fields[%d]", i), "name is required")
			continue
		}
		if fields[fs.Name] {
			verrs.Add("fields."+fs.Name, "declared more than once")
		}
		fields[fs.Name] = true

		def := fs.definition(nil)
		if fs.Enum != "" {
			if !enums[enumKey{fs.Game, fs.Enum}] {
				verrs.Add("fields."+fs.Name, fmt.Sprintf("unknown enum %q in game %q", fs.Enum, fs.Game))
			}
			placeholder := loaderfields.EnumID(0)
			def.EnumType = &placeholder
		}
		if err := def.CheckDefinition(); err != nil {
			verrs.Add("fields."+fs.Name, err.Error())
		}
		for _, l := range fs.Loaders {
			if !loaders[l] {
				verrs.Add("fields."+fs.Name, fmt.Sprintf("unknown loader %q", l))
			}
		}
	}

	return verrs.ErrOrNil()
}

func (fs FieldSeed) definition(enumID *loaderfields.EnumID) loaderfields.LoaderField {
	return loaderfields.LoaderField{
		Field:    fs.Name,
		Type:     loaderfields.ParseFieldType(fs.Type),
		EnumType: enumID,
		Optional: fs.Optional,
		MinVal:   fs.Min,
		MaxVal:   fs.Max,
	}
}

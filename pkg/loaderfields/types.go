package loaderfields

import (
	"encoding/json"
	"time"
)

// Identifier types mirror the integer primary keys of the backing tables.
type (
	GameID        int32
	LoaderID      int32
	ProjectTypeID int32
	LoaderFieldID int32
	EnumID        int32
	EnumValueID   int32
	VersionID     int64
	ProjectID     int64
)

// Well-known field names that predate the dynamic model.
const (
	FieldGameVersions = "game_versions"
	FieldClientSide   = "client_side"
	FieldServerSide   = "server_side"
)

// Names that version metadata already carries outside the field set. A
// loader field may not use them.
const (
	ReservedLoaders      = "loaders"
	ReservedProjectTypes = "project_types"
)

// Game is the top-level namespace loaders and enums are scoped to
type Game struct {
	ID   GameID `json:"id"`
	Name string `json:"name"`
}

// Loader is a mod loader or platform such as fabric or forge
type Loader struct {
	ID                    LoaderID `json:"id"`
	Name                  string   `json:"name"`
	Icon                  string   `json:"icon"`
	Hidable               bool     `json:"hidable"`
	SupportedProjectTypes []string `json:"supported_project_types"`
	SupportedGames        []string `json:"supported_games"`
}

// LoaderField is a field definition. Names are globally unique; loaders are
// attached through the loader_fields_loaders join table.
type LoaderField struct {
	ID       LoaderFieldID `json:"id"`
	Field    string        `json:"field"`
	Type     FieldType     `json:"field_type"`
	EnumType *EnumID       `json:"enum_type,omitempty"`
	Optional bool          `json:"optional"`
	// MinVal and MaxVal are value bounds for integers, length bounds for
	// text, and item-count bounds for arrays.
	MinVal *int32 `json:"min_val,omitempty"`
	MaxVal *int32 `json:"max_val,omitempty"`
}

// Enum is a named, game-scoped vocabulary used by enum fields
type Enum struct {
	ID       EnumID `json:"id"`
	GameID   GameID `json:"game_id"`
	Name     string `json:"enum_name"`
	Ordering *int32 `json:"ordering,omitempty"`
	// Hidable enums only surface featured values unless hidden values are
	// explicitly requested.
	Hidable bool `json:"hidable"`
}

// EnumValue is one admissible value of an Enum. Value is a stable identifier
// and is never renamed; Ordering and Metadata may change.
type EnumValue struct {
	ID         EnumValueID     `json:"id"`
	EnumID     EnumID          `json:"enum_id"`
	Value      string          `json:"value"`
	Ordering   *int32          `json:"ordering,omitempty"`
	Created    time.Time       `json:"created"`
	Metadata   json.RawMessage `json:"metadata"`
	Featured   bool            `json:"featured"`
	Deprecated bool            `json:"deprecated"`
}

// MetadataField decodes a single top-level key of the value metadata into
// out. It reports whether the key was present.
func (v EnumValue) MetadataField(key string, out any) bool {
	if len(v.Metadata) == 0 {
		return false
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(v.Metadata, &m); err != nil {
		return false
	}
	raw, ok := m[key]
	if !ok {
		return false
	}
	return json.Unmarshal(raw, out) == nil
}

// VersionMetadata is the folded view of one version's dynamic metadata
type VersionMetadata struct {
	VersionID    VersionID             `json:"version_id"`
	ProjectID    ProjectID             `json:"project_id"`
	Loaders      []string              `json:"loaders"`
	ProjectTypes []string              `json:"project_types"`
	Fields       map[string]FieldValue `json:"fields"`
}

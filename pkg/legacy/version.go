package legacy

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/labrinth-go/labrinth/pkg/loaderfields"
)

// SideType is the legacy client/server support value
type SideType string

const (
	SideRequired    SideType = "required"
	SideOptional    SideType = "optional"
	SideUnsupported SideType = "unsupported"
	SideUnknown     SideType = "unknown"
)

// DefaultSide is reported when a version has no side field
const DefaultSide = SideUnknown

// ParseSideType maps unrecognised strings to SideUnknown
func ParseSideType(s string) SideType {
	switch SideType(s) {
	case SideRequired, SideOptional, SideUnsupported:
		return SideType(s)
	}
	return SideUnknown
}

// Version is the v2 view of one version's dynamic metadata
type Version struct {
	ID           loaderfields.VersionID `json:"id"`
	ProjectID    loaderfields.ProjectID `json:"project_id"`
	GameVersions []string               `json:"game_versions"`
	Loaders      []string               `json:"loaders"`
	ClientSide   SideType               `json:"client_side"`
	ServerSide   SideType               `json:"server_side"`
}

// FromVersion synthesizes the legacy columns. Absent side fields report
// DefaultSide and an absent game_versions field reports an empty list.
func FromVersion(meta *loaderfields.VersionMetadata) Version {
	v := Version{
		GameVersions: []string{},
		Loaders:      []string{},
		ClientSide:   DefaultSide,
		ServerSide:   DefaultSide,
	}
	if meta == nil {
		return v
	}

	v.ID = meta.VersionID
	v.ProjectID = meta.ProjectID
	if meta.Loaders != nil {
		v.Loaders = append(v.Loaders, meta.Loaders...)
	}

	if gv, ok := meta.Fields[loaderfields.FieldGameVersions]; ok && gv.Type.IsEnum() {
		v.GameVersions = gv.EnumStrings()
	}
	v.ClientSide = sideOf(meta.Fields, loaderfields.FieldClientSide)
	v.ServerSide = sideOf(meta.Fields, loaderfields.FieldServerSide)
	return v
}

// FromVersions converts a bulk read, ordered by version id
func FromVersions(metas map[loaderfields.VersionID]*loaderfields.VersionMetadata) []Version {
	out := make([]Version, 0, len(metas))
	for _, meta := range metas {
		out = append(out, FromVersion(meta))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sideOf(fields map[string]loaderfields.FieldValue, name string) SideType {
	value, ok := fields[name]
	if !ok || len(value.Enums) == 0 {
		return DefaultSide
	}
	return ParseSideType(value.Enums[0].Value)
}

// VersionUpdate is a v2 write of the legacy columns. Nil members are left
// untouched.
type VersionUpdate struct {
	GameVersions *[]string `json:"game_versions,omitempty"`
	ClientSide   *SideType `json:"client_side,omitempty"`
	ServerSide   *SideType `json:"server_side,omitempty"`
}

// FieldValues translates the update into submitted field values for the
// version field service.
func (u VersionUpdate) FieldValues() (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage)

	if u.GameVersions != nil {
		versions := *u.GameVersions
		if versions == nil {
			versions = []string{}
		}
		raw, err := json.Marshal(versions)
		if err != nil {
			return nil, fmt.Errorf("failed to encode game_versions: %w", err)
		}
		out[loaderfields.FieldGameVersions] = raw
	}

	for name, side := range map[string]*SideType{
		loaderfields.FieldClientSide: u.ClientSide,
		loaderfields.FieldServerSide: u.ServerSide,
	} {
		if side == nil {
			continue
		}
		raw, err := json.Marshal(string(*side))
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", name, err)
		}
		out[name] = raw
	}
	return out, nil
}

// IsEmpty reports whether the update touches nothing
func (u VersionUpdate) IsEmpty() bool {
	return u.GameVersions == nil && u.ClientSide == nil && u.ServerSide == nil
}

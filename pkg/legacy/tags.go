package legacy

import (
	"time"

	"github.com/labrinth-go/labrinth/pkg/loaderfields"
)

// GameVersion is the v2 game_version tag
type GameVersion struct {
	Version     string    `json:"version"`
	VersionType string    `json:"version_type"`
	Date        time.Time `json:"date"`
	Major       bool      `json:"major"`
}

// GameVersionFilters builds the enum metadata filter for the v2
// game_version listing. Unset parameters are omitted.
func GameVersionFilters(versionType string, major *bool) map[string]any {
	filters := make(map[string]any)
	if versionType != "" {
		filters["type"] = versionType
	}
	if major != nil {
		filters["major"] = *major
	}
	return filters
}

// GameVersions converts game_versions enum values. Missing metadata keys
// report their zero value.
func GameVersions(values []loaderfields.EnumValue) []GameVersion {
	out := make([]GameVersion, 0, len(values))
	for _, v := range values {
		gv := GameVersion{Version: v.Value, Date: v.Created}
		v.MetadataField("type", &gv.VersionType)
		v.MetadataField("major", &gv.Major)
		out = append(out, gv)
	}
	return out
}

// SideTypes lists the side enum value strings
func SideTypes(values []loaderfields.EnumValue) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, v.Value)
	}
	return out
}

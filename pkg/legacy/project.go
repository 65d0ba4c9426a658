package legacy

import (
	"sort"
	"strings"

	"github.com/labrinth-go/labrinth/pkg/facets"
	"github.com/labrinth-go/labrinth/pkg/loaderfields"
)

const (
	loaderMrpack      = "mrpack"
	fieldMrpackLoader = "mrpack_loaders"
)

// ProjectType collapses a v3 project type set into the single v2 type:
// modpack wins over mod, otherwise the first type is used, and datapack and
// plugin are reported as mod. No types at all yields "project".
func ProjectType(types []string) string {
	for _, preferred := range []string{"modpack", "mod"} {
		for _, t := range types {
			if t == preferred {
				return preferred
			}
		}
	}
	if len(types) == 0 {
		return "project"
	}
	switch types[0] {
	case "datapack", "plugin":
		return "mod"
	}
	return types[0]
}

// SearchHit is the v2 shape of a search result
type SearchHit struct {
	ProjectID   loaderfields.ProjectID `json:"project_id"`
	ProjectType string                 `json:"project_type"`
	Categories  []string               `json:"categories"`
	Versions    []string               `json:"versions"`
	ClientSide  SideType               `json:"client_side"`
	ServerSide  SideType               `json:"server_side"`
}

// SearchHitFromDocument builds a v2 search hit from a facet document.
// Modpacks indexed under the mrpack loader report the loaders of their
// mrpack_loaders field as categories instead.
func SearchHitFromDocument(doc facets.Document) SearchHit {
	categories := append([]string{}, doc.Loaders...)
	if contains(categories, loaderMrpack) {
		if packLoaders, ok := doc.Facets[fieldMrpackLoader]; ok {
			categories = append(categories, packLoaders...)
			categories = remove(categories, loaderMrpack)
		}
	}
	categories = sortedUnique(categories)

	hit := SearchHit{
		ProjectID:   doc.ProjectID,
		ProjectType: ProjectType(doc.ProjectTypes),
		Categories:  categories,
		Versions:    []string{},
		ClientSide:  firstSide(doc.Facets[loaderfields.FieldClientSide]),
		ServerSide:  firstSide(doc.Facets[loaderfields.FieldServerSide]),
	}
	if gv := doc.Facets[loaderfields.FieldGameVersions]; gv != nil {
		hit.Versions = append(hit.Versions, gv...)
	}
	return hit
}

func firstSide(terms []string) SideType {
	if len(terms) == 0 {
		return DefaultSide
	}
	return ParseSideType(terms[0])
}

var facetAliases = map[string]string{
	"versions":     loaderfields.FieldGameVersions,
	"project_type": facets.AxisProjectTypes,
	"categories":   facets.AxisLoaders,
}

// TranslateFacets rewrites v2 facet axes onto their v3 names. Unknown axes
// pass through unchanged.
func TranslateFacets(pred facets.Predicate) facets.Predicate {
	out := facets.Predicate{Groups: make([][]facets.Term, 0, len(pred.Groups))}
	for _, group := range pred.Groups {
		translated := make([]facets.Term, 0, len(group))
		for _, term := range group {
			if alias, ok := facetAliases[strings.ToLower(term.Axis)]; ok {
				term.Axis = alias
			}
			translated = append(translated, term)
		}
		out.Groups = append(out.Groups, translated)
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func remove(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}

func sortedUnique(list []string) []string {
	sort.Strings(list)
	out := list[:0]
	for i, v := range list {
		if i == 0 || v != list[i-1] {
			out = append(out, v)
		}
	}
	return out
}

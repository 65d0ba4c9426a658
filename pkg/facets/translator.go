package facets

import (
	"sort"

	"github.com/labrinth-go/labrinth/pkg/loaderfields"
)

// Reserved axes written next to the field facets
const (
	AxisLoaders      = loaderfields.ReservedLoaders
	AxisProjectTypes = loaderfields.ReservedProjectTypes
)

// Document is the search projection of one project
type Document struct {
	ProjectID    loaderfields.ProjectID `json:"project_id"`
	Loaders      []string               `json:"loaders"`
	ProjectTypes []string               `json:"project_types"`
	// Facets maps a field name to its distinct terms in first-seen order,
	// walking versions by ascending id.
	Facets map[string][]string `json:"facets"`
}

// Terms returns every (axis, term) pair of the document, field facets first
// then loaders and project types. Axes are sorted by name.
func (d Document) Terms() (axes, terms []string) {
	names := make([]string, 0, len(d.Facets))
	for name := range d.Facets {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		for _, term := range d.Facets[name] {
			axes = append(axes, name)
			terms = append(terms, term)
		}
	}
	for _, l := range d.Loaders {
		axes = append(axes, AxisLoaders)
		terms = append(terms, l)
	}
	for _, pt := range d.ProjectTypes {
		axes = append(axes, AxisProjectTypes)
		terms = append(terms, pt)
	}
	return axes, terms
}

// Values returns the terms of an axis, including the reserved ones
func (d Document) Values(axis string) []string {
	switch axis {
	case AxisLoaders:
		return d.Loaders
	case AxisProjectTypes:
		return d.ProjectTypes
	}
	return d.Facets[axis]
}

// BuildDocument folds the metadata of a project's versions into its facet
// document. Versions belonging to other projects are ignored.
func BuildDocument(projectID loaderfields.ProjectID, versions map[loaderfields.VersionID]*loaderfields.VersionMetadata) Document {
	ordered := make([]*loaderfields.VersionMetadata, 0, len(versions))
	for _, v := range versions {
		if v != nil && v.ProjectID == projectID {
			ordered = append(ordered, v)
		}
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].VersionID < ordered[j].VersionID })

	doc := Document{
		ProjectID:    projectID,
		Loaders:      []string{},
		ProjectTypes: []string{},
		Facets:       BuildFacets(ordered),
	}

	loaders := newTermSet()
	types := newTermSet()
	for _, v := range ordered {
		for _, l := range v.Loaders {
			loaders.add(l)
		}
		for _, pt := range v.ProjectTypes {
			types.add(pt)
		}
	}
	doc.Loaders = loaders.terms
	doc.ProjectTypes = types.terms
	return doc
}

// BuildFacets returns one axis per enum or array-enum field present on any
// of the versions.
func BuildFacets(versions []*loaderfields.VersionMetadata) map[string][]string {
	sets := make(map[string]*termSet)
	for _, v := range versions {
		if v == nil {
			continue
		}
		for name, value := range v.Fields {
			if !value.Type.IsEnum() || len(value.Enums) == 0 {
				continue
			}
			set, ok := sets[name]
			if !ok {
				set = newTermSet()
				sets[name] = set
			}
			for _, e := range value.Enums {
				set.add(e.Value)
			}
		}
	}

	out := make(map[string][]string, len(sets))
	for name, set := range sets {
		out[name] = set.terms
	}
	return out
}

// termSet keeps insertion order
type termSet struct {
	seen  map[string]struct{}
	terms []string
}

func newTermSet() *termSet {
	return &termSet{seen: make(map[string]struct{}), terms: []string{}}
}

func (s *termSet) add(term string) {
	if _, ok := s.seen[term]; ok {
		return
	}
	s.seen[term] = struct{}{}
	s.terms = append(s.terms, term)
}

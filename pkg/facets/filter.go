package facets

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Term is one axis:value condition
type Term struct {
	Axis  string
	Value string
}

func (t Term) String() string { return t.Axis + ":" + t.Value }

// Predicate is a conjunction of groups; a group matches when any of its
// terms does. The zero Predicate matches everything.
type Predicate struct {
	Groups [][]Term
}

// ParseFilter parses the nested-array filter syntax, for example
// [["game_versions:1.20.1","game_versions:1.20"],["client_side:required"]].
// An empty string yields the match-all predicate.
func ParseFilter(raw string) (Predicate, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Predicate{}, nil
	}

	var groups [][]string
	if err := json.Unmarshal([]byte(raw), &groups); err != nil {
		return Predicate{}, fmt.Errorf("invalid facet filter: %w", err)
	}
	return NewPredicate(groups)
}

// NewPredicate builds a Predicate from string groups of "axis:value" terms.
// Empty groups are dropped.
func NewPredicate(groups [][]string) (Predicate, error) {
	var pred Predicate
	for _, group := range groups {
		terms := make([]Term, 0, len(group))
		for _, s := range group {
			term, err := ParseTerm(s)
			if err != nil {
				return Predicate{}, err
			}
			terms = append(terms, term)
		}
		if len(terms) > 0 {
			pred.Groups = append(pred.Groups, terms)
		}
	}
	return pred, nil
}

// ParseTerm splits "axis:value" on the first colon
func ParseTerm(s string) (Term, error) {
	axis, value, ok := strings.Cut(strings.TrimSpace(s), ":")
	axis = strings.TrimSpace(axis)
	value = strings.TrimSpace(value)
	if !ok || axis == "" || value == "" {
		return Term{}, fmt.Errorf("invalid facet term %q: expected axis:value", s)
	}
	return Term{Axis: axis, Value: value}, nil
}

// IsEmpty reports whether the predicate matches everything
func (p Predicate) IsEmpty() bool { return len(p.Groups) == 0 }

// Matches evaluates the predicate against a document
func (p Predicate) Matches(doc Document) bool {
	for _, group := range p.Groups {
		if !groupMatches(group, doc) {
			return false
		}
	}
	return true
}

func groupMatches(group []Term, doc Document) bool {
	for _, term := range group {
		for _, v := range doc.Values(term.Axis) {
			if v == term.Value {
				return true
			}
		}
	}
	return false
}

// SQL renders the predicate as a WHERE condition over search_facets rows
// aliased p. Placeholders start at $argOffset+1. The empty predicate renders
// as TRUE.
func (p Predicate) SQL(argOffset int) (string, []any) {
	if p.IsEmpty() {
		return "TRUE", nil
	}

	var (
		clauses []string
		args    []any
	)
	for _, group := range p.Groups {
		ors := make([]string, 0, len(group))
		for _, term := range group {
			args = append(args, term.Axis, term.Value)
			ors = append(ors, fmt.Sprintf("(sf.facet = $%d AND sf.term = $%d)", argOffset+len(args)-1, argOffset+len(args)))
		}
		clauses = append(clauses, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM search_facets sf WHERE sf.project_id = p.project_id AND (%s))",
			strings.Join(ors, " OR "),
		))
	}
	return strings.Join(clauses, " AND "), args
}

// String renders the predicate back into the nested-array syntax
func (p Predicate) String() string {
	groups := make([][]string, 0, len(p.Groups))
	for _, group := range p.Groups {
		g := make([]string, 0, len(group))
		for _, t := range group {
			g = append(g, t.String())
		}
		groups = append(groups, g)
	}
	b, _ := json.Marshal(groups)
	return string(b)
}

// Package enums implements the enum registry: named, game-scoped
// vocabularies (game_versions, side_types, ...) whose values carry ordering,
// visibility flags and free-form JSON metadata.
//
// Value strings are stable identifiers. Only ordering, metadata and the
// featured/deprecated flags of a value may change after creation, and a value
// referenced by any version field cannot be deleted.
//
// Metadata filtering uses JSONB containment, so a filter of
// {"type": "release", "major": true} selects release game versions that
// start a major line:
//
//	values, err := registry.ListFiltered(ctx, gameVersions.ID, map[string]any{
//		"type":  "release",
//		"major": true,
//	})
package enums

// Package loaderfields defines the dynamic version metadata model: games,
// loaders, loader fields, enum vocabularies, and the typed values a version
// carries for each field.
//
// # Overview
//
// A version does not have a fixed set of metadata columns. Instead, admins
// declare LoaderFields (for example "game_versions" or "client_side") and
// associate them with one or more loaders. A version targeting a set of
// loaders may carry a value for every field associated with any of those
// loaders.
//
// Field definitions are data. Validation dispatches on the stored FieldType
// tag, which is one of a closed set of kinds:
//
//	integer        text        boolean        enum
//	array_integer  array_text  array_boolean  array_enum
//
// # Storage Mapping
//
// Values are persisted as narrow rows in version_fields, one row per scalar.
// Each row populates exactly one of int_value, enum_value or string_value:
//
//	integer, boolean (0/1)  -> int_value
//	enum                    -> enum_value (FK to loader_field_enum_values)
//	text                    -> string_value
//
// Array kinds are stored as several rows sharing the same (version, field)
// pair. Serialize and Deserialize are the only places that know this
// mapping; RowValue is the storage-level sum type.
//
// # Validation
//
//	values, err := loaderfields.ValidateFields(ctx, applicable, submitted, registry, loaderfields.ValidateOptions{})
//	var verrs *loaderfields.ValidationErrors
//	if errors.As(err, &verrs) {
//		for _, e := range verrs.Errors {
//			fmt.Println(e.Field, e.Reason)
//		}
//	}
//
// Errors are collected for every field rather than stopping at the first
// failure, so a client can highlight each invalid attribute at once.
//
// # Related Packages
//
//   - pkg/enums: enum vocabularies (implements EnumLookup)
//   - pkg/schema: loader/field associations
//   - pkg/versionfields: persistence of validated values
package loaderfields

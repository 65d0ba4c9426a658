// Package legacy presents the dynamic field model in the fixed-column shapes
// of the v2 API: game_versions, client_side, server_side and loaders.
//
// The package is read-only with respect to storage. Legacy writes are turned
// into submitted field values with VersionUpdate.FieldValues and then go
// through the same validation and set_fields path as v3 writes.
package legacy

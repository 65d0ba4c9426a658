// Package api exposes the loader field core over HTTP with gorilla/mux.
//
// v3 routes serve the dynamic model directly:
//
//	GET   /v3/tag/loader
//	GET   /v3/tag/loader_field?loader_field=game_versions&filters={"type":"release"}
//	GET   /v3/version/{id}/fields
//	PATCH /v3/version/{id}/fields
//	GET   /v3/versions/fields?ids=[1,2,3]
//	GET   /v3/search?facets=[["game_versions:1.20.1"]]
//
// v2 routes present the fixed-column legacy shapes:
//
//	GET   /v2/tag/game_version?type=release&major=true
//	GET   /v2/tag/side_type
//	GET   /v2/version/{id}
//	PATCH /v2/version/{id}
//	GET   /v2/search?facets=[["versions:1.20.1"]]
//
// Validation failures answer 400 with per-field details, missing resources
// 404, conflicts 409 and storage outages 503. Other failures are logged and
// answer a generic 500.
package api

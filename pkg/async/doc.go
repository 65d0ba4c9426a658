// Package async runs best-effort background work with panic recovery and
// timeouts.
//
// SafeGo is used for follow-up steps that must never fail or block the
// request that triggered them, such as pushing facet documents after a field
// write. Batch fans a bounded number of workers out over a slice, as the
// scheduled reindex does over every project.
package async

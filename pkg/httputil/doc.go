// Package httputil provides the JSON request and response helpers and the
// middleware shared by the labrinth HTTP handlers.
//
// Error bodies always have the same shape:
//
//	{"error": "invalid_input", "description": "...", "details": [...]}
//
// Middleware is composed with Chain, outermost first:
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(log),
//		httputil.RecoveryMiddleware(log),
//		httputil.MaxBytesMiddleware(1<<20),
//	)(router)
package httputil

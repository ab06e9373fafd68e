// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Response Helpers
//
// Errors are written in one envelope:
//
//	{"statusCode":404,"errors":["Resource not found"]}
//
//	httputil.WriteNotFound(w)
//	httputil.WriteUnauthorized(w)  // insufficient permission
//	httputil.WriteUnavailable(w)   // authorization undetermined
//	httputil.WriteAPIError(w, http.StatusBadRequest, "invalid JSON")
//
// # Request Parsing
//
//	var todo todo.Todo
//	if !httputil.ParseJSONOrError(w, r, &todo) {
//		return // Error response already written
//	}
//	id, ok := httputil.ParsePathIntOrError(w, r, "id")
//
// # Middleware
//
//	httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware(logger),
//		httputil.MaxBytesMiddleware(1<<20),
//	)
//
// # Related Packages
//
//   - pkg/middleware: Authentication and group gate middleware
package httputil

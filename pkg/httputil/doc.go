// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Overview
//
// This package offers the response envelope used by every API endpoint,
// JSON decoding helpers, query/path parameter parsing, and the common
// middleware stack (request ID, logging, recovery, CORS, body limits).
//
// # Response Envelope
//
// Success responses wrap the payload:
//
//	httputil.WriteSuccess(w, stats)                     // {"success":true,"data":{...}}
//	httputil.WriteSuccessWarning(w, stats, "clamped")   // adds "warning"
//
// Error responses:
//
//	httputil.WriteBadRequest(w, "invalid date range")
//	httputil.WriteBadGateway(w, "upstream unavailable")
//	httputil.WriteInternalError(w, err)
//
// # Request Parsing
//
//	metric := httputil.ParseQueryString(r, "metric", "views")
//	reconcile, err := httputil.ParseQueryBool(r, "reconcile", false)
//	ownerID, ok := httputil.ParsePathStringOrError(w, r, "owner_id")
//
// # Middleware
//
//	httputil.Chain(
//		httputil.RequestIDMiddleware(log),
//		httputil.LoggingMiddleware(log, metrics),
//		httputil.RecoveryMiddleware(log),
//		httputil.CORSMiddleware([]string{"*"}),
//		httputil.MaxBytesMiddleware(1<<20),
//	)
package httputil

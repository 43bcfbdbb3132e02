// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Response Helpers
//
//	httputil.WriteJSON(w, http.StatusOK, data)
//	httputil.WriteBadRequest(w, "package name required")
//	httputil.WriteText(w, http.StatusOK, "not supported")
//
// Errors whose cause should not reach the client carry a support id that is
// logged next to the cause:
//
//	id := httputil.NewSupportID()
//	logger.WithField("support_id", id).WithError(err).Error("listing tokens")
//
// # Request Parsing
//
//	var req TokenRequest
//	if err := httputil.ParseAndValidate(r, &req); err != nil {
//		httputil.WriteBadRequest(w, err.Error())
//		return
//	}
//
// Path parameters are unescaped, so scoped package names arrive whole:
//
//	name, err := httputil.ParsePathString(r, "package")
//
// # Middleware
//
//	httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware(logger),
//		httputil.MaxBytesMiddleware(10*1024*1024),
//	)
//
// The logging middleware redacts anything shaped like a token from the URL.
package httputil

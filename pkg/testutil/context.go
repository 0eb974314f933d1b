package testutil

import (
	"net/http"

	"insight/pkg/requestcontext"
)

// WithSubject marks the request as authenticated by subject, the way the
// auth middleware does.
func WithSubject(req *http.Request, subject string) *http.Request {
	return req.WithContext(requestcontext.WithSubject(req.Context(), subject))
}

// WithRequestID sets the request ID normally assigned by the request middleware.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	return req.WithContext(requestcontext.WithRequestID(req.Context(), requestID))
}

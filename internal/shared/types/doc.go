// Package types provides shared data structures for the clone backend.
//
// This package defines the request/result types and the error taxonomy used
// across every pipeline component, so that no component needs to import
// another one just to report a failure.
//
// Core Types:
//   - CloneRequest: Raw URL submitted by a client
//   - NormalizedURL: Validated http(s) target
//   - ClonedHTML: Sanitized markup for the sandboxed viewer
//   - CloneResult: Success or classified failure
//
// Errors:
//   - ErrorKind: InvalidUrl, RenderTimeout, RenderUnavailable,
//     ProviderUnavailable, ProviderRejected, MalformedOutput, InternalError
//   - Error: Kind + message + wrapped cause
//
// Example Usage:
//
//	if err := step(); err != nil {
//	    return types.Failure(id, types.KindOf(err), types.MessageOf(err))
//	}
package types

package http

import (
	"net/http"

	"github.com/GriffinCanCode/webclone/internal/shared/types"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Detail  string          `json:"detail"`
	Kind    types.ErrorKind `json:"kind"`
	CloneID string          `json:"clone_id,omitempty"`
}

var kindStatus = map[types.ErrorKind]int{
	types.KindInvalidURL:          http.StatusBadRequest,
	types.KindProviderRejected:    http.StatusUnprocessableEntity,
	types.KindRenderTimeout:       http.StatusGatewayTimeout,
	types.KindRenderUnavailable:   http.StatusServiceUnavailable,
	types.KindProviderUnavailable: http.StatusServiceUnavailable,
	types.KindMalformedOutput:     http.StatusBadGateway,
	types.KindInternal:            http.StatusInternalServerError,
}

// StatusFor maps an error kind to its HTTP status. Unknown kinds are 500.
func StatusFor(kind types.ErrorKind) int {
	if status, ok := kindStatus[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

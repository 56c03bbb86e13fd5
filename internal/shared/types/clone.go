package types

import (
	"net/url"
)

// CloneRequest is the raw input of one clone
type CloneRequest struct {
	RawURL string `json:"url" binding:"required"`
}

// NormalizedURL is a validated http(s) target
type NormalizedURL struct {
	Scheme string `json:"scheme"`
	Host   string `json:"host"`
	Path   string `json:"path"`
	// RawPath is the escaped path when its escaping differs from the
	// default encoding of Path (e.g. %2F inside a segment)
	RawPath string `json:"raw_path,omitempty"`
	Query   string `json:"query,omitempty"`
}

// String reassembles the URL
func (u NormalizedURL) String() string {
	return u.URL().String()
}

// URL returns the net/url form
func (u NormalizedURL) URL() *url.URL {
	return &url.URL{
		Scheme:   u.Scheme,
		Host:     u.Host,
		Path:     u.Path,
		RawPath:  u.RawPath,
		RawQuery: u.Query,
	}
}

// ClonedHTML is the sanitized markup returned to the viewer
type ClonedHTML struct {
	HTML string `json:"html"`
}

// CloneResult is either a success carrying ClonedHTML or a classified failure
type CloneResult struct {
	ID      string        `json:"clone_id"`
	URL     string        `json:"original_url,omitempty"`
	Cloned  *ClonedHTML   `json:"cloned,omitempty"`
	Failure *FailureInfo  `json:"failure,omitempty"`
	Stages  []StageTiming `json:"stages,omitempty"`
}

// FailureInfo describes a terminal failure
type FailureInfo struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// StageTiming records how long one pipeline stage took
type StageTiming struct {
	Stage      string `json:"stage"`
	DurationMs int64  `json:"duration_ms"`
}

// Success builds a successful result
func Success(id string, html string) CloneResult {
	return CloneResult{ID: id, Cloned: &ClonedHTML{HTML: html}}
}

// Failure builds a failed result
func Failure(id string, kind ErrorKind, message string) CloneResult {
	return CloneResult{ID: id, Failure: &FailureInfo{Kind: kind, Message: message}}
}

// OK reports whether the result is a success
func (r CloneResult) OK() bool {
	return r.Cloned != nil && r.Failure == nil
}

// Kind returns the failure kind, or empty on success
func (r CloneResult) Kind() ErrorKind {
	if r.Failure == nil {
		return ""
	}
	return r.Failure.Kind
}

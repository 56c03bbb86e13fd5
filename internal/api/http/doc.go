// Package http exposes the clone service over REST.
//
// Routes:
//
//	GET  /        service banner
//	GET  /health  health report, 503 when unhealthy
//	POST /clone   {"url": "..."} → {"cloned_html", "original_url", "clone_id", "message"}
//
// Failures are returned as {"detail", "kind"} with the status code of their
// error kind (see StatusFor).
package http

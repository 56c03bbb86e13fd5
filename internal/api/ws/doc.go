// Package ws streams clone progress over a websocket.
//
// GET /clone/stream?url=<target> upgrades the connection and runs one clone.
// Every stage transition is sent as it happens, followed by exactly one
// terminal message, after which the server closes the connection.
//
// Server → client:
//
//	{"type": "stage",  "clone_id", "stage", "elapsed_ms"}
//	{"type": "result", "clone_id", "cloned_html", "original_url"}
//	{"type": "error",  "clone_id", "kind", "detail"}
//
// Closing the socket from the client cancels the clone.
package ws

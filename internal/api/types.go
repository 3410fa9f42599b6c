// Package api's response envelope wraps every /kv and /stats payload the
// same way: a status, the payload itself, and a Metadata block timing how
// long the engine call underneath took. getStats passes a zero duration
// since Stats() is cheap enough not to warrant measuring.
package api

// APIResponse is the envelope every handler in this package returns.
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data,omitempty"`
	Metadata *Metadata   `json:"metadata,omitempty"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata reports how long the underlying engine call took, alongside a
// timestamp callers can use to detect a stale cached response.
type Metadata struct {
	Version         string  `json:"version"`
	ExecutionTimeMs float64 `json:"execution_time_ms"`
	Timestamp       string  `json:"timestamp"`
}

// APIError carries a machine-readable code alongside the human-readable
// message, so a client can branch on Code without string-matching Message.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// KVEntry is the body of a successful PUT or GET response. Timestamp is
// only set on PUT, recording when the write landed; a GET leaves it empty
// since the engine keeps no per-key write time.
type KVEntry struct {
	Key       string `json:"key"`
	Value     string `json:"value"`
	Timestamp string `json:"timestamp,omitempty"`
}

// PutRequest is the body a PUT /kv/:key request must supply.
type PutRequest struct {
	Value string `json:"value" binding:"required"`
}

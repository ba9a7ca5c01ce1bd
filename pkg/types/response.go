package types

// ErrorEnvelope is the body of every failed API response. RequestID matches
// the X-Request-Id response header so support can find the server log line.
type ErrorEnvelope struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Code      string `json:"code"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

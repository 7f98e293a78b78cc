package httpapi

import "time"

const defaultMaxBodyBytes int64 = 8 << 20

// maxBodyBytes caps JSON request bodies; a larger body is a 400.
var maxBodyBytes = defaultMaxBodyBytes

// SetMaxBodyBytes configures the maximum request body size; n <= 0 restores the default.
func SetMaxBodyBytes(n int64) {
	if n <= 0 {
		maxBodyBytes = defaultMaxBodyBytes
		return
	}
	maxBodyBytes = n
}

// Admission gate for compute routes (generate, chat, chateval, token-count).
var (
	maxConcurrent = 16
	admissionWait = 30 * time.Second
)

// SetAdmission configures the admission gate used by NewMux. max 0 disables
// the gate; wait is how long a request may queue before it gets a 429.
func SetAdmission(max int, wait time.Duration) {
	if max < 0 {
		max = 0
	}
	if wait <= 0 {
		wait = 30 * time.Second
	}
	maxConcurrent = max
	admissionWait = wait
}

// corsAllowedOrigins switches from the permissive wildcard headers to an
// allow-list enforced by go-chi/cors when non-empty.
var corsAllowedOrigins []string

// SetCORSOptions configures the CORS allow-list; an empty list keeps the
// permissive wildcard headers.
func SetCORSOptions(origins []string) {
	corsAllowedOrigins = append([]string(nil), origins...)
}

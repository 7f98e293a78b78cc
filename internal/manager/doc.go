// Package manager owns the single loaded model and its lifecycle. It is
// structured into small files by concern:
//
//   - manager.go: Manager type, constructor, read-only accessors, WithModel.
//   - config.go: Config and package defaults; New applies defaults.
//   - types.go: State, Identity and helpers.
//   - lifecycle.go: Load and Unload.
//   - ops.go: Do, the model action dispatcher (load, unload, list, info).
//   - errors.go: error types with HTTP status codes and IsXxx helpers.
//   - events.go, eventpub_memory.go: lifecycle event publishing.
//   - metrics.go: Prometheus collectors.
//
// Generation and scoring hold the model slot's read lock for the whole call
// through WithModel; Load and Unload take the write lock, so a model is never
// released while a request is using it. Identity and settings snapshots are
// guarded separately so inquiries never wait behind a long load.
package manager

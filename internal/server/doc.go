// Package server exposes the import engine over HTTP.
//
// # Routes
//
// Routing uses chi. [Server.Handler] registers the upload, job, progress, mode and ranking
// endpoints behind request id, request logging and panic recovery middleware.
//
// # Uploads
//
// POST /users/{userID}/imports/{platform} accepts multipart/form-data with one or more "files"
// parts. Parts are streamed to a private temp directory, bounded by [Limits], and handed to a
// [tasks.JobRunner]. The temp directory is removed when the job finishes. A second upload for a
// user whose import is still running is rejected with 409 Conflict.
//
// # Progress
//
// GET /imports/{jobID}/events is a Server-Sent Events stream. Each event's id is its sequence
// number in the job's log and its name is the pipeline phase. Clients resume with Last-Event-ID
// or ?offset=. The stream ends with a "result" event carrying the [models.ImportResult].
//
// # Data Source Mode
//
// Imports only ever move a user's mode forward. PUT /users/{userID}/mode is the explicit user
// action that can set any mode, including going back to live-only.
package server

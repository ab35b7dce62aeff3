// Package api exposes the HTTP surface of the processing pipeline: audio
// registration and submission, status and result lookup, and the status
// event stream. Handlers translate HTTP concerns to service calls and map
// service errors to status codes.
package api

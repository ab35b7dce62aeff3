// Package gemini implements the transcription and analysis capabilities on
// Google's Gemini API through the google.golang.org/genai client.
//
// Both adapters share one request path that retries API errors with
// exponential backoff and jitter, and returns blocked or empty responses
// without retrying. Every error returned to callers wraps one of the
// capability package's errors so the worker can classify it.
package gemini

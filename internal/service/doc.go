// Package service contains the application use cases of the pipeline:
// registering uploaded audio, submitting it for processing, and reading
// back task status and results on behalf of an owner.
//
// Services depend on repository interfaces declared here and on the queue
// publisher, never on a concrete database or broker. Expected conditions
// are reported as sentinel errors that the API layer maps to HTTP status
// codes; anything unexpected is wrapped in a JobServiceError.
package service

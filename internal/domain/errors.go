// internal/domain/errors.go
package domain

import "errors"

// ErrUnauthorized is returned by providers when the API responds with HTTP 401.
// Callers can check for it using errors.Is to stop retrying and surface the problem.
var ErrUnauthorized = errors.New("unauthorized")

// ErrNotFound is returned by providers when the requested pipeline does not exist.
var ErrNotFound = errors.New("not found")

// ErrMalformedNeeds marks a pipeline whose needs reference a job that does not exist.
var ErrMalformedNeeds = errors.New("malformed needs")

// ErrCycleDetected marks a pipeline whose dependency edges form a cycle.
var ErrCycleDetected = errors.New("dependency cycle detected")

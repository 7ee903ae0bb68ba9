package domain

import "errors"

var (
	// ErrCollaboratorTimeout is returned when an external collaborator call exceeds its deadline
	ErrCollaboratorTimeout = errors.New("collaborator call timed out")

	// ErrCollaboratorFailed is returned for failed or malformed external calls
	ErrCollaboratorFailed = errors.New("collaborator call failed")

	// ErrNoStrategy signals an unmapped root-cause type; callers always fall back to the default strategy
	ErrNoStrategy = errors.New("no resolution strategy for root cause")

	// ErrValidation is returned for malformed incident, diagnosis or resolution records
	ErrValidation = errors.New("validation failed")

	// ErrIncidentNotFound is returned when an incident ID is not found
	ErrIncidentNotFound = errors.New("incident not found")

	// ErrDiagnosisFailed aborts the pipeline when no diagnosis could be produced
	ErrDiagnosisFailed = errors.New("diagnosis failed")

	// ErrResolutionFailed aborts the pipeline when the resolution stage errored
	ErrResolutionFailed = errors.New("resolution failed")
)

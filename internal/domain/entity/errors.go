package entity

import "errors"

// Engine error taxonomy. Validation and not-found errors reject the call at
// the boundary; conflict errors are expected concurrency outcomes the caller
// resolves by refreshing state; authorization errors are logged for audit.
var (
	// ErrInvalidTemplate is returned when a template definition fails validation
	ErrInvalidTemplate = errors.New("invalid template")

	// ErrTemplateNotFound is returned when a template is absent or retired
	ErrTemplateNotFound = errors.New("template not found")

	// ErrTemplateInUse is returned on structural mutation of a template
	// already referenced by at least one instance
	ErrTemplateInUse = errors.New("template is in use")

	// ErrDocumentInWorkflow is returned when the document already has an
	// IN_PROGRESS instance started by another user
	ErrDocumentInWorkflow = errors.New("document already in workflow")

	// ErrInstanceNotFound is returned when no instance exists for the id
	ErrInstanceNotFound = errors.New("workflow instance not found")

	// ErrInstanceNotActive is returned when deciding against a terminal instance
	ErrInstanceNotActive = errors.New("workflow instance is not active")

	// ErrStaleStage is returned when a decision targets a stage the
	// instance has already advanced past
	ErrStaleStage = errors.New("decision targets a stale stage")

	// ErrAlreadyResolved is returned to the loser of a decision race: the
	// stage execution was resolved by another approver first
	ErrAlreadyResolved = errors.New("stage already resolved")

	// ErrNotAuthorized is returned when the acting user does not currently
	// hold the stage's required role
	ErrNotAuthorized = errors.New("user not eligible for this stage")

	// ErrInvalidDecision is returned for a malformed decision payload
	ErrInvalidDecision = errors.New("invalid decision")
)

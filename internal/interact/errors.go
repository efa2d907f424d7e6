package interact

import "errors"

var (
	// ErrElementNotFound is returned when an element never reached the
	// requested readiness within the wait bound
	ErrElementNotFound = errors.New("element not found")
	// ErrInteractionFailed is returned when the driver rejected a click
	ErrInteractionFailed = errors.New("interaction failed")
	// ErrNoInteractableElement is returned when no candidate ever matched a
	// robust click target within the wait bound
	ErrNoInteractableElement = errors.New("no interactable element")
)

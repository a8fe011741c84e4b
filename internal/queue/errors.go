package queue

import "errors"

var (
	// ErrInvalidTransition covers every illegal state change, including a
	// barber who is already serving someone.
	ErrInvalidTransition = errors.New("invalid ticket transition")
	// ErrCoordinatorBusy is returned when a barber's mutation slot cannot be
	// acquired within the submit timeout. Retryable.
	ErrCoordinatorBusy = errors.New("barber queue busy")
	// ErrUnassigned is returned for operations that require the ticket to be
	// bound to a barber.
	ErrUnassigned = errors.New("ticket has no barber assigned")
)

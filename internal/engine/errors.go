package engine

import "errors"

var (
	// ErrInvalidStateTransition is returned when an operator command arrives
	// in a phase that cannot accept it. State is left unchanged.
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrConfigurationMissing marks a day with no plan in the data tables.
	// The day still runs, with an empty queue.
	ErrConfigurationMissing = errors.New("configuration missing")

	// ErrUnknownDecision rejects a decision that is neither approve nor reject.
	ErrUnknownDecision = errors.New("unknown decision")

	// ErrUnknownCommand rejects a command type the engine does not handle.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrNotificationNotFound is returned when READ_MAIL names nothing in
	// the inbox, or the inbox has no unread mail.
	ErrNotificationNotFound = errors.New("notification not found")

	// ErrEngineStopped is returned by Submit when the frame loop has exited.
	ErrEngineStopped = errors.New("engine stopped")
)

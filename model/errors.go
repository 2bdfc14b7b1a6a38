package model

import "errors"

// Error taxonomy shared by every command surface. Package-level sentinels in
// equipment, scenario, tutorial and alarm wrap one of these so callers can
// classify a rejection with errors.Is without knowing which engine produced it.
var (
	// ErrInvalidTransition means the command is not legal from the current state.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrOutOfRange means a numeric parameter lies outside its configured bounds.
	ErrOutOfRange = errors.New("out of range")
	// ErrUnknownEntity means an id does not name any known equipment, tag,
	// alarm, tutorial or scenario.
	ErrUnknownEntity = errors.New("unknown entity")
	// ErrConflictingActivation means something exclusive is already active.
	ErrConflictingActivation = errors.New("conflicting activation")
)

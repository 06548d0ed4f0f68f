package domain

import "time"

// IdentityVariable is the variable seeded with the session identity.
const IdentityVariable = "name"

// Fixed texts emitted by the runtime.
const (
	// NoInputText is queued when a Listen times out in a step without Silence.
	NoInputText = "No input received. Please type again to continue."

	unknownStepFormat = "System error: unknown step %s"
	stalledStepFormat = "System error: step %s has no exit"
)

// DefaultJoinTimeout bounds how long a restart waits for the previous
// control goroutine of a session to exit.
const DefaultJoinTimeout = time.Second

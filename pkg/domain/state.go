package domain

// ExecutionStatus defines the current mode of a session's control loop.
type ExecutionStatus string

const (
	StatusIdle      ExecutionStatus = "idle"      // never dispatched
	StatusRunning   ExecutionStatus = "running"   // control goroutine alive
	StatusExited    ExecutionStatus = "exited"    // Exit instruction reached
	StatusFailed    ExecutionStatus = "failed"    // fatal step error
	StatusCancelled ExecutionStatus = "cancelled" // stop requested
)

// Binding is one entry of a variable snapshot. Set is false when the
// variable has no value yet.
type Binding struct {
	Name  string `json:"name"`
	Value string `json:"value,omitempty"`
	Set   bool   `json:"set"`
}

// SessionInfo summarizes a session for listings.
type SessionInfo struct {
	ID        string          `json:"id"`
	Identity  string          `json:"identity,omitempty"`
	Status    ExecutionStatus `json:"status"`
	Step      string          `json:"step,omitempty"`
	Listening bool            `json:"listening"`
	Pending   int             `json:"pending"`
}

package domain

import (
	"time"
)

// MessageKind classifies an output message.
type MessageKind string

const (
	// MessageSpeech is produced by a Speak instruction.
	MessageSpeech MessageKind = "speech"
	// MessageNotice is the fallback emitted when a Listen times out and the
	// step has no Silence handler.
	MessageNotice MessageKind = "notice"
	// MessageSystem reports a fatal runtime error of the session.
	MessageSystem MessageKind = "system"
)

// Message is one entry of a session's output queue.
type Message struct {
	Seq  uint64      `json:"seq"`
	Kind MessageKind `json:"kind"`
	Step string      `json:"step,omitempty"`
	Text string      `json:"text"`
	At   time.Time   `json:"at"`
}

// String returns the message text.
func (m Message) String() string {
	return m.Text
}

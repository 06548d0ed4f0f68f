/*
Package domain contains the shared data model of the call-flow compiler and runtime.

It is kept free of I/O so that the compiler, the interpreter and every adapter can
depend on it without pulling each other in.

# Key Entities

  - Instruction: one compiled line of a step (Speak, Listen, Branch, Silence, Default, Exit).
  - Expression: the literal and variable parts of a Speak line.
  - Graph: the immutable compiled script, with its graph-wide keyword table.
  - Message: an element of a session's output queue.
  - Diagnostic: a compile or validation problem tied to a source line.
*/
package domain

/*
Package runtime interprets compiled call-flow graphs.

A Session owns the mutable state of one caller: the variable table, the input
slot and the output queue. StartDispatch runs the graph on a dedicated
goroutine; the caller talks to it only through SubmitInput, Poll and
RequestStop, each backed by its own lock, so no two locks are ever held
together.

Within a dispatch the rules are:

  - Speak queues its resolved text; unset variables render as [name].
  - Listen discards stale input and waits for fresh input, the timeout or a stop.
  - Branch runs only if the latest Listen got input in time, and searches the
    graph-wide keyword table in declaration order. A miss suppresses the next
    Silence of the same step once.
  - Silence and Default jump; Exit ends the dispatch.
  - Running off the end of a step runs it again.
*/
package runtime

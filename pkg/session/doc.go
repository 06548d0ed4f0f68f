/*
Package session keeps the registry of live conversations.

Sessions are addressed by generated ids and stored in a sharded map, so
handlers for different callers never queue behind one global lock. The flow a
session runs is fixed at creation; swapping the flow held by a Current only
affects sessions created afterwards.
*/
package session

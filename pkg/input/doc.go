// Package input validates caller text before it is submitted to a session.
package input

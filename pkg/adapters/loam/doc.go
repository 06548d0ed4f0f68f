/*
Package loam stores call-flow scripts as documents in a Loam repository.

Each document carries its metadata as frontmatter and the script as body:

	---
	id: welcome
	title: Welcome line
	intents: [yes, no]
	---
	Step main
	  Speak "Hello"
	  Exit

Library.Watch reports changed documents so a server can recompile and swap
the flow new sessions use.
*/
package loam

// Package mcp exposes call-flow sessions as Model Context Protocol tools, so
// an agent can hold a conversation with a script.
package mcp

// Package compiler turns call-flow scripts into step graphs.
//
// Compilation runs in two passes: Scan splits the text into token lines and
// Build assembles them into an immutable domain.Graph, collecting diagnostics
// for malformed lines instead of failing on the first one.
package compiler

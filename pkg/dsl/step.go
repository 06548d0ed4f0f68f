package dsl

import (
	"strconv"
	"strings"
	"time"
)

// Part is one piece of a spoken line: literal text or a variable.
type Part struct {
	text     string
	variable bool
}

// Text is a literal piece of a spoken line.
func Text(s string) Part { return Part{text: s} }

// Var is a variable resolved when the line is spoken.
func Var(name string) Part { return Part{text: name, variable: true} }

// StepBuilder provides a fluent API for appending instructions to a step.
type StepBuilder struct {
	id      string
	lines   []string
	builder *Builder
}

// Say speaks literal text.
func (s *StepBuilder) Say(text string) *StepBuilder {
	return s.Speak(Text(text))
}

// Speak speaks the concatenation of parts.
func (s *StepBuilder) Speak(parts ...Part) *StepBuilder {
	tokens := make([]string, 0, len(parts))
	for _, p := range parts {
		if p.variable {
			s.builder.checkName("variable", p.text)
			tokens = append(tokens, "$"+p.text)
			continue
		}
		s.builder.checkText("literal", p.text)
		tokens = append(tokens, quote(p.text))
	}
	if len(tokens) == 0 {
		tokens = append(tokens, quote(""))
	}
	return s.add("Speak " + strings.Join(tokens, " + "))
}

// Listen waits up to timeout for caller input. Sub-second precision is kept.
func (s *StepBuilder) Listen(timeout time.Duration) *StepBuilder {
	return s.add("Listen " + strconv.FormatFloat(timeout.Seconds(), 'f', -1, 64))
}

// Branch jumps to target when the caller's input contains keyword. Keywords
// are shared by the whole script.
func (s *StepBuilder) Branch(keyword, target string) *StepBuilder {
	s.builder.checkText("keyword", keyword)
	s.builder.checkName("target", target)
	return s.add("Branch " + quote(keyword) + " " + target)
}

// Silence jumps to target when the last Listen timed out.
func (s *StepBuilder) Silence(target string) *StepBuilder {
	s.builder.checkName("target", target)
	return s.add("Silence " + target)
}

// Default jumps to target unconditionally.
func (s *StepBuilder) Default(target string) *StepBuilder {
	s.builder.checkName("target", target)
	return s.add("Default " + target)
}

// Exit ends the conversation.
func (s *StepBuilder) Exit() *StepBuilder {
	return s.add("Exit")
}

// Add starts another step, for chaining whole scripts in one expression.
func (s *StepBuilder) Add(id string) *StepBuilder {
	return s.builder.Add(id)
}

func (s *StepBuilder) add(line string) *StepBuilder {
	s.lines = append(s.lines, line)
	return s
}

func quote(s string) string {
	return `"` + s + `"`
}

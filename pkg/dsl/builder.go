package dsl

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aretw0/callflow"
	"github.com/aretw0/callflow/pkg/domain"
)

// Builder manages the script construction. Steps are written in the order
// they were added; the first one is the main step.
type Builder struct {
	order []string
	steps map[string]*StepBuilder
	errs  []error
}

// New creates a new script builder.
func New() *Builder {
	return &Builder{
		steps: make(map[string]*StepBuilder),
	}
}

// Add starts a step. If the step already exists, it returns the existing
// builder so more instructions can be appended.
func (b *Builder) Add(id string) *StepBuilder {
	if sb, ok := b.steps[id]; ok {
		return sb
	}
	b.checkName("step id", id)
	sb := &StepBuilder{id: id, builder: b}
	b.steps[id] = sb
	b.order = append(b.order, id)
	return sb
}

// Script renders the script text.
func (b *Builder) Script() string {
	var sb strings.Builder
	for _, id := range b.order {
		step := b.steps[id]
		fmt.Fprintf(&sb, "Step %s\n", id)
		for _, line := range step.lines {
			fmt.Fprintf(&sb, "  %s\n", line)
		}
	}
	return sb.String()
}

// Build renders the script and compiles it. Construction mistakes, such as
// a literal holding a double quote, are reported before compiling.
func (b *Builder) Build(opts ...callflow.Option) (*callflow.Flow, domain.Diagnostics, error) {
	if err := errors.Join(b.errs...); err != nil {
		return nil, nil, fmt.Errorf("invalid script: %w", err)
	}
	return callflow.Compile(b.Script(), opts...)
}

// checkName rejects names the scanner would split or misread.
func (b *Builder) checkName(what, name string) {
	switch {
	case name == "":
		b.errs = append(b.errs, fmt.Errorf("empty %s", what))
	case strings.ContainsAny(name, " \t\r\n\""):
		b.errs = append(b.errs, fmt.Errorf("%s %q must not contain spaces or quotes", what, name))
	}
}

func (b *Builder) checkText(what, text string) {
	if strings.ContainsAny(text, "\"\n\r") {
		b.errs = append(b.errs, fmt.Errorf("%s %q must not contain double quotes or line breaks", what, text))
	}
}

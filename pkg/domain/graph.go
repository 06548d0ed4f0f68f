package domain

import "strings"

// BranchRule maps a keyword to a target step in the graph-wide branch table.
type BranchRule struct {
	Keyword string `json:"keyword"`
	Target  string `json:"target"`
	// DeclaredIn is the step whose Branch line declared the rule.
	// Matching ignores it: every rule is visible from every step.
	DeclaredIn string `json:"declared_in"`
}

// Step is a named, ordered list of instructions.
type Step struct {
	ID           string        `json:"id"`
	Line         int           `json:"line,omitempty"`
	Instructions []Instruction `json:"instructions"`
}

// HasKind reports whether any instruction of the step is of kind k.
func (s Step) HasKind(k Kind) bool {
	for _, in := range s.Instructions {
		if in.Kind == k {
			return true
		}
	}
	return false
}

// Graph is a compiled script. It is immutable once built and may be read
// by any number of sessions concurrently.
type Graph struct {
	main      string
	order     []string
	steps     map[string]Step
	variables []string
	branches  []BranchRule
}

// GraphBuilder accumulates a Graph. It is not safe for concurrent use and
// must not be touched after Graph is called.
type GraphBuilder struct {
	g     *Graph
	index map[string]int // keyword -> position in branches
	vars  map[string]bool
}

// NewGraphBuilder returns an empty builder.
func NewGraphBuilder() *GraphBuilder {
	return &GraphBuilder{
		g:     &Graph{steps: make(map[string]Step)},
		index: make(map[string]int),
		vars:  make(map[string]bool),
	}
}

// SetMain records the main step id. Only the first call has effect.
func (b *GraphBuilder) SetMain(id string) {
	if b.g.main == "" {
		b.g.main = id
	}
}

// HasMain reports whether a main step id has been recorded.
func (b *GraphBuilder) HasMain() bool {
	return b.g.main != ""
}

// HasStep reports whether a step has already been stored under id.
func (b *GraphBuilder) HasStep(id string) bool {
	_, ok := b.g.steps[id]
	return ok
}

// PutStep stores a step. A step stored again under the same id replaces the
// earlier one but keeps its declaration position.
func (b *GraphBuilder) PutStep(id string, line int, instructions []Instruction) {
	if _, exists := b.g.steps[id]; !exists {
		b.g.order = append(b.g.order, id)
	}
	b.g.steps[id] = Step{ID: id, Line: line, Instructions: instructions}
}

// DeclareVariable registers a variable name once, preserving first-use order.
func (b *GraphBuilder) DeclareVariable(name string) {
	if b.vars[name] {
		return
	}
	b.vars[name] = true
	b.g.variables = append(b.g.variables, name)
}

// AddBranch upserts a keyword in the graph-wide table. A keyword seen again
// keeps its original position; its target is replaced.
func (b *GraphBuilder) AddBranch(keyword, target, declaredIn string) {
	if i, ok := b.index[keyword]; ok {
		b.g.branches[i].Target = target
		b.g.branches[i].DeclaredIn = declaredIn
		return
	}
	b.index[keyword] = len(b.g.branches)
	b.g.branches = append(b.g.branches, BranchRule{Keyword: keyword, Target: target, DeclaredIn: declaredIn})
}

// Graph returns the built graph.
func (b *GraphBuilder) Graph() *Graph {
	return b.g
}

// Main returns the id of the first declared step.
func (g *Graph) Main() string {
	return g.main
}

// Lookup returns the instructions of a step.
func (g *Graph) Lookup(id string) ([]Instruction, bool) {
	s, ok := g.steps[id]
	if !ok {
		return nil, false
	}
	return s.Instructions, true
}

// Step returns a step by id.
func (g *Graph) Step(id string) (Step, bool) {
	s, ok := g.steps[id]
	return s, ok
}

// StepIDs lists step ids in declaration order.
func (g *Graph) StepIDs() []string {
	return append([]string(nil), g.order...)
}

// Steps lists steps in declaration order.
func (g *Graph) Steps() []Step {
	out := make([]Step, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.steps[id])
	}
	return out
}

// Len returns the number of steps.
func (g *Graph) Len() int {
	return len(g.order)
}

// DeclaredVariables lists the variables referenced by Speak instructions,
// in order of first use.
func (g *Graph) DeclaredVariables() []string {
	return append([]string(nil), g.variables...)
}

// IsDeclared reports whether name is a declared variable.
func (g *Graph) IsDeclared(name string) bool {
	for _, v := range g.variables {
		if v == name {
			return true
		}
	}
	return false
}

// Branches returns the graph-wide keyword table in insertion order.
func (g *Graph) Branches() []BranchRule {
	return append([]BranchRule(nil), g.branches...)
}

// Match returns the first rule whose keyword is a substring of input.
func (g *Graph) Match(input string) (BranchRule, bool) {
	for _, r := range g.branches {
		if strings.Contains(input, r.Keyword) {
			return r, true
		}
	}
	return BranchRule{}, false
}

// Snapshot is a serializable view of the graph.
type Snapshot struct {
	Main      string       `json:"main"`
	Steps     []Step       `json:"steps"`
	Variables []string     `json:"variables"`
	Branches  []BranchRule `json:"branches"`
}

// Snapshot copies the graph into a serializable value.
func (g *Graph) Snapshot() Snapshot {
	return Snapshot{
		Main:      g.main,
		Steps:     g.Steps(),
		Variables: g.DeclaredVariables(),
		Branches:  g.Branches(),
	}
}

package validator

import (
	"fmt"

	"github.com/aretw0/callflow/pkg/domain"
)

// ValidateGraph checks a compiled graph for broken jump targets, steps that
// can never be reached from main and steps that can never leave.
// Broken targets are errors; the rest are warnings.
func ValidateGraph(g *domain.Graph) domain.Diagnostics {
	var diags domain.Diagnostics

	if g == nil || g.Len() == 0 {
		return append(diags, domain.Diagnostic{
			Severity: domain.SeverityError,
			Code:     domain.CodeNoSteps,
			Message:  "script declares no steps",
		})
	}

	exists := func(id string) bool {
		_, ok := g.Step(id)
		return ok
	}

	// Dangling targets
	for _, step := range g.Steps() {
		for _, in := range step.Instructions {
			if in.Kind != domain.KindSilence && in.Kind != domain.KindDefault {
				continue
			}
			if !exists(in.Target) {
				diags = append(diags, domain.Diagnostic{
					Line:     in.Line,
					Severity: domain.SeverityError,
					Code:     domain.CodeDanglingTarget,
					Message:  fmt.Sprintf("%s in step %s jumps to unknown step %s", in.Kind, step.ID, in.Target),
				})
			}
		}
	}
	for _, rule := range g.Branches() {
		if !exists(rule.Target) {
			diags = append(diags, domain.Diagnostic{
				Line:     branchLine(g, rule.DeclaredIn),
				Severity: domain.SeverityError,
				Code:     domain.CodeDanglingTarget,
				Message:  fmt.Sprintf("keyword %q jumps to unknown step %s", rule.Keyword, rule.Target),
			})
		}
	}

	// Reachability from main
	visited := Reachable(g)
	for _, step := range g.Steps() {
		if !visited[step.ID] {
			diags = append(diags, domain.Diagnostic{
				Line:     step.Line,
				Severity: domain.SeverityWarning,
				Code:     domain.CodeUnreachable,
				Message:  fmt.Sprintf("step %s is unreachable from %s", step.ID, g.Main()),
			})
		}
	}

	// Steps that repeat without waiting or leaving
	for _, step := range g.Steps() {
		if step.HasKind(domain.KindListen) || step.HasKind(domain.KindExit) ||
			step.HasKind(domain.KindDefault) || step.HasKind(domain.KindSilence) {
			continue
		}
		diags = append(diags, domain.Diagnostic{
			Line:     step.Line,
			Severity: domain.SeverityWarning,
			Code:     domain.CodeNoExit,
			Message:  fmt.Sprintf("step %s has no Listen, jump or Exit and will stall", step.ID),
		})
	}

	return diags
}

// Reachable walks the graph breadth-first from main. A step with a Branch
// instruction can reach every target of the graph-wide keyword table.
func Reachable(g *domain.Graph) map[string]bool {
	visited := make(map[string]bool)
	queue := []string{g.Main()}

	for len(queue) > 0 {
		currentID := queue[0]
		queue = queue[1:]

		if visited[currentID] {
			continue
		}
		step, ok := g.Step(currentID)
		if !ok {
			continue
		}
		visited[currentID] = true

		for _, target := range Targets(g, step) {
			if !visited[target] {
				queue = append(queue, target)
			}
		}
	}
	return visited
}

// Targets lists the steps a step may jump to, in instruction order.
func Targets(g *domain.Graph, step domain.Step) []string {
	var out []string
	for _, in := range step.Instructions {
		switch in.Kind {
		case domain.KindSilence, domain.KindDefault:
			out = append(out, in.Target)
		case domain.KindBranch:
			for _, rule := range g.Branches() {
				out = append(out, rule.Target)
			}
		}
	}
	return out
}

func branchLine(g *domain.Graph, stepID string) int {
	step, ok := g.Step(stepID)
	if !ok {
		return 0
	}
	for _, in := range step.Instructions {
		if in.Kind == domain.KindBranch {
			return in.Line
		}
	}
	return step.Line
}

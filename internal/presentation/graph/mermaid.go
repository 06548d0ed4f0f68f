package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/callflow/pkg/domain"
)

// GraphOverlay contains dynamic state data to visualize on the graph.
type GraphOverlay struct {
	VisitedSteps []string
	CurrentStep  string
}

// GenerateMermaid produces a Mermaid flowchart of a compiled graph.
// Shapes:
// - Main step: ((Circle))
// - Step with Listen: [/Parallelogram/], annotated with its timeout
// - Step with Exit: ([Stadium])
// - Other: [Rectangle]
//
// Default edges are solid, Silence edges dotted. Branch edges carry their
// keyword and are drawn from every step that branches, since keywords are
// shared by the whole graph; rules declared in another step are dotted.
func GenerateMermaid(g *domain.Graph, overlay *GraphOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	rules := g.Branches()
	for _, step := range g.Steps() {
		safeID := sanitizeMermaidID(step.ID)

		opener, closer := "[", "]"
		switch {
		case step.ID == g.Main():
			opener, closer = "((", "))"
		case step.HasKind(domain.KindListen):
			opener, closer = "[/", "/]"
		case step.HasKind(domain.KindExit):
			opener, closer = "([", "])"
		}

		label := step.ID
		if timeout, ok := listenTimeout(step); ok {
			label = fmt.Sprintf("%s <br/> ⏱️ %s", step.ID, timeout)
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", safeID, opener, label, closer)

		for _, in := range step.Instructions {
			switch in.Kind {
			case domain.KindDefault:
				fmt.Fprintf(&sb, "    %s --> %s\n", safeID, sanitizeMermaidID(in.Target))
			case domain.KindSilence:
				fmt.Fprintf(&sb, "    %s -. \"silence\" .-> %s\n", safeID, sanitizeMermaidID(in.Target))
			case domain.KindBranch:
				for _, rule := range rules {
					keyword := strings.ReplaceAll(rule.Keyword, "\"", "'")
					if rule.DeclaredIn == step.ID {
						fmt.Fprintf(&sb, "    %s -- \"%s\" --> %s\n", safeID, keyword, sanitizeMermaidID(rule.Target))
					} else {
						fmt.Fprintf(&sb, "    %s -. \"%s\" .-> %s\n", safeID, keyword, sanitizeMermaidID(rule.Target))
					}
				}
			}
		}
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for contrast on light fills in both themes
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		visitedSet := make(map[string]bool)
		for _, id := range overlay.VisitedSteps {
			safeID := sanitizeMermaidID(id)
			if !visitedSet[safeID] && safeID != "" {
				visitedSet[safeID] = true
				fmt.Fprintf(&sb, "    class %s visited;\n", safeID)
			}
		}

		if overlay.CurrentStep != "" {
			fmt.Fprintf(&sb, "    class %s current;\n", sanitizeMermaidID(overlay.CurrentStep))
		}
	}

	return sb.String()
}

func listenTimeout(step domain.Step) (string, bool) {
	for _, in := range step.Instructions {
		if in.Kind == domain.KindListen {
			return in.Timeout.String(), true
		}
	}
	return "", false
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}

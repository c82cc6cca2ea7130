// Package render draws compiled graphs as Mermaid flowcharts.
package render

import (
	"fmt"
	"strings"

	"github.com/randalmurphal/stategraph/pkg/stategraph"
)

// Overlay marks run progress on a rendered graph.
type Overlay struct {
	VisitedNodes []string
	CurrentNode  string
	FailedNode   string
}

// Mermaid produces "graph TD" flowchart syntax for cg.
//
// Shapes:
//   - START and END: ((circle))
//   - node with conditional edges: {rhombus}
//   - other nodes: [rectangle]
//
// Conditional edges carry their router label.
func Mermaid(cg *stategraph.CompiledGraph, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	fmt.Fprintf(&sb, "    %s((\"start\"))\n", mermaidID(stategraph.START))
	for _, id := range cg.NodeIDs() {
		opener, closer := "[", "]"
		if cg.IsConditional(id) {
			opener, closer = "{", "}"
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", mermaidID(id), opener, escapeLabel(id), closer)
	}
	fmt.Fprintf(&sb, "    %s((\"end\"))\n", mermaidID(stategraph.END))

	writeEdges(&sb, cg, stategraph.START)
	for _, id := range cg.NodeIDs() {
		writeEdges(&sb, cg, id)
	}

	if overlay != nil {
		writeOverlay(&sb, overlay)
	}
	return sb.String()
}

// Markdown wraps the flowchart in a fenced mermaid block.
func Markdown(cg *stategraph.CompiledGraph, overlay *Overlay) string {
	return "```mermaid\n" + Mermaid(cg, overlay) + "```\n"
}

func writeEdges(sb *strings.Builder, cg *stategraph.CompiledGraph, from string) {
	src := mermaidID(from)
	if !cg.IsConditional(from) {
		for _, to := range cg.Successors(from) {
			fmt.Fprintf(sb, "    %s --> %s\n", src, mermaidID(to))
		}
		return
	}
	mapping := cg.Mapping(from)
	for _, label := range cg.Labels(from) {
		fmt.Fprintf(sb, "    %s -- \"%s\" --> %s\n", src, escapeLabel(label), mermaidID(mapping[label]))
	}
}

func writeOverlay(sb *strings.Builder, overlay *Overlay) {
	sb.WriteString("\n    %% Run overlay\n")
	sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
	sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")
	sb.WriteString("    classDef failed fill:#ffcdd2,stroke:#b71c1c,stroke-width:4px,color:#000;\n")

	seen := make(map[string]bool)
	for _, id := range overlay.VisitedNodes {
		safe := mermaidID(id)
		if safe == "" || seen[safe] {
			continue
		}
		seen[safe] = true
		fmt.Fprintf(sb, "    class %s visited;\n", safe)
	}
	if overlay.CurrentNode != "" {
		fmt.Fprintf(sb, "    class %s current;\n", mermaidID(overlay.CurrentNode))
	}
	if overlay.FailedNode != "" {
		fmt.Fprintf(sb, "    class %s failed;\n", mermaidID(overlay.FailedNode))
	}
}

// mermaidID maps a node name onto the characters Mermaid accepts in ids.
func mermaidID(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		}
		return '_'
	}, id)
}

func escapeLabel(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

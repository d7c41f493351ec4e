package generator

import (
	"context"
	"fmt"
	"strings"
)

// MockLLM is an offline stand-in that turns each clause of the description into one node.
// Useful for local runs without credentials.
type MockLLM struct{}

const maxMockSteps = 8

func (m MockLLM) Complete(_ context.Context, prompt Prompt) (string, error) {
	desc := strings.TrimSuffix(strings.TrimPrefix(prompt.User, instructionHead), instructionTail)
	steps := splitSteps(desc)
	if len(steps) == 0 {
		steps = []string{"Start"}
	}

	var sb strings.Builder
	sb.WriteString("```dot\n")
	sb.WriteString("digraph Flowchart {\n")
	sb.WriteString("  rankdir=LR;\n")
	sb.WriteString("  graph [bgcolor=\"#f7f7f7\", fontname=\"Arial\", fontsize=\"12\"];\n")
	sb.WriteString("  node [shape=\"box\", style=\"filled\", fillcolor=\"#e0e0e0\", fontname=\"Arial\", fontsize=\"10\"];\n")
	sb.WriteString("  edge [fontname=\"Arial\", fontsize=\"8\", color=\"#666666\"];\n")

	for _, c := range mockClusters(len(steps)) {
		fmt.Fprintf(&sb, "  subgraph cluster_%s {\n", c.name)
		fmt.Fprintf(&sb, "    label=%q; style=\"filled\"; fillcolor=%q;\n", c.label, c.color)
		for i := c.from; i < c.to; i++ {
			fmt.Fprintf(&sb, "    s%d [label=\"%s\"];\n", i, escapeLabel(steps[i]))
		}
		sb.WriteString("  }\n")
	}
	for i := 1; i < len(steps); i++ {
		fmt.Fprintf(&sb, "  s%d -> s%d;\n", i-1, i)
	}
	sb.WriteString("}\n```\n")
	return sb.String(), nil
}

type mockCluster struct {
	name, label, color string
	from, to           int
}

// mockClusters puts the first step in input, the last in output and the rest in processing.
func mockClusters(n int) []mockCluster {
	clusters := []mockCluster{{name: "input", label: "Input", color: "#d9f3ff", from: 0, to: 1}}
	if n > 2 {
		clusters = append(clusters, mockCluster{name: "processing", label: "Processing", color: "#fff0e0", from: 1, to: n - 1})
	}
	if n > 1 {
		clusters = append(clusters, mockCluster{name: "output", label: "Output", color: "#e6ffe6", from: n - 1, to: n})
	}
	return clusters
}

func splitSteps(desc string) []string {
	fields := strings.FieldsFunc(desc, func(r rune) bool {
		return r == ',' || r == '.' || r == ';' || r == '\n'
	})
	var steps []string
	for _, f := range fields {
		f = strings.Join(strings.Fields(f), " ")
		if f == "" {
			continue
		}
		if r := []rune(f); len(r) > 40 {
			f = string(r[:37]) + "..."
		}
		steps = append(steps, f)
		if len(steps) == maxMockSteps {
			break
		}
	}
	return steps
}

func escapeLabel(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}

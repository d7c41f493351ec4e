package generator

import "strings"

// Prompt is the message pair sent to the LLM.
type Prompt struct {
	System string
	User   string
}

const systemInstruction = "You translate process descriptions into Graphviz DOT flowcharts. Reply with DOT code only."

// instructionHead and instructionTail surround the user's description. The text is a contract
// for the model; nothing in it is interpreted locally.
const instructionHead = `You are an expert system that converts natural language descriptions of processes or workflows into Graphviz DOT code for flowcharts. Your output must be valid Graphviz DOT code and follow these rules.

1. Graph structure:
   - Use a directed graph (digraph) named Flowchart unless the description asks for another name.
   - Use rankdir=LR (left to right) unless the description asks for another direction.
   - Default styling:
     - Graph: bgcolor="#f7f7f7", fontname="Arial", fontsize="12".
     - Nodes: shape="box", style="filled", fillcolor="#e0e0e0", fontname="Arial", fontsize="10", margin="0.2,0.1", fontcolor="#333333", penwidth="1.5", color="#333333".
     - Edges: fontname="Arial", fontsize="8", fontcolor="#666666", color="#666666".
   - Give nodes that stand for final outputs (exported files such as PNG or PDF) shape="cylinder".

2. Clusters:
   - Group related nodes into subgraphs whenever the description implies distinct modules, components or stages (user interface, backend, processing, input, output).
   - Name every subgraph with a cluster_ prefix (cluster_ui, cluster_backend) and give it a descriptive label ("User Interface", "Backend Processing").
   - Give every cluster style="filled" and a distinct fillcolor:
     - input or user interface: fillcolor="#d9f3ff"
     - processing or backend: fillcolor="#fff0e0"
     - output or export: fillcolor="#e6ffe6"
     - any further cluster: cycle through "#f0e6ff" and "#ffe6f0".

3. Nodes and edges:
   - Create one node per step, component or entity in the process, with a short label ("User Input", "Generate Code").
   - Connect nodes in the order the description gives and label edges with the action or transition ("Sends", "Generates").

4. Outputs:
   - For export steps ("export as PNG", "save as PDF") create cylinder nodes ("Exported PNG") connected to the producing step by a labelled edge (label="PNG").

5. Interpretation:
   - Identify the distinct steps, components and modules and how they relate.
   - If the description is vague, infer input, processing and output modules and cluster them with the colours above.
   - Honour explicit styling or layout requests from the description; otherwise use the defaults.
   - Prefer a simple, readable chart for complex descriptions.

User description:
`

const instructionTail = `

Output:
Provide only the Graphviz DOT code inside a single fenced code block (` + "```" + `), with no explanations or comments.
`

// RenderInstruction places input into the instruction document. It performs no validation;
// callers reject empty input before calling it.
func RenderInstruction(input string) string {
	var sb strings.Builder
	sb.Grow(len(instructionHead) + len(input) + len(instructionTail))
	sb.WriteString(instructionHead)
	sb.WriteString(input)
	sb.WriteString(instructionTail)
	return sb.String()
}

// BuildPrompt builds the messages for one generation.
func BuildPrompt(input string) Prompt {
	return Prompt{
		System: systemInstruction,
		User:   RenderInstruction(input),
	}
}

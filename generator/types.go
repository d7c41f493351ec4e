package generator

// Flowchart is a model answer after post-processing.
type Flowchart struct {
	// Source is the Graphviz DOT text handed to the layout engine.
	Source string
	// LooksLikeDOT reports whether Source opens with a graph or digraph declaration.
	// A false value is not rejected here; the layout engine produces the diagnostic.
	LooksLikeDOT bool
}

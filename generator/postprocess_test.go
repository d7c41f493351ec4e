package generator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jitender-insights/AI-FlowChart-Generator/apperr"
)

const sampleDOT = "digraph Flowchart {\n  rankdir=LR;\n  a -> b;\n}"

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"dot tag", "```dot\n" + sampleDOT + "\n```", sampleDOT},
		{"graphviz tag", "```graphviz\n" + sampleDOT + "\n```", sampleDOT},
		{"no tag", "```\n" + sampleDOT + "\n```", sampleDOT},
		{"surrounding whitespace", "\n\n  ```dot\n" + sampleDOT + "\n```  \n", sampleDOT},
		{"tag on its own line inside fence", "```\ndot\n" + sampleDOT + "\n```", sampleDOT},
		{"single line fence", "```dot digraph G {a->b}```", "digraph G {a->b}"},
		{"prose before fence", "Here is your chart:\n\n```dot\n" + sampleDOT + "\n```\nEnjoy!", sampleDOT},
		{"first of several blocks", "```dot\n" + sampleDOT + "\n```\n\n```dot\ndigraph Other {x->y}\n```", sampleDOT},
		{"unclosed fence", "```dot\n" + sampleDOT, sampleDOT},
		{"closing fence on the last code line", "```dot\n" + sampleDOT + "```", sampleDOT},
		{"closing fence on a code line before prose", "```dot\n" + sampleDOT + "```\nEnjoy!", sampleDOT},
		{"backticks inside a label", "```dot\ndigraph G {a [label=\"use ``` here\"];}\n```", "digraph G {a [label=\"use ``` here\"];}"},
		{"no fence", "  " + sampleDOT + "\n", sampleDOT},
		{"no fence keeps leading word", "dot is not stripped without a fence", "dot is not stripped without a fence"},
		{"empty", "   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.raw))
		})
	}
}

func TestSanitizeIsIdempotent(t *testing.T) {
	raws := []string{
		"```dot\n" + sampleDOT + "\n```",
		"```gv\ngraph G { a -- b }\n```",
		"Intro\n```dot\n" + sampleDOT + "\n```",
		"```dot\ndigraph G {\n  a -> b;\n}```",
		sampleDOT,
		"  plain text  ",
	}
	for _, raw := range raws {
		once := Sanitize(raw)
		assert.Equal(t, once, Sanitize(once), "raw %q", raw)
		assert.NotContains(t, once, "```")
	}
}

func TestPostProcess(t *testing.T) {
	fc, err := PostProcess("```dot\n" + sampleDOT + "\n```")
	require.NoError(t, err)
	assert.Equal(t, sampleDOT, fc.Source)
	assert.True(t, fc.LooksLikeDOT)

	fc, err = PostProcess("Sorry, I cannot help with that.")
	require.NoError(t, err)
	assert.False(t, fc.LooksLikeDOT)

	fc, err = PostProcess("strict digraph { a -> b }")
	require.NoError(t, err)
	assert.True(t, fc.LooksLikeDOT)

	_, err = PostProcess("```dot\n```")
	require.Error(t, err)
	assert.Equal(t, apperr.KindCompletionTransient, apperr.KindOf(err))
}

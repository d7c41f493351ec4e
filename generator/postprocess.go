package generator

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/jitender-insights/AI-FlowChart-Generator/apperr"
)

const fence = "```"

// languageTags are info strings a model may leave at the top of the code.
var languageTags = []string{"graphviz", "dot", "gv"}

var declRe = regexp.MustCompile(`(?is)^(?:strict\s+)?(?:di)?graph\b`)

var markdown = goldmark.New()

// PostProcess sanitizes a completion into a Flowchart. The only failure is a completion that
// holds no text at all once fences are removed.
func PostProcess(raw string) (Flowchart, error) {
	src := Sanitize(raw)
	if src == "" {
		return Flowchart{}, apperr.New(apperr.KindCompletionTransient, "postprocess", "model returned no graph description")
	}
	return Flowchart{
		Source:       src,
		LooksLikeDOT: declRe.MatchString(src),
	}, nil
}

// Sanitize strips Markdown fencing from a completion. Text without a fence marker is returned
// trimmed and otherwise untouched. When the text holds several fenced blocks, or prose around a
// block, the body of the first block wins.
func Sanitize(raw string) string {
	cleaned := strings.TrimSpace(raw)
	if !strings.Contains(cleaned, fence) {
		return cleaned
	}

	body, ok := firstFencedBlock(cleaned)
	if ok {
		body = cutClosingFence(body)
	}
	if !ok || strings.TrimSpace(body) == "" {
		// Single-line fences such as "```dot digraph{...}```" parse as inline code.
		if !strings.HasPrefix(cleaned, fence) {
			return cleaned
		}
		parts := strings.SplitN(cleaned, fence, 3)
		body = parts[1]
	}
	return stripLanguageTag(strings.TrimSpace(body))
}

func firstFencedBlock(src string) (string, bool) {
	source := []byte(src)
	doc := markdown.Parser().Parse(text.NewReader(source))

	var (
		body  strings.Builder
		found bool
	)
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		block, ok := n.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}
		lines := block.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			body.Write(seg.Value(source))
		}
		found = true
		return ast.WalkStop, nil
	})
	return body.String(), found
}

// cutClosingFence ends a block body at a closing fence written on the same line as code, as
// in "}```". Markdown keeps such a block open until the end of the text.
func cutClosingFence(body string) string {
	lines := strings.SplitAfter(body, "\n")
	for i, line := range lines {
		trimmed := strings.TrimRightFunc(line, unicode.IsSpace)
		if strings.HasSuffix(trimmed, fence) {
			lines[i] = strings.TrimSuffix(trimmed, fence)
			return strings.Join(lines[:i+1], "")
		}
	}
	return body
}

func stripLanguageTag(s string) string {
	for _, tag := range languageTags {
		if strings.EqualFold(s, tag) {
			return ""
		}
		if len(s) <= len(tag) || !strings.EqualFold(s[:len(tag)], tag) {
			continue
		}
		r, _ := utf8.DecodeRuneInString(s[len(tag):])
		if unicode.IsSpace(r) {
			return strings.TrimSpace(s[len(tag):])
		}
	}
	return s
}

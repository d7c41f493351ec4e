package render

import (
	"strconv"
	"strings"
)

// InjectDPI inserts a "dpi=<n>;" statement right after the opening brace of the top-level
// graph declaration: the first line whose trimmed form starts with graph, digraph or
// strict graph/digraph. The brace may sit on a later line than the keyword; braces inside a
// quoted graph ID are skipped. Text without a declaration, without a brace after it, or a
// non-positive dpi is returned unchanged.
func InjectDPI(source string, dpi int) string {
	if dpi <= 0 {
		return source
	}
	start := declarationOffset(source)
	if start < 0 {
		return source
	}
	brace := openingBrace(source[start:])
	if brace < 0 {
		return source
	}
	at := start + brace + 1
	return source[:at] + "dpi=" + strconv.Itoa(dpi) + ";" + source[at:]
}

// openingBrace returns the offset of the first '{' outside a double-quoted ID, or -1.
func openingBrace(s string) int {
	quoted := false
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case quoted && c == '\\':
			i++
		case c == '"':
			quoted = !quoted
		case !quoted && c == '{':
			return i
		}
	}
	return -1
}

// declarationOffset returns the byte offset of the first declaration line, or -1.
func declarationOffset(source string) int {
	offset := 0
	for _, line := range strings.SplitAfter(source, "\n") {
		if isDeclaration(line) {
			return offset
		}
		offset += len(line)
	}
	return -1
}

func isDeclaration(line string) bool {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(line)))
	if len(fields) == 0 {
		return false
	}
	kw := fields[0]
	if kw == "strict" && len(fields) > 1 {
		kw = fields[1]
	}
	return keyword(kw, "digraph") || keyword(kw, "graph")
}

// keyword reports whether tok is kw, optionally glued to its opening brace ("digraph{").
func keyword(tok, kw string) bool {
	if !strings.HasPrefix(tok, kw) {
		return false
	}
	rest := tok[len(kw):]
	return rest == "" || rest[0] == '{'
}

package parsers

import "strings"

// ExtractScript pulls the script body out of model text. It prefers the first
// fenced code block; when none exists the whole trimmed text is treated as
// code, which matches how the generator prompt instructs the model to answer.
func ExtractScript(content string) string {
	s := strings.TrimSpace(content)
	idx := strings.Index(s, "```")
	if idx < 0 {
		return s
	}
	s = s[idx+3:]
	// drop a language tag like "python" on the fence line
	if nl := strings.IndexAny(s, "\r\n"); nl >= 0 {
		first := strings.TrimSpace(s[:nl])
		if len(first) <= 16 && !strings.ContainsAny(first, " \t") {
			s = s[nl+1:]
		}
	}
	if end := strings.Index(s, "```"); end >= 0 {
		s = s[:end]
	}
	return strings.TrimSpace(s)
}

package util

import (
	"regexp"
	"strings"
)

var (
	// Reasoning blocks some models emit ahead of the answer
	thinkTagRegex = regexp.MustCompile(`(?i)<think(?:ing)?>([\s\S]*?)</think(?:ing)?>`)
	// A reply wrapped in a single fenced block
	codeFenceRegex = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*\\n(.*?)\\n?```$")
	// Markdown emphasis around a label, e.g. **AltText:** or __Filename__:
	emphasisLabelRegex = regexp.MustCompile(`(?m)^\s*(?:\*\*|__)([A-Za-z ]+:?)(?:\*\*|__):?`)
)

// ContainsThinkTags checks if the reply contains reasoning tags
func ContainsThinkTags(reply string) bool {
	return thinkTagRegex.MatchString(reply)
}

// StripThinkTags removes reasoning tags and their content
func StripThinkTags(reply string) string {
	return strings.TrimSpace(thinkTagRegex.ReplaceAllString(reply, ""))
}

// CleanReply normalizes a model reply before label parsing: reasoning blocks
// are dropped, a surrounding code fence is unwrapped, bold labels are
// flattened and CRLF line endings become LF.
func CleanReply(reply string) string {
	s := strings.ReplaceAll(reply, "\r\n", "\n")
	s = StripThinkTags(s)
	if m := codeFenceRegex.FindStringSubmatch(s); m != nil {
		s = strings.TrimSpace(m[1])
	}
	s = emphasisLabelRegex.ReplaceAllStringFunc(s, func(label string) string {
		inner := emphasisLabelRegex.FindStringSubmatch(label)[1]
		inner = strings.TrimSuffix(strings.TrimSpace(inner), ":")
		return inner + ":"
	})
	return s
}

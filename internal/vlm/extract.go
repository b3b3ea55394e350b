package vlm

import (
	"encoding/json"
	"strings"

	"github.com/physical-mcp/engine/internal/core"
)

// ExtractJSON applies spec.md §4.6's four-step JSON extraction contract
// to a raw VLM response and unmarshals the result into out:
//  1. Strip ```json / ``` fences and surrounding whitespace.
//  2. Direct parse.
//  3. Slice from the first '{'/'[' to its matching closer by a
//     balanced-delimiter scan.
//  4. Best-effort truncation repair: if parsing still fails at EOF,
//     append closers inferred from the scan's bracket stack and retry
//     once.
//
// Failure after step 4 returns a provider_bad_json *core.Error.
func ExtractJSON(raw string, out interface{}) error {
	text := stripFences(raw)

	if err := json.Unmarshal([]byte(text), out); err == nil {
		return nil
	}

	sliced, stack, ok := balancedSlice(text)
	if ok {
		if err := json.Unmarshal([]byte(sliced), out); err == nil {
			return nil
		}
	}
	if sliced == "" {
		sliced = text
	}

	repaired := repairTruncation(sliced, stack)
	if err := json.Unmarshal([]byte(repaired), out); err == nil {
		return nil
	}

	return core.New(core.KindProviderBadJSON, "could not extract valid JSON from provider response")
}

// stripFences removes a leading ```json / ``` fence and trailing ```
// fence, trimming whitespace at each step.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx != -1 {
		firstLine := strings.TrimSpace(s[:idx])
		if firstLine == "" || strings.EqualFold(firstLine, "json") {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// balancedSlice scans text for the first '{' or '[' and returns the
// substring up through its matching closer, tracking the bracket stack
// so an unterminated input can report how it would need to be closed.
// ok is false only when no opening bracket is found at all.
func balancedSlice(text string) (slice string, stack []byte, ok bool) {
	start := strings.IndexAny(text, "{[")
	if start == -1 {
		return "", nil, false
	}

	inString := false
	escaped := false
	var bstack []byte

	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			bstack = append(bstack, c)
		case '}', ']':
			if len(bstack) > 0 {
				bstack = bstack[:len(bstack)-1]
			}
			if len(bstack) == 0 {
				return text[start : i+1], nil, true
			}
		}
	}

	// Ran off the end without closing: return what we have plus the
	// still-open stack so the caller can attempt truncation repair.
	return text[start:], bstack, true
}

// repairTruncation appends closers for whatever brackets/strings were
// left open in stack, innermost first. json.Unmarshal rejects a
// trailing comma before a closing bracket, so one is trimmed first if
// present.
func repairTruncation(partial string, stack []byte) string {
	trimmed := strings.TrimRight(partial, " \t\n\r")

	var b strings.Builder
	if quoteCount(trimmed)%2 == 1 {
		b.WriteString(trimmed)
		b.WriteString(`"`)
	} else {
		b.WriteString(strings.TrimSuffix(trimmed, ","))
	}

	for i := len(stack) - 1; i >= 0; i-- {
		switch stack[i] {
		case '{':
			b.WriteString("}")
		case '[':
			b.WriteString("]")
		}
	}
	return b.String()
}

func quoteCount(s string) int {
	count := 0
	escaped := false
	for _, r := range s {
		if escaped {
			escaped = false
			continue
		}
		if r == '\\' {
			escaped = true
			continue
		}
		if r == '"' {
			count++
		}
	}
	return count
}

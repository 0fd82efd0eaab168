// Package parser extracts wiki-style links, hashtags, headings, and display
// previews from note bodies.
package parser

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// PreviewLength is the number of characters kept in a gallery preview.
const PreviewLength = 400

// WikiLink is one [[Title]] or [[Title|Display]] occurrence in a body.
type WikiLink struct {
	Title    string
	Display  string // alias text, empty when absent
	Position int    // byte offset of the opening brackets
}

// ExtractWikiLinks scans body for bracket-pair links. This is a deliberate
// small state machine, not a markdown parser: a link is valid only when both
// closing brackets appear before a line break.
func ExtractWikiLinks(body string) []WikiLink {
	var links []WikiLink

	i := 0
	n := len(body)
	for i < n {
		if body[i] != '[' || i+1 >= n || body[i+1] != '[' {
			_, size := utf8.DecodeRuneInString(body[i:])
			i += size
			continue
		}

		start := i
		j := i + 2
		var title, display strings.Builder
		inDisplay := false
		closed := false

		for j < n {
			c, size := utf8.DecodeRuneInString(body[j:])
			if c == ']' && j+1 < n && body[j+1] == ']' {
				j += 2
				closed = true
				break
			}
			j += size
			switch {
			case c == '\n':
				// Line break inside a link invalidates it.
			case c == ']':
				// A lone closing bracket inside the link is dropped.
				continue
			case c == '|' && !inDisplay:
				inDisplay = true
				continue
			case inDisplay:
				display.WriteRune(c)
				continue
			default:
				title.WriteRune(c)
				continue
			}
			break
		}

		if closed && strings.TrimSpace(title.String()) != "" {
			links = append(links, WikiLink{
				Title:    strings.TrimSpace(title.String()),
				Display:  strings.TrimSpace(display.String()),
				Position: start,
			})
		}
		i = j
	}

	return links
}

// ExtractContext returns a bounded snippet around the link at the given byte
// position: contextChars characters on each side (plus room for the link
// itself), newlines collapsed, ellipsized where truncated.
func ExtractContext(content string, position, contextChars int) string {
	chars := []rune(content)
	if position > len(content) {
		position = len(content)
	}
	charPos := utf8.RuneCountInString(content[:position])

	start := charPos - contextChars
	if start < 0 {
		start = 0
	}
	end := charPos + contextChars + 20 // 20 covers the link text itself
	if end > len(chars) {
		end = len(chars)
	}

	result := strings.ReplaceAll(string(chars[start:end]), "\n", " ")
	for strings.Contains(result, "  ") {
		result = strings.ReplaceAll(result, "  ", " ")
	}

	prefix := ""
	if start > 0 {
		prefix = "..."
	}
	suffix := ""
	if end < len(chars) {
		suffix = "..."
	}
	return prefix + strings.TrimSpace(result) + suffix
}

// ExtractHeading returns the first H1 or H2 heading of body, or "".
func ExtractHeading(body string) string {
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if h, ok := strings.CutPrefix(trimmed, "# "); ok {
			return strings.TrimSpace(h)
		}
		if h, ok := strings.CutPrefix(trimmed, "## "); ok {
			return strings.TrimSpace(h)
		}
	}
	return ""
}

var hashtagRe = regexp.MustCompile(`(?:^|\s)#([\p{L}\p{N}_-]+)`)

// ExtractHashtags collects lowercased #tags from body, deduplicated in
// order of first occurrence.
func ExtractHashtags(body string) []string {
	matches := hashtagRe.FindAllStringSubmatch(body, -1)
	seen := make(map[string]struct{}, len(matches))
	var out []string
	for _, m := range matches {
		tag := strings.ToLower(m[1])
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

// GeneratePreview flattens the first maxLen characters of body into a single
// line of plain text: code blocks are skipped, markdown decoration stripped,
// blank lines collapse to one space, and "..." marks truncation.
func GeneratePreview(body string, maxLen int) string {
	var b strings.Builder
	inCodeBlock := false
	count := 0

	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "```") {
			inCodeBlock = !inCodeBlock
			continue
		}
		if inCodeBlock {
			continue
		}

		if trimmed == "" {
			if b.Len() > 0 && !strings.HasSuffix(b.String(), " ") {
				b.WriteByte(' ')
				count++
			}
			continue
		}

		for _, c := range cleanMarkdown(trimmed) {
			if count >= maxLen {
				b.WriteString("...")
				return b.String()
			}
			b.WriteRune(c)
			count++
		}

		if !strings.HasSuffix(b.String(), " ") {
			b.WriteByte(' ')
			count++
		}
	}

	return strings.TrimSpace(b.String())
}

// cleanMarkdown strips inline markdown decoration from a single line.
func cleanMarkdown(line string) string {
	result := line

	if strings.HasPrefix(result, "#") {
		result = strings.TrimLeft(strings.TrimLeft(result, "#"), " ")
	}

	if strings.HasPrefix(result, "- ") || strings.HasPrefix(result, "* ") {
		result = result[2:]
	}
	if pos := strings.Index(result, ". "); pos > 0 && pos <= 3 && isAllDigits(result[:pos]) {
		result = result[pos+2:]
	}
	if strings.HasPrefix(result, "> ") {
		result = result[2:]
	}

	result = strings.ReplaceAll(result, "**", "")
	result = strings.ReplaceAll(result, "__", "")

	// Drop backticks, keep the code text.
	result = strings.ReplaceAll(result, "`", "")

	// Images first so the leading "!" goes with them, then plain links.
	result = stripLinks(result, "![")
	result = stripLinks(result, "[")

	return result
}

// stripLinks rewrites every "<open>text](url)" occurrence to "text".
func stripLinks(s, open string) string {
	for {
		start := strings.Index(s, open)
		if start < 0 {
			return s
		}
		mid := strings.Index(s[start:], "](")
		if mid < 0 {
			return s
		}
		end := strings.Index(s[start+mid:], ")")
		if end < 0 {
			return s
		}
		text := s[start+len(open) : start+mid]
		s = s[:start] + text + s[start+mid+end+1:]
	}
}

func isAllDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return s != ""
}

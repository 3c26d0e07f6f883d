package jsonrepair

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Each strategy takes the raw model output and returns a candidate text. A
// strategy whose precondition does not hold returns its input unchanged so
// the parse attempt that follows fails the same way the raw text did.

// TrimExtraText keeps only the first balanced {...} or [...] block.
//
// Precondition: the text contains an opening brace or bracket. Depth counts
// only the opening character's own pair and ignores characters inside quoted
// strings, honoring backslash escapes. An unterminated block is returned from
// its opening character to the end of the text.
func TrimExtraText(text string) string {
	start := strings.IndexAny(text, "{[")
	if start == -1 {
		return text
	}
	open := text[start]
	closing := byte('}')
	if open == '[' {
		closing = ']'
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == open:
			depth++
		case c == closing:
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return text[start:]
}

var unquotedKeyRe = regexp.MustCompile(`([{,])\s*([a-zA-Z_][a-zA-Z0-9_]*)\s*:`)

// QuoteKeys wraps bare identifier keys in double quotes: {key: 1} becomes
// {"key": 1}.
//
// Precondition: a key is an identifier directly after { or , and before :.
func QuoteKeys(text string) string {
	return unquotedKeyRe.ReplaceAllString(text, `$1"$2":`)
}

var trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)

// RemoveTrailingCommas drops a comma that directly precedes a closing brace
// or bracket.
func RemoveTrailingCommas(text string) string {
	return trailingCommaRe.ReplaceAllString(text, "$1")
}

// ReplaceSingleQuotes converts single-quote string delimiters to double
// quotes.
//
// Precondition: the text contains a single quote and no double quote
// appears before the first one, so single quotes are the delimiter style.
// Double quotes found inside a single-quoted string are escaped.
func ReplaceSingleQuotes(text string) string {
	first := strings.IndexByte(text, '\'')
	if first == -1 || strings.Contains(text[:first], `"`) {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))
	inSingle, inDouble := false, false
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case c == '"' && inSingle:
			b.WriteString(`\"`)
		case c == '"':
			inDouble = !inDouble
			b.WriteByte(c)
		case c == '\'' && !inDouble:
			inSingle = !inSingle
			b.WriteByte('"')
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// EscapeInnerQuotes escapes double quotes that sit inside a string value but
// are not its closing delimiter.
//
// Precondition: strings open after one of { [ , : (ignoring whitespace). A
// quote inside a string closes it only when the next non-space character is
// one of , } ] : or the end of input; any other quote is escaped.
func EscapeInnerQuotes(text string) string {
	var b strings.Builder
	b.Grow(len(text) + 8)
	inString := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c == '\\' && inString && i+1 < len(text) {
			b.WriteByte(c)
			b.WriteByte(text[i+1])
			i++
			continue
		}
		if c != '"' {
			b.WriteByte(c)
			continue
		}
		if !inString {
			inString = true
			b.WriteByte(c)
			continue
		}
		next := nextNonSpace(text, i+1)
		if next == 0 || strings.IndexByte(",}]:", next) >= 0 {
			inString = false
			b.WriteByte(c)
			continue
		}
		b.WriteString(`\"`)
	}
	return b.String()
}

func nextNonSpace(text string, from int) byte {
	for i := from; i < len(text); i++ {
		switch text[i] {
		case ' ', '\t', '\n', '\r':
			continue
		default:
			return text[i]
		}
	}
	return 0
}

var codeBlockPatterns = []*regexp.Regexp{
	regexp.MustCompile("(?s)```json\\s*(.+?)\\s*```"),
	regexp.MustCompile("(?s)```\\s*(.+?)\\s*```"),
	regexp.MustCompile(`(?s)(\{.*\})`),
}

// ExtractCodeBlock pulls JSON out of a fenced code block, trying ```json
// fences, then bare ``` fences, then the outermost {...} span.
//
// Acceptance: the first candidate that parses is returned. Without one the
// input is returned unchanged.
func ExtractCodeBlock(text string) string {
	for _, re := range codeBlockPatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if json.Valid([]byte(m[1])) {
				return m[1]
			}
		}
	}
	return text
}

// BalanceBrackets closes every brace and bracket left open, innermost first,
// and terminates an unclosed trailing string. Characters inside strings are
// not counted.
func BalanceBrackets(text string) string {
	var open []byte
	inString := false
	escaped := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{' || c == '[':
			open = append(open, c)
		case (c == '}' || c == ']') && len(open) > 0:
			open = open[:len(open)-1]
		}
	}
	if len(open) == 0 && !inString {
		return text
	}

	var b strings.Builder
	b.WriteString(text)
	if inString {
		b.WriteByte('"')
	}
	for i := len(open) - 1; i >= 0; i-- {
		if open[i] == '{' {
			b.WriteByte('}')
		} else {
			b.WriteByte(']')
		}
	}
	return b.String()
}

// Combined chains the structural fixes for output that breaks several rules
// at once, such as prose around a truncated object with a trailing comma.
func Combined(text string) string {
	out := ExtractCodeBlock(text)
	out = TrimExtraText(out)
	out = QuoteKeys(out)
	out = RemoveTrailingCommas(out)
	out = BalanceBrackets(out)
	return RemoveTrailingCommas(out)
}

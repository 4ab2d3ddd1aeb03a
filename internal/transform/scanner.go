package transform

import "strings"

// tokenSkipper walks source text skipping over string/template literals and
// comments so the rest of the transform can scan for keywords with simple
// substring/rune checks instead of a full grammar. This mirrors spec.md
// §4.3's "Fast" strategy description ("textual scanning only... via a
// tokenizer; no AST") and is reused as the basis the Standard/Enhanced
// strategies build their lightweight structural passes on top of.
type tokenSkipper struct {
	src []byte
	pos int
}

func newTokenSkipper(src []byte) *tokenSkipper {
	return &tokenSkipper{src: src}
}

// skipTrivia advances past whitespace, line comments, block comments, and
// string/template literals starting at s.pos, and reports whether it moved.
// A '...' or "..." literal is never merged with other trivia: a run stops
// before one, and a run that starts with one ends right after it.
func (s *tokenSkipper) skipTrivia() bool {
	start := s.pos
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			s.pos++
		case c == '/' && s.pos+1 < len(s.src) && s.src[s.pos+1] == '/':
			for s.pos < len(s.src) && s.src[s.pos] != '\n' {
				s.pos++
			}
		case c == '/' && s.pos+1 < len(s.src) && s.src[s.pos+1] == '*':
			s.pos += 2
			for s.pos+1 < len(s.src) && !(s.src[s.pos] == '*' && s.src[s.pos+1] == '/') {
				s.pos++
			}
			s.pos += 2
			if s.pos > len(s.src) {
				s.pos = len(s.src)
			}
		case c == '\'' || c == '"':
			if s.pos != start {
				return true
			}
			s.pos = skipQuoted(s.src, s.pos, c)
			return true
		case c == '`':
			s.pos = skipTemplate(s.src, s.pos)
		default:
			return s.pos != start
		}
	}
	return s.pos != start
}

func skipQuoted(src []byte, pos int, quote byte) int {
	pos++ // past opening quote
	for pos < len(src) {
		if src[pos] == '\\' {
			pos += 2
			continue
		}
		if src[pos] == quote {
			return pos + 1
		}
		pos++
	}
	return pos
}

// skipTemplate skips a template literal, including ${...} interpolations
// which may themselves contain nested templates/strings (handled by
// recursing into skipTrivia-equivalent logic for braces).
func skipTemplate(src []byte, pos int) int {
	pos++ // past opening backtick
	depth := 0
	for pos < len(src) {
		c := src[pos]
		if c == '\\' {
			pos += 2
			continue
		}
		if c == '`' && depth == 0 {
			return pos + 1
		}
		if c == '$' && pos+1 < len(src) && src[pos+1] == '{' {
			depth++
			pos += 2
			continue
		}
		if c == '}' && depth > 0 {
			depth--
			pos++
			continue
		}
		if depth > 0 {
			if c == '\'' || c == '"' {
				pos = skipQuoted(src, pos, c)
				continue
			}
			if c == '`' {
				pos = skipTemplate(src, pos)
				continue
			}
		}
		pos++
	}
	return pos
}

// stripStringsAndComments returns a same-length copy of src with the
// contents of strings/comments blanked out (spaces, newlines preserved) so
// keyword scanning never matches inside a literal or comment, while byte
// offsets remain valid for diagnostics. The quote characters around a '...'
// or "..." literal are kept, so a pattern can still match a quoted
// specifier and read its text from src at the same offsets.
func stripStringsAndComments(src []byte) []byte {
	out := make([]byte, len(src))
	copy(out, src)
	s := newTokenSkipper(src)
	for s.pos < len(src) {
		before := s.pos
		if s.skipTrivia() {
			for i := before; i < s.pos; i++ {
				if out[i] != '\n' {
					out[i] = ' '
				}
			}
			if q := src[before]; q == '\'' || q == '"' {
				out[before] = q
				if s.pos-1 > before && src[s.pos-1] == q {
					out[s.pos-1] = q
				}
			}
			continue
		}
		s.pos++
	}
	return out
}

// lineColumn converts a 0-based byte offset to a 1-based line and 0-based
// column, plus the full text of that line, for logger.Location.
func lineColumn(src []byte, offset int) (line, col int, lineText string) {
	line = 1
	lineStart := 0
	for i := 0; i < offset && i < len(src); i++ {
		if src[i] == '\n' {
			line++
			lineStart = i + 1
		}
	}
	col = offset - lineStart
	end := lineStart
	for end < len(src) && src[end] != '\n' {
		end++
	}
	lineText = string(src[lineStart:end])
	return
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

// wordAt reports whether src contains the identifier word (not a substring of
// a longer identifier) at byte offset i.
func wordAt(src []byte, i int, word string) bool {
	if i+len(word) > len(src) || string(src[i:i+len(word)]) != word {
		return false
	}
	if i > 0 && isIdentPart(src[i-1]) {
		return false
	}
	end := i + len(word)
	if end < len(src) && isIdentPart(src[end]) {
		return false
	}
	return true
}

func trimQuotes(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

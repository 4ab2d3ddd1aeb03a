package transform

import (
	"strings"

	"github.com/bcentdev/soku/internal/logger"
)

// lowerJSX implements the Enhanced strategy's JSX/TSX lowering from spec.md
// §4.3: "<Tag a={b}>c</Tag>" -> "createElement(Tag, {a: b}, \"c\")",
// fragments -> "createElement(Fragment, null, ...)", multi-line JSX
// supported.
func lowerJSX(path string, code string, opts Options) (string, []logger.Msg) {
	factory := opts.JSXFactory
	if factory == "" {
		factory = "createElement"
	}
	fragment := opts.JSXFragment
	if fragment == "" {
		fragment = "Fragment"
	}

	p := &jsxParser{src: code, factory: factory, fragment: fragment, path: path}
	var out strings.Builder
	i := 0
	for i < len(code) {
		start := findJSXStart(code, i)
		if start < 0 {
			out.WriteString(code[i:])
			break
		}
		out.WriteString(code[i:start])
		p.pos = start
		lowered, next, ok := p.parseElement()
		if !ok {
			// Not actually JSX (e.g. a comparison operator); emit the '<' and
			// continue scanning right after it.
			out.WriteString(code[start : start+1])
			i = start + 1
			continue
		}
		out.WriteString(lowered)
		i = next
	}
	return out.String(), p.diags
}

// findJSXStart locates the next plausible JSX opening: a '<' immediately
// followed by an identifier start or '>' (fragment), outside of strings and
// comments, and in a position where '<' is not a comparison/generic operator
// (preceded by an identifier, ')', ']', or a numeric literal suggests
// comparison; preceded by '(', ',', '=', 'return', '&&', '?', ':', or start of
// input suggests an expression position where JSX is valid).
func findJSXStart(code string, from int) int {
	scan := stripStringsAndComments([]byte(code))
	for i := from; i < len(scan); i++ {
		if scan[i] != '<' {
			continue
		}
		if i+1 >= len(scan) {
			continue
		}
		next := scan[i+1]
		if !(isIdentStart(next) || next == '>') {
			continue
		}
		if isExpressionPosition(scan, i) {
			return i
		}
	}
	return -1
}

func isExpressionPosition(scan []byte, i int) bool {
	j := i - 1
	for j >= 0 && (scan[j] == ' ' || scan[j] == '\t' || scan[j] == '\n' || scan[j] == '\r') {
		j--
	}
	if j < 0 {
		return true
	}
	switch scan[j] {
	case '(', ',', '=', '&', '|', '?', ':', '[', '{', '!':
		return true
	case '>':
		// "=> <JSX"
		return j > 0 && scan[j-1] == '='
	}
	// "return <JSX"
	if wordEndsAt(scan, j, "return") {
		return true
	}
	return false
}

func wordEndsAt(scan []byte, end int, word string) bool {
	start := end - len(word) + 1
	if start < 0 {
		return false
	}
	if string(scan[start:end+1]) != word {
		return false
	}
	if start > 0 && isIdentPart(scan[start-1]) {
		return false
	}
	return true
}

type jsxParser struct {
	src      string
	pos      int
	factory  string
	fragment string
	path     string
	diags    []logger.Msg
}

// parseElement parses one JSX element (or fragment) starting at p.pos == '<'
// and returns its lowered factory-call form, the position just past the
// element, and whether parsing succeeded.
func (p *jsxParser) parseElement() (string, int, bool) {
	start := p.pos
	if p.pos >= len(p.src) || p.src[p.pos] != '<' {
		return "", start, false
	}
	p.pos++

	if p.pos < len(p.src) && p.src[p.pos] == '>' {
		// Fragment: <>...</>
		p.pos++
		children, ok := p.parseChildren("")
		if !ok {
			p.pos = start
			return "", start, false
		}
		return p.factory + "(" + p.fragment + ", null" + children + ")", p.pos, true
	}

	tagStart := p.pos
	for p.pos < len(p.src) && (isIdentPart(p.src[p.pos]) || p.src[p.pos] == '.' || p.src[p.pos] == '-') {
		p.pos++
	}
	if p.pos == tagStart {
		p.pos = start
		return "", start, false
	}
	tag := p.src[tagStart:p.pos]
	tagExpr := tag
	if isLowerFirst(tag) && !strings.Contains(tag, ".") {
		tagExpr = "\"" + tag + "\""
	}

	attrs, selfClosing, ok := p.parseAttrs()
	if !ok {
		p.pos = start
		return "", start, false
	}

	if selfClosing {
		return p.factory + "(" + tagExpr + ", " + attrs + ")", p.pos, true
	}

	children, ok := p.parseChildren(tag)
	if !ok {
		p.pos = start
		return "", start, false
	}
	return p.factory + "(" + tagExpr + ", " + attrs + children + ")", p.pos, true
}

func isLowerFirst(s string) bool {
	return s != "" && s[0] >= 'a' && s[0] <= 'z'
}

// parseAttrs parses the attribute list up to '>' or '/>' and returns a Go
// JavaScript expression for the props object (or "null"), whether it was
// self-closing, and success.
func (p *jsxParser) parseAttrs() (string, bool, bool) {
	var attrs []string
	spreads := []string{}
	for {
		p.skipJSXSpace()
		if p.pos >= len(p.src) {
			return "", false, false
		}
		if p.src[p.pos] == '/' && p.pos+1 < len(p.src) && p.src[p.pos+1] == '>' {
			p.pos += 2
			return buildPropsExpr(attrs, spreads), true, true
		}
		if p.src[p.pos] == '>' {
			p.pos++
			return buildPropsExpr(attrs, spreads), false, true
		}
		if p.src[p.pos] == '{' {
			// spread attribute {...expr}
			end := matchBrace(p.src, p.pos)
			inner := strings.TrimSpace(p.src[p.pos+1 : end-1])
			inner = strings.TrimPrefix(inner, "...")
			spreads = append(spreads, inner)
			p.pos = end
			continue
		}
		nameStart := p.pos
		for p.pos < len(p.src) && (isIdentPart(p.src[p.pos]) || p.src[p.pos] == '-') {
			p.pos++
		}
		if p.pos == nameStart {
			return "", false, false
		}
		name := p.src[nameStart:p.pos]
		p.skipJSXSpace()
		if p.pos < len(p.src) && p.src[p.pos] == '=' {
			p.pos++
			p.skipJSXSpace()
			switch {
			case p.pos < len(p.src) && p.src[p.pos] == '{':
				end := matchBrace(p.src, p.pos)
				val := strings.TrimSpace(p.src[p.pos+1 : end-1])
				attrs = append(attrs, jsIdentOrString(name)+": "+val)
				p.pos = end
			case p.pos < len(p.src) && (p.src[p.pos] == '"' || p.src[p.pos] == '\''):
				quote := p.src[p.pos]
				end := skipQuoted([]byte(p.src), p.pos, quote)
				attrs = append(attrs, jsIdentOrString(name)+": "+p.src[p.pos:end])
				p.pos = end
			default:
				return "", false, false
			}
		} else {
			attrs = append(attrs, jsIdentOrString(name)+": true")
		}
	}
}

func jsIdentOrString(name string) string {
	if strings.Contains(name, "-") {
		return "\"" + name + "\""
	}
	return name
}

func buildPropsExpr(attrs, spreads []string) string {
	if len(attrs) == 0 && len(spreads) == 0 {
		return "null"
	}
	var sb strings.Builder
	sb.WriteString("{")
	first := true
	for _, s := range spreads {
		if !first {
			sb.WriteString(", ")
		}
		sb.WriteString("..." + s)
		first = false
	}
	for _, a := range attrs {
		if !first {
			sb.WriteString(", ")
		}
		sb.WriteString(a)
		first = false
	}
	sb.WriteString("}")
	return sb.String()
}

func matchBrace(src string, open int) int {
	depth := 0
	i := open
	for i < len(src) {
		switch src[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1
			}
		case '\'', '"':
			i = skipQuoted([]byte(src), i, src[i])
			continue
		case '`':
			i = skipTemplate([]byte(src), i)
			continue
		}
		i++
	}
	return i
}

func (p *jsxParser) skipJSXSpace() {
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			p.pos++
			continue
		}
		break
	}
}

// parseChildren parses text, {expr}, and nested elements until the matching
// closing tag (or "</>"" for a fragment) and returns the lowered
// ", child1, child2" suffix.
func (p *jsxParser) parseChildren(tag string) (string, bool) {
	var children []string
	var textBuf strings.Builder

	flushText := func() {
		text := textBuf.String()
		textBuf.Reset()
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			return
		}
		collapsed := strings.Join(strings.Fields(trimmed), " ")
		children = append(children, "\""+escapeJS(collapsed)+"\"")
	}

	for {
		if p.pos >= len(p.src) {
			return "", false
		}
		if p.src[p.pos] == '<' && p.pos+1 < len(p.src) && p.src[p.pos+1] == '/' {
			flushText()
			closeStart := p.pos
			p.pos += 2
			closeTagStart := p.pos
			for p.pos < len(p.src) && p.src[p.pos] != '>' {
				p.pos++
			}
			closeTag := strings.TrimSpace(p.src[closeTagStart:p.pos])
			if closeTag != tag {
				p.pos = closeStart
				return "", false
			}
			p.pos++ // past '>'
			var sb strings.Builder
			for _, c := range children {
				sb.WriteString(", " + c)
			}
			return sb.String(), true
		}
		if p.src[p.pos] == '<' {
			flushText()
			lowered, next, ok := p.parseElement()
			if !ok {
				return "", false
			}
			children = append(children, lowered)
			p.pos = next
			continue
		}
		if p.src[p.pos] == '{' {
			flushText()
			end := matchBrace(p.src, p.pos)
			inner := strings.TrimSpace(p.src[p.pos+1 : end-1])
			if inner != "" {
				children = append(children, inner)
			}
			p.pos = end
			continue
		}
		textBuf.WriteByte(p.src[p.pos])
		p.pos++
	}
}

func escapeJS(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	return s
}

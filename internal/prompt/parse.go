package prompt

import "strings"

// segment is either literal text or a placeholder reference.
type segment struct {
	text     string
	variable bool
}

// parse splits content into literal and placeholder segments.
//
// A placeholder is {name} where name is an identifier ([A-Za-z_][A-Za-z0-9_]*).
// "{{" and "}}" produce a literal brace. Anything else between braces, and any
// unmatched brace, is kept as literal text.
func parse(content string) []segment {
	var (
		segs []segment
		lit  strings.Builder
	)
	flush := func() {
		if lit.Len() > 0 {
			segs = append(segs, segment{text: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(content); {
		c := content[i]
		switch {
		case c == '{' && i+1 < len(content) && content[i+1] == '{':
			lit.WriteByte('{')
			i += 2
		case c == '}' && i+1 < len(content) && content[i+1] == '}':
			lit.WriteByte('}')
			i += 2
		case c == '{':
			end := strings.IndexByte(content[i+1:], '}')
			if end < 0 {
				lit.WriteString(content[i:])
				i = len(content)
				continue
			}
			name := content[i+1 : i+1+end]
			if !isIdentifier(name) {
				lit.WriteByte('{')
				i++
				continue
			}
			flush()
			segs = append(segs, segment{text: name, variable: true})
			i += end + 2
		default:
			lit.WriteByte(c)
			i++
		}
	}
	flush()
	return segs
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// variables returns placeholder names in order of first appearance.
func variables(content string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, s := range parse(content) {
		if s.variable && !seen[s.text] {
			seen[s.text] = true
			names = append(names, s.text)
		}
	}
	return names
}

package document

import (
	"strings"
)

// ContentText pulls the shown strings out of a decoded PDF content stream.
// String operands of Tj, TJ, ' and " are emitted; text positioning
// operators that move to a new line start a new output line. Font encodings
// are not resolved, so only simple (WinAnsi/standard) fonts read correctly.
func ContentText(content []byte) string {
	var (
		out     strings.Builder
		line    strings.Builder
		pending []string
	)

	flushLine := func() {
		if s := strings.TrimSpace(line.String()); s != "" {
			out.WriteString(s)
			out.WriteString("\n")
		}
		line.Reset()
	}

	s := string(content)
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '(':
			str, next := readLiteral(s, i)
			pending = append(pending, str)
			i = next
		case c == '<' && i+1 < len(s) && s[i+1] != '<':
			str, next := readHex(s, i)
			pending = append(pending, str)
			i = next
		case c == '[' || c == ']':
			i++
		case c == '%':
			for i < len(s) && s[i] != '\n' && s[i] != '\r' {
				i++
			}
		case isSpace(c):
			i++
		default:
			start := i
			for i < len(s) && !isSpace(s[i]) && !isDelimiter(s[i]) {
				i++
			}
			if i == start {
				i++
				continue
			}
			switch op := s[start:i]; op {
			case "Tj", "TJ":
				line.WriteString(strings.Join(pending, ""))
				pending = pending[:0]
			case "'", "\"":
				flushLine()
				line.WriteString(strings.Join(pending, ""))
				pending = pending[:0]
			case "Td", "TD", "T*", "Tm", "ET":
				flushLine()
			default:
				if isNumber(op) {
					// A large negative kerning inside TJ reads as a space.
					if len(pending) > 0 && strings.HasPrefix(op, "-") && len(op) > 3 {
						pending = append(pending, " ")
					}
					continue
				}
				pending = pending[:0]
			}
		}
	}
	flushLine()
	return out.String()
}

func readLiteral(s string, i int) (string, int) {
	var b strings.Builder
	depth := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == '\\' && i+1 < len(s):
			i++
			switch e := s[i]; e {
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			case 't':
				b.WriteByte('\t')
			case 'b', 'f':
			case '\r', '\n':
			default:
				if e >= '0' && e <= '7' {
					v, n := 0, 0
					for n < 3 && i < len(s) && s[i] >= '0' && s[i] <= '7' {
						v = v*8 + int(s[i]-'0')
						i++
						n++
					}
					b.WriteRune(rune(v))
					continue
				}
				b.WriteByte(e)
			}
			i++
		case c == '(':
			depth++
			if depth > 1 {
				b.WriteByte(c)
			}
			i++
		case c == ')':
			depth--
			i++
			if depth == 0 {
				return b.String(), i
			}
			b.WriteByte(c)
		default:
			b.WriteRune(rune(c))
			i++
		}
	}
	return b.String(), i
}

func readHex(s string, i int) (string, int) {
	i++
	var digits []byte
	for i < len(s) && s[i] != '>' {
		if h := s[i]; (h >= '0' && h <= '9') || (h >= 'a' && h <= 'f') || (h >= 'A' && h <= 'F') {
			digits = append(digits, h)
		}
		i++
	}
	if i < len(s) {
		i++
	}
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	var b strings.Builder
	for j := 0; j+1 < len(digits); j += 2 {
		b.WriteRune(rune(hexVal(digits[j])<<4 | hexVal(digits[j+1])))
	}
	return b.String(), i
}

func hexVal(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t' || c == '\f' || c == 0
}

func isDelimiter(c byte) bool {
	return c == '(' || c == ')' || c == '<' || c == '>' || c == '[' || c == ']' || c == '{' || c == '}' || c == '/' || c == '%'
}

func isNumber(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && c != '.' && c != '-' && c != '+' {
			return false
		}
	}
	return true
}

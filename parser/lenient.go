package parser

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf16"
	"unicode/utf8"
)

// ParseLenient parses a JSON superset as models tend to write it:
//
//   - object keys may be unquoted identifiers
//   - trailing commas are allowed in objects and arrays
//   - strings may use ", ' or ` quotes; three or more repeated quotes open a
//     raw multi-quote literal closed by the same run ("""...""")
//   - // line and /* block */ comments are skipped
//   - bare words other than true/false/null are read as strings
//
// Numbers decode to float64, objects to map[string]any and arrays to []any,
// matching encoding/json.
func ParseLenient(s string) (any, error) {
	l := &lenientParser{src: s}
	l.skipSpace()
	v, err := l.value()
	if err != nil {
		return nil, err
	}
	l.skipSpace()
	if l.pos < len(l.src) {
		return nil, l.errorf("unexpected trailing %q", l.peekRune())
	}
	return v, nil
}

// ParseLenientArgs parses a tool argument payload. An empty payload is an
// empty object; any other non-object value is an error.
func ParseLenientArgs(s string) (map[string]any, error) {
	if strings.TrimSpace(s) == "" {
		return map[string]any{}, nil
	}
	v, err := ParseLenient(s)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("arguments must be an object, got %T", v)
	}
	return obj, nil
}

type lenientParser struct {
	src string
	pos int
}

func (l *lenientParser) errorf(format string, args ...any) error {
	return fmt.Errorf("invalid arguments at offset %d: %s", l.pos, fmt.Sprintf(format, args...))
}

func (l *lenientParser) peekRune() rune {
	r, _ := utf8.DecodeRuneInString(l.src[l.pos:])
	return r
}

func (l *lenientParser) skipSpace() {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			l.pos++
		case strings.HasPrefix(l.src[l.pos:], "//"):
			end := strings.IndexByte(l.src[l.pos:], '\n')
			if end < 0 {
				l.pos = len(l.src)
				return
			}
			l.pos += end + 1
		case strings.HasPrefix(l.src[l.pos:], "/*"):
			end := strings.Index(l.src[l.pos+2:], "*/")
			if end < 0 {
				l.pos = len(l.src)
				return
			}
			l.pos += end + 4
		default:
			return
		}
	}
}

func (l *lenientParser) value() (any, error) {
	if l.pos >= len(l.src) {
		return nil, l.errorf("unexpected end of input")
	}
	switch c := l.src[l.pos]; {
	case c == '{':
		return l.object()
	case c == '[':
		return l.array()
	case c == '"' || c == '\'' || c == '`':
		return l.str()
	case c == '-' || c == '+' || c == '.' || (c >= '0' && c <= '9'):
		return l.number()
	case isIdentStart(rune(c)):
		return l.word(), nil
	default:
		return nil, l.errorf("unexpected %q", l.peekRune())
	}
}

func (l *lenientParser) object() (any, error) {
	l.pos++ // {
	obj := map[string]any{}
	for {
		l.skipSpace()
		if l.pos >= len(l.src) {
			return nil, l.errorf("unterminated object")
		}
		if l.src[l.pos] == '}' {
			l.pos++
			return obj, nil
		}

		key, err := l.key()
		if err != nil {
			return nil, err
		}
		l.skipSpace()
		if l.pos >= len(l.src) || (l.src[l.pos] != ':' && l.src[l.pos] != '=') {
			return nil, l.errorf("expected ':' after key %q", key)
		}
		l.pos++
		l.skipSpace()
		v, err := l.value()
		if err != nil {
			return nil, err
		}
		obj[key] = v

		l.skipSpace()
		if l.pos < len(l.src) && l.src[l.pos] == ',' {
			l.pos++
			continue
		}
		if l.pos < len(l.src) && l.src[l.pos] == '}' {
			continue
		}
		return nil, l.errorf("expected ',' or '}' in object")
	}
}

func (l *lenientParser) key() (string, error) {
	c := l.src[l.pos]
	if c == '"' || c == '\'' || c == '`' {
		return l.str()
	}
	if !isIdentStart(rune(c)) {
		return "", l.errorf("unexpected %q where a key was expected", l.peekRune())
	}
	start := l.pos
	l.ident()
	return l.src[start:l.pos], nil
}

func (l *lenientParser) array() (any, error) {
	l.pos++ // [
	arr := []any{}
	for {
		l.skipSpace()
		if l.pos >= len(l.src) {
			return nil, l.errorf("unterminated array")
		}
		if l.src[l.pos] == ']' {
			l.pos++
			return arr, nil
		}
		v, err := l.value()
		if err != nil {
			return nil, err
		}
		arr = append(arr, v)

		l.skipSpace()
		if l.pos < len(l.src) && l.src[l.pos] == ',' {
			l.pos++
			continue
		}
		if l.pos < len(l.src) && l.src[l.pos] == ']' {
			continue
		}
		return nil, l.errorf("expected ',' or ']' in array")
	}
}

func (l *lenientParser) str() (string, error) {
	quote := l.src[l.pos]
	run := 0
	for l.pos+run < len(l.src) && l.src[l.pos+run] == quote {
		run++
	}

	if run >= 3 {
		delim := strings.Repeat(string(quote), run)
		start := l.pos + run
		end := strings.Index(l.src[start:], delim)
		if end < 0 {
			return "", l.errorf("unterminated %s string", delim)
		}
		l.pos = start + end + run
		return l.src[start : start+end], nil
	}
	if run == 2 {
		l.pos += 2
		return "", nil
	}

	l.pos++
	var sb strings.Builder
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == quote:
			l.pos++
			return sb.String(), nil
		case c == '\\' && l.pos+1 < len(l.src):
			l.pos++
			if err := l.escape(&sb); err != nil {
				return "", err
			}
		default:
			sb.WriteByte(c)
			l.pos++
		}
	}
	return "", l.errorf("unterminated string")
}

func (l *lenientParser) escape(sb *strings.Builder) error {
	c := l.src[l.pos]
	l.pos++
	switch c {
	case 'n':
		sb.WriteByte('\n')
	case 't':
		sb.WriteByte('\t')
	case 'r':
		sb.WriteByte('\r')
	case 'b':
		sb.WriteByte('\b')
	case 'f':
		sb.WriteByte('\f')
	case 'u':
		if l.pos+4 > len(l.src) {
			return l.errorf("short unicode escape")
		}
		code, err := strconv.ParseUint(l.src[l.pos:l.pos+4], 16, 32)
		if err != nil {
			return l.errorf("bad unicode escape %q", l.src[l.pos:l.pos+4])
		}
		l.pos += 4
		r := rune(code)
		if utf16.IsSurrogate(r) {
			r = l.lowSurrogate(r)
		}
		sb.WriteRune(r)
	default:
		// \" \' \\ \/ and unknown escapes keep the escaped character
		sb.WriteByte(c)
	}
	return nil
}

// lowSurrogate completes a UTF-16 pair when a \uDC00-\uDFFF escape follows
// the high half. A lone half decodes to U+FFFD like encoding/json.
func (l *lenientParser) lowSurrogate(high rune) rune {
	if l.pos+6 > len(l.src) || l.src[l.pos] != '\\' || l.src[l.pos+1] != 'u' {
		return utf8.RuneError
	}
	code, err := strconv.ParseUint(l.src[l.pos+2:l.pos+6], 16, 32)
	if err != nil {
		return utf8.RuneError
	}
	r := utf16.DecodeRune(high, rune(code))
	if r == utf8.RuneError {
		return r
	}
	l.pos += 6
	return r
}

func (l *lenientParser) number() (any, error) {
	start := l.pos
	for l.pos < len(l.src) && strings.IndexByte("+-.0123456789eExX_abcdefABCDEF", l.src[l.pos]) >= 0 {
		l.pos++
	}
	text := l.src[start:l.pos]
	f, err := strconv.ParseFloat(strings.TrimPrefix(text, "+"), 64)
	if err != nil {
		if i, ierr := strconv.ParseInt(strings.TrimPrefix(text, "+"), 0, 64); ierr == nil {
			return float64(i), nil
		}
		l.pos = start
		return nil, l.errorf("bad number %q", text)
	}
	return f, nil
}

// ident advances past an identifier.
func (l *lenientParser) ident() {
	for l.pos < len(l.src) {
		r, size := utf8.DecodeRuneInString(l.src[l.pos:])
		if !isIdentPart(r) {
			break
		}
		l.pos += size
	}
}

func (l *lenientParser) word() any {
	start := l.pos
	l.ident()
	switch w := l.src[start:l.pos]; w {
	case "true", "True":
		return true
	case "false", "False":
		return false
	case "null", "None", "nil", "undefined":
		return nil
	default:
		return w
	}
}

func isIdentStart(r rune) bool {
	return r == '_' || r == '$' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || unicode.IsDigit(r) || r == '-' || r == '.'
}

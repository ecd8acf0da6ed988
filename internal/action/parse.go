package action

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// Call is one parsed capability invocation.
type Call struct {
	Verb string
	Args []string
	Line int

	quoted []bool
}

func (c Call) String() string {
	return c.Verb + "(" + strings.Join(c.Args, ", ") + ")"
}

// values converts arguments for schema validation: unquoted numerals become
// numbers, everything else is a string.
func (c Call) values() []any {
	out := make([]any, len(c.Args))
	for i, a := range c.Args {
		if !c.quoted[i] {
			if f, err := strconv.ParseFloat(a, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
				out[i] = f
				continue
			}
		}
		out[i] = a
	}
	return out
}

type statement struct {
	text string
	line int
}

// splitStatements breaks a block on newlines and ';' outside quotes, dropping
// '//' and '#' comments.
func splitStatements(block string) []statement {
	var (
		out     []statement
		cur     strings.Builder
		line    = 1
		start   = 1
		quote   rune
		escaped bool
		comment bool
	)
	flush := func() {
		if t := strings.TrimSpace(cur.String()); t != "" {
			out = append(out, statement{text: t, line: start})
		}
		cur.Reset()
	}
	rs := []rune(block)
	for i := 0; i < len(rs); i++ {
		r := rs[i]
		if r == '\n' {
			comment = false
			if quote == 0 {
				flush()
				line++
				start = line
				continue
			}
			line++
		}
		if comment {
			continue
		}
		if quote != 0 {
			cur.WriteRune(r)
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == quote:
				quote = 0
			}
			continue
		}
		switch {
		case r == '"' || r == '\'':
			quote = r
		case r == '#':
			comment = true
			continue
		case r == '/' && i+1 < len(rs) && rs[i+1] == '/':
			comment = true
			continue
		case r == ';':
			flush()
			start = line
			continue
		}
		if cur.Len() == 0 && strings.TrimSpace(string(r)) == "" {
			start = line
		}
		cur.WriteRune(r)
	}
	flush()
	return out
}

// Parse parses a whole action block. Blank lines and comments are ignored; an
// empty result with a nil error means the block holds no calls.
func Parse(block string) ([]Call, error) {
	var calls []Call
	for _, st := range splitStatements(block) {
		c, err := parseCall(st.text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", st.line, err)
		}
		c.Line = st.line
		calls = append(calls, c)
	}
	return calls, nil
}

func parseCall(s string) (Call, error) {
	s = strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(s, "await "); ok {
		s = strings.TrimSpace(rest)
	}
	rs := []rune(s)
	i := 0
	for i < len(rs) && (rs[i] == '_' || unicode.IsLetter(rs[i]) || (i > 0 && unicode.IsDigit(rs[i]))) {
		i++
	}
	if i == 0 {
		return Call{}, fmt.Errorf("expected a call, got %q", s)
	}
	c := Call{Verb: string(rs[:i])}
	for i < len(rs) && unicode.IsSpace(rs[i]) {
		i++
	}
	if i >= len(rs) || rs[i] != '(' {
		return Call{}, fmt.Errorf("expected '(' after %s", c.Verb)
	}
	i++

	for {
		for i < len(rs) && unicode.IsSpace(rs[i]) {
			i++
		}
		if i >= len(rs) {
			return Call{}, fmt.Errorf("unterminated call %s", c.Verb)
		}
		if rs[i] == ')' && len(c.Args) == 0 {
			i++
			break
		}

		arg, quoted, n, err := scanArg(rs[i:])
		if err != nil {
			return Call{}, fmt.Errorf("%s: %w", c.Verb, err)
		}
		c.Args = append(c.Args, arg)
		c.quoted = append(c.quoted, quoted)
		i += n

		for i < len(rs) && unicode.IsSpace(rs[i]) {
			i++
		}
		if i >= len(rs) {
			return Call{}, fmt.Errorf("unterminated call %s", c.Verb)
		}
		if rs[i] == ',' {
			i++
			continue
		}
		if rs[i] == ')' {
			i++
			break
		}
		return Call{}, fmt.Errorf("%s: unexpected %q in arguments", c.Verb, rs[i])
	}

	if rest := strings.TrimSpace(string(rs[i:])); rest != "" {
		return Call{}, fmt.Errorf("unexpected %q after %s(...)", rest, c.Verb)
	}
	return c, nil
}

// scanArg reads one quoted string or bare word and reports how many runes it used.
func scanArg(rs []rune) (string, bool, int, error) {
	if q := rs[0]; q == '"' || q == '\'' {
		var b strings.Builder
		for i := 1; i < len(rs); i++ {
			switch r := rs[i]; {
			case r == '\\' && i+1 < len(rs):
				i++
				switch rs[i] {
				case 'n':
					b.WriteRune('\n')
				case 't':
					b.WriteRune('\t')
				default:
					b.WriteRune(rs[i])
				}
			case r == q:
				return b.String(), true, i + 1, nil
			default:
				b.WriteRune(r)
			}
		}
		return "", false, 0, fmt.Errorf("unterminated string")
	}

	i := 0
	for i < len(rs) && isBareRune(rs[i]) {
		i++
	}
	if i == 0 {
		return "", false, 0, fmt.Errorf("unexpected %q in arguments", rs[0])
	}
	return string(rs[:i]), false, i, nil
}

func isBareRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' || r == '+' || r == '.'
}

package rules

import (
	"slices"
	"strings"

	"github.com/rotisserie/eris"
)

// parseItemset decodes an item set cell. Accepted forms are the Python repr
// written by the market-basket miner (frozenset({'A', 'B'})), a bare set or
// list literal ({'A'}, ['A', 'B']) and a pipe-separated list (A|B).
// The result is sorted and de-duplicated.
func parseItemset(s string) ([]string, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "frozenset(") && strings.HasSuffix(s, ")") {
		s = strings.TrimSpace(s[len("frozenset(") : len(s)-1])
	}
	if s == "" {
		return nil, nil
	}

	var items []string
	switch {
	case enclosed(s, '{', '}'), enclosed(s, '[', ']'), enclosed(s, '(', ')'):
		var err error
		items, err = splitLiteral(s[1 : len(s)-1])
		if err != nil {
			return nil, eris.Wrapf(err, "rules: parse itemset %q", s)
		}
	default:
		for _, part := range strings.Split(s, "|") {
			if part = strings.TrimSpace(part); part != "" {
				items = append(items, part)
			}
		}
	}

	slices.Sort(items)
	return slices.Compact(items), nil
}

func enclosed(s string, open, closing byte) bool {
	return len(s) >= 2 && s[0] == open && s[len(s)-1] == closing
}

// splitLiteral splits the inside of a Python collection literal into its
// elements. Quoted elements may use either quote character and backslash
// escapes; unquoted elements run to the next comma.
func splitLiteral(s string) ([]string, error) {
	var items []string
	i := 0
	for i < len(s) {
		switch c := s[i]; {
		case c == ' ' || c == '\t' || c == ',':
			i++
		case c == '\'' || c == '"':
			var b strings.Builder
			j := i + 1
			closed := false
			for j < len(s) {
				if s[j] == '\\' && j+1 < len(s) {
					b.WriteByte(unescape(s[j+1]))
					j += 2
					continue
				}
				if s[j] == c {
					closed = true
					j++
					break
				}
				b.WriteByte(s[j])
				j++
			}
			if !closed {
				return nil, eris.New("unterminated quote")
			}
			items = append(items, b.String())
			i = j
		default:
			end := strings.IndexByte(s[i:], ',')
			if end < 0 {
				end = len(s) - i
			}
			if tok := strings.TrimSpace(s[i : i+end]); tok != "" {
				items = append(items, tok)
			}
			i += end
		}
	}
	return items, nil
}

func unescape(c byte) byte {
	switch c {
	case 'n':
		return '\n'
	case 't':
		return '\t'
	default:
		return c
	}
}

// formatItemset renders items the way Python prints a frozenset of strings,
// so files written here load in the original tooling as well.
func formatItemset(items []string) string {
	if len(items) == 0 {
		return "frozenset()"
	}
	quoted := make([]string, len(items))
	for i, item := range items {
		quoted[i] = pyQuote(item)
	}
	return "frozenset({" + strings.Join(quoted, ", ") + "})"
}

func pyQuote(s string) string {
	q := byte('\'')
	if strings.ContainsRune(s, '\'') && !strings.ContainsRune(s, '"') {
		q = '"'
	}
	var b strings.Builder
	b.WriteByte(q)
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '\\' || c == q:
			b.WriteByte('\\')
			b.WriteByte(c)
		case c == '\n':
			b.WriteString(`\n`)
		case c == '\t':
			b.WriteString(`\t`)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte(q)
	return b.String()
}

package rip_stream

import (
	"fmt"
	"regexp"
	"strings"
)

// Placeholder syntax follows the format strings users already write for the original tool: "{}" or "{:03d}".
var placeholderSpec = regexp.MustCompile(`^0?(?::(0?)([0-9]*)(d?))?$`)

// A Template is a URL pattern with exactly one substitution slot for the segment index.
type Template struct {
	raw    string
	prefix string
	suffix string
	verb   string
}

// ParseTemplate validates s and returns a Template. Any problem is returned as a *ConfigurationError.
func ParseTemplate(s string) (*Template, error) {
	var (
		before, after strings.Builder
		field         string
		fields        int
	)
	out := &before
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '{' && i+1 < len(s) && s[i+1] == '{':
			out.WriteByte('{')
			i++
		case c == '}' && i+1 < len(s) && s[i+1] == '}':
			out.WriteByte('}')
			i++
		case c == '{':
			end := strings.IndexByte(s[i:], '}')
			if end < 0 {
				return nil, configError("url_template", "unterminated placeholder in %q", s)
			}
			fields++
			if fields > 1 {
				return nil, configError("url_template", "more than one placeholder in %q", s)
			}
			field = s[i+1 : i+end]
			i += end
			out = &after
		case c == '}':
			return nil, configError("url_template", "single '}' in %q (use '}}' for a literal brace)", s)
		default:
			out.WriteByte(c)
		}
	}
	if fields == 0 {
		return nil, configError("url_template", "no placeholder in %q (use {} or {:05d})", s)
	}
	if strings.Contains(field, ".") {
		return nil, configError("url_template", "placeholder {%s} cannot contain a '.'", field)
	}
	m := placeholderSpec.FindStringSubmatch(field)
	if m == nil {
		return nil, configError("url_template", "unsupported placeholder {%s}", field)
	}
	return &Template{
		raw:    s,
		prefix: before.String(),
		suffix: after.String(),
		verb:   "%" + m[1] + m[2] + "d",
	}, nil
}

// MustParseTemplate is like ParseTemplate but panics on error.
func MustParseTemplate(s string) *Template {
	t, err := ParseTemplate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *Template) String() string {
	return t.raw
}

// URL substitutes index into the template.
func (t *Template) URL(index int) string {
	var b strings.Builder
	b.WriteString(t.prefix)
	fmt.Fprintf(&b, t.verb, index)
	b.WriteString(t.suffix)
	return b.String()
}

// Enumerate returns an unbounded sequence of requests starting at first.
func (t *Template) Enumerate(first int) *Enumerator {
	return &Enumerator{template: t, next: first}
}

// Enumerator lazily produces SegmentRequest values with strictly increasing indexes.
type Enumerator struct {
	template *Template
	next     int
}

func (e *Enumerator) Next() SegmentRequest {
	req := SegmentRequest{Index: e.next, URL: e.template.URL(e.next)}
	e.next++
	return req
}

// Peek returns the index the next call to Next will produce.
func (e *Enumerator) Peek() int {
	return e.next
}

package servicemsg

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const (
	prefix = "##teamcity["
	suffix = "]"
)

// Message is a parsed service message frame.
type Message struct {
	Name string
	// Value holds the single unnamed argument of a frame like ##teamcity[name 'value'].
	Value string
	Attrs map[string]string
	Raw   string
}

// Attr returns the named attribute, or "" when it is absent.
func (m Message) Attr(key string) string {
	return m.Attrs[key]
}

// FlowID returns the flowId attribute.
func (m Message) FlowID() string {
	return m.Attrs["flowId"]
}

// Parse parses a single frame such as ##teamcity[testStarted name='a' flowId='1'].
// Leading and trailing text around the frame is not allowed.
func Parse(raw string) (Message, error) {
	if !strings.HasPrefix(raw, prefix) || !strings.HasSuffix(raw, suffix) {
		return Message{}, &MalformedError{Text: raw, Reason: "missing ##teamcity[ ... ] frame"}
	}
	body := raw[len(prefix) : len(raw)-len(suffix)]

	p := &parser{src: body}
	msg := Message{Raw: raw, Attrs: make(map[string]string)}

	msg.Name = p.ident()
	if msg.Name == "" {
		return Message{}, &MalformedError{Text: raw, Reason: "missing message name"}
	}
	p.spaces()
	if p.done() {
		return msg, nil
	}

	if p.peek() == '\'' {
		v, err := p.quoted()
		if err != nil {
			return Message{}, &MalformedError{Text: raw, Reason: err.Error()}
		}
		msg.Value = v
		p.spaces()
		if !p.done() {
			return Message{}, &MalformedError{Text: raw, Reason: "unexpected text after value"}
		}
		return msg, nil
	}

	for !p.done() {
		key := p.ident()
		if key == "" {
			return Message{}, &MalformedError{Text: raw, Reason: fmt.Sprintf("expected attribute name at offset %d", p.pos)}
		}
		p.spaces()
		if p.done() || p.peek() != '=' {
			return Message{}, &MalformedError{Text: raw, Reason: fmt.Sprintf("expected '=' after %q", key)}
		}
		p.pos++
		p.spaces()
		v, err := p.quoted()
		if err != nil {
			return Message{}, &MalformedError{Text: raw, Reason: err.Error()}
		}
		msg.Attrs[key] = v
		p.spaces()
	}
	return msg, nil
}

type parser struct {
	src string
	pos int
}

func (p *parser) done() bool { return p.pos >= len(p.src) }

func (p *parser) peek() byte { return p.src[p.pos] }

func (p *parser) spaces() {
	for !p.done() && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t') {
		p.pos++
	}
}

func (p *parser) ident() string {
	start := p.pos
	for !p.done() {
		c := p.src[p.pos]
		if c == ' ' || c == '\t' || c == '=' || c == '\'' {
			break
		}
		p.pos++
	}
	return p.src[start:p.pos]
}

// quoted reads a '...' value and returns it unescaped.
func (p *parser) quoted() (string, error) {
	if p.done() || p.peek() != '\'' {
		return "", fmt.Errorf("expected quoted value at offset %d", p.pos)
	}
	p.pos++
	start := p.pos
	for !p.done() {
		switch p.src[p.pos] {
		case '|':
			p.pos += 2
		case '\'':
			v, err := Unescape(p.src[start:p.pos])
			p.pos++
			return v, err
		default:
			p.pos++
		}
	}
	return "", fmt.Errorf("unterminated value starting at offset %d", start-1)
}

// Unescape reverses Escape.
func Unescape(s string) (string, error) {
	if !strings.Contains(s, "|") {
		return s, nil
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '|' {
			b.WriteByte(c)
			continue
		}
		if i+1 >= len(s) {
			return "", fmt.Errorf("dangling escape at end of %q", s)
		}
		i++
		switch s[i] {
		case '\'':
			b.WriteByte('\'')
		case '|':
			b.WriteByte('|')
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case '[':
			b.WriteByte('[')
		case ']':
			b.WriteByte(']')
		case '0':
			if i+6 <= len(s) && s[i+1] == 'x' {
				r, err := strconv.ParseUint(s[i+2:i+6], 16, 32)
				if err != nil {
					return "", fmt.Errorf("bad unicode escape in %q: %w", s, err)
				}
				b.WriteRune(rune(r))
				i += 5
				continue
			}
			return "", fmt.Errorf("bad unicode escape in %q", s)
		default:
			return "", fmt.Errorf("unknown escape |%c in %q", s[i], s)
		}
	}
	return b.String(), nil
}

// Escape escapes s for use inside a quoted value.
func Escape(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '\'':
			b.WriteString("|'")
		case '|':
			b.WriteString("||")
		case '\n':
			b.WriteString("|n")
		case '\r':
			b.WriteString("|r")
		case '[':
			b.WriteString("|[")
		case ']':
			b.WriteString("|]")
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Format builds a frame. Attributes are written in key order, except that "name" comes first
// when present.
func Format(name string, attrs map[string]string) string {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		if k != "name" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if _, ok := attrs["name"]; ok {
		keys = append([]string{"name"}, keys...)
	}

	var b strings.Builder
	b.WriteString(prefix)
	b.WriteString(name)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s='%s'", k, Escape(attrs[k]))
	}
	b.WriteString(suffix)
	return b.String()
}

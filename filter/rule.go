package filter

import (
	"fmt"
	"strings"

	"github.com/standardbeagle/conch/command"
)

// Rule is a parsed subscription rule:
//
//	SELECT field1, field2 FROM 'topic' WHERE condition
//
// Fields empty means SELECT *; Where nil means no condition.
type Rule struct {
	Fields []string
	Topic  string
	Where  Condition
}

// ParseRule parses a SELECT rule. The topic may be quoted (required
// when it contains characters like '/') or a bare identifier. The
// WHERE clause is optional.
func ParseRule(input string) (*Rule, error) {
	p, err := newParser(input)
	if err != nil {
		return nil, err
	}

	if tok := p.peek(); !tok.keyword("select") {
		return nil, p.errAt(tok, fmt.Sprintf("expected SELECT, got %q", tok.text), "select")
	}
	p.advance()

	rule := &Rule{}

	if p.peek().kind == tokStar {
		p.advance()
	} else {
		for {
			tok := p.peek()
			if tok.kind != tokIdent {
				return nil, p.errAt(tok, fmt.Sprintf("expected a field name, got %q", tok.text))
			}
			if tok.keyword("from") {
				return nil, p.errAt(tok, "expected a field list before FROM")
			}
			p.advance()
			rule.Fields = append(rule.Fields, tok.text)
			if p.peek().kind != tokComma {
				break
			}
			p.advance()
		}
	}

	if tok := p.peek(); !tok.keyword("from") {
		return nil, p.errAt(tok, fmt.Sprintf("expected FROM, got %q", tok.text), "from")
	}
	p.advance()

	topicTok := p.peek()
	switch topicTok.kind {
	case tokString, tokIdent:
		rule.Topic = topicTok.text
		p.advance()
	default:
		return nil, p.errAt(topicTok, "expected a topic after FROM")
	}

	if p.peek().keyword("where") {
		p.advance()
		where, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		rule.Where = where
	}

	if err := p.expectEOF(); err != nil {
		if tok := p.peek(); tok.kind == tokIdent {
			return nil, p.errAt(tok, fmt.Sprintf("unexpected %q after topic", tok.text), "where")
		}
		return nil, err
	}
	return rule, nil
}

// MatchesMessage reports whether a message is on the rule's topic and
// satisfies its WHERE condition.
func (r *Rule) MatchesMessage(msg command.Message) bool {
	if r.Topic != "" && r.Topic != MessageTopic(msg) {
		return false
	}
	if r.Where == nil {
		return true
	}
	return r.Where.Match(MessageContext(msg))
}

// Apply trims a map payload down to the rule's selected fields.
// SELECT * and non-map payloads pass through unchanged.
func (r *Rule) Apply(msg command.Message) command.Message {
	if len(r.Fields) == 0 {
		return msg
	}
	payload, ok := msg.Payload.(map[string]any)
	if !ok {
		return msg
	}
	selected := make(map[string]any, len(r.Fields))
	for _, field := range r.Fields {
		if v, ok := payload[field]; ok {
			selected[field] = v
		}
	}
	msg.Payload = selected
	return msg
}

func (r *Rule) String() string {
	fields := "*"
	if len(r.Fields) > 0 {
		fields = strings.Join(r.Fields, ", ")
	}
	s := fmt.Sprintf("SELECT %s FROM '%s'", fields, r.Topic)
	if r.Where != nil {
		s += " WHERE " + r.Where.String()
	}
	return s
}

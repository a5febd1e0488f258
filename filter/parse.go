package filter

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ParseError reports where and why parsing failed, with an optional
// "did you mean" hint when the input looks like a misspelled keyword.
type ParseError struct {
	Pos  int // byte offset in the input
	Msg  string
	Hint string
}

func (e *ParseError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("parse error at position %d: %s (did you mean %q?)", e.Pos, e.Msg, e.Hint)
	}
	return fmt.Sprintf("parse error at position %d: %s", e.Pos, e.Msg)
}

// keywords the hint machinery knows about.
var filterKeywords = []string{
	"select", "from", "where", "and", "or", "not",
	"like", "regex", "between", "interval", "timestamp", "now",
	"true", "false",
}

// ParseFilter parses a bare condition such as
//
//	type = 'data' and (qos = 1 or retained = true)
//	timestamp > now() - interval '5m'
//	level between 3 and 7
//
// OR binds looser than AND; parentheses group; NOT prefixes. Time
// macros (now(), interval arithmetic, timestamp 'HH:MM[:SS]') expand
// to unix-second values at parse time.
func ParseFilter(input string) (Condition, error) {
	p, err := newParser(input)
	if err != nil {
		return nil, err
	}
	cond, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if err := p.expectEOF(); err != nil {
		return nil, err
	}
	return cond, nil
}

type parser struct {
	input  string
	tokens []token
	i      int
	now    time.Time // fixed per parse so macros agree with each other
}

func newParser(input string) (*parser, error) {
	tokens, err := scanAll(input)
	if err != nil {
		return nil, err
	}
	return &parser{input: input, tokens: tokens, now: time.Now()}, nil
}

func (p *parser) peek() token {
	return p.tokens[p.i]
}

func (p *parser) advance() token {
	tok := p.tokens[p.i]
	if tok.kind != tokEOF {
		p.i++
	}
	return tok
}

func (p *parser) errAt(tok token, msg string, hintCandidates ...string) *ParseError {
	e := &ParseError{Pos: tok.pos, Msg: msg}
	if tok.kind == tokIdent {
		e.Hint = keywordHint(tok.text, hintCandidates)
	}
	return e
}

func (p *parser) expectEOF() error {
	if tok := p.peek(); tok.kind != tokEOF {
		return p.errAt(tok, fmt.Sprintf("unexpected %q after condition", tok.text), "and", "or")
	}
	return nil
}

// parseOr := parseAnd (OR parseAnd)*
func (p *parser) parseOr() (Condition, error) {
	first, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	children := []Condition{first}
	for p.peek().keyword("or") {
		p.advance()
		next, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		children = append(children, next)
	}
	if len(children) == 1 {
		return first, nil
	}
	return Or(children...), nil
}

// parseAnd := parseUnary (AND parseUnary)*
func (p *parser) parseAnd() (Condition, error) {
	first, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	children := []Condition{first}
	for p.peek().keyword("and") {
		p.advance()
		next, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		children = append(children, next)
	}
	if len(children) == 1 {
		return first, nil
	}
	return And(children...), nil
}

// parseUnary := NOT parseUnary | primary
func (p *parser) parseUnary() (Condition, error) {
	if p.peek().keyword("not") {
		p.advance()
		child, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return Not(child), nil
	}
	return p.parsePrimary()
}

// parsePrimary := '(' parseOr ')' | predicate
func (p *parser) parsePrimary() (Condition, error) {
	if p.peek().kind == tokLParen {
		p.advance()
		cond, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if tok := p.peek(); tok.kind != tokRParen {
			return nil, p.errAt(tok, "expected closing parenthesis")
		}
		p.advance()
		return cond, nil
	}
	return p.parsePredicate()
}

// parsePredicate := field (op value | [NOT] LIKE str | REGEX str | BETWEEN value AND value)
func (p *parser) parsePredicate() (Condition, error) {
	fieldTok := p.peek()
	if fieldTok.kind != tokIdent {
		return nil, p.errAt(fieldTok, fmt.Sprintf("expected a field name, got %q", fieldTok.text))
	}
	p.advance()
	field := fieldTok.text

	opTok := p.peek()
	switch {
	case opTok.kind == tokOp:
		p.advance()
		value, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		return NewComparison(field, CompareOp(opTok.text), value), nil

	case opTok.keyword("like"):
		p.advance()
		return p.parsePattern(field, OpLike)

	case opTok.keyword("not"):
		p.advance()
		if tok := p.peek(); !tok.keyword("like") {
			return nil, p.errAt(tok, fmt.Sprintf("expected LIKE after NOT, got %q", tok.text), "like")
		}
		p.advance()
		return p.parsePattern(field, OpNotLike)

	case opTok.keyword("regex"):
		p.advance()
		return p.parsePattern(field, OpRegex)

	case opTok.keyword("between"):
		p.advance()
		return p.parseBetween(field)
	}

	return nil, p.errAt(opTok,
		fmt.Sprintf("expected an operator after %q, got %q", field, opTok.text),
		"like", "regex", "between", "not")
}

func (p *parser) parsePattern(field string, op PatternOp) (Condition, error) {
	tok := p.peek()
	if tok.kind != tokString {
		return nil, p.errAt(tok, fmt.Sprintf("%s requires a quoted pattern", op))
	}
	p.advance()
	pattern, err := NewPattern(field, op, tok.text)
	if err != nil {
		return nil, &ParseError{Pos: tok.pos, Msg: fmt.Sprintf("invalid pattern %q: %v", tok.text, err)}
	}
	return pattern, nil
}

// parseBetween desugars "field BETWEEN x AND y" into
// (field >= x AND field <= y).
func (p *parser) parseBetween(field string) (Condition, error) {
	low, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); !tok.keyword("and") {
		return nil, p.errAt(tok, "expected AND in BETWEEN", "and")
	}
	p.advance()
	high, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	return And(
		NewComparison(field, OpGe, low),
		NewComparison(field, OpLe, high),
	), nil
}

// parseValue := number | -number | string | true | false | timeValue
func (p *parser) parseValue() (any, error) {
	tok := p.peek()
	switch {
	case tok.kind == tokNumber:
		p.advance()
		f, err := strconv.ParseFloat(tok.text, 64)
		if err != nil {
			return nil, &ParseError{Pos: tok.pos, Msg: fmt.Sprintf("invalid number %q", tok.text)}
		}
		return f, nil

	case tok.kind == tokMinus:
		p.advance()
		num := p.peek()
		if num.kind != tokNumber {
			return nil, p.errAt(num, "expected a number after \"-\"")
		}
		p.advance()
		f, err := strconv.ParseFloat(num.text, 64)
		if err != nil {
			return nil, &ParseError{Pos: num.pos, Msg: fmt.Sprintf("invalid number %q", num.text)}
		}
		return -f, nil

	case tok.kind == tokString:
		p.advance()
		return tok.text, nil

	case tok.keyword("true"):
		p.advance()
		return true, nil

	case tok.keyword("false"):
		p.advance()
		return false, nil

	case tok.keyword("now"):
		return p.parseNow()

	case tok.keyword("timestamp"):
		return p.parseTimestampLiteral()
	}

	if tok.kind == tokIdent {
		if hint := keywordHint(tok.text, []string{"now", "timestamp", "true", "false"}); hint != "" {
			return nil, &ParseError{Pos: tok.pos, Msg: fmt.Sprintf("expected a value, got %q", tok.text), Hint: hint}
		}
		return nil, &ParseError{Pos: tok.pos, Msg: fmt.Sprintf("expected a value, got %q (strings must be quoted)", tok.text)}
	}
	return nil, p.errAt(tok, fmt.Sprintf("expected a value, got %q", tok.text))
}

// parseNow := now() [('+'|'-') interval 'Nu']
// The macro expands to unix seconds at parse time, matching the
// timestamp field in message records.
func (p *parser) parseNow() (any, error) {
	p.advance() // now
	if tok := p.peek(); tok.kind != tokLParen {
		return nil, p.errAt(tok, "expected () after now")
	}
	p.advance()
	if tok := p.peek(); tok.kind != tokRParen {
		return nil, p.errAt(tok, "expected () after now")
	}
	p.advance()

	at := p.now

	var sign time.Duration
	switch p.peek().kind {
	case tokMinus:
		sign = -1
	case tokPlus:
		sign = 1
	default:
		return float64(at.Unix()), nil
	}
	p.advance()

	if tok := p.peek(); !tok.keyword("interval") {
		return nil, p.errAt(tok, fmt.Sprintf("expected interval, got %q", tok.text), "interval")
	}
	p.advance()

	tok := p.peek()
	if tok.kind != tokString {
		return nil, p.errAt(tok, "interval requires a quoted duration such as '5m'")
	}
	p.advance()

	d, err := parseInterval(tok.text)
	if err != nil {
		return nil, &ParseError{Pos: tok.pos, Msg: err.Error()}
	}
	return float64(at.Add(sign * d).Unix()), nil
}

var intervalRe = regexp.MustCompile(`^(\d+)\s*([smhd])$`)

// parseInterval reads durations of the form "30s", "5m", "2h", "1d".
func parseInterval(s string) (time.Duration, error) {
	m := intervalRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, fmt.Errorf("invalid interval %q (expected <n><s|m|h|d>)", s)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, fmt.Errorf("invalid interval %q: %v", s, err)
	}
	switch m[2] {
	case "s":
		return time.Duration(n) * time.Second, nil
	case "m":
		return time.Duration(n) * time.Minute, nil
	case "h":
		return time.Duration(n) * time.Hour, nil
	default:
		return time.Duration(n) * 24 * time.Hour, nil
	}
}

// parseTimestampLiteral := timestamp 'HH:MM[:SS]'
// Expands to today at that wall-clock time, as unix seconds.
func (p *parser) parseTimestampLiteral() (any, error) {
	p.advance() // timestamp
	tok := p.peek()
	if tok.kind != tokString {
		return nil, p.errAt(tok, "timestamp requires a quoted time such as '14:30' or '14:30:15'")
	}
	p.advance()

	clock, err := time.Parse("15:04:05", tok.text)
	if err != nil {
		clock, err = time.Parse("15:04", tok.text)
	}
	if err != nil {
		return nil, &ParseError{Pos: tok.pos, Msg: fmt.Sprintf("invalid time %q (expected HH:MM or HH:MM:SS)", tok.text)}
	}

	today := p.now
	at := time.Date(today.Year(), today.Month(), today.Day(),
		clock.Hour(), clock.Minute(), clock.Second(), 0, today.Location())
	return float64(at.Unix()), nil
}

// keywordHint returns the closest candidate keyword within edit
// distance 2, or "" when nothing is close enough to suggest.
func keywordHint(got string, candidates []string) string {
	if len(got) < 3 {
		return ""
	}
	if len(candidates) == 0 {
		candidates = filterKeywords
	}
	lower := strings.ToLower(got)

	best := ""
	bestDist := 3
	for _, cand := range candidates {
		if lower == cand {
			return "" // not a typo, a real keyword in the wrong place
		}
		if d := editDistance(lower, cand); d < bestDist {
			best, bestDist = cand, d
		}
	}
	return best
}

// editDistance is the Levenshtein distance between two short strings.
func editDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}

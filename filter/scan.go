package filter

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokString
	tokOp     // = != <> > < >= <=
	tokPlus   // + (interval arithmetic)
	tokMinus  // - (interval arithmetic)
	tokLParen
	tokRParen
	tokComma
	tokStar
)

type token struct {
	kind tokenKind
	text string
	pos  int // byte offset in the input
}

// keyword reports whether the token is the given keyword,
// case-insensitively.
func (t token) keyword(word string) bool {
	return t.kind == tokIdent && strings.EqualFold(t.text, word)
}

// scanner walks the input producing tokens on demand.
type scanner struct {
	input string
	pos   int
}

func (s *scanner) skipSpace() {
	for s.pos < len(s.input) {
		r, w := utf8.DecodeRuneInString(s.input[s.pos:])
		if !unicode.IsSpace(r) {
			return
		}
		s.pos += w
	}
}

// next scans one token. Lexical errors (an unterminated string, a
// stray rune) surface as *ParseError.
func (s *scanner) next() (token, error) {
	s.skipSpace()
	start := s.pos

	if s.pos >= len(s.input) {
		return token{kind: tokEOF, pos: start}, nil
	}

	r, w := utf8.DecodeRuneInString(s.input[s.pos:])
	switch {
	case r == '(':
		s.pos += w
		return token{kind: tokLParen, text: "(", pos: start}, nil
	case r == ')':
		s.pos += w
		return token{kind: tokRParen, text: ")", pos: start}, nil
	case r == ',':
		s.pos += w
		return token{kind: tokComma, text: ",", pos: start}, nil
	case r == '*':
		s.pos += w
		return token{kind: tokStar, text: "*", pos: start}, nil
	case r == '+':
		s.pos += w
		return token{kind: tokPlus, text: "+", pos: start}, nil
	case r == '-':
		s.pos += w
		return token{kind: tokMinus, text: "-", pos: start}, nil
	case r == '\'' || r == '"':
		return s.scanString(r)
	case r == '=':
		s.pos += w
		return token{kind: tokOp, text: "=", pos: start}, nil
	case r == '!':
		if strings.HasPrefix(s.input[s.pos:], "!=") {
			s.pos += 2
			return token{kind: tokOp, text: "!=", pos: start}, nil
		}
		return token{}, &ParseError{Pos: start, Msg: `unexpected "!"`}
	case r == '<':
		switch {
		case strings.HasPrefix(s.input[s.pos:], "<="):
			s.pos += 2
			return token{kind: tokOp, text: "<=", pos: start}, nil
		case strings.HasPrefix(s.input[s.pos:], "<>"):
			// SQL spelling of not-equal.
			s.pos += 2
			return token{kind: tokOp, text: "!=", pos: start}, nil
		default:
			s.pos += w
			return token{kind: tokOp, text: "<", pos: start}, nil
		}
	case r == '>':
		if strings.HasPrefix(s.input[s.pos:], ">=") {
			s.pos += 2
			return token{kind: tokOp, text: ">=", pos: start}, nil
		}
		s.pos += w
		return token{kind: tokOp, text: ">", pos: start}, nil
	case r >= '0' && r <= '9':
		return s.scanNumber()
	case isIdentStart(r):
		return s.scanIdent()
	}

	return token{}, &ParseError{Pos: start, Msg: "unexpected character " + strconv.QuoteRune(r)}
}

// scanString consumes a quoted literal. A doubled quote inside the
// literal escapes itself (SQL style).
func (s *scanner) scanString(quote rune) (token, error) {
	start := s.pos
	s.pos += utf8.RuneLen(quote)

	var b strings.Builder
	for s.pos < len(s.input) {
		r, w := utf8.DecodeRuneInString(s.input[s.pos:])
		s.pos += w
		if r != quote {
			b.WriteRune(r)
			continue
		}
		// Doubled quote is a literal quote.
		if r2, w2 := utf8.DecodeRuneInString(s.input[s.pos:]); r2 == quote {
			s.pos += w2
			b.WriteRune(quote)
			continue
		}
		return token{kind: tokString, text: b.String(), pos: start}, nil
	}
	return token{}, &ParseError{Pos: start, Msg: "unterminated string"}
}

func (s *scanner) scanNumber() (token, error) {
	start := s.pos
	seenDot := false
	for s.pos < len(s.input) {
		r, w := utf8.DecodeRuneInString(s.input[s.pos:])
		if r == '.' && !seenDot {
			seenDot = true
			s.pos += w
			continue
		}
		if r < '0' || r > '9' {
			break
		}
		s.pos += w
	}
	return token{kind: tokNumber, text: s.input[start:s.pos], pos: start}, nil
}

func (s *scanner) scanIdent() (token, error) {
	start := s.pos
	for s.pos < len(s.input) {
		r, w := utf8.DecodeRuneInString(s.input[s.pos:])
		if !isIdentPart(r) {
			break
		}
		s.pos += w
	}
	return token{kind: tokIdent, text: s.input[start:s.pos], pos: start}, nil
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return r == '_' || r == '.' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// scanAll tokenizes the whole input up front so the parser can peek
// freely.
func scanAll(input string) ([]token, error) {
	s := &scanner{input: input}
	var tokens []token
	for {
		tok, err := s.next()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.kind == tokEOF {
			return tokens, nil
		}
	}
}

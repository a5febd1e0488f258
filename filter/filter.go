// Package filter implements the condition trees behind message
// filtering: comparison, pattern, and logical nodes, the SQL-ish rule
// and filter parsers that build them, ordered filter expressions with
// clause combiners, and the simpler field:glob client-side filter.
//
// Conditions evaluate against a flat map[string]any record. A missing
// field never matches. Values compare numerically when both sides
// parse as numbers and as strings otherwise; booleans compare equal to
// the strings "true" and "false".
package filter

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Condition is a node in a filter tree.
type Condition interface {
	// Match evaluates the condition against a flat record.
	Match(record map[string]any) bool

	// String renders the condition in the parser's input syntax.
	String() string

	isCondition()
}

// CompareOp is a comparison operator.
type CompareOp string

// Comparison operators.
const (
	OpEq CompareOp = "="
	OpNe CompareOp = "!="
	OpGt CompareOp = ">"
	OpLt CompareOp = "<"
	OpGe CompareOp = ">="
	OpLe CompareOp = "<="
)

// PatternOp is a pattern-matching operator.
type PatternOp string

// Pattern operators.
const (
	OpLike    PatternOp = "LIKE"
	OpNotLike PatternOp = "NOT LIKE"
	OpRegex   PatternOp = "REGEX"
)

// LogicalOp combines child conditions.
type LogicalOp string

// Logical operators. And and Or take any number of children; Not takes
// exactly one.
const (
	OpAnd LogicalOp = "AND"
	OpOr  LogicalOp = "OR"
	OpNot LogicalOp = "NOT"
)

// Comparison compares a record field against a literal value.
type Comparison struct {
	Field string
	Op    CompareOp
	Value any
}

func (*Comparison) isCondition() {}

// NewComparison builds a comparison condition.
func NewComparison(field string, op CompareOp, value any) *Comparison {
	return &Comparison{Field: field, Op: op, Value: value}
}

// Match reports whether the record field satisfies the comparison. A
// missing field never matches.
func (c *Comparison) Match(record map[string]any) bool {
	actual, ok := record[c.Field]
	if !ok {
		return false
	}

	cmp := compareValues(actual, c.Value)
	switch c.Op {
	case OpEq:
		return cmp == 0
	case OpNe:
		return cmp != 0
	case OpGt:
		return cmp > 0
	case OpLt:
		return cmp < 0
	case OpGe:
		return cmp >= 0
	case OpLe:
		return cmp <= 0
	}
	return false
}

func (c *Comparison) String() string {
	return c.Field + " " + string(c.Op) + " " + formatLiteral(c.Value)
}

// Pattern matches a record field against a glob or regular expression.
type Pattern struct {
	Field   string
	Op      PatternOp
	Pattern string

	re *regexp.Regexp
}

func (*Pattern) isCondition() {}

// NewPattern builds a pattern condition, compiling the pattern. LIKE
// patterns are case-insensitive globs (*, ?, and the SQL %, _ forms);
// REGEX patterns are Go regular expressions.
func NewPattern(field string, op PatternOp, pattern string) (*Pattern, error) {
	var re *regexp.Regexp
	var err error
	switch op {
	case OpRegex:
		re, err = regexp.Compile(pattern)
	default:
		re, err = globRegexp(pattern, globLike)
	}
	if err != nil {
		return nil, err
	}
	return &Pattern{Field: field, Op: op, Pattern: pattern, re: re}, nil
}

// Match reports whether the record field matches the pattern. A
// missing field never matches, including under NOT LIKE.
func (p *Pattern) Match(record map[string]any) bool {
	actual, ok := record[p.Field]
	if !ok {
		return false
	}

	matched := p.re.MatchString(stringify(actual))
	if p.Op == OpNotLike {
		return !matched
	}
	return matched
}

func (p *Pattern) String() string {
	return p.Field + " " + string(p.Op) + " " + formatLiteral(p.Pattern)
}

// Logical combines child conditions with AND, OR, or NOT.
type Logical struct {
	Op       LogicalOp
	Children []Condition
}

func (*Logical) isCondition() {}

// And builds an n-ary conjunction. With no children it matches
// everything.
func And(children ...Condition) *Logical {
	return &Logical{Op: OpAnd, Children: children}
}

// Or builds an n-ary disjunction. With no children it matches nothing.
func Or(children ...Condition) *Logical {
	return &Logical{Op: OpOr, Children: children}
}

// Not negates a single child.
func Not(child Condition) *Logical {
	return &Logical{Op: OpNot, Children: []Condition{child}}
}

// Match evaluates the children under the logical operator.
func (l *Logical) Match(record map[string]any) bool {
	switch l.Op {
	case OpAnd:
		for _, child := range l.Children {
			if !child.Match(record) {
				return false
			}
		}
		return true
	case OpOr:
		for _, child := range l.Children {
			if child.Match(record) {
				return true
			}
		}
		return false
	case OpNot:
		if len(l.Children) == 0 {
			return false
		}
		return !l.Children[0].Match(record)
	}
	return false
}

func (l *Logical) String() string {
	if l.Op == OpNot {
		if len(l.Children) == 0 {
			return "NOT ()"
		}
		return "NOT (" + l.Children[0].String() + ")"
	}
	parts := make([]string, len(l.Children))
	for i, child := range l.Children {
		parts[i] = child.String()
	}
	return "(" + strings.Join(parts, " "+string(l.Op)+" ") + ")"
}

// compareValues orders two values: -1, 0, or 1. Numeric when both
// sides parse as numbers, string comparison otherwise.
func compareValues(a, b any) int {
	aNum, aOK := toFloat64(a)
	bNum, bOK := toFloat64(b)
	if aOK && bOK {
		switch {
		case aNum < bNum:
			return -1
		case aNum > bNum:
			return 1
		}
		return 0
	}

	aStr := stringify(a)
	bStr := stringify(b)
	switch {
	case aStr < bStr:
		return -1
	case aStr > bStr:
		return 1
	}
	return 0
}

// toFloat64 extracts a numeric value. Strings count when they parse as
// numbers; booleans do not.
func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

// stringify renders a value for string comparison and pattern
// matching. Booleans become "true"/"false"; numbers render without an
// exponent where possible.
func stringify(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case bool:
		if s {
			return "true"
		}
		return "false"
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(s), 'f', -1, 32)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case nil:
		return ""
	}
	return fmt.Sprintf("%v", v)
}

// formatLiteral renders a literal the way the parser would accept it.
func formatLiteral(v any) string {
	switch s := v.(type) {
	case string:
		return "'" + strings.ReplaceAll(s, "'", "''") + "'"
	case bool:
		if s {
			return "true"
		}
		return "false"
	}
	return stringify(v)
}

type globMode int

const (
	globExact globMode = iota // * and ? only, case-sensitive
	globLike                  // SQL LIKE: also % and _, case-insensitive
)

// globRegexp compiles a glob into an anchored regular expression.
func globRegexp(pattern string, mode globMode) (*regexp.Regexp, error) {
	var b strings.Builder
	if mode == globLike {
		b.WriteString("(?i)")
	}
	b.WriteString("^")
	for _, r := range pattern {
		switch {
		case r == '*':
			b.WriteString(".*")
		case r == '?':
			b.WriteString(".")
		case r == '%' && mode == globLike:
			b.WriteString(".*")
		case r == '_' && mode == globLike:
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}

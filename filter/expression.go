package filter

import (
	"fmt"
	"strings"
	"sync"

	"github.com/standardbeagle/conch/command"
)

// Combiner says how a clause joins the clauses before it.
type Combiner string

// Clause combiners. The first clause of an expression is always the
// base; later clauses fold in left to right.
const (
	CombinerBase   Combiner = "BASE"
	CombinerAnd    Combiner = "AND"
	CombinerOr     Combiner = "OR"
	CombinerAndNot Combiner = "AND NOT"
)

// Clause is one condition inside an Expression, together with how it
// combines and the text it was parsed from.
type Clause struct {
	Combiner  Combiner
	Condition Condition
	Text      string
}

// Expression is an ordered set of filter clauses evaluated left to
// right: ((base AND c1) OR c2) AND NOT c3. An empty expression matches
// every message. Safe for concurrent use; mutation swaps state under a
// lock and invalidates the compiled matcher.
type Expression struct {
	mu      sync.RWMutex
	clauses []Clause
	matcher func(map[string]any) bool // memoised; nil after mutation
}

// NewExpression returns an empty expression.
func NewExpression() *Expression {
	return &Expression{}
}

// Add parses the condition text and appends it as a clause. The first
// clause always becomes the base regardless of the given combiner.
func (e *Expression) Add(combiner Combiner, text string) error {
	cond, err := ParseFilter(text)
	if err != nil {
		return err
	}

	switch combiner {
	case CombinerBase, CombinerAnd, CombinerOr, CombinerAndNot:
	default:
		return fmt.Errorf("unknown combiner %q", combiner)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.clauses) == 0 {
		combiner = CombinerBase
	} else if combiner == CombinerBase {
		combiner = CombinerAnd
	}
	e.clauses = append(e.clauses, Clause{Combiner: combiner, Condition: cond, Text: text})
	e.matcher = nil
	return nil
}

// Remove deletes the clause at index i. Removing the base promotes the
// next clause to base.
func (e *Expression) Remove(i int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if i < 0 || i >= len(e.clauses) {
		return fmt.Errorf("no filter clause %d (have %d)", i, len(e.clauses))
	}
	e.clauses = append(e.clauses[:i], e.clauses[i+1:]...)
	if len(e.clauses) > 0 {
		e.clauses[0].Combiner = CombinerBase
	}
	e.matcher = nil
	return nil
}

// Clear removes all clauses.
func (e *Expression) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clauses = nil
	e.matcher = nil
}

// Len returns the number of clauses.
func (e *Expression) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.clauses)
}

// Clauses returns a copy of the clause list.
func (e *Expression) Clauses() []Clause {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Clause, len(e.clauses))
	copy(out, e.clauses)
	return out
}

// Matches evaluates the expression against a message. An empty
// expression matches everything.
func (e *Expression) Matches(msg command.Message) bool {
	return e.MatchesRecord(MessageContext(msg))
}

// MatchesRecord evaluates the expression against a prebuilt record.
func (e *Expression) MatchesRecord(record map[string]any) bool {
	e.mu.RLock()
	matcher := e.matcher
	e.mu.RUnlock()

	if matcher == nil {
		matcher = e.compile()
	}
	return matcher(record)
}

// compile folds the clause list into a single matcher and memoises it.
func (e *Expression) compile() func(map[string]any) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.matcher != nil {
		return e.matcher
	}

	clauses := make([]Clause, len(e.clauses))
	copy(clauses, e.clauses)

	e.matcher = func(record map[string]any) bool {
		if len(clauses) == 0 {
			return true
		}
		result := clauses[0].Condition.Match(record)
		for _, clause := range clauses[1:] {
			switch clause.Combiner {
			case CombinerAnd:
				result = result && clause.Condition.Match(record)
			case CombinerOr:
				result = result || clause.Condition.Match(record)
			case CombinerAndNot:
				result = result && !clause.Condition.Match(record)
			}
		}
		return result
	}
	return e.matcher
}

// String renders the expression as numbered clauses for the filter
// builtin's listing.
func (e *Expression) String() string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if len(e.clauses) == 0 {
		return "(no filter)"
	}
	var b strings.Builder
	for i, clause := range e.clauses {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d: [%s] %s", i, clause.Combiner, clause.Text)
	}
	return b.String()
}

package filter

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/standardbeagle/conch/command"
)

// Glob filter fields, in the order the filter builtin documents them.
var globFields = []string{"type", "source", "topic", "channel"}

// GlobFilter is the lightweight client-side message filter: field:glob
// pairs over the type, source, topic, and channel fields, combined
// with AND. Globs use * and ? and are case-sensitive. An empty filter
// matches every message.
type GlobFilter struct {
	patterns map[string]*regexp.Regexp
	raw      map[string]string
}

// ParseGlobFilter builds a filter from "field:glob" arguments as typed
// after the filter builtin. A pair naming an unknown field is skipped,
// not an error; a malformed pair still is one.
func ParseGlobFilter(args []string) (*GlobFilter, error) {
	f := &GlobFilter{
		patterns: make(map[string]*regexp.Regexp),
		raw:      make(map[string]string),
	}
	for _, arg := range args {
		field, glob, found := strings.Cut(arg, ":")
		if !found || field == "" || glob == "" {
			return nil, fmt.Errorf("invalid filter term %q (expected field:pattern)", arg)
		}
		if !isGlobField(field) {
			continue
		}
		re, err := globRegexp(glob, globExact)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", glob, err)
		}
		f.patterns[field] = re
		f.raw[field] = glob
	}
	return f, nil
}

func isGlobField(field string) bool {
	for _, known := range globFields {
		if field == known {
			return true
		}
	}
	return false
}

// Empty reports whether the filter has no terms.
func (f *GlobFilter) Empty() bool {
	return f == nil || len(f.patterns) == 0
}

// Matches reports whether every term of the filter matches the
// message. Topic and channel are read from metadata; when the message
// carries no such key, that term is ignored rather than failed.
func (f *GlobFilter) Matches(msg command.Message) bool {
	if f.Empty() {
		return true
	}
	for field, re := range f.patterns {
		value, ok := globFieldValue(msg, field)
		if !ok {
			continue
		}
		if !re.MatchString(value) {
			return false
		}
	}
	return true
}

func globFieldValue(msg command.Message, field string) (string, bool) {
	switch field {
	case "type":
		return msg.Type, true
	case "source":
		return msg.Source, true
	case "topic", "channel":
		if msg.Metadata == nil {
			return "", false
		}
		if v, ok := msg.Metadata[field].(string); ok {
			return v, true
		}
		return "", false
	}
	return "", false
}

// String renders the filter terms as typed, sorted by field.
func (f *GlobFilter) String() string {
	if f.Empty() {
		return "(no filter)"
	}
	fields := make([]string, 0, len(f.raw))
	for field := range f.raw {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	terms := make([]string, len(fields))
	for i, field := range fields {
		terms[i] = field + ":" + f.raw[field]
	}
	return strings.Join(terms, " ")
}

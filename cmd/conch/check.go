package main

import (
	"fmt"
	"strings"

	"github.com/alecthomas/repr"
	"github.com/spf13/cobra"

	"github.com/standardbeagle/conch/filter"
)

var checkCmd = &cobra.Command{
	Use:   "check <filter or rule>",
	Short: "Parse a filter expression and dump its structure",
	Long: `Parse a filter condition or a SELECT rule without connecting to a
server, and print the parsed structure. Useful for debugging quoting
and operator precedence:

  conch check "type = 'data' and (qos = 1 or retained = true)"
  conch check "SELECT value FROM 'sensor/temperature' WHERE value > 20"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	input := strings.Join(args, " ")

	var parsed any
	var err error
	if isRule(input) {
		parsed, err = filter.ParseRule(input)
	} else {
		parsed, err = filter.ParseFilter(input)
	}
	if err != nil {
		return fmt.Errorf("parse %q: %w", input, err)
	}

	fmt.Println(repr.String(parsed, repr.Indent("  "), repr.OmitEmpty(true)))
	return nil
}

func isRule(input string) bool {
	head, _, _ := strings.Cut(strings.TrimSpace(input), " ")
	return strings.EqualFold(head, "select")
}

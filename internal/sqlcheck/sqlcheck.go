// Package sqlcheck performs the pre-flight syntax check over every SQL
// fragment of a manifest. It never opens a connection.
package sqlcheck

import (
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
	"github.com/willibrandon/copgy/internal/errkind"
	"github.com/willibrandon/copgy/internal/manifest"
)

// ValidationError reports a batch that failed to parse.
type ValidationError struct {
	Fragments int
	Err       error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("sql validation failed: %v", e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Kind implements errkind.Kinded.
func (e *ValidationError) Kind() errkind.Kind { return errkind.SQLValidation }

// Validate parses every SQL fragment of m as one batch.
func Validate(m manifest.Manifest) error {
	return ValidateFragments(m.SQL())
}

// ValidateFragments joins fragments with statement terminators and parses
// the batch. The first syntax error fails the whole batch.
func ValidateFragments(fragments []string) error {
	if len(fragments) == 0 {
		return nil
	}
	if _, err := pg_query.Parse(Batch(fragments)); err != nil {
		return &ValidationError{Fragments: len(fragments), Err: err}
	}
	return nil
}

// Batch renders fragments as a single script, each terminated by ';' on a
// line of its own so a trailing line comment cannot swallow it.
func Batch(fragments []string) string {
	var b strings.Builder
	for _, f := range fragments {
		b.WriteString(f)
		b.WriteString("\n;\n")
	}
	return b.String()
}

// Statement returns q without surrounding whitespace and trailing statement
// terminators, so it can be embedded in another statement. Comments after the
// last terminator go with it; a terminator inside a comment or literal stays.
func Statement(q string) string {
	q = strings.TrimSpace(q)
	res, err := pg_query.Scan(q)
	if err != nil {
		return strings.TrimRight(q, "; \t\r\n")
	}

	end := len(q)
	tokens := res.GetTokens()
scan:
	for i := len(tokens) - 1; i >= 0; i-- {
		switch tok := tokens[i]; tok.GetToken() {
		case pg_query.Token_SQL_COMMENT, pg_query.Token_C_COMMENT:
		case pg_query.Token_ASCII_59:
			end = int(tok.GetStart())
		default:
			break scan
		}
	}
	return strings.TrimSpace(q[:end])
}

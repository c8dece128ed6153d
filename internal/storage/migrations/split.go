package migrations

import (
	"errors"
	"strings"
)

// errQuotedSemicolon marks SQL the splitter cannot handle.
var errQuotedSemicolon = errors.New("semicolon inside a string literal")

// splitStatements breaks a migration file into statements on semicolons.
// Whole-line "--" comments are dropped. Semicolons inside single-quoted
// literals are rejected rather than split, since the splitter does not
// track quoting.
func splitStatements(input string) ([]string, error) {
	if err := checkQuotedSemicolons(input); err != nil {
		return nil, err
	}

	var kept []string
	for _, line := range strings.Split(input, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		kept = append(kept, line)
	}

	var stmts []string
	for _, part := range strings.Split(strings.Join(kept, "\n"), ";") {
		if stmt := strings.TrimSpace(part); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts, nil
}

func checkQuotedSemicolons(sql string) error {
	quoted := false
	for i := 0; i < len(sql); i++ {
		switch sql[i] {
		case '\'':
			if quoted && i+1 < len(sql) && sql[i+1] == '\'' {
				i++ // escaped quote
				continue
			}
			quoted = !quoted
		case ';':
			if quoted {
				return errQuotedSemicolon
			}
		}
	}
	return nil
}

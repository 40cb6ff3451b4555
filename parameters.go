package adapt

import (
	"regexp"
)

var parameterPlaceholder = regexp.MustCompile(`\$\{([^{}\s]+)\}`)

// substituteParameters replaces every "${name}" placeholder in stmt with the
// value of the changelog parameter name. Placeholders without a parameter are
// left untouched.
func substituteParameters(stmt string, params map[string]string) string {
	if len(params) == 0 {
		return stmt
	}
	return parameterPlaceholder.ReplaceAllStringFunc(stmt, func(match string) string {
		name := parameterPlaceholder.FindStringSubmatch(match)[1]
		if value, ok := params[name]; ok {
			return value
		}
		return match
	})
}

// withParameters returns a copy of parsed with all statements substituted
func withParameters(parsed *ParsedMigration, params map[string]string) *ParsedMigration {
	if len(params) == 0 {
		return parsed
	}
	out := *parsed
	out.Stmts = make([]string, len(parsed.Stmts))
	for i, s := range parsed.Stmts {
		out.Stmts[i] = substituteParameters(s, params)
	}
	return &out
}

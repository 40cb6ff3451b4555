package adapt

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/samber/lo"
)

// selector decides which available migrations are executed during one
// Session.Update, based on the run's contexts and label expression.
type selector struct {
	contexts []string
	labels   *labelExpression
}

func newSelector(contexts []string, labels string) (*selector, error) {
	le, err := compileLabelExpression(labels)
	if err != nil {
		return nil, err
	}
	return &selector{
		contexts: normalizeNames(contexts),
		labels:   le,
	}, nil
}

// selects reports whether migration m is executed. Migrations without
// contexts or labels are never filtered by the respective setting.
func (s *selector) selects(m *AvailableMigration) (bool, error) {
	if len(s.contexts) > 0 && len(m.Contexts) > 0 {
		if !lo.Some(s.contexts, normalizeNames(m.Contexts)) {
			return false, nil
		}
	}

	if s.labels != nil && len(m.Labels) > 0 {
		return s.labels.matches(normalizeNames(m.Labels))
	}

	return true, nil
}

func normalizeNames(names []string) []string {
	out := lo.Map(names, func(n string, _ int) string {
		return strings.ToLower(strings.TrimSpace(n))
	})
	return lo.Uniq(lo.Compact(out))
}

// labelToken matches label names. Anything that is no whitespace, comma,
// parenthesis or negation is part of a name, so "jira-123", "v1.0" and
// "2024" are valid labels.
var labelToken = regexp.MustCompile(`[^\s(),!]+`)

var labelOperators = map[string]bool{
	"and":   true,
	"or":    true,
	"not":   true,
	"&&":    true,
	"||":    true,
	"true":  true,
	"false": true,
}

// labelExpression is a compiled boolean expression over label names, like
// "billing and (eu or !legacy)". A comma is treated as "or". Every label is
// compiled as a generated identifier, names[i] belonging to "label_<i>".
type labelExpression struct {
	source  string
	names   []string
	program *vm.Program
}

func compileLabelExpression(source string) (*labelExpression, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, nil
	}

	var names []string
	normalized := labelToken.ReplaceAllStringFunc(strings.ToLower(source), func(token string) string {
		if labelOperators[token] {
			return token
		}
		idx := lo.IndexOf(names, token)
		if idx < 0 {
			idx = len(names)
			names = append(names, token)
		}
		return labelIdent(idx)
	})
	normalized = strings.ReplaceAll(normalized, ",", " or ")

	program, err := expr.Compile(normalized, expr.Env(labelEnv(names, nil)), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("adapt: invalid label expression %q: %w", source, err)
	}

	return &labelExpression{
		source:  source,
		names:   names,
		program: program,
	}, nil
}

func (le *labelExpression) matches(labels []string) (bool, error) {
	out, err := expr.Run(le.program, labelEnv(le.names, labels))
	if err != nil {
		return false, fmt.Errorf("adapt: evaluate label expression %q: %w", le.source, err)
	}
	matched, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("adapt: label expression %q didn't evaluate to a boolean", le.source)
	}
	return matched, nil
}

func labelIdent(idx int) string {
	return fmt.Sprintf("label_%d", idx)
}

func labelEnv(names, labels []string) map[string]interface{} {
	env := make(map[string]interface{}, len(names))
	for i, name := range names {
		env[labelIdent(i)] = lo.Contains(labels, name)
	}
	return env
}

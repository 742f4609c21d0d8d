// Package filter implements the generic metadata filter expression used
// by search and the enrichment pipeline's pushdown predicates, per §6:
// {eq?, ne?, any_of?, none_of?, gt?, lt?, gte?, lte?, between?} per field.
//
// Grounded on internal/episodic/policy.go's BuildSQLFilter (bare-scalar /
// "in" / numeric-comparison JSONB filter), generalized to the full
// operator set. It has two renderings: Match evaluates the expression in
// Go (used by backends without SQL pushdown, such as Redis), and
// BuildSQLFilter renders it as a SQL WHERE fragment. There is no
// FT.SEARCH query-string renderer.
package filter

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Condition is the set of operators allowed against a single field. Every
// non-nil operator is applied and a value matches only if it satisfies
// all of them (e.g. Gte together with Lt forms a range), matching the
// wire shape of §6.
type Condition struct {
	Eq      any     `json:"eq,omitempty"`
	Ne      any     `json:"ne,omitempty"`
	AnyOf   []any   `json:"any_of,omitempty"`
	NoneOf  []any   `json:"none_of,omitempty"`
	Gt      any     `json:"gt,omitempty"`
	Lt      any     `json:"lt,omitempty"`
	Gte     any     `json:"gte,omitempty"`
	Lte     any     `json:"lte,omitempty"`
	Between *[2]any `json:"between,omitempty"`
}

// Expression maps field name to the condition applied to it. All fields
// are ANDed together; there is no OR combinator in this spec.
type Expression map[string]Condition

// Match evaluates the expression against a flat attribute map in process,
// used by backends (the in-memory test fake, working memory staging) that
// have no native filter pushdown.
func (e Expression) Match(attrs map[string]any) bool {
	for field, cond := range e {
		if !cond.matches(attrs[field]) {
			return false
		}
	}
	return true
}

func (c Condition) matches(v any) bool {
	if c.Eq != nil && !equalScalar(v, c.Eq) {
		return false
	}
	if c.Ne != nil && equalScalar(v, c.Ne) {
		return false
	}
	if c.AnyOf != nil && !containsScalar(c.AnyOf, v) {
		return false
	}
	if c.NoneOf != nil && containsScalar(c.NoneOf, v) {
		return false
	}
	if c.Gt != nil && !numericCompare(v, c.Gt, func(a, b float64) bool { return a > b }) {
		return false
	}
	if c.Gte != nil && !numericCompare(v, c.Gte, func(a, b float64) bool { return a >= b }) {
		return false
	}
	if c.Lt != nil && !numericCompare(v, c.Lt, func(a, b float64) bool { return a < b }) {
		return false
	}
	if c.Lte != nil && !numericCompare(v, c.Lte, func(a, b float64) bool { return a <= b }) {
		return false
	}
	if c.Between != nil {
		lo, hi := c.Between[0], c.Between[1]
		if !numericCompare(v, lo, func(a, b float64) bool { return a >= b }) {
			return false
		}
		if !numericCompare(v, hi, func(a, b float64) bool { return a <= b }) {
			return false
		}
	}
	return true
}

func equalScalar(a, b any) bool {
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func containsScalar(list []any, v any) bool {
	for _, item := range list {
		if equalScalar(item, v) {
			return true
		}
	}
	return false
}

func numericCompare(v, ref any, cmp func(a, b float64) bool) bool {
	af, aok := toFloat(v)
	bf, bok := toFloat(ref)
	if !aok || !bok {
		return false
	}
	return cmp(af, bf)
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		// Timestamp fields (created_at, last_access_at, event_date) are
		// stored as RFC3339 strings in the flat metadata map; comparison
		// operators against them need a numeric form, so parse to unix
		// seconds rather than rejecting every range query on a date field.
		if t, err := time.Parse(time.RFC3339, t); err == nil {
			return float64(t.Unix()), true
		}
		return 0, false
	default:
		return 0, false
	}
}

// BuildSQLFilter renders the expression as a parameterized WHERE clause
// fragment against JSONB-typed metadata columns, plus positional args.
// Field iteration order is sorted for deterministic query plans/tests.
func (e Expression) BuildSQLFilter(jsonColumn string) (string, []any) {
	if len(e) == 0 {
		return "", nil
	}
	fields := make([]string, 0, len(e))
	for f := range e {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var clauses []string
	var args []any
	col := func(field string) string {
		return fmt.Sprintf("%s->>'%s'", jsonColumn, escapeSQLIdent(field))
	}
	for _, field := range fields {
		cond := e[field]
		if cond.Eq != nil {
			args = append(args, fmt.Sprint(cond.Eq))
			clauses = append(clauses, fmt.Sprintf("%s = $%d", col(field), len(args)))
		}
		if cond.Ne != nil {
			args = append(args, fmt.Sprint(cond.Ne))
			clauses = append(clauses, fmt.Sprintf("%s != $%d", col(field), len(args)))
		}
		if len(cond.AnyOf) > 0 {
			placeholders := make([]string, len(cond.AnyOf))
			for i, m := range cond.AnyOf {
				args = append(args, fmt.Sprint(m))
				placeholders[i] = fmt.Sprintf("$%d", len(args))
			}
			clauses = append(clauses, fmt.Sprintf("%s = ANY(ARRAY[%s])", col(field), strings.Join(placeholders, ",")))
		}
		if len(cond.NoneOf) > 0 {
			placeholders := make([]string, len(cond.NoneOf))
			for i, m := range cond.NoneOf {
				args = append(args, fmt.Sprint(m))
				placeholders[i] = fmt.Sprintf("$%d", len(args))
			}
			clauses = append(clauses, fmt.Sprintf("%s != ALL(ARRAY[%s])", col(field), strings.Join(placeholders, ",")))
		}
		for _, op := range []string{"gt", "gte", "lt", "lte"} {
			rhs := map[string]any{"gt": cond.Gt, "gte": cond.Gte, "lt": cond.Lt, "lte": cond.Lte}[op]
			if rhs == nil {
				continue
			}
			sqlOp := map[string]string{"gt": ">", "gte": ">=", "lt": "<", "lte": "<="}[op]
			args = append(args, rhs)
			clauses = append(clauses, fmt.Sprintf("(%s)::numeric %s $%d", col(field), sqlOp, len(args)))
		}
		if cond.Between != nil {
			args = append(args, cond.Between[0], cond.Between[1])
			clauses = append(clauses, fmt.Sprintf("(%s)::numeric BETWEEN $%d AND $%d", col(field), len(args)-1, len(args)))
		}
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return strings.Join(clauses, " AND "), args
}

func escapeSQLIdent(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

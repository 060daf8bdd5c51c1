package repository

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/kjannette/optiontrack/internal/models"
)

const rawRowLimit = 10000

var (
	rawForbidden = regexp.MustCompile(`(?i)\b(insert|update|delete|drop|alter|create|attach|detach|pragma|replace|vacuum|reindex|truncate|grant|revoke|copy|into|load_extension|table|values)\b`)
	rawDerived   = regexp.MustCompile(`(?i)\b(?:from|join)\s*\(`)
	rawSelect    = regexp.MustCompile(`(?i)^select\s`)
	rawToken     = regexp.MustCompile(`[A-Za-z0-9_$.]+|\S`)
)

// catalog and table-valued function prefixes
var rawSystemPrefixes = []string{"sqlite_", "pg_", "pragma_", "information_schema"}

// keywords that can never name a table alias
var rawReserved = map[string]bool{
	"where": true, "group": true, "order": true, "limit": true, "offset": true, "having": true,
	"join": true, "inner": true, "left": true, "right": true, "full": true, "outer": true,
	"cross": true, "natural": true, "on": true, "using": true, "union": true, "intersect": true,
	"except": true, "window": true, "select": true, "from": true, "as": true, "lateral": true,
}

// QueryRaw runs a caller-supplied SELECT against this table only. The statement
// must be a single SELECT without comments or literals; values are bound through
// '?' args. The result is wrapped so it has to produce the stored row columns.
func (t *Table) QueryRaw(ctx context.Context, stmt string, args ...any) ([]models.PersistedRow, error) {
	stmt = strings.TrimSpace(stmt)
	if err := t.checkRaw(stmt, len(args)); err != nil {
		return nil, err
	}

	q := fmt.Sprintf(`SELECT %s FROM (%s) AS raw LIMIT %d`, rowColumns, stmt, rawRowLimit)
	rows, err := t.store.conn.QueryContext(ctx, t.store.dialect.Rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("%w: raw query on %s: %v", ErrPersistence, t.name, err)
	}
	defer rows.Close()
	return collectRows(rows)
}

func (t *Table) checkRaw(stmt string, nargs int) error {
	if stmt == "" {
		return fmt.Errorf("%w: empty statement", ErrRejected)
	}
	if !rawSelect.MatchString(stmt) {
		return fmt.Errorf("%w: only SELECT statements are allowed", ErrRejected)
	}
	if strings.ContainsAny(stmt, ";'\"`[]\\") {
		return fmt.Errorf("%w: statement separators, quotes and literals are not allowed", ErrRejected)
	}
	if strings.Contains(stmt, "--") || strings.Contains(stmt, "/*") {
		return fmt.Errorf("%w: comments are not allowed", ErrRejected)
	}
	if m := rawForbidden.FindString(stmt); m != "" {
		return fmt.Errorf("%w: keyword %s is not allowed", ErrRejected, strings.ToUpper(m))
	}
	if n := strings.Count(stmt, "?"); n != nargs {
		return fmt.Errorf("%w: %d placeholders but %d args", ErrRejected, n, nargs)
	}
	if rawDerived.MatchString(stmt) {
		return fmt.Errorf("%w: derived tables are not allowed", ErrRejected)
	}

	toks := rawToken.FindAllString(stmt, -1)
	for _, tok := range toks {
		if isSystemIdent(tok) {
			return fmt.Errorf("%w: system object %s is not allowed", ErrRejected, tok)
		}
	}
	return t.checkTableRefs(toks)
}

// checkTableRefs walks every FROM and JOIN. Each must name this table, an alias
// after AS must not be a keyword, and a FROM clause may not list tables with
// commas at its own nesting level.
func (t *Table) checkTableRefs(toks []string) error {
	refs := 0
	for i, tok := range toks {
		word := strings.ToLower(tok)
		if word != "from" && word != "join" {
			continue
		}
		refs++
		if i+1 >= len(toks) || !strings.EqualFold(toks[i+1], t.name) {
			name := ""
			if i+1 < len(toks) {
				name = toks[i+1]
			}
			return fmt.Errorf("%w: table %s is outside this query's scope", ErrRejected, name)
		}
		if i+3 < len(toks) && strings.EqualFold(toks[i+2], "as") && rawReserved[strings.ToLower(toks[i+3])] {
			return fmt.Errorf("%w: keyword %s cannot be an alias", ErrRejected, toks[i+3])
		}
		if word == "from" && fromListsTables(toks[i+1:]) {
			return fmt.Errorf("%w: multi-table FROM lists are not allowed", ErrRejected)
		}
	}
	if refs == 0 {
		return fmt.Errorf("%w: statement must read from %s", ErrRejected, t.name)
	}
	return nil
}

// fromListsTables scans one FROM clause until the clause ends or its enclosing
// parenthesis closes, and reports whether a comma separates table references.
func fromListsTables(toks []string) bool {
	depth := 0
	for j, tok := range toks {
		switch tok {
		case "(":
			depth++
		case ")":
			if depth == 0 {
				return false
			}
			depth--
		case ",":
			if depth == 0 {
				return true
			}
		default:
			if depth == 0 && endsFromClause(toks, j) {
				return false
			}
		}
	}
	return false
}

// endsFromClause reports whether toks[j] opens the clause that follows FROM.
// A keyword directly followed by a comma is being used as an alias.
func endsFromClause(toks []string, j int) bool {
	next := func(k int) string {
		if j+k < len(toks) {
			return strings.ToLower(toks[j+k])
		}
		return ""
	}
	if next(1) == "," {
		return false
	}
	switch strings.ToLower(toks[j]) {
	case "where", "having", "limit":
		return true
	case "group", "order":
		return next(1) == "by"
	case "union", "intersect", "except":
		return next(1) == "select" || next(1) == "all" || next(1) == "distinct"
	case "window":
		return next(2) == "as"
	}
	return false
}

func isSystemIdent(tok string) bool {
	for _, part := range strings.Split(strings.ToLower(tok), ".") {
		for _, p := range rawSystemPrefixes {
			if strings.HasPrefix(part, p) {
				return true
			}
		}
	}
	return false
}

package common

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	TBPRE = "tb"
	CLPRE = "cl"
)

var (
	space = regexp.MustCompile(`\s+`)
	reg   = regexp.MustCompile(`[^a-zA-Z0-9 _]+`)
)

/*
	GenCompliantNames generates names that can be used in sqlite.

Table and column names follow the same rules so one function takes a prefix:
lower case, snake case, strip disallowed characters, dodge keywords with a
trailing underscore. If a standardized name ends up unusable the name is
{prefix}{idx}.
*/
func GenCompliantNames(rawnames []string, prefix string) []string {
	gorgeous := make([]string, len(rawnames))

	counter := map[string]int{}
	for idx, item := range rawnames {
		item = strings.TrimSpace(item)
		item = reg.ReplaceAllString(item, "")
		item = space.ReplaceAllString(item, "_")
		item = strings.ToLower(item)

		if len(item) == 0 {
			gorgeous[idx] = fmt.Sprintf("%s%d", prefix, idx)
			continue
		}

		if isKeyword(item) {
			item += "_"
		}

		// sqlite identifiers cannot start with a number unquoted
		if item[0] >= '0' && item[0] <= '9' {
			item = fmt.Sprintf("%s%d%s", prefix, idx, item)
		}

		counter[item]++
		if counter[item] == 1 {
			gorgeous[idx] = item
		} else {
			gorgeous[idx] = fmt.Sprintf("%s%d", item, counter[item])
		}
	}
	return gorgeous
}

// GenTableNames generates sanitized SQL table names from raw table names.
// if table names are complete junk it will return tb0, tb1, tb2, etc.
func GenTableNames(rawtables []string) []string {
	return GenCompliantNames(rawtables, TBPRE)
}

// GenTableName sanitizes a single table name.
func GenTableName(raw string) string {
	return GenTableNames([]string{raw})[0]
}

func isKeyword(name string) bool {
	for _, keyword := range KEYWORDS_LOWER {
		if name == keyword {
			return true
		}
	}
	return false
}

// ColumnDef is one column of a CREATE TABLE statement.
type ColumnDef struct {
	Name string
	Type string // type plus any constraints, e.g. "INTEGER PRIMARY KEY AUTOINCREMENT"
}

// TextColumns declares every name as a nullable TEXT column.
func TextColumns(names []string) []ColumnDef {
	defs := make([]ColumnDef, len(names))
	for i, name := range names {
		defs[i] = ColumnDef{Name: name, Type: "TEXT"}
	}
	return defs
}

// GenCreateTableSQL generates an idempotent CREATE TABLE statement.
func GenCreateTableSQL(tableName string, columns []ColumnDef) string {
	var builder strings.Builder
	builder.Grow(len(tableName) + len(columns)*24)

	builder.WriteString("CREATE TABLE IF NOT EXISTS ")
	builder.WriteString(tableName)
	builder.WriteString(" (")
	for i, col := range columns {
		builder.WriteString(col.Name)
		builder.WriteByte(' ')
		builder.WriteString(col.Type)
		if i < len(columns)-1 {
			builder.WriteString(", ")
		}
	}
	builder.WriteByte(')')
	return builder.String()
}

// GenInsertStmt generates a parameterized INSERT for the given columns.
func GenInsertStmt(table string, fields []string) (string, error) {
	if table == "" || len(fields) == 0 {
		return "", fmt.Errorf("table name and fields are required")
	}

	stmtSQL := fmt.Sprintf(`
INSERT INTO %s (
	%s
) VALUES (%s)`,
		table,
		strings.Join(fields, ","),
		strings.Repeat("?,", len(fields)-1)+"?",
	)
	return strings.TrimSpace(stmtSQL), nil
}

// QuoteLiteral renders a nullable string as a SQL literal.
// Single quotes are escaped by doubling them.
func QuoteLiteral(v *string) string {
	if v == nil {
		return "NULL"
	}
	return "'" + strings.ReplaceAll(*v, "'", "''") + "'"
}

// GenInsertLiteralSQL renders one INSERT statement with inline literals.
// It is only used for SQL export; the importer always binds parameters.
func GenInsertLiteralSQL(table string, fields []string, values []*string) (string, error) {
	if len(fields) != len(values) {
		return "", fmt.Errorf("got %d values for %d fields", len(values), len(fields))
	}

	var builder strings.Builder
	builder.WriteString("INSERT INTO ")
	builder.WriteString(table)
	builder.WriteString(" (")
	builder.WriteString(strings.Join(fields, ", "))
	builder.WriteString(") VALUES (")
	for i, v := range values {
		if i > 0 {
			builder.WriteString(", ")
		}
		builder.WriteString(QuoteLiteral(v))
	}
	builder.WriteString(");")
	return builder.String(), nil
}

// KEYWORDS_LOWER lists the SQLite keywords that need dodging when used as
// identifiers. https://sqlite.org/lang_keywords.html
var KEYWORDS_LOWER = []string{
	"abort", "action", "add", "after", "all", "alter", "always", "analyze", "and", "as",
	"asc", "attach", "autoincrement", "before", "begin", "between", "by", "cascade", "case", "cast",
	"check", "collate", "column", "commit", "conflict", "constraint", "create", "cross", "current", "current_date",
	"current_time", "current_timestamp", "database", "default", "deferrable", "deferred", "delete", "desc", "detach", "distinct",
	"do", "drop", "each", "else", "end", "escape", "except", "exclude", "exclusive", "exists",
	"explain", "fail", "filter", "first", "following", "for", "foreign", "from", "full", "generated",
	"glob", "group", "groups", "having", "if", "ignore", "immediate", "in", "index", "indexed",
	"initially", "inner", "insert", "instead", "intersect", "into", "is", "isnull", "join", "key",
	"last", "left", "like", "limit", "match", "materialized", "natural", "no", "not", "nothing",
	"notnull", "null", "nulls", "of", "offset", "on", "or", "order", "others", "outer",
	"over", "partition", "plan", "pragma", "preceding", "primary", "query", "raise", "range", "recursive",
	"references", "regexp", "reindex", "release", "rename", "replace", "restrict", "returning", "right", "rollback",
	"row", "rows", "savepoint", "select", "set", "table", "temp", "temporary", "then", "ties",
	"to", "transaction", "trigger", "unbounded", "union", "unique", "update", "using", "vacuum", "values",
	"view", "virtual", "when", "where", "window", "with", "without",
}

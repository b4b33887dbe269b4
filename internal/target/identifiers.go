package target

import (
	"strings"
)

// reservedWords are SQLite keywords that cannot appear as bare identifiers
// without confusing the parser in some position.
var reservedWords = map[string]bool{
	"abort": true, "action": true, "add": true, "after": true, "all": true, "alter": true,
	"analyze": true, "and": true, "as": true, "asc": true, "attach": true, "autoincrement": true,
	"before": true, "begin": true, "between": true, "by": true, "cascade": true, "case": true,
	"cast": true, "check": true, "collate": true, "column": true, "commit": true, "conflict": true,
	"constraint": true, "create": true, "cross": true, "current_date": true, "current_time": true,
	"current_timestamp": true, "database": true, "default": true, "deferrable": true, "deferred": true,
	"delete": true, "desc": true, "detach": true, "distinct": true, "drop": true, "each": true,
	"else": true, "end": true, "escape": true, "except": true, "exclusive": true, "exists": true,
	"explain": true, "fail": true, "for": true, "foreign": true, "from": true, "full": true,
	"glob": true, "group": true, "having": true, "if": true, "ignore": true, "immediate": true,
	"in": true, "index": true, "indexed": true, "initially": true, "inner": true, "insert": true,
	"instead": true, "intersect": true, "into": true, "is": true, "isnull": true, "join": true,
	"key": true, "left": true, "like": true, "limit": true, "match": true, "natural": true,
	"no": true, "not": true, "notnull": true, "null": true, "of": true, "offset": true, "on": true,
	"or": true, "order": true, "outer": true, "plan": true, "pragma": true, "primary": true,
	"query": true, "raise": true, "recursive": true, "references": true, "regexp": true,
	"reindex": true, "release": true, "rename": true, "replace": true, "restrict": true,
	"returning": true, "right": true, "rollback": true, "row": true, "savepoint": true,
	"select": true, "set": true, "table": true, "temp": true, "temporary": true, "then": true,
	"to": true, "transaction": true, "trigger": true, "union": true, "unique": true, "update": true,
	"using": true, "vacuum": true, "values": true, "view": true, "virtual": true, "when": true,
	"where": true, "with": true, "without": true,
}

// QuoteIdent returns ident bare when it is a plain lowercase identifier and
// not a keyword, and double-quoted (embedded quotes doubled) otherwise.
func QuoteIdent(ident string) string {
	if isPlainIdent(ident) && !reservedWords[ident] {
		return ident
	}
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func isPlainIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// QuoteIdents quotes each identifier and joins them with ", ".
func QuoteIdents(idents []string) string {
	quoted := make([]string, len(idents))
	for i, id := range idents {
		quoted[i] = QuoteIdent(id)
	}
	return strings.Join(quoted, ", ")
}

// InsertSQL builds a positional insert for a table with n columns.
func InsertSQL(table string, n int) string {
	placeholders := make([]string, n)
	for i := range placeholders {
		placeholders[i] = "?"
	}
	return "INSERT INTO " + QuoteIdent(table) + " VALUES (" + strings.Join(placeholders, ", ") + ")"
}

package loaddata

import (
	"fmt"
	"strings"
)

// ConflictOption selects how the server treats rows that collide with an
// existing unique key.
type ConflictOption int

const (
	ConflictNone ConflictOption = iota
	ConflictReplace
	ConflictIgnore
)

func (c ConflictOption) String() string {
	switch c {
	case ConflictReplace:
		return "replace"
	case ConflictIgnore:
		return "ignore"
	default:
		return "none"
	}
}

// ParseConflictOption parses "none", "replace" or "ignore".
func ParseConflictOption(s string) (ConflictOption, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return ConflictNone, nil
	case "replace":
		return ConflictReplace, nil
	case "ignore":
		return ConflictIgnore, nil
	}
	return 0, fmt.Errorf("unknown conflict option %q", s)
}

const (
	FieldTerminator = '\t'
	LineTerminator  = '\n'

	// ignoreVariable swallows source fields that have no destination.
	ignoreVariable = "@__ignore"
)

// Statement is a fully resolved LOAD DATA command minus the file name, which
// the transport picks.
type Statement struct {
	// Table is the quoted destination table.
	Table string
	// Columns has one entry per source field, in source order: a quoted
	// column, a user variable, or the ignore variable.
	Columns []string
	// Expressions are the SET clause assignments.
	Expressions []string
	Conflict    ConflictOption
}

// SQL renders the statement reading from fileName, e.g. "Reader::bulk_x".
func (s *Statement) SQL(fileName string) string {
	var b strings.Builder
	b.WriteString("LOAD DATA LOCAL INFILE ")
	b.WriteString(quoteString(fileName))
	switch s.Conflict {
	case ConflictReplace:
		b.WriteString(" REPLACE")
	case ConflictIgnore:
		b.WriteString(" IGNORE")
	}
	b.WriteString(" INTO TABLE ")
	b.WriteString(s.Table)
	b.WriteString(" CHARACTER SET utf8mb4")
	b.WriteString(` FIELDS TERMINATED BY '\t' ENCLOSED BY '' ESCAPED BY '\\'`)
	b.WriteString(` LINES TERMINATED BY '\n'`)
	if len(s.Columns) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(s.Columns, ", "))
		b.WriteString(")")
	}
	if len(s.Expressions) > 0 {
		b.WriteString(" SET ")
		b.WriteString(strings.Join(s.Expressions, ", "))
	}
	b.WriteString(";")
	return b.String()
}

// buildStatement lays the resolved mappings out by source ordinal.
func buildStatement(table string, fieldCount int, mappings []mapping, conflict ConflictOption) *Statement {
	st := &Statement{
		Table:    QuoteTable(table),
		Columns:  make([]string, fieldCount),
		Conflict: conflict,
	}
	for i := range st.Columns {
		st.Columns[i] = ignoreVariable
	}
	for _, m := range mappings {
		if isVariable(m.Destination) {
			st.Columns[m.SourceOrdinal] = m.Destination
		} else {
			st.Columns[m.SourceOrdinal] = QuoteIdent(unquoteIdent(m.Destination))
		}
		if m.Expression != "" {
			st.Expressions = append(st.Expressions, m.Expression)
		}
	}
	return st
}

func isVariable(dest string) bool { return strings.HasPrefix(dest, "@") }

// QuoteIdent backtick-quotes a MySQL identifier, doubling embedded backticks.
func QuoteIdent(id string) string { return "`" + strings.ReplaceAll(id, "`", "``") + "`" }

// QuoteTable quotes a possibly schema-qualified name like "hr.events" to
// "`hr`.`events`". Names that already contain a backtick are returned as-is.
func QuoteTable(name string) string {
	if strings.Contains(name, "`") {
		return name
	}
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = QuoteIdent(p)
	}
	return strings.Join(parts, ".")
}

func unquoteIdent(id string) string {
	id = strings.TrimSpace(id)
	if len(id) >= 2 && id[0] == '`' && id[len(id)-1] == '`' {
		return strings.ReplaceAll(id[1:len(id)-1], "``", "`")
	}
	return id
}

func quoteString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(s) + "'"
}

package loaddata

import (
	"fmt"
	"log"
	"strconv"
	"strings"
)

// ColumnMapping binds a source field to a destination column, a user
// variable, or a variable finished by an expression.
//
//	{SourceOrdinal: 0, Destination: "id"}
//	{SourceOrdinal: 1, Destination: "@raw", Expression: "price = @raw / 100"}
type ColumnMapping struct {
	SourceOrdinal int    `json:"source_ordinal"`
	Destination   string `json:"destination"`
	Expression    string `json:"expression,omitempty"`
}

type mapping struct {
	ColumnMapping
	auto bool
}

// resolveMappings merges the user's mappings with the destination schema.
// Only the first min(fieldCount, len(columns)) positions are inspected.
func resolveMappings(columns []Column, fieldCount int, user []ColumnMapping) ([]mapping, error) {
	ms := make([]mapping, 0, len(user)+len(columns))
	for _, m := range user {
		ms = append(ms, mapping{ColumnMapping: m})
	}

	n := min(fieldCount, len(columns))
	for i := 0; i < n; i++ {
		col := columns[i]
		typ := strings.ToUpper(col.DatabaseType)
		switch {
		case typ == "BIT":
			ms = attachTransform(ms, i, col.Name, func(v string) string {
				return QuoteIdent(col.Name) + " = CAST(" + v + " AS UNSIGNED)"
			})
		case typ == "YEAR":
			// A zero value cannot be told apart from the year 2000 once encoded.
			return nil, fmt.Errorf("%w: column %q is YEAR", ErrUnsupportedColumnType, col.Name)
		case isBinaryType(typ):
			// Covers GUIDs stored as BINARY(16) under a binary GUIDFormat.
			ms = attachTransform(ms, i, col.Name, func(v string) string {
				return QuoteIdent(col.Name) + " = UNHEX(" + v + ")"
			})
		default:
			// A column the user already fills from another field is not
			// filled twice; position i is then skipped.
			if !hasOrdinal(ms, i) && !targetsColumn(ms, col.Name) {
				ms = append(ms, mapping{ColumnMapping: ColumnMapping{SourceOrdinal: i, Destination: col.Name}, auto: true})
			}
		}
	}

	if err := validateMappings(ms, fieldCount); err != nil {
		return nil, err
	}
	return ms, nil
}

// attachTransform routes the column at position through a load variable and
// the expression built by expr. A user mapping that already targets the
// column receives the expression unless it has one of its own, in which case
// the user's expression wins and the conflict is only logged.
func attachTransform(ms []mapping, position int, column string, expr func(variable string) string) []mapping {
	for i := range ms {
		m := &ms[i]
		if m.auto || isVariable(m.Destination) || !strings.EqualFold(unquoteIdent(m.Destination), column) {
			continue
		}
		v := loadVariable(m.SourceOrdinal)
		if m.Expression != "" {
			log.Printf("bulkcopy: mapping conflict column=%s: keeping %q, not applying %q",
				column, m.Expression, expr(v))
			return ms
		}
		m.Destination = v
		m.Expression = expr(v)
		return ms
	}
	if hasOrdinal(ms, position) {
		return ms
	}
	v := loadVariable(position)
	return append(ms, mapping{
		ColumnMapping: ColumnMapping{SourceOrdinal: position, Destination: v, Expression: expr(v)},
		auto:          true,
	})
}

func validateMappings(ms []mapping, fieldCount int) error {
	seen := make(map[int]struct{}, len(ms))
	for _, m := range ms {
		if !m.auto && strings.TrimSpace(m.Destination) == "" {
			return fmt.Errorf("%w: source ordinal %d", ErrEmptyMapping, m.SourceOrdinal)
		}
		if m.SourceOrdinal < 0 || m.SourceOrdinal >= fieldCount {
			return fmt.Errorf("%w: %d not in [0, %d)", ErrOrdinalOutOfRange, m.SourceOrdinal, fieldCount)
		}
		if _, dup := seen[m.SourceOrdinal]; dup {
			return fmt.Errorf("%w: %d", ErrDuplicateOrdinal, m.SourceOrdinal)
		}
		seen[m.SourceOrdinal] = struct{}{}
	}
	return nil
}

func hasOrdinal(ms []mapping, ordinal int) bool {
	for _, m := range ms {
		if m.SourceOrdinal == ordinal {
			return true
		}
	}
	return false
}

// targetsColumn reports whether a user mapping writes column directly.
func targetsColumn(ms []mapping, column string) bool {
	for _, m := range ms {
		if !m.auto && !isVariable(m.Destination) && strings.EqualFold(unquoteIdent(m.Destination), column) {
			return true
		}
	}
	return false
}

func loadVariable(ordinal int) string { return "@__col" + strconv.Itoa(ordinal) }

func isBinaryType(typ string) bool {
	switch typ {
	case "BINARY", "VARBINARY", "GEOMETRY":
		return true
	}
	return strings.HasSuffix(typ, "BLOB")
}

package config

import (
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"mysqlbulk/internal/loaddata"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError blocks execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is surfaced to users but does not block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation finding.
//
// Path is a dotted path into the config (e.g. "destination.table",
// "destination.column_mappings[1].source_ordinal").
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue has SeverityError.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// ValidateJob performs static validation of a Job. It does not mutate j and
// does not contact any server; checks that need the destination schema
// (ordinal range against the real column count) happen at load time.
func ValidateJob(j Job) []Issue {
	var issues []Issue

	if strings.TrimSpace(j.Job) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "job",
			Message:  "job must not be empty; it is used for metrics labeling and identifying runs",
		})
	}
	issues = append(issues, validateSource(j.Source)...)
	issues = append(issues, validateDestination(j.Destination)...)
	issues = append(issues, validateRuntime(j.Runtime)...)
	return issues
}

func validateSource(s Source) []Issue {
	var issues []Issue

	if strings.TrimSpace(s.Kind) == "" {
		return append(issues, Issue{
			Severity: SeverityError,
			Path:     "source.kind",
			Message:  "source.kind must not be empty",
		})
	}

	switch s.Kind {
	case "csv":
		if strings.TrimSpace(s.Path) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "source.path",
				Message:  "csv source requires a non-empty path",
			})
		}
		if !s.Options.Bool("has_header", true) && s.Options.Int("expected_fields", 0) <= 0 {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "source.options.expected_fields",
				Message:  "csv source without a header requires expected_fields > 0",
			})
		}
	case "sqlite", "mssql", "mysql", "postgres", "oracle":
		dsnFromOptions := s.Kind == "oracle" && s.Options.String("server", "") != ""
		if strings.TrimSpace(s.DSN) == "" && !dsnFromOptions {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "source.dsn",
				Message:  fmt.Sprintf("%s source requires a non-empty dsn", s.Kind),
			})
		}
		if strings.TrimSpace(s.Query) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "source.query",
				Message:  fmt.Sprintf("%s source requires a non-empty query", s.Kind),
			})
		}
	default:
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "source.kind",
			Message:  fmt.Sprintf("unknown source kind %q; ensure a matching implementation is registered", s.Kind),
		})
	}
	return issues
}

func validateDestination(d Destination) []Issue {
	var issues []Issue

	switch {
	case strings.TrimSpace(d.DSN) == "":
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "destination.dsn",
			Message:  "destination.dsn must not be empty",
		})
	case !strings.Contains(d.DSN, "${"):
		// Unexpanded ${VAR} references are resolved at run time.
		if _, err := mysql.ParseDSN(d.DSN); err != nil {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "destination.dsn",
				Message:  fmt.Sprintf("invalid mysql dsn: %v", err),
			})
		}
	}
	if strings.TrimSpace(d.Table) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "destination.table",
			Message:  "destination.table must not be empty",
		})
	}
	if _, err := loaddata.ParseConflictOption(d.Conflict); err != nil {
		issues = append(issues, Issue{Severity: SeverityError, Path: "destination.conflict", Message: err.Error()})
	}
	if _, err := loaddata.ParseGUIDFormat(d.GUIDFormat); err != nil {
		issues = append(issues, Issue{Severity: SeverityError, Path: "destination.guid_format", Message: err.Error()})
	}
	if _, err := loaddata.ParseDateTimeKind(d.DateTimeKind); err != nil {
		issues = append(issues, Issue{Severity: SeverityError, Path: "destination.datetime_kind", Message: err.Error()})
	}

	seen := map[int]int{}
	for i, m := range d.ColumnMappings {
		base := fmt.Sprintf("destination.column_mappings[%d]", i)
		if strings.TrimSpace(m.Destination) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     base + ".destination",
				Message:  "mapping destination must not be empty",
			})
		}
		if m.SourceOrdinal < 0 {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     base + ".source_ordinal",
				Message:  fmt.Sprintf("source_ordinal=%d must not be negative", m.SourceOrdinal),
			})
		}
		if prev, ok := seen[m.SourceOrdinal]; ok {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     base + ".source_ordinal",
				Message:  fmt.Sprintf("source_ordinal=%d already used by column_mappings[%d]", m.SourceOrdinal, prev),
			})
		} else {
			seen[m.SourceOrdinal] = i
		}
		if m.Expression != "" && !strings.HasPrefix(m.Destination, "@") {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     base + ".expression",
				Message:  "expression set on a non-variable destination; reference the value through an @variable",
			})
		}
	}
	return issues
}

func validateRuntime(r Runtime) []Issue {
	var issues []Issue

	if r.NotifyAfter < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.notify_after",
			Message:  "notify_after must not be negative",
		})
	}
	if r.BufferSize < 0 || r.BufferSize > loaddata.MaxFrameSize {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.buffer_size",
			Message:  fmt.Sprintf("buffer_size=%d; must be between 1 and %d (0 selects the default)", r.BufferSize, loaddata.MaxFrameSize),
		})
	} else if r.BufferSize > 0 && r.BufferSize < 4096 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "runtime.buffer_size",
			Message:  fmt.Sprintf("buffer_size=%d; small frames hurt throughput and reject wide rows", r.BufferSize),
		})
	}
	if r.TimeoutSeconds < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.timeout_seconds",
			Message:  "timeout_seconds must not be negative",
		})
	}
	return issues
}

package genome

import "fmt"

// ParseError reports a document that could not be deserialized at all.
type ParseError struct {
	Format  string
	Message string
	Line    int
	cause   error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("genome: %s parse error at line %d: %s", e.Format, e.Line, e.Message)
	}
	return fmt.Sprintf("genome: %s parse error: %s", e.Format, e.Message)
}

func (e *ParseError) Unwrap() error { return e.cause }

// SchemaError reports a structurally invalid document: wrong types, missing
// required fields, out-of-range values. Values are never coerced to defaults.
type SchemaError struct {
	Field   string
	Message string
	cause   error
}

func (e *SchemaError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("genome: schema violation at %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("genome: schema violation: %s", e.Message)
}

func (e *SchemaError) Unwrap() error { return e.cause }

// DuplicateNameError reports a cell or organ name that appears more than once
// within its collection. Duplicates are never silently deduplicated.
type DuplicateNameError struct {
	Collection string // "cells" or "organs"
	Name       string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("genome: duplicate name %q in %s", e.Name, e.Collection)
}

// IntegrityMismatchError reports a genome whose recomputed canonical hash
// does not match the stored hash: the document was modified between load and use.
type IntegrityMismatchError struct {
	Expected string
	Actual   string
}

func (e *IntegrityMismatchError) Error() string {
	return fmt.Sprintf("genome: integrity mismatch: expected %s, computed %s", shortHash(e.Expected), shortHash(e.Actual))
}

func shortHash(h string) string {
	if len(h) > 24 {
		return h[:24] + "..."
	}
	return h
}

package domain

import (
	"fmt"
	"strings"
)

// SchemaError indicates the input table is missing an expected column.
// It is fatal: running against a malformed extract would silently produce a
// misleading report.
type SchemaError struct {
	Source  string   // which input, e.g. "incidents"
	Missing []string // column names that were expected but absent
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s: missing required column(s): %s", e.Source, strings.Join(e.Missing, ", "))
}

// UnmappedCategoryError indicates the category mapping does not cover every
// raw label present in the data. Raised at validation time, before any record
// is bucketed.
type UnmappedCategoryError struct {
	Labels []string // raw category labels with no canonical bucket, sorted
}

func (e *UnmappedCategoryError) Error() string {
	return fmt.Sprintf("category mapping does not cover %d label(s): %s",
		len(e.Labels), strings.Join(e.Labels, ", "))
}

package graph

import "fmt"

// ValidationError reports a schema or patch invariant violation. The store is
// unchanged when one is returned.
type ValidationError struct {
	Table  string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	switch {
	case e.Table != "" && e.Field != "":
		return fmt.Sprintf("table %q, field %q: %s", e.Table, e.Field, e.Reason)
	case e.Table != "":
		return fmt.Sprintf("table %q: %s", e.Table, e.Reason)
	default:
		return e.Reason
	}
}

// IncompleteGraphError reports a failed materialization precondition or a
// stale snapshot. Table names the first offending table when one exists.
type IncompleteGraphError struct {
	Table  string
	Reason string
}

func (e *IncompleteGraphError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("graph is incomplete: table %q: %s", e.Table, e.Reason)
	}
	return fmt.Sprintf("graph is incomplete: %s", e.Reason)
}

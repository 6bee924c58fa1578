// Package graph holds the in-memory metadata describing the relational graph
// the KumoRFM model predicts over: tables, their column semantic types and
// keys, and the foreign-key links between them.
//
// The store is the single mutable piece of server state besides the session.
// Mutations go through ApplyPatch and are all-or-nothing; a patch that fails
// validation leaves the store untouched. Every committed mutation bumps the
// store version, which invalidates previously materialized snapshots.
package graph

import "fmt"

// Stype is the semantic type of a column, which tells the model how to embed
// its values. Names match the wire format of the KumoRFM service.
type Stype string

const (
	StypeID          Stype = "ID"
	StypeNumerical   Stype = "numerical"
	StypeCategorical Stype = "categorical"
	StypeTimestamp   Stype = "timestamp"
	StypeText        Stype = "text"
)

// ValidStype reports whether s is a known semantic type.
func ValidStype(s Stype) bool {
	switch s {
	case StypeID, StypeNumerical, StypeCategorical, StypeTimestamp, StypeText:
		return true
	}
	return false
}

// Column is a named column with its semantic type.
type Column struct {
	Name  string `json:"name"`
	Stype Stype  `json:"stype"`
}

// Table describes one registered table: its source file, ordered columns,
// and the at-most-one primary key and time column.
type Table struct {
	Name       string   `json:"name"`
	Path       string   `json:"path"`
	Columns    []Column `json:"columns"`
	PrimaryKey string   `json:"primary_key,omitempty"`
	TimeColumn string   `json:"time_column,omitempty"`
}

// ColumnIndex returns the position of the named column, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Stypes returns the column-name-to-stype mapping of the table.
func (t *Table) Stypes() map[string]Stype {
	out := make(map[string]Stype, len(t.Columns))
	for _, c := range t.Columns {
		out[c.Name] = c.Stype
	}
	return out
}

func (t *Table) clone() *Table {
	cp := *t
	cp.Columns = make([]Column, len(t.Columns))
	copy(cp.Columns, t.Columns)
	return &cp
}

// Link is a many-to-one relationship from a foreign-key column in the source
// table to the primary key of the destination table.
type Link struct {
	SourceTable      string `json:"source_table"`
	ForeignKey       string `json:"foreign_key"`
	DestinationTable string `json:"destination_table"`
}

func (l Link) String() string {
	return fmt.Sprintf("%s.%s -> %s", l.SourceTable, l.ForeignKey, l.DestinationTable)
}

// Metadata is the read-only projection of the full graph state.
type Metadata struct {
	Tables []TableMetadata `json:"tables"`
	Links  []Link          `json:"links"`
}

// TableMetadata is the inspection view of one table.
type TableMetadata struct {
	Name       string           `json:"name"`
	Path       string           `json:"path"`
	Columns    []string         `json:"columns"`
	Stypes     map[string]Stype `json:"stypes"`
	PrimaryKey string           `json:"primary_key,omitempty"`
	TimeColumn string           `json:"time_column,omitempty"`
}

// AddTable registers a new table from a source file. When Stypes hints are
// absent, semantic types are inferred from a preview of the file.
type AddTable struct {
	Path       string           `json:"path"`
	Name       string           `json:"name"`
	PrimaryKey string           `json:"primary_key,omitempty"`
	TimeColumn string           `json:"time_column,omitempty"`
	Stypes     map[string]Stype `json:"stypes,omitempty"`
}

// UpdateTable is a partial update of one table's metadata. Nil pointer fields
// are left unchanged; pointers to the empty string clear the key.
type UpdateTable struct {
	PrimaryKey *string          `json:"primary_key,omitempty"`
	TimeColumn *string          `json:"time_column,omitempty"`
	Stypes     map[string]Stype `json:"stypes,omitempty"`
}

// Patch is the single mutation request against the store. Items are applied
// in field order: added tables, table updates, table removals (links touching
// a removed table are dropped with it), link additions, link removals.
type Patch struct {
	TablesToAdd    []AddTable             `json:"tables_to_add,omitempty"`
	TablesToUpdate map[string]UpdateTable `json:"tables_to_update,omitempty"`
	TablesToRemove []string               `json:"tables_to_remove,omitempty"`
	LinksToAdd     []Link                 `json:"links_to_add,omitempty"`
	LinksToRemove  []Link                 `json:"links_to_remove,omitempty"`
}

// Empty reports whether the patch contains no items.
func (p *Patch) Empty() bool {
	return len(p.TablesToAdd) == 0 && len(p.TablesToUpdate) == 0 &&
		len(p.TablesToRemove) == 0 && len(p.LinksToAdd) == 0 && len(p.LinksToRemove) == 0
}

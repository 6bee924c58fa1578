package graph

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"kumorfm/internal/inspector"
	"kumorfm/internal/logging"
)

// PreviewFunc reads the leading rows of a table file. It exists so tests can
// feed schemas without touching the filesystem.
type PreviewFunc func(ctx context.Context, path string, numRows int) (*inspector.TablePreview, error)

// inferencePreviewRows is how many rows are sampled for stype inference.
const inferencePreviewRows = 100

// Store is the graph metadata store. All mutations go through ApplyPatch and
// are serialized; reads take a shared lock and never block each other.
type Store struct {
	mu      sync.RWMutex
	preview PreviewFunc
	tables  []*Table
	links   []Link
	version uint64
}

// NewStore creates an empty store reading table schemas from local files.
func NewStore() *Store {
	return &Store{preview: inspector.PreviewFile}
}

// NewStoreWithPreview creates an empty store with a custom preview function.
func NewStoreWithPreview(fn PreviewFunc) *Store {
	return &Store{preview: fn}
}

// Version returns the current mutation counter.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// TableNames returns registered table names in insertion order.
func (s *Store) TableNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, len(s.tables))
	for i, t := range s.tables {
		names[i] = t.Name
	}
	return names
}

// NumLinks returns the number of committed links.
func (s *Store) NumLinks() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.links)
}

// Table returns a copy of the named table, if registered.
func (s *Store) Table(name string) (*Table, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tables {
		if t.Name == name {
			return t.clone(), true
		}
	}
	return nil, false
}

// Reset drops all tables and links and bumps the version.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables = nil
	s.links = nil
	s.version++
}

// Inspect returns the full metadata projection of the store.
func (s *Store) Inspect() *Metadata {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inspectLocked()
}

func (s *Store) inspectLocked() *Metadata {
	meta := &Metadata{
		Tables: make([]TableMetadata, 0, len(s.tables)),
		Links:  make([]Link, len(s.links)),
	}
	for _, t := range s.tables {
		columns := make([]string, len(t.Columns))
		for i, c := range t.Columns {
			columns[i] = c.Name
		}
		meta.Tables = append(meta.Tables, TableMetadata{
			Name:       t.Name,
			Path:       t.Path,
			Columns:    columns,
			Stypes:     t.Stypes(),
			PrimaryKey: t.PrimaryKey,
			TimeColumn: t.TimeColumn,
		})
	}
	copy(meta.Links, s.links)
	return meta
}

// ApplyPatch applies a metadata patch atomically: either every item commits
// or the store is left untouched and the first violation is returned as a
// ValidationError. A successful commit bumps the store version.
func (s *Store) ApplyPatch(ctx context.Context, p *Patch) (*Metadata, error) {
	if p == nil || p.Empty() {
		return nil, &ValidationError{Reason: "patch contains no changes"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Work on copies; commit is a pointer swap at the end.
	tables := make([]*Table, len(s.tables))
	for i, t := range s.tables {
		tables[i] = t.clone()
	}
	links := slices.Clone(s.links)

	for _, add := range p.TablesToAdd {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		table, err := s.buildTable(ctx, add)
		if err != nil {
			return nil, err
		}
		if findTable(tables, table.Name) != nil {
			return nil, &ValidationError{Table: table.Name, Reason: "table is already registered"}
		}
		tables = append(tables, table)
	}

	// Map iteration order is random; apply updates in sorted name order so
	// error reporting is deterministic.
	for _, name := range sortedKeys(p.TablesToUpdate) {
		table := findTable(tables, name)
		if table == nil {
			return nil, &ValidationError{Table: name, Reason: "table is not registered"}
		}
		if err := applyTableUpdate(table, p.TablesToUpdate[name]); err != nil {
			return nil, err
		}
	}

	for _, name := range p.TablesToRemove {
		if findTable(tables, name) == nil {
			return nil, &ValidationError{Table: name, Reason: "table is not registered"}
		}
		tables = slices.DeleteFunc(tables, func(t *Table) bool { return t.Name == name })
		// Links referencing a removed table go with it.
		links = slices.DeleteFunc(links, func(l Link) bool {
			return l.SourceTable == name || l.DestinationTable == name
		})
	}

	for _, link := range p.LinksToAdd {
		if err := validateLink(tables, links, link); err != nil {
			return nil, err
		}
		links = append(links, link)
	}

	for _, link := range p.LinksToRemove {
		idx := slices.Index(links, link)
		if idx < 0 {
			return nil, &ValidationError{
				Table:  link.SourceTable,
				Field:  link.ForeignKey,
				Reason: fmt.Sprintf("link %s does not exist", link),
			}
		}
		links = slices.Delete(links, idx, idx+1)
	}

	s.tables = tables
	s.links = links
	s.version++
	logging.Debug("Graph patch committed", "tables", len(tables), "links", len(links), "version", s.version)

	return s.inspectLocked(), nil
}

// buildTable constructs a Table from an AddTable request, inferring stypes
// from a file preview where hints are absent.
func (s *Store) buildTable(ctx context.Context, add AddTable) (*Table, error) {
	if add.Name == "" {
		return nil, &ValidationError{Field: "name", Reason: "table name cannot be empty"}
	}
	if add.Path == "" {
		return nil, &ValidationError{Table: add.Name, Field: "path", Reason: "table path cannot be empty"}
	}

	preview, err := s.preview(ctx, add.Path, inferencePreviewRows)
	if err != nil {
		return nil, &ValidationError{Table: add.Name, Field: "path", Reason: err.Error()}
	}
	if len(preview.Columns) == 0 {
		return nil, &ValidationError{Table: add.Name, Field: "path", Reason: "file has no columns"}
	}

	table := &Table{
		Name:    add.Name,
		Path:    add.Path,
		Columns: make([]Column, 0, len(preview.Columns)),
	}
	for _, col := range preview.Columns {
		stype := InferStype(col, previewValues(preview, col))
		if hint, ok := add.Stypes[col]; ok {
			if !ValidStype(hint) {
				return nil, &ValidationError{Table: add.Name, Field: col, Reason: fmt.Sprintf("unknown stype %q", hint)}
			}
			stype = hint
		}
		table.Columns = append(table.Columns, Column{Name: col, Stype: stype})
	}
	for col := range add.Stypes {
		if table.ColumnIndex(col) < 0 {
			return nil, &ValidationError{Table: add.Name, Field: col, Reason: "stype hint references unknown column"}
		}
	}

	if add.PrimaryKey != "" {
		if err := setPrimaryKey(table, add.PrimaryKey); err != nil {
			return nil, err
		}
	}
	if add.TimeColumn != "" {
		if err := setTimeColumn(table, add.TimeColumn); err != nil {
			return nil, err
		}
	}
	return table, nil
}

func applyTableUpdate(table *Table, update UpdateTable) error {
	for col, stype := range update.Stypes {
		idx := table.ColumnIndex(col)
		if idx < 0 {
			return &ValidationError{Table: table.Name, Field: col, Reason: "stype update references unknown column"}
		}
		if !ValidStype(stype) {
			return &ValidationError{Table: table.Name, Field: col, Reason: fmt.Sprintf("unknown stype %q", stype)}
		}
		table.Columns[idx].Stype = stype
	}

	if update.PrimaryKey != nil {
		if *update.PrimaryKey == "" {
			table.PrimaryKey = ""
		} else if err := setPrimaryKey(table, *update.PrimaryKey); err != nil {
			return err
		}
	}
	if update.TimeColumn != nil {
		if *update.TimeColumn == "" {
			table.TimeColumn = ""
		} else if err := setTimeColumn(table, *update.TimeColumn); err != nil {
			return err
		}
	}
	return nil
}

func setPrimaryKey(table *Table, column string) error {
	idx := table.ColumnIndex(column)
	if idx < 0 {
		return &ValidationError{Table: table.Name, Field: column, Reason: "primary key references unknown column"}
	}
	if table.TimeColumn == column {
		return &ValidationError{Table: table.Name, Field: column, Reason: "column cannot be both primary key and time column"}
	}
	table.PrimaryKey = column
	table.Columns[idx].Stype = StypeID
	return nil
}

func setTimeColumn(table *Table, column string) error {
	idx := table.ColumnIndex(column)
	if idx < 0 {
		return &ValidationError{Table: table.Name, Field: column, Reason: "time column references unknown column"}
	}
	if table.PrimaryKey == column {
		return &ValidationError{Table: table.Name, Field: column, Reason: "column cannot be both primary key and time column"}
	}
	table.TimeColumn = column
	table.Columns[idx].Stype = StypeTimestamp
	return nil
}

func validateLink(tables []*Table, links []Link, link Link) error {
	src := findTable(tables, link.SourceTable)
	if src == nil {
		return &ValidationError{Table: link.SourceTable, Reason: "source table is not registered"}
	}
	dst := findTable(tables, link.DestinationTable)
	if dst == nil {
		return &ValidationError{Table: link.DestinationTable, Reason: "destination table is not registered"}
	}
	if src.ColumnIndex(link.ForeignKey) < 0 {
		return &ValidationError{
			Table:  link.SourceTable,
			Field:  link.ForeignKey,
			Reason: "foreign key references unknown column",
		}
	}
	if dst.PrimaryKey == "" {
		return &ValidationError{
			Table:  link.DestinationTable,
			Reason: "destination table has no primary key",
		}
	}
	if link.SourceTable == link.DestinationTable && link.ForeignKey == src.PrimaryKey {
		return &ValidationError{
			Table:  link.SourceTable,
			Field:  link.ForeignKey,
			Reason: "self-link on the primary key is not allowed",
		}
	}
	if slices.Contains(links, link) {
		return &ValidationError{
			Table:  link.SourceTable,
			Field:  link.ForeignKey,
			Reason: fmt.Sprintf("link %s already exists", link),
		}
	}
	return nil
}

// InferLinks proposes foreign-key links by matching column names against the
// primary keys of other tables. It is a pure projection: proposals are not
// committed, repeated calls on an unchanged store return identical results.
func (s *Store) InferLinks() []Link {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var proposals []Link
	for _, src := range s.tables {
		for _, col := range src.Columns {
			if col.Name == src.PrimaryKey {
				continue
			}
			for _, dst := range s.tables {
				if dst.Name == src.Name || dst.PrimaryKey != col.Name {
					continue
				}
				link := Link{SourceTable: src.Name, ForeignKey: col.Name, DestinationTable: dst.Name}
				if !slices.Contains(s.links, link) && !slices.Contains(proposals, link) {
					proposals = append(proposals, link)
				}
			}
		}
	}
	return proposals
}

func findTable(tables []*Table, name string) *Table {
	for _, t := range tables {
		if t.Name == name {
			return t
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func previewValues(preview *inspector.TablePreview, column string) []any {
	values := make([]any, 0, len(preview.Rows))
	for _, row := range preview.Rows {
		values = append(values, row[column])
	}
	return values
}

package graph

import (
	"fmt"
	"slices"
	"strings"
)

// Mermaid renders the current graph as a mermaid entity-relationship
// diagram. With showColumns=false only key and time columns are listed,
// which keeps large schemas readable.
func (s *Store) Mermaid(showColumns bool) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Foreign keys per source table, in link order.
	foreignKeys := make(map[string][]string)
	for _, link := range s.links {
		foreignKeys[link.SourceTable] = append(foreignKeys[link.SourceTable], link.ForeignKey)
	}

	var b strings.Builder
	b.WriteString("erDiagram\n")
	for _, table := range s.tables {
		fmt.Fprintf(&b, "    %s {\n", table.Name)
		for _, col := range table.Columns {
			marker := ""
			switch {
			case col.Name == table.PrimaryKey:
				marker = " PK"
			case slices.Contains(foreignKeys[table.Name], col.Name):
				marker = " FK"
			case col.Name == table.TimeColumn:
			default:
				if !showColumns {
					continue
				}
			}
			fmt.Fprintf(&b, "        %s %s%s\n", col.Stype, col.Name, marker)
		}
		b.WriteString("    }\n")
	}

	b.WriteString("\n")
	lines := make([]string, 0, len(s.links))
	for _, link := range s.links {
		lines = append(lines, fmt.Sprintf("    %s o|--o{ %s : %s",
			link.DestinationTable, link.SourceTable, link.ForeignKey))
	}
	b.WriteString(strings.Join(lines, "\n"))
	return b.String()
}

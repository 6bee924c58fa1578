package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"kumorfm/internal/inspector"
	"kumorfm/internal/logging"
)

// StatsFunc computes row counts and the time range of a table file.
// Production wires inspector.ScanStats; tests substitute fixtures.
type StatsFunc func(ctx context.Context, path, timeColumn string) (*inspector.TableStats, error)

// Snapshot is an immutable materialized view of the graph. It captures the
// store version at materialization time; any later metadata change makes the
// snapshot stale and predictions against it are rejected.
type Snapshot struct {
	ID         string            `json:"graph_id"`
	Version    uint64            `json:"-"`
	Tables     []Table           `json:"-"`
	Links      []Link            `json:"-"`
	NumNodes   int64             `json:"num_nodes"`
	NumEdges   int64             `json:"num_edges"`
	TimeRanges map[string]string `json:"time_ranges"`
	CreatedAt  time.Time         `json:"-"`
}

// Stale reports whether the store has been mutated since the snapshot was
// taken.
func (sn *Snapshot) Stale(s *Store) bool {
	return sn.Version != s.Version()
}

// Materialize validates graph completeness, scans every table file and
// returns a snapshot. Table scans run concurrently; the first failure
// cancels the rest.
func (s *Store) Materialize(ctx context.Context, stats StatsFunc) (*Snapshot, error) {
	s.mu.RLock()
	version := s.version
	tables := make([]Table, 0, len(s.tables))
	for _, t := range s.tables {
		tables = append(tables, *t.clone())
	}
	links := make([]Link, len(s.links))
	copy(links, s.links)
	s.mu.RUnlock()

	if err := checkComplete(tables, links); err != nil {
		return nil, err
	}

	start := time.Now()
	results := make([]*inspector.TableStats, len(tables))
	g, gctx := errgroup.WithContext(ctx)
	for i, table := range tables {
		g.Go(func() error {
			st, err := stats(gctx, table.Path, table.TimeColumn)
			if err != nil {
				return fmt.Errorf("scanning table %s: %w", table.Name, err)
			}
			results[i] = st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rowCounts := make(map[string]int64, len(tables))
	timeRanges := make(map[string]string)
	var numNodes int64
	for i, table := range tables {
		rowCounts[table.Name] = results[i].NumRows
		numNodes += results[i].NumRows
		if table.TimeColumn != "" && results[i].TimeMin != "" {
			timeRanges[table.Name] = fmt.Sprintf("%s - %s", results[i].TimeMin, results[i].TimeMax)
		}
	}

	// Edges are bidirectional: every link contributes two edges per
	// source-table row.
	var numEdges int64
	for _, link := range links {
		numEdges += 2 * rowCounts[link.SourceTable]
	}

	snapshot := &Snapshot{
		ID:         uuid.NewString(),
		Version:    version,
		Tables:     tables,
		Links:      links,
		NumNodes:   numNodes,
		NumEdges:   numEdges,
		TimeRanges: timeRanges,
		CreatedAt:  time.Now(),
	}
	logging.LogPerformance("materialize_graph", start,
		"tables", len(tables), "nodes", numNodes, "edges", numEdges)
	return snapshot, nil
}

// Table returns the snapshot's copy of the named table, if present.
func (sn *Snapshot) Table(name string) (*Table, bool) {
	for i := range sn.Tables {
		if sn.Tables[i].Name == name {
			return &sn.Tables[i], true
		}
	}
	return nil, false
}

// checkComplete verifies the graph can be materialized: at least one table,
// and with two or more tables every table must be reachable through links.
func checkComplete(tables []Table, links []Link) error {
	if len(tables) == 0 {
		return &IncompleteGraphError{Reason: "no tables are registered"}
	}
	if len(tables) == 1 {
		return nil
	}

	adjacent := make(map[string][]string)
	for _, link := range links {
		adjacent[link.SourceTable] = append(adjacent[link.SourceTable], link.DestinationTable)
		adjacent[link.DestinationTable] = append(adjacent[link.DestinationTable], link.SourceTable)
	}

	visited := map[string]bool{tables[0].Name: true}
	queue := []string{tables[0].Name}
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		for _, next := range adjacent[name] {
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}

	for _, table := range tables {
		if !visited[table.Name] {
			return &IncompleteGraphError{
				Table:  table.Name,
				Reason: "table is not connected to the rest of the graph",
			}
		}
	}
	return nil
}

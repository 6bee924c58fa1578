// Package kumo is the HTTP gateway to the KumoRFM prediction service. It
// validates request shape locally and relays predictive queries against a
// materialized graph snapshot; query grammar is owned by the remote service.
package kumo

import (
	"fmt"
	"time"

	"kumorfm/internal/graph"
)

// Run modes trade latency for model quality.
const (
	RunModeFast   = "fast"
	RunModeNormal = "normal"
	RunModeBest   = "best"
)

const (
	// AnchorTimeEntity anchors each prediction at the entity's latest event.
	AnchorTimeEntity = "entity"

	anchorTimeLayout = "2006-01-02 15:04:05"

	// MaxHops bounds the num_neighbors sampling specification.
	MaxHops = 6

	// DefaultMaxPQIterations bounds query planning on the remote side.
	DefaultMaxPQIterations = 20
)

// QueryOptions are the knobs shared by predict and evaluate.
type QueryOptions struct {
	// AnchorTime is a "YYYY-MM-DD hh:mm:ss" timestamp, the literal "entity",
	// or empty for the latest time in the graph.
	AnchorTime string `json:"anchor_time,omitempty"`
	// RunMode is fast, normal or best. Empty defaults to fast.
	RunMode string `json:"run_mode"`
	// NumNeighbors is the per-hop neighbor sampling specification.
	NumNeighbors []int `json:"num_neighbors,omitempty"`
	// MaxPQIterations caps query planning iterations.
	MaxPQIterations int `json:"max_pq_iterations"`
}

// Normalize fills defaults in place.
func (o *QueryOptions) Normalize() {
	if o.RunMode == "" {
		o.RunMode = RunModeFast
	}
	if o.MaxPQIterations <= 0 {
		o.MaxPQIterations = DefaultMaxPQIterations
	}
}

// Validate checks option shape. The query text itself is not parsed locally.
func (o *QueryOptions) Validate() error {
	switch o.RunMode {
	case RunModeFast, RunModeNormal, RunModeBest:
	default:
		return fmt.Errorf("unknown run mode %q, expected %s, %s or %s",
			o.RunMode, RunModeFast, RunModeNormal, RunModeBest)
	}

	if o.AnchorTime != "" && o.AnchorTime != AnchorTimeEntity {
		if _, err := time.Parse(anchorTimeLayout, o.AnchorTime); err != nil {
			return fmt.Errorf("anchor time %q must be formatted as %q or be the literal %q",
				o.AnchorTime, anchorTimeLayout, AnchorTimeEntity)
		}
	}

	if len(o.NumNeighbors) > MaxHops {
		return fmt.Errorf("num_neighbors supports at most %d hops, got %d",
			MaxHops, len(o.NumNeighbors))
	}
	for i, n := range o.NumNeighbors {
		if n < 0 {
			return fmt.Errorf("num_neighbors[%d] must be non-negative, got %d", i, n)
		}
	}
	return nil
}

// TablePayload is the wire description of one table schema.
type TablePayload struct {
	Name       string                 `json:"name"`
	Path       string                 `json:"path"`
	Stypes     map[string]graph.Stype `json:"stypes"`
	PrimaryKey string                 `json:"primary_key,omitempty"`
	TimeColumn string                 `json:"time_column,omitempty"`
}

// GraphPayload is the frozen graph description sent with every query.
type GraphPayload struct {
	GraphID string         `json:"graph_id"`
	Tables  []TablePayload `json:"tables"`
	Links   []graph.Link   `json:"links"`
}

// NewGraphPayload freezes a materialized snapshot into its wire form.
func NewGraphPayload(sn *graph.Snapshot) *GraphPayload {
	payload := &GraphPayload{
		GraphID: sn.ID,
		Tables:  make([]TablePayload, 0, len(sn.Tables)),
		Links:   sn.Links,
	}
	for i := range sn.Tables {
		t := &sn.Tables[i]
		payload.Tables = append(payload.Tables, TablePayload{
			Name:       t.Name,
			Path:       t.Path,
			Stypes:     t.Stypes(),
			PrimaryKey: t.PrimaryKey,
			TimeColumn: t.TimeColumn,
		})
	}
	return payload
}

// PredictRequest is a predictive query against a frozen graph.
type PredictRequest struct {
	Query string        `json:"query"`
	Graph *GraphPayload `json:"graph"`
	QueryOptions
}

// Validate checks request shape before it leaves the process.
func (r *PredictRequest) Validate() error {
	if r.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if r.Graph == nil {
		return fmt.Errorf("request carries no graph")
	}
	return r.QueryOptions.Validate()
}

// EvaluateRequest additionally names the metrics to compute on held-out data.
type EvaluateRequest struct {
	PredictRequest
	Metrics []string `json:"metrics,omitempty"`
}

// PredictResponse relays prediction rows unmodified.
type PredictResponse struct {
	Predictions []map[string]any `json:"predictions"`
	Logs        []string         `json:"logs,omitempty"`
}

// EvaluateResponse relays computed metrics unmodified.
type EvaluateResponse struct {
	Metrics map[string]float64 `json:"metrics"`
	Logs    []string           `json:"logs,omitempty"`
}

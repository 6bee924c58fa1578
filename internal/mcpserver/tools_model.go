package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"kumorfm/internal/kumo"
)

// modelQueryArgs are the shared predict/evaluate parameters.
type modelQueryArgs struct {
	Query           string   `json:"query"`
	AnchorTime      string   `json:"anchor_time"`
	RunMode         string   `json:"run_mode"`
	NumNeighbors    []int    `json:"num_neighbors"`
	MaxPQIterations int      `json:"max_pq_iterations"`
	Metrics         []string `json:"metrics"`
}

func (s *Server) registerModelTools() {
	predictTool := mcp.NewTool("predict",
		mcp.WithDescription("Execute a predictive query and return model predictions. The graph "+
			"needs to be materialized first. Query syntax: PREDICT <target_expression> FOR "+
			"<entity_specification> [WHERE <filters>]; see kumo://docs/pql-guide and "+
			"kumo://docs/pql-reference."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The predictive query, e.g. "+
				"\"PREDICT COUNT(orders.*, 0, 30, days)>0 FOR users.user_id=1\""),
		),
		mcp.WithString("anchor_time",
			mcp.Description("Prediction anchor timestamp in YYYY-MM-DD hh:mm:ss format. Omit to "+
				"use the maximum timestamp in the data. The literal \"entity\" anchors each "+
				"prediction at the entity's own timestamp, which prevents future data leakage "+
				"when predicting for facts."),
		),
		mcp.WithString("run_mode",
			mcp.Description("Trades runtime with model performance: fast (default), normal or "+
				"best. Dictates how many context examples are sampled per prediction."),
		),
		mcp.WithArray("num_neighbors",
			mcp.Description("Neighbors to sample per hop when building subgraphs, e.g. [24, 12]. "+
				"Up to 6 hops. Omit for the recommended two-hop default. Let the count shrink "+
				"in later hops to prevent neighbor explosion."),
		),
		mcp.WithNumber("max_pq_iterations",
			mcp.Description("Maximum iterations to collect valid context examples (default 20)"),
		),
	)
	s.mcpServer.AddTool(predictTool, s.handlePredict)

	evaluateTool := mcp.NewTool("evaluate",
		mcp.WithDescription("Evaluate a predictive query against known ground-truth labels from "+
			"historical examples and return performance metrics. The graph needs to be "+
			"materialized first."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The predictive query to evaluate"),
		),
		mcp.WithArray("metrics",
			mcp.Description("Metrics to compute. Omit for a pre-selection matching the query's "+
				"task type."),
		),
		mcp.WithString("anchor_time",
			mcp.Description("Prediction anchor timestamp in YYYY-MM-DD hh:mm:ss format, the "+
				"literal \"entity\", or omitted for the data maximum"),
		),
		mcp.WithString("run_mode",
			mcp.Description("fast (default), normal or best"),
		),
		mcp.WithArray("num_neighbors",
			mcp.Description("Neighbors to sample per hop, up to 6 hops"),
		),
		mcp.WithNumber("max_pq_iterations",
			mcp.Description("Maximum iterations to collect valid context examples (default 20)"),
		),
	)
	s.mcpServer.AddTool(evaluateTool, s.handleEvaluate)
}

// prepareModelQuery validates the request locally, authenticates the session
// and freezes the current snapshot into a request. Validation runs first so a
// malformed query never triggers an interactive authentication flow.
func (s *Server) prepareModelQuery(ctx context.Context, args *modelQueryArgs) (*kumo.PredictRequest, *mcp.CallToolResult) {
	if args.Query == "" {
		return nil, fail("Missing or invalid 'query' parameter", nil)
	}
	opts := kumo.QueryOptions{
		AnchorTime:      args.AnchorTime,
		RunMode:         args.RunMode,
		NumNeighbors:    args.NumNeighbors,
		MaxPQIterations: args.MaxPQIterations,
	}
	opts.Normalize()
	if err := opts.Validate(); err != nil {
		return nil, fail("Invalid query options", err)
	}

	if err := s.session.EnsureAuthenticated(ctx); err != nil {
		return nil, fail("Authentication required", err)
	}
	snapshot, err := s.session.FreshSnapshot()
	if err != nil {
		return nil, fail("Graph is not ready for predictions", err)
	}

	return &kumo.PredictRequest{
		Query:        args.Query,
		Graph:        kumo.NewGraphPayload(snapshot),
		QueryOptions: opts,
	}, nil
}

func (s *Server) handlePredict(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args modelQueryArgs
	if err := request.BindArguments(&args); err != nil {
		return fail("Invalid arguments", err), nil
	}

	req, failure := s.prepareModelQuery(ctx, &args)
	if failure != nil {
		return failure, nil
	}

	resp, err := s.gateway.Predict(ctx, req)
	if err != nil {
		return fail("Prediction failed", err), nil
	}

	return ok("Prediction completed successfully", map[string]any{
		"predictions": resp.Predictions,
		"logs":        resp.Logs,
	}), nil
}

func (s *Server) handleEvaluate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args modelQueryArgs
	if err := request.BindArguments(&args); err != nil {
		return fail("Invalid arguments", err), nil
	}

	req, failure := s.prepareModelQuery(ctx, &args)
	if failure != nil {
		return failure, nil
	}

	resp, err := s.gateway.Evaluate(ctx, &kumo.EvaluateRequest{
		PredictRequest: *req,
		Metrics:        args.Metrics,
	})
	if err != nil {
		return fail("Evaluation failed", err), nil
	}

	return ok("Evaluation completed successfully", map[string]any{
		"metrics": resp.Metrics,
		"logs":    resp.Logs,
	}), nil
}

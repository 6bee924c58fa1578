package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/zalando/go-keyring"

	"kumorfm/internal/config"
	"kumorfm/internal/docs"
	"kumorfm/internal/graph"
	"kumorfm/internal/kumo"
	"kumorfm/internal/logging"
	"kumorfm/internal/session"
)

func newTestServer(t *testing.T, apiURL string) *Server {
	t.Helper()
	keyring.MockInit()

	cfg := config.Default()
	cfg.APIKey = "test-key"
	cfg.APIURL = apiURL
	cfg.AuthTimeout = 100 * time.Millisecond

	corpus, err := docs.Load()
	if err != nil {
		t.Fatalf("Failed to load docs: %v", err)
	}

	logger, _ := logging.NewTestLogger()
	store := graph.NewStore()
	sess := session.New(&cfg, store)

	return &Server{
		cfg:     &cfg,
		logger:  logger,
		store:   store,
		session: sess,
		gateway: kumo.NewClient(apiURL, sess, 5*time.Second),
		docs:    corpus,
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

// writeFixtures creates a small users/orders pair of CSV files.
func writeFixtures(t *testing.T, dir string) (usersPath, ordersPath string) {
	t.Helper()
	usersPath = writeFile(t, dir, "users.csv",
		"USER_ID,AGE\n1,30\n2,40\n3,50\n")
	ordersPath = writeFile(t, dir, "orders.csv",
		"ORDER_ID,USER_ID,TIME\n10,1,2025-01-01 00:00:00\n11,2,2025-01-02 00:00:00\n")
	return usersPath, ordersPath
}

func callRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{Arguments: args},
	}
}

// decodeResult unpacks the envelope from a tool result.
func decodeResult(t *testing.T, result *mcp.CallToolResult) (bool, string, map[string]any) {
	t.Helper()
	if len(result.Content) != 1 {
		t.Fatalf("Expected a single content item, got %d", len(result.Content))
	}
	text, isText := result.Content[0].(mcp.TextContent)
	if !isText {
		t.Fatalf("Expected text content, got %T", result.Content[0])
	}

	var env struct {
		Success bool           `json:"success"`
		Message string         `json:"message"`
		Data    map[string]any `json:"data"`
	}
	if err := json.Unmarshal([]byte(text.Text), &env); err != nil {
		t.Fatalf("Failed to decode envelope %q: %v", text.Text, err)
	}
	return env.Success, env.Message, env.Data
}

// buildGraph registers the fixture tables and their link through the
// update_graph_metadata handler.
func buildGraph(t *testing.T, s *Server, usersPath, ordersPath string) {
	t.Helper()
	result, err := s.handleUpdateGraphMetadata(context.Background(), callRequest(map[string]any{
		"tables_to_add": []any{
			map[string]any{"path": usersPath, "name": "users", "primary_key": "USER_ID"},
			map[string]any{"path": ordersPath, "name": "orders", "primary_key": "ORDER_ID", "time_column": "TIME"},
		},
		"links_to_add": []any{
			map[string]any{"source_table": "orders", "foreign_key": "USER_ID", "destination_table": "users"},
		},
	}))
	if err != nil {
		t.Fatalf("handleUpdateGraphMetadata returned error: %v", err)
	}
	success, message, _ := decodeResult(t, result)
	if !success {
		t.Fatalf("Failed to build graph: %s", message)
	}
}

func TestHandleFindTableFiles(t *testing.T) {
	dir := t.TempDir()
	writeFixtures(t, dir)
	writeFile(t, dir, "notes.txt", "not a table")
	s := newTestServer(t, "http://unused")

	result, err := s.handleFindTableFiles(context.Background(), callRequest(map[string]any{
		"directory": dir,
	}))
	if err != nil {
		t.Fatalf("handleFindTableFiles returned error: %v", err)
	}

	success, message, data := decodeResult(t, result)
	if !success {
		t.Fatalf("Expected success, got %q", message)
	}
	files, _ := data["files"].([]any)
	if len(files) != 2 {
		t.Errorf("Expected 2 table files, got %d", len(files))
	}
}

func TestHandleFindTableFiles_MissingDirectory(t *testing.T) {
	s := newTestServer(t, "http://unused")

	result, err := s.handleFindTableFiles(context.Background(), callRequest(map[string]any{
		"directory": "/nonexistent/data",
	}))
	if err != nil {
		t.Fatalf("handleFindTableFiles returned error: %v", err)
	}
	if success, message, _ := decodeResult(t, result); success {
		t.Errorf("Expected failure for missing directory, got %q", message)
	}
}

func TestHandleInspectTableFiles(t *testing.T) {
	dir := t.TempDir()
	usersPath, ordersPath := writeFixtures(t, dir)
	s := newTestServer(t, "http://unused")

	result, err := s.handleInspectTableFiles(context.Background(), callRequest(map[string]any{
		"paths":    []any{usersPath, ordersPath},
		"num_rows": 2,
	}))
	if err != nil {
		t.Fatalf("handleInspectTableFiles returned error: %v", err)
	}

	success, message, data := decodeResult(t, result)
	if !success {
		t.Fatalf("Expected success, got %q", message)
	}
	tables, _ := data["tables"].([]any)
	if len(tables) != 2 {
		t.Fatalf("Expected 2 inspected tables, got %d", len(tables))
	}
	first, _ := tables[0].(map[string]any)
	if first["path"] != usersPath {
		t.Errorf("Expected results in request order, got %v first", first["path"])
	}
	rows, _ := first["rows"].([]any)
	if len(rows) != 2 {
		t.Errorf("Expected 2 preview rows, got %d", len(rows))
	}
}

func TestHandleInspectTableFiles_ConfiguredRowCap(t *testing.T) {
	dir := t.TempDir()
	usersPath, _ := writeFixtures(t, dir)
	s := newTestServer(t, "http://unused")
	s.cfg.MaxPreviewRows = 1

	result, err := s.handleInspectTableFiles(context.Background(), callRequest(map[string]any{
		"paths":    []any{usersPath},
		"num_rows": 3,
	}))
	if err != nil {
		t.Fatalf("handleInspectTableFiles returned error: %v", err)
	}
	success, message, data := decodeResult(t, result)
	if !success {
		t.Fatalf("Expected success, got %q", message)
	}
	tables, _ := data["tables"].([]any)
	first, _ := tables[0].(map[string]any)
	rows, _ := first["rows"].([]any)
	if len(rows) != 1 {
		t.Errorf("Expected the configured cap of 1 row, got %d", len(rows))
	}
}

func TestHandleLookupTableRows_ConfiguredIDCap(t *testing.T) {
	dir := t.TempDir()
	usersPath, ordersPath := writeFixtures(t, dir)
	s := newTestServer(t, "http://unused")
	s.cfg.MaxPreviewRows = 2
	buildGraph(t, s, usersPath, ordersPath)

	ctx := context.Background()
	if result, err := s.handleMaterializeGraph(ctx, callRequest(nil)); err != nil {
		t.Fatalf("handleMaterializeGraph returned error: %v", err)
	} else if success, message, _ := decodeResult(t, result); !success {
		t.Fatalf("Materialization failed: %s", message)
	}

	result, err := s.handleLookupTableRows(ctx, callRequest(map[string]any{
		"table_name": "users",
		"ids":        []any{float64(1), float64(2), float64(3)},
	}))
	if err != nil {
		t.Fatalf("handleLookupTableRows returned error: %v", err)
	}
	success, message, _ := decodeResult(t, result)
	if success || !strings.Contains(message, "limited to 2 ids") {
		t.Errorf("Expected an id cap failure, got success=%v %q", success, message)
	}
}

func TestHandleInspectTableFiles_BadPath(t *testing.T) {
	s := newTestServer(t, "http://unused")

	result, err := s.handleInspectTableFiles(context.Background(), callRequest(map[string]any{
		"paths": []any{"/nonexistent/users.csv"},
	}))
	if err != nil {
		t.Fatalf("handleInspectTableFiles returned error: %v", err)
	}
	if success, message, _ := decodeResult(t, result); success {
		t.Errorf("Expected failure for missing file, got %q", message)
	}
}

func TestGraphLifecycle(t *testing.T) {
	dir := t.TempDir()
	usersPath, ordersPath := writeFixtures(t, dir)
	s := newTestServer(t, "http://unused")
	buildGraph(t, s, usersPath, ordersPath)

	ctx := context.Background()

	result, err := s.handleInspectGraphMetadata(ctx, callRequest(nil))
	if err != nil {
		t.Fatalf("handleInspectGraphMetadata returned error: %v", err)
	}
	success, _, data := decodeResult(t, result)
	if !success {
		t.Fatal("Expected graph inspection to succeed")
	}
	tables, _ := data["tables"].([]any)
	links, _ := data["links"].([]any)
	if len(tables) != 2 || len(links) != 1 {
		t.Errorf("Expected 2 tables and 1 link, got %d and %d", len(tables), len(links))
	}

	result, err = s.handleGetMermaid(ctx, callRequest(map[string]any{"show_columns": false}))
	if err != nil {
		t.Fatalf("handleGetMermaid returned error: %v", err)
	}
	_, _, data = decodeResult(t, result)
	diagram, _ := data["mermaid"].(string)
	if !strings.HasPrefix(diagram, "erDiagram") || !strings.Contains(diagram, "users o|--o{ orders : USER_ID") {
		t.Errorf("Unexpected mermaid diagram:\n%s", diagram)
	}

	result, err = s.handleMaterializeGraph(ctx, callRequest(nil))
	if err != nil {
		t.Fatalf("handleMaterializeGraph returned error: %v", err)
	}
	success, message, data := decodeResult(t, result)
	if !success {
		t.Fatalf("Expected materialization to succeed, got %q", message)
	}
	if data["num_nodes"] != float64(5) || data["num_edges"] != float64(4) {
		t.Errorf("Expected 5 nodes and 4 edges, got %v and %v", data["num_nodes"], data["num_edges"])
	}
}

func TestGraphLifecycle_InferLinks(t *testing.T) {
	dir := t.TempDir()
	usersPath, ordersPath := writeFixtures(t, dir)
	s := newTestServer(t, "http://unused")

	result, err := s.handleUpdateGraphMetadata(context.Background(), callRequest(map[string]any{
		"tables_to_add": []any{
			map[string]any{"path": usersPath, "name": "users", "primary_key": "USER_ID"},
			map[string]any{"path": ordersPath, "name": "orders", "primary_key": "ORDER_ID"},
		},
	}))
	if err != nil {
		t.Fatalf("handleUpdateGraphMetadata returned error: %v", err)
	}
	if success, message, _ := decodeResult(t, result); !success {
		t.Fatalf("Failed to add tables: %s", message)
	}

	result, err = s.handleInferLinks(context.Background(), callRequest(nil))
	if err != nil {
		t.Fatalf("handleInferLinks returned error: %v", err)
	}
	_, _, data := decodeResult(t, result)
	inferred, _ := data["inferred_links"].([]any)
	if len(inferred) != 1 {
		t.Fatalf("Expected 1 inferred link, got %d", len(inferred))
	}
	link, _ := inferred[0].(map[string]any)
	if link["source_table"] != "orders" || link["destination_table"] != "users" {
		t.Errorf("Unexpected inferred link: %v", link)
	}
}

func TestHandleUpdateGraphMetadata_Invalid(t *testing.T) {
	s := newTestServer(t, "http://unused")

	result, err := s.handleUpdateGraphMetadata(context.Background(), callRequest(map[string]any{
		"links_to_add": []any{
			map[string]any{"source_table": "nope", "foreign_key": "X", "destination_table": "also_nope"},
		},
	}))
	if err != nil {
		t.Fatalf("handleUpdateGraphMetadata returned error: %v", err)
	}
	if success, message, _ := decodeResult(t, result); success {
		t.Errorf("Expected failure for link between unknown tables, got %q", message)
	}
	if len(s.store.TableNames()) != 0 {
		t.Error("Failed patch must leave the store untouched")
	}
}

func TestHandleLookupTableRows(t *testing.T) {
	dir := t.TempDir()
	usersPath, ordersPath := writeFixtures(t, dir)
	s := newTestServer(t, "http://unused")
	buildGraph(t, s, usersPath, ordersPath)

	ctx := context.Background()
	if result, err := s.handleMaterializeGraph(ctx, callRequest(nil)); err != nil {
		t.Fatalf("handleMaterializeGraph returned error: %v", err)
	} else if success, message, _ := decodeResult(t, result); !success {
		t.Fatalf("Materialization failed: %s", message)
	}

	result, err := s.handleLookupTableRows(ctx, callRequest(map[string]any{
		"table_name": "users",
		"ids":        []any{float64(3), float64(1), float64(99)},
	}))
	if err != nil {
		t.Fatalf("handleLookupTableRows returned error: %v", err)
	}
	success, message, data := decodeResult(t, result)
	if !success {
		t.Fatalf("Expected success, got %q", message)
	}
	if message != "Found 2 of 3 requested rows" {
		t.Errorf("Unexpected message %q", message)
	}
	rows, _ := data["rows"].([]any)
	if len(rows) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(rows))
	}
	first, _ := rows[0].(map[string]any)
	if first["USER_ID"] != float64(3) {
		t.Errorf("Expected rows in request order, got %v first", first["USER_ID"])
	}
}

func TestHandleLookupTableRows_NotMaterialized(t *testing.T) {
	s := newTestServer(t, "http://unused")

	result, err := s.handleLookupTableRows(context.Background(), callRequest(map[string]any{
		"table_name": "users",
		"ids":        []any{float64(1)},
	}))
	if err != nil {
		t.Fatalf("handleLookupTableRows returned error: %v", err)
	}
	success, message, _ := decodeResult(t, result)
	if success || !strings.Contains(message, "materialized") {
		t.Errorf("Expected a not-materialized failure, got success=%v %q", success, message)
	}
}

func TestHandlePredict(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/predict" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("Unexpected auth header %q", r.Header.Get("Authorization"))
		}
		json.NewEncoder(w).Encode(map[string]any{
			"predictions": []map[string]any{{"ENTITY": 1, "TARGET_PRED": true}},
			"logs":        []string{"sampled 2 context examples"},
		})
	}))
	defer backend.Close()

	dir := t.TempDir()
	usersPath, ordersPath := writeFixtures(t, dir)
	s := newTestServer(t, backend.URL)
	buildGraph(t, s, usersPath, ordersPath)

	ctx := context.Background()
	if result, err := s.handleMaterializeGraph(ctx, callRequest(nil)); err != nil {
		t.Fatalf("handleMaterializeGraph returned error: %v", err)
	} else if success, message, _ := decodeResult(t, result); !success {
		t.Fatalf("Materialization failed: %s", message)
	}

	result, err := s.handlePredict(ctx, callRequest(map[string]any{
		"query": "PREDICT COUNT(orders.*, 0, 30, days)>0 FOR users.USER_ID=1",
	}))
	if err != nil {
		t.Fatalf("handlePredict returned error: %v", err)
	}
	success, message, data := decodeResult(t, result)
	if !success {
		t.Fatalf("Expected success, got %q", message)
	}
	predictions, _ := data["predictions"].([]any)
	if len(predictions) != 1 {
		t.Errorf("Expected 1 prediction, got %d", len(predictions))
	}
	logs, _ := data["logs"].([]any)
	if len(logs) != 1 || logs[0] != "sampled 2 context examples" {
		t.Errorf("Expected logs to be forwarded, got %v", data["logs"])
	}
}

func TestHandlePredict_InvalidQueryStaysLocal(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("No request must reach the backend")
	}))
	defer backend.Close()

	s := newTestServer(t, backend.URL)
	s.cfg.APIKey = ""
	authorized := false
	s.session.SetAuthorizeFunc(func(ctx context.Context, cfg *config.Config) (string, error) {
		authorized = true
		return "", errors.New("interactive flow must not run")
	})

	result, err := s.handlePredict(context.Background(), callRequest(map[string]any{
		"query": "",
	}))
	if err != nil {
		t.Fatalf("handlePredict returned error: %v", err)
	}
	success, message, _ := decodeResult(t, result)
	if success || !strings.Contains(message, "query") {
		t.Errorf("Expected a local query failure, got success=%v %q", success, message)
	}

	result, err = s.handlePredict(context.Background(), callRequest(map[string]any{
		"query":    "PREDICT COUNT(orders.*, 0, 7)>0 FOR users.USER_ID=1",
		"run_mode": "warp",
	}))
	if err != nil {
		t.Fatalf("handlePredict returned error: %v", err)
	}
	success, message, _ = decodeResult(t, result)
	if success || !strings.Contains(message, "run mode") {
		t.Errorf("Expected a local run mode failure, got success=%v %q", success, message)
	}

	if authorized {
		t.Error("Validation must run before authentication")
	}
}

func TestHandlePredict_NotMaterialized(t *testing.T) {
	s := newTestServer(t, "http://unused")

	result, err := s.handlePredict(context.Background(), callRequest(map[string]any{
		"query": "PREDICT COUNT(orders.*, 0, 7)>0 FOR users.USER_ID=1",
	}))
	if err != nil {
		t.Fatalf("handlePredict returned error: %v", err)
	}
	success, message, _ := decodeResult(t, result)
	if success || !strings.Contains(message, "not ready") {
		t.Errorf("Expected a not-ready failure, got success=%v %q", success, message)
	}
}

func TestHandleEvaluate(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/evaluate" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"metrics": map[string]float64{"auroc": 0.87},
		})
	}))
	defer backend.Close()

	dir := t.TempDir()
	usersPath, ordersPath := writeFixtures(t, dir)
	s := newTestServer(t, backend.URL)
	buildGraph(t, s, usersPath, ordersPath)

	ctx := context.Background()
	if result, err := s.handleMaterializeGraph(ctx, callRequest(nil)); err != nil {
		t.Fatalf("handleMaterializeGraph returned error: %v", err)
	} else if success, message, _ := decodeResult(t, result); !success {
		t.Fatalf("Materialization failed: %s", message)
	}

	result, err := s.handleEvaluate(ctx, callRequest(map[string]any{
		"query":   "PREDICT COUNT(orders.*, 0, 30, days)>0 FOR users.USER_ID=1",
		"metrics": []any{"auroc"},
	}))
	if err != nil {
		t.Fatalf("handleEvaluate returned error: %v", err)
	}
	success, message, data := decodeResult(t, result)
	if !success {
		t.Fatalf("Expected success, got %q", message)
	}
	metrics, _ := data["metrics"].(map[string]any)
	if metrics["auroc"] != 0.87 {
		t.Errorf("Expected auroc metric, got %v", metrics)
	}
}

func TestHandleSessionStatusAndClear(t *testing.T) {
	dir := t.TempDir()
	usersPath, ordersPath := writeFixtures(t, dir)
	s := newTestServer(t, "http://unused")
	buildGraph(t, s, usersPath, ordersPath)

	ctx := context.Background()
	result, err := s.handleGetSessionStatus(ctx, callRequest(nil))
	if err != nil {
		t.Fatalf("handleGetSessionStatus returned error: %v", err)
	}
	success, message, data := decodeResult(t, result)
	if !success || message != "Session status retrieved successfully" {
		t.Fatalf("Unexpected status result: success=%v %q", success, message)
	}
	names, _ := data["table_names"].([]any)
	if len(names) != 2 {
		t.Errorf("Expected 2 registered tables, got %v", names)
	}
	if data["is_rfm_model_ready"] != false {
		t.Error("Model must not be ready before materialization")
	}

	if err := s.session.EnsureAuthenticated(ctx); err != nil {
		t.Fatalf("EnsureAuthenticated failed: %v", err)
	}

	if result, err = s.handleClearSession(ctx, callRequest(nil)); err != nil {
		t.Fatalf("handleClearSession returned error: %v", err)
	}
	if success, message, _ = decodeResult(t, result); !success || message != "Session cleared successfully" {
		t.Fatalf("Unexpected clear result: success=%v %q", success, message)
	}
	if len(s.store.TableNames()) != 0 {
		t.Error("Clear must drop all registered tables")
	}

	result, err = s.handleGetSessionStatus(ctx, callRequest(nil))
	if err != nil {
		t.Fatalf("handleGetSessionStatus returned error: %v", err)
	}
	_, _, data = decodeResult(t, result)
	if data["state"] != "unauthenticated" {
		t.Errorf("Expected unauthenticated session after clear, got %v", data["state"])
	}
	if data["initialized"] != false {
		t.Error("Expected uninitialized session after clear")
	}
}

func TestHandleGetDocs(t *testing.T) {
	s := newTestServer(t, "http://unused")

	result, err := s.handleGetDocs(context.Background(), callRequest(map[string]any{
		"resource_uri": "kumo://docs/pql-guide",
	}))
	if err != nil {
		t.Fatalf("handleGetDocs returned error: %v", err)
	}
	success, message, data := decodeResult(t, result)
	if !success {
		t.Fatalf("Expected success, got %q", message)
	}
	content, _ := data["content"].(string)
	if content == "" {
		t.Error("Expected non-empty documentation content")
	}
}

func TestHandleGetDocs_Unknown(t *testing.T) {
	s := newTestServer(t, "http://unused")

	result, err := s.handleGetDocs(context.Background(), callRequest(map[string]any{
		"resource_uri": "kumo://docs/does-not-exist",
	}))
	if err != nil {
		t.Fatalf("handleGetDocs returned error: %v", err)
	}
	success, message, _ := decodeResult(t, result)
	if success {
		t.Fatal("Expected failure for unknown resource")
	}
	if !strings.Contains(message, "kumo://docs/pql-guide") {
		t.Errorf("Expected the failure to list available URIs, got %q", message)
	}
}

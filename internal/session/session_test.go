package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/zalando/go-keyring"

	"kumorfm/internal/config"
	"kumorfm/internal/graph"
	"kumorfm/internal/inspector"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.AuthTimeout = 100 * time.Millisecond
	return &cfg
}

func emptyPreview(ctx context.Context, path string, numRows int) (*inspector.TablePreview, error) {
	return &inspector.TablePreview{Columns: []string{"ID"}}, nil
}

func newTestSession(t *testing.T, cfg *config.Config) *Session {
	t.Helper()
	keyring.MockInit()
	s := New(cfg, graph.NewStoreWithPreview(emptyPreview))
	s.SetAuthorizeFunc(func(ctx context.Context, cfg *config.Config) (string, error) {
		return "", errors.New("no interactive flow in tests")
	})
	return s
}

func TestEnsureAuthenticated_FromEnvironment(t *testing.T) {
	cfg := testConfig()
	cfg.APIKey = "env-key"
	s := newTestSession(t, cfg)

	if err := s.EnsureAuthenticated(context.Background()); err != nil {
		t.Fatalf("EnsureAuthenticated failed: %v", err)
	}

	key, err := s.APIKey(context.Background())
	if err != nil || key != "env-key" {
		t.Errorf("Expected env-key, got %q (err %v)", key, err)
	}

	status := s.Status()
	if status.State != StateAuthenticated || status.KeySource != KeySourceEnvironment {
		t.Errorf("Unexpected status: %+v", status)
	}
}

func TestEnsureAuthenticated_FromKeyring(t *testing.T) {
	s := newTestSession(t, testConfig())
	if err := NewCredentialStore().StoreAPIKey("stored-key"); err != nil {
		t.Fatalf("Failed to seed credential store: %v", err)
	}

	key, err := s.APIKey(context.Background())
	if err != nil || key != "stored-key" {
		t.Fatalf("Expected stored-key, got %q (err %v)", key, err)
	}
	if s.Status().KeySource != KeySourceKeyring {
		t.Errorf("Expected keyring source, got %s", s.Status().KeySource)
	}
}

func TestEnsureAuthenticated_OAuthFallback(t *testing.T) {
	s := newTestSession(t, testConfig())
	s.SetAuthorizeFunc(func(ctx context.Context, cfg *config.Config) (string, error) {
		return "oauth-key", nil
	})

	if err := s.EnsureAuthenticated(context.Background()); err != nil {
		t.Fatalf("EnsureAuthenticated failed: %v", err)
	}
	if s.Status().KeySource != KeySourceOAuth {
		t.Errorf("Expected oauth source, got %s", s.Status().KeySource)
	}

	// The key is cached for the next process.
	cached, err := NewCredentialStore().GetAPIKey()
	if err != nil || cached != "oauth-key" {
		t.Errorf("Expected cached oauth-key, got %q (err %v)", cached, err)
	}
}

func TestEnsureAuthenticated_Failure(t *testing.T) {
	s := newTestSession(t, testConfig())

	err := s.EnsureAuthenticated(context.Background())
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("Expected AuthError, got %v", err)
	}
	if s.Status().State != StateUnauthenticated {
		t.Errorf("Expected unauthenticated state after failure, got %s", s.Status().State)
	}
}

func TestEnsureAuthenticated_Timeout(t *testing.T) {
	s := newTestSession(t, testConfig())
	s.SetAuthorizeFunc(func(ctx context.Context, cfg *config.Config) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})

	err := s.EnsureAuthenticated(context.Background())
	var timeoutErr *AuthTimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("Expected AuthTimeoutError, got %v", err)
	}
}

func TestEnsureAuthenticated_Idempotent(t *testing.T) {
	cfg := testConfig()
	cfg.APIKey = "env-key"
	s := newTestSession(t, cfg)
	calls := 0
	s.SetAuthorizeFunc(func(ctx context.Context, cfg *config.Config) (string, error) {
		calls++
		return "oauth-key", nil
	})

	for i := 0; i < 3; i++ {
		if err := s.EnsureAuthenticated(context.Background()); err != nil {
			t.Fatalf("EnsureAuthenticated failed: %v", err)
		}
	}
	if calls != 0 {
		t.Errorf("Interactive flow ran %d times despite env key", calls)
	}
}

func TestFreshSnapshot(t *testing.T) {
	store := graph.NewStoreWithPreview(emptyPreview)
	cfg := testConfig()
	cfg.APIKey = "k"
	keyring.MockInit()
	s := New(cfg, store)

	_, err := s.FreshSnapshot()
	var incomplete *graph.IncompleteGraphError
	if !errors.As(err, &incomplete) {
		t.Fatalf("Expected IncompleteGraphError without snapshot, got %v", err)
	}

	_, err = store.ApplyPatch(context.Background(), &graph.Patch{
		TablesToAdd: []graph.AddTable{{Path: "/data/T.csv", Name: "T"}},
	})
	if err != nil {
		t.Fatalf("ApplyPatch failed: %v", err)
	}
	stats := func(ctx context.Context, path, timeColumn string) (*inspector.TableStats, error) {
		return &inspector.TableStats{NumRows: 1}, nil
	}
	snapshot, err := store.Materialize(context.Background(), stats)
	if err != nil {
		t.Fatalf("Materialize failed: %v", err)
	}
	s.SetSnapshot(snapshot)

	fresh, err := s.FreshSnapshot()
	if err != nil || fresh.ID != snapshot.ID {
		t.Fatalf("Expected fresh snapshot, got %v (err %v)", fresh, err)
	}

	// A committed mutation invalidates the snapshot.
	if _, err := store.ApplyPatch(context.Background(), &graph.Patch{
		TablesToAdd: []graph.AddTable{{Path: "/data/U.csv", Name: "U"}},
	}); err != nil {
		t.Fatalf("ApplyPatch failed: %v", err)
	}
	if _, err := s.FreshSnapshot(); !errors.As(err, &incomplete) {
		t.Errorf("Expected IncompleteGraphError for stale snapshot, got %v", err)
	}
}

func TestClear(t *testing.T) {
	store := graph.NewStoreWithPreview(emptyPreview)
	cfg := testConfig()
	cfg.APIKey = "k"
	keyring.MockInit()
	s := New(cfg, store)

	if _, err := store.ApplyPatch(context.Background(), &graph.Patch{
		TablesToAdd: []graph.AddTable{{Path: "/data/T.csv", Name: "T"}},
	}); err != nil {
		t.Fatalf("ApplyPatch failed: %v", err)
	}
	if err := s.EnsureAuthenticated(context.Background()); err != nil {
		t.Fatalf("EnsureAuthenticated failed: %v", err)
	}
	s.SetSnapshot(&graph.Snapshot{ID: "snap", Version: store.Version()})

	if err := s.Clear(false); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	status := s.Status()
	if len(status.TableNames) != 0 || status.NumLinks != 0 {
		t.Errorf("Expected empty graph after clear, got %+v", status)
	}
	if status.GraphID != "" || status.ModelReady {
		t.Errorf("Expected dropped snapshot after clear, got %+v", status)
	}
	if status.State != StateUnauthenticated || status.KeySource != "" {
		t.Errorf("Expected unauthenticated session after clear, got %+v", status)
	}

	// The next privileged call re-resolves the key without an interactive flow.
	if err := s.EnsureAuthenticated(context.Background()); err != nil {
		t.Fatalf("Re-authentication after clear failed: %v", err)
	}
	if s.Status().State != StateAuthenticated {
		t.Errorf("Expected re-authenticated session, got %s", s.Status().State)
	}
}

func TestClear_Forget(t *testing.T) {
	s := newTestSession(t, testConfig())
	if err := NewCredentialStore().StoreAPIKey("stored-key"); err != nil {
		t.Fatalf("Failed to seed credential store: %v", err)
	}
	if err := s.EnsureAuthenticated(context.Background()); err != nil {
		t.Fatalf("EnsureAuthenticated failed: %v", err)
	}

	if err := s.Clear(true); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	if NewCredentialStore().HasAPIKey() {
		t.Error("Expected the stored key to be removed")
	}
	if s.Status().State != StateUnauthenticated {
		t.Errorf("Expected unauthenticated session, got %s", s.Status().State)
	}
	var authErr *AuthError
	if err := s.EnsureAuthenticated(context.Background()); !errors.As(err, &authErr) {
		t.Errorf("Expected authentication to start over and fail, got %v", err)
	}
}

func TestCredentialStore(t *testing.T) {
	keyring.MockInit()
	cs := NewCredentialStore()

	if cs.HasAPIKey() {
		t.Error("Expected empty store")
	}
	if err := cs.StoreAPIKey(""); err == nil {
		t.Error("Expected error storing empty key")
	}
	if err := cs.StoreAPIKey("secret"); err != nil {
		t.Fatalf("StoreAPIKey failed: %v", err)
	}
	key, err := cs.GetAPIKey()
	if err != nil || key != "secret" {
		t.Errorf("Expected secret, got %q (err %v)", key, err)
	}
	if err := cs.DeleteAPIKey(); err != nil {
		t.Fatalf("DeleteAPIKey failed: %v", err)
	}
	if cs.HasAPIKey() {
		t.Error("Expected key to be deleted")
	}
	// Deleting again is fine.
	if err := cs.DeleteAPIKey(); err != nil {
		t.Errorf("Second delete failed: %v", err)
	}
}

func TestStatusFields(t *testing.T) {
	s := newTestSession(t, testConfig())
	status := s.Status()
	if status.APIURL != config.DefaultAPIURL {
		t.Errorf("Unexpected API URL %q", status.APIURL)
	}
	if status.Initialized {
		t.Error("Expected uninitialized session")
	}
	if fmt.Sprint(status.State) != "unauthenticated" {
		t.Errorf("Unexpected state %s", status.State)
	}
}

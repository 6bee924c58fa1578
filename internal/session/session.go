// Package session owns the per-process server state: the credential
// lifecycle and the most recent materialized graph snapshot. Credentials are
// resolved lazily on the first privileged call, from the environment, the OS
// credential store, or an interactive OAuth flow, in that order.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/zalando/go-keyring"

	"kumorfm/internal/config"
	"kumorfm/internal/graph"
	"kumorfm/internal/logging"
)

// State is the authentication state of the session.
type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateAuthenticating  State = "authenticating"
	StateAuthenticated   State = "authenticated"
)

// Key sources, reported in the session status.
const (
	KeySourceEnvironment = "environment"
	KeySourceKeyring     = "keyring"
	KeySourceOAuth       = "oauth"
)

// Session is the single mutable session of the server process.
type Session struct {
	mu        sync.Mutex
	cfg       *config.Config
	store     *graph.Store
	creds     *CredentialStore
	authorize AuthorizeFunc

	state     State
	apiKey    string
	keySource string
	authDone  chan struct{}

	snapshot       *graph.Snapshot
	materializedAt time.Time
}

// New creates an unauthenticated session over the given graph store.
func New(cfg *config.Config, store *graph.Store) *Session {
	return &Session{
		cfg:       cfg,
		store:     store,
		creds:     NewCredentialStore(),
		authorize: AuthorizeBrowser,
		state:     StateUnauthenticated,
	}
}

// SetAuthorizeFunc replaces the interactive authorization flow.
func (s *Session) SetAuthorizeFunc(fn AuthorizeFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authorize = fn
}

// SetCredentialStore replaces the credential store.
func (s *Session) SetCredentialStore(cs *CredentialStore) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = cs
}

// APIKey resolves credentials on demand, authenticating first when needed.
// It implements the gateway's credential source.
func (s *Session) APIKey(ctx context.Context) (string, error) {
	if err := s.EnsureAuthenticated(ctx); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apiKey, nil
}

// EnsureAuthenticated resolves an API key if the session does not hold one
// yet. Sources are tried in order: environment configuration, OS credential
// store, interactive OAuth flow. The interactive flow is bounded by the
// configured auth timeout; concurrent callers wait for the flow in progress
// instead of starting their own.
func (s *Session) EnsureAuthenticated(ctx context.Context) error {
	s.mu.Lock()
	for s.state == StateAuthenticating {
		done := s.authDone
		s.mu.Unlock()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-done:
		}
		s.mu.Lock()
	}
	if s.state == StateAuthenticated {
		s.mu.Unlock()
		return nil
	}

	if s.cfg.APIKey != "" {
		s.setAuthenticatedLocked(s.cfg.APIKey, KeySourceEnvironment)
		s.mu.Unlock()
		return nil
	}
	if key, err := s.creds.GetAPIKey(); err == nil {
		s.setAuthenticatedLocked(key, KeySourceKeyring)
		s.mu.Unlock()
		return nil
	} else if err != keyring.ErrNotFound {
		logging.Warn("Credential store unavailable", "error", err)
	}

	// Interactive flow runs without the lock so status queries stay live.
	s.state = StateAuthenticating
	s.authDone = make(chan struct{})
	authorize := s.authorize
	s.mu.Unlock()
	logging.LogStateTransition("session", string(StateUnauthenticated), string(StateAuthenticating))

	authCtx, cancel := context.WithTimeout(ctx, s.cfg.AuthTimeout)
	key, err := authorize(authCtx, s.cfg)
	cancel()

	s.mu.Lock()
	close(s.authDone)
	s.authDone = nil
	if err != nil {
		s.state = StateUnauthenticated
		s.mu.Unlock()
		logging.LogStateTransition("session", string(StateAuthenticating), string(StateUnauthenticated))
		if errors.Is(err, context.DeadlineExceeded) {
			return &AuthTimeoutError{Timeout: s.cfg.AuthTimeout}
		}
		return &AuthError{Reason: err.Error()}
	}

	s.setAuthenticatedLocked(key, KeySourceOAuth)
	creds := s.creds
	s.mu.Unlock()

	// Cache for the next process; failing to cache is not fatal.
	if err := creds.StoreAPIKey(key); err != nil {
		logging.Warn("Could not cache API key in credential store", "error", err)
	}
	return nil
}

func (s *Session) setAuthenticatedLocked(key, source string) {
	prev := s.state
	s.apiKey = key
	s.keySource = source
	s.state = StateAuthenticated
	logging.LogStateTransition("session", string(prev), string(StateAuthenticated))
	logging.Info("Session authenticated", "source", source)
}

// SetSnapshot stores the latest materialized snapshot.
func (s *Session) SetSnapshot(sn *graph.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = sn
	s.materializedAt = time.Now()
}

// Snapshot returns the current materialized snapshot, or nil.
func (s *Session) Snapshot() *graph.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot
}

// FreshSnapshot returns the current snapshot only when it still matches the
// graph store version.
func (s *Session) FreshSnapshot() (*graph.Snapshot, error) {
	s.mu.Lock()
	sn := s.snapshot
	s.mu.Unlock()

	if sn == nil {
		return nil, &graph.IncompleteGraphError{Reason: "graph has not been materialized"}
	}
	if sn.Stale(s.store) {
		return nil, &graph.IncompleteGraphError{
			Reason: "graph metadata changed since materialization, materialize again",
		}
	}
	return sn, nil
}

// Status is the session view returned by the status tool.
type Status struct {
	State          State     `json:"state"`
	Initialized    bool      `json:"initialized"`
	KeySource      string    `json:"key_source,omitempty"`
	APIURL         string    `json:"api_url"`
	TableNames     []string  `json:"table_names"`
	NumLinks       int       `json:"num_links"`
	ModelReady     bool      `json:"is_rfm_model_ready"`
	GraphID        string    `json:"graph_id,omitempty"`
	MaterializedAt time.Time `json:"materialized_at,omitzero"`
}

// Status reports the current session state without mutating anything.
func (s *Session) Status() *Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := &Status{
		State:       s.state,
		Initialized: s.state == StateAuthenticated,
		KeySource:   s.keySource,
		APIURL:      s.cfg.APIURL,
		TableNames:  s.store.TableNames(),
		NumLinks:    s.store.NumLinks(),
	}
	if s.snapshot != nil {
		status.GraphID = s.snapshot.ID
		status.MaterializedAt = s.materializedAt
		status.ModelReady = !s.snapshot.Stale(s.store)
	}
	return status
}

// Clear resets the graph, drops the materialized snapshot and returns the
// session to Unauthenticated. The in-memory key is forgotten; the credential
// store entry survives unless forget is set, so the next privileged call
// re-resolves the key without an interactive flow.
func (s *Session) Clear(forget bool) error {
	s.mu.Lock()
	prev := s.state
	s.store.Reset()
	s.snapshot = nil
	s.materializedAt = time.Time{}
	s.state = StateUnauthenticated
	s.apiKey = ""
	s.keySource = ""
	creds := s.creds
	s.mu.Unlock()

	logging.LogStateTransition("session", string(prev), string(StateUnauthenticated))
	logging.Info("Session cleared", "forget", forget)

	if forget {
		if err := creds.DeleteAPIKey(); err != nil {
			return fmt.Errorf("could not remove stored API key: %w", err)
		}
	}
	return nil
}

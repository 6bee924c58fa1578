package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"kumorfm/internal/config"
	"kumorfm/internal/logging"
)

// AuthorizeFunc acquires an API key interactively. The default runs the
// browser-based authorization-code flow; tests substitute a stub.
type AuthorizeFunc func(ctx context.Context, cfg *config.Config) (string, error)

// AuthorizeBrowser runs the OAuth2 authorization-code flow with PKCE against
// the KumoRFM auth endpoints. It binds a loopback listener for the redirect,
// logs the authorization URL for the user to open, and exchanges the
// returned code for an access token.
func AuthorizeBrowser(ctx context.Context, cfg *config.Config) (string, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", fmt.Errorf("could not bind loopback listener: %w", err)
	}
	defer listener.Close()

	base := strings.TrimRight(cfg.APIURL, "/")
	oauthCfg := &oauth2.Config{
		ClientID:    cfg.OAuthClientID,
		RedirectURL: fmt.Sprintf("http://%s/callback", listener.Addr()),
		Scopes:      []string{"rfm"},
		Endpoint: oauth2.Endpoint{
			AuthURL:  base + "/oauth/authorize",
			TokenURL: base + "/oauth/token",
		},
	}

	state := uuid.NewString()
	verifier := oauth2.GenerateVerifier()
	authURL := oauthCfg.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))

	// stdout carries the MCP channel, so the URL goes to the log.
	logging.Info("Open the following URL to authorize access", "url", authURL)

	type callback struct {
		code string
		err  error
	}
	results := make(chan callback, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case q.Get("state") != state:
			http.Error(w, "state mismatch", http.StatusBadRequest)
			results <- callback{err: errors.New("authorization state mismatch")}
		case q.Get("error") != "":
			http.Error(w, q.Get("error"), http.StatusBadRequest)
			results <- callback{err: fmt.Errorf("authorization denied: %s", q.Get("error"))}
		case q.Get("code") == "":
			http.Error(w, "missing code", http.StatusBadRequest)
			results <- callback{err: errors.New("authorization response carries no code")}
		default:
			fmt.Fprintln(w, "Authorization complete. You can close this window.")
			results <- callback{code: q.Get("code")}
		}
	})

	srv := &http.Server{Handler: mux}
	go srv.Serve(listener)
	defer srv.Close()

	var code string
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case cb := <-results:
		if cb.err != nil {
			return "", cb.err
		}
		code = cb.code
	}

	token, err := oauthCfg.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return "", fmt.Errorf("token exchange failed: %w", err)
	}
	return token.AccessToken, nil
}

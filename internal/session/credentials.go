package session

import (
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	// Service name for OS credential store
	credentialService = "kumo-rfm-mcp"
	// Key under which the KumoRFM API key is stored
	apiKeyName = "api_key"
)

// CredentialStore handles secure storage and retrieval of the KumoRFM API
// key in the OS credential store (macOS Keychain, Windows Credential
// Manager, Linux Secret Service).
type CredentialStore struct {
	service string
}

// NewCredentialStore creates a credential store instance.
func NewCredentialStore() *CredentialStore {
	return &CredentialStore{service: credentialService}
}

// StoreAPIKey securely stores the API key in the OS credential store.
func (cs *CredentialStore) StoreAPIKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("API key cannot be empty")
	}
	if err := keyring.Set(cs.service, apiKeyName, key); err != nil {
		return fmt.Errorf("failed to store API key in credential store: %w", err)
	}
	return nil
}

// GetAPIKey retrieves the stored API key. A missing key is reported through
// keyring.ErrNotFound so callers can fall through to interactive auth.
func (cs *CredentialStore) GetAPIKey() (string, error) {
	key, err := keyring.Get(cs.service, apiKeyName)
	if err != nil {
		if err == keyring.ErrNotFound {
			return "", err
		}
		return "", fmt.Errorf("failed to retrieve API key from credential store: %w", err)
	}
	if strings.TrimSpace(key) == "" {
		return "", keyring.ErrNotFound
	}
	return key, nil
}

// DeleteAPIKey removes the stored API key. Deleting a key that does not
// exist is not an error.
func (cs *CredentialStore) DeleteAPIKey() error {
	err := keyring.Delete(cs.service, apiKeyName)
	if err != nil && err != keyring.ErrNotFound {
		return fmt.Errorf("failed to delete API key from credential store: %w", err)
	}
	return nil
}

// HasAPIKey checks whether an API key is stored without retrieving it.
func (cs *CredentialStore) HasAPIKey() bool {
	_, err := cs.GetAPIKey()
	return err == nil
}

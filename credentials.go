package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// CredentialStore persists the API credentials handed to the search client
type CredentialStore interface {
	Load() (*Credentials, error)
	Save(creds Credentials) error
}

// CredentialValidator checks credentials against the live API
type CredentialValidator interface {
	Validate(ctx context.Context) (bool, string)
}

// FileCredentialStore keeps credentials in a user-only JSON file
type FileCredentialStore struct {
	path string
}

// NewFileCredentialStore returns a store backed by path. An empty path uses the config directory.
func NewFileCredentialStore(path string) (*FileCredentialStore, error) {
	if path == "" {
		dir, err := configDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(dir, defaultCredsName)
	}
	return &FileCredentialStore{path: path}, nil
}

// Load returns the stored credentials, or nil if none have been saved
func (s *FileCredentialStore) Load() (*Credentials, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		slog.Debug("No stored credentials", "path", s.path)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}
	return &creds, nil
}

// Save writes the credentials with 0600 permissions
func (s *FileCredentialStore) Save(creds Credentials) error {
	creds.APIKey = strings.TrimSpace(creds.APIKey)
	creds.CSEID = strings.TrimSpace(creds.CSEID)
	if creds.APIKey == "" || creds.CSEID == "" {
		return ErrMissingCredentials
	}
	creds.Saved = time.Now().UTC()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create credentials directory: %w", err)
	}

	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}

	slog.Info("Saved credentials", "path", s.path)
	return nil
}

// validateAndSave stores the credentials only after the validator accepts them
func validateAndSave(ctx context.Context, store CredentialStore, validator CredentialValidator, creds Credentials) (bool, string) {
	ok, msg := validator.Validate(ctx)
	if !ok {
		slog.Warn("Credential validation failed", "message", msg)
		return false, msg
	}
	if err := store.Save(creds); err != nil {
		return false, err.Error()
	}
	return true, msg
}

// resolveCredentials picks credentials from config first, then the store
func resolveCredentials(config *Config, store CredentialStore) (Credentials, error) {
	creds := config.Credentials()
	if creds.APIKey != "" && creds.CSEID != "" {
		return creds, nil
	}

	if store != nil {
		stored, err := store.Load()
		if err != nil {
			slog.Warn("Failed to load stored credentials", "error", err)
		} else if stored != nil {
			if creds.APIKey == "" {
				creds.APIKey = stored.APIKey
			}
			if creds.CSEID == "" {
				creds.CSEID = stored.CSEID
			}
		}
	}

	if creds.APIKey == "" || creds.CSEID == "" {
		return Credentials{}, ErrMissingCredentials
	}
	return creds, nil
}

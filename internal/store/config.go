package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"
	"github.com/knadh/koanf/v2"

	"github.com/fclairamb/ghsync/internal/apperrors"
)

// StorageMode defines the storage mode for git operations.
type StorageMode string

const (
	// StorageModeAuto automatically detects the storage mode based on configuration.
	StorageModeAuto StorageMode = ""
	// StorageModeLocal uses local-only storage (no remote operations).
	StorageModeLocal StorageMode = "local"
	// StorageModeRemote uses remote storage (pull/push enabled).
	StorageModeRemote StorageMode = "remote"
)

// RemoteConfig holds configuration for remote git operations on the local
// mirror store.
type RemoteConfig struct {
	Storage  StorageMode // Storage mode: "local", "remote", or auto-detect (GHS_STORAGE)
	URL      string      // Remote git repository URL (GHS_GIT_URL)
	Password string      // Password/token for HTTPS auth (GHS_GIT_PASS)
	Branch   string      // Target branch (GHS_GIT_BRANCH)
	User     string      // Commit author name (GHS_GIT_USER)
	Email    string      // Commit author email (GHS_GIT_EMAIL)
	Push     *bool       // Push to remote after commits (GHS_GIT_PUSH), nil means auto-detect
}

// LoadRemoteConfig loads remote configuration from the GHS_-prefixed
// environment settings collected in k.
func LoadRemoteConfig(k *koanf.Koanf) *RemoteConfig {
	cfg := &RemoteConfig{
		Storage:  StorageMode(strings.ToLower(k.String("storage"))),
		URL:      k.String("git.url"),
		Password: k.String("git.pass"),
		Branch:   k.String("git.branch"),
		User:     k.String("git.user"),
		Email:    k.String("git.email"),
	}

	// Apply defaults
	if cfg.Branch == "" {
		cfg.Branch = "main"
	}
	if cfg.User == "" {
		cfg.User = "ghsync"
	}
	if cfg.Email == "" {
		cfg.Email = "ghsync@local"
	}

	// nil means auto-detect based on GHS_GIT_URL
	if k.Exists("git.push") {
		push := k.Bool("git.push")
		cfg.Push = &push
	}

	return cfg
}

// EffectiveStorageMode returns the effective storage mode after auto-detection.
// If Storage is set explicitly, it returns that value.
// Otherwise, it returns "remote" if URL is configured, or "local" if not.
func (c *RemoteConfig) EffectiveStorageMode() StorageMode {
	if c == nil {
		return StorageModeLocal
	}
	if c.Storage == StorageModeLocal || c.Storage == StorageModeRemote {
		return c.Storage
	}
	// Auto-detect: use remote if URL is configured
	if c.URL != "" {
		return StorageModeRemote
	}
	return StorageModeLocal
}

// IsEnabled returns true if remote operations should be used.
// This checks both the storage mode and whether a URL is configured.
func (c *RemoteConfig) IsEnabled() bool {
	if c == nil {
		return false
	}
	// If explicitly set to local, remote is disabled
	if c.Storage == StorageModeLocal {
		return false
	}
	// Remote requires a URL
	return c.URL != ""
}

// IsSSH returns true if the URL is an SSH URL.
func (c *RemoteConfig) IsSSH() bool {
	if c == nil || c.URL == "" {
		return false
	}
	return strings.HasPrefix(c.URL, "git@") || strings.HasPrefix(c.URL, "ssh://")
}

// IsPushEnabled returns true if push to remote is enabled.
// When GHS_GIT_PUSH is not explicitly set, defaults to true if GHS_GIT_URL is set.
func (c *RemoteConfig) IsPushEnabled() bool {
	if c == nil {
		return false
	}
	if c.Push != nil {
		return *c.Push
	}
	// Default: true when GHS_GIT_URL is set, false otherwise
	return c.URL != ""
}

// GetAuth returns the appropriate authentication method for the remote URL.
func (c *RemoteConfig) GetAuth() (transport.AuthMethod, error) {
	if c == nil || c.URL == "" {
		return nil, apperrors.ErrRemoteNotConfigured
	}

	if c.IsSSH() {
		auth, err := ssh.NewSSHAgentAuth("git")
		if err != nil {
			return nil, fmt.Errorf("create SSH agent auth: %w", err)
		}
		return auth, nil
	}

	// HTTPS auth
	if c.Password == "" {
		return nil, apperrors.ErrHTTPSPasswordRequired
	}

	return &http.BasicAuth{
		Username: "oauth2",
		Password: c.Password,
	}, nil
}

// TestConnection tests the connection to the remote repository.
func (c *RemoteConfig) TestConnection(ctx context.Context) error {
	if !c.IsEnabled() {
		return apperrors.ErrRemoteNotConfigured
	}

	auth, err := c.GetAuth()
	if err != nil {
		return fmt.Errorf("get auth: %w", err)
	}

	// Try to list remote references to verify connectivity
	rem := git.NewRemote(nil, &config.RemoteConfig{
		Name: "origin",
		URLs: []string{c.URL},
	})

	_, err = rem.ListContext(ctx, &git.ListOptions{
		Auth: auth,
	})
	if err != nil {
		// Empty repository is a valid connection
		if err.Error() == msgRemoteRepoEmpty {
			return nil
		}
		return fmt.Errorf("list remote: %w", err)
	}

	return nil
}

// Package auth turns the git section of the settings file into a go-git
// transport.AuthMethod.
package auth

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"

	"git.home.luguber.info/inful/tdrdiff/internal/config"
)

// Provider creates authentication for one AuthType.
type Provider interface {
	Type() config.AuthType
	ValidateConfig(cfg *config.AuthConfig) error
	CreateAuth(cfg *config.AuthConfig) (transport.AuthMethod, error)
}

// Registry maps auth types to providers.
type Registry struct {
	providers map[config.AuthType]Provider
}

// NewRegistry returns a registry with the none, ssh, token and basic providers.
func NewRegistry() *Registry {
	r := &Registry{providers: make(map[config.AuthType]Provider)}
	r.Register(noneProvider{})
	r.Register(sshProvider{})
	r.Register(tokenProvider{})
	r.Register(basicProvider{})
	return r
}

// Register adds or replaces the provider for p.Type().
func (r *Registry) Register(p Provider) { r.providers[p.Type()] = p }

// CreateAuth validates cfg and builds its AuthMethod. A nil cfg means no
// explicit credentials.
func (r *Registry) CreateAuth(cfg *config.AuthConfig) (transport.AuthMethod, error) {
	if cfg == nil {
		cfg = &config.AuthConfig{Type: config.AuthTypeNone}
	}
	p, ok := r.providers[cfg.Type]
	if !ok {
		return nil, &Error{Type: cfg.Type, Message: "unsupported authentication type"}
	}
	if err := p.ValidateConfig(cfg); err != nil {
		return nil, &Error{Type: cfg.Type, Message: "configuration validation failed", Cause: err}
	}
	am, err := p.CreateAuth(cfg)
	if err != nil {
		return nil, &Error{Type: cfg.Type, Message: "failed to create authentication", Cause: err}
	}
	return am, nil
}

var defaultRegistry = NewRegistry()

// ForRepository picks the AuthMethod for cloning url. Explicit auth settings
// win. Otherwise an ssh URL uses sshKey when given; with no key go-git falls
// back to the SSH agent, which is what the tdr GitLab setup expects.
func ForRepository(url string, gs config.GitSettings) (transport.AuthMethod, error) {
	if !gs.Auth.IsZero() {
		return defaultRegistry.CreateAuth(gs.Auth)
	}
	if gs.SSHKey != "" && isSSHURL(url) {
		return defaultRegistry.CreateAuth(&config.AuthConfig{Type: config.AuthTypeSSH, KeyPath: gs.SSHKey})
	}
	return nil, nil
}

func isSSHURL(url string) bool {
	if strings.HasPrefix(url, "ssh://") {
		return true
	}
	return !strings.Contains(url, "://") && strings.Contains(url, "@") && strings.Contains(url, ":")
}

// Error is returned when credentials cannot be built.
type Error struct {
	Type    config.AuthType
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("auth error (%s): %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("auth error (%s): %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

type noneProvider struct{}

func (noneProvider) Type() config.AuthType                                       { return config.AuthTypeNone }
func (noneProvider) ValidateConfig(*config.AuthConfig) error                     { return nil }
func (noneProvider) CreateAuth(*config.AuthConfig) (transport.AuthMethod, error) { return nil, nil }

type sshProvider struct{}

func (sshProvider) Type() config.AuthType { return config.AuthTypeSSH }

func (sshProvider) ValidateConfig(cfg *config.AuthConfig) error {
	if cfg.KeyPath == "" {
		return nil // agent
	}
	if _, err := os.Stat(cfg.KeyPath); err != nil {
		return fmt.Errorf("SSH key file %s: %w", cfg.KeyPath, err)
	}
	return nil
}

func (sshProvider) CreateAuth(cfg *config.AuthConfig) (transport.AuthMethod, error) {
	user := cfg.Username
	if user == "" {
		user = "git"
	}
	if cfg.KeyPath == "" {
		return ssh.NewSSHAgentAuth(user)
	}
	keys, err := ssh.NewPublicKeysFromFile(user, cfg.KeyPath, cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to load SSH key from %s: %w", cfg.KeyPath, err)
	}
	return keys, nil
}

type tokenProvider struct{}

func (tokenProvider) Type() config.AuthType { return config.AuthTypeToken }

func (tokenProvider) ValidateConfig(cfg *config.AuthConfig) error {
	if cfg.Token == "" {
		return fmt.Errorf("token authentication requires a token")
	}
	return nil
}

func (tokenProvider) CreateAuth(cfg *config.AuthConfig) (transport.AuthMethod, error) {
	user := cfg.Username
	if user == "" {
		user = "oauth2"
	}
	return &http.BasicAuth{Username: user, Password: cfg.Token}, nil
}

type basicProvider struct{}

func (basicProvider) Type() config.AuthType { return config.AuthTypeBasic }

func (basicProvider) ValidateConfig(cfg *config.AuthConfig) error {
	if cfg.Username == "" {
		return fmt.Errorf("basic authentication requires a username")
	}
	if cfg.Password == "" {
		return fmt.Errorf("basic authentication requires a password")
	}
	return nil
}

func (basicProvider) CreateAuth(cfg *config.AuthConfig) (transport.AuthMethod, error) {
	return &http.BasicAuth{Username: cfg.Username, Password: cfg.Password}, nil
}

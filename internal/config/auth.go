package config

import (
	"fmt"
	"os"
	"strings"
)

// AuthType selects how the go-git backend authenticates against the remote.
type AuthType string

const (
	AuthTypeNone  AuthType = "none"
	AuthTypeSSH   AuthType = "ssh"
	AuthTypeToken AuthType = "token"
	AuthTypeBasic AuthType = "basic"
)

// NormalizeAuthType maps raw (any case) to an auth type; unknown input gives "".
func NormalizeAuthType(raw string) AuthType {
	switch t := AuthType(strings.ToLower(strings.TrimSpace(raw))); t {
	case AuthTypeNone, AuthTypeSSH, AuthTypeToken, AuthTypeBasic:
		return t
	}
	return ""
}

// AuthConfig is the git.auth section of the settings file. Without it, ssh
// URLs use the SSH agent (or git.ssh_key) and https URLs are fetched
// anonymously. Secrets may be written as ${VAR} and are expanded from the
// environment, so they can live in .env instead of the settings file.
type AuthConfig struct {
	Type     AuthType `yaml:"type"`
	Username string   `yaml:"username,omitempty"`
	Password string   `yaml:"password,omitempty"`
	Token    string   `yaml:"token,omitempty"`
	KeyPath  string   `yaml:"key_path,omitempty"`
}

// IsZero reports whether no auth method is configured.
func (a *AuthConfig) IsZero() bool { return a == nil || a.Type == "" || a.Type == AuthTypeNone }

func (a *AuthConfig) normalize() error {
	if a == nil {
		return nil
	}
	t := NormalizeAuthType(string(a.Type))
	if t == "" && a.Type != "" {
		return fmt.Errorf("git.auth.type %q must be one of none, ssh, token, basic", a.Type)
	}
	a.Type = t
	a.Username = os.ExpandEnv(a.Username)
	a.Password = os.ExpandEnv(a.Password)
	a.Token = os.ExpandEnv(a.Token)
	a.KeyPath = expandPath(a.KeyPath)
	return nil
}

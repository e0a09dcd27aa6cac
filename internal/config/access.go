package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// AccessKind enumerates the ways the document repository can be reached.
type AccessKind int

const (
	AccessSSH AccessKind = iota
	AccessHTTP
	AccessKerberos
	// AccessURL carries an arbitrary repository URL supplied by the user.
	AccessURL
)

// Connection-string prefixes for the known access kinds. The category and
// document tag are appended to form the clone URL.
const (
	sshTemplate      = "ssh://git@gitlab.cern.ch:7999/tdr/"
	httpTemplate     = "https://gitlab.cern.ch/tdr/"
	kerberosTemplate = "https://:@gitlab.cern.ch:8443/tdr/"
)

// Access is a resolved --accessType value.
type Access struct {
	Kind AccessKind
	raw  string // only set for AccessURL
}

// AccessKeys lists the named access types in help-text order.
func AccessKeys() []string { return []string{"http", "ssh", "krb"} }

var scpLike = regexp.MustCompile(`^[A-Za-z0-9._-]+@[A-Za-z0-9.-]+:.+$`)

// ParseAccess maps an --accessType value onto an Access. Only the exact
// keys http, ssh and krb select a template; anything else must be an
// absolute URL (scheme and host, a file:// URL, or scp-like user@host:path).
func ParseAccess(s string) (Access, error) {
	switch s {
	case "ssh":
		return Access{Kind: AccessSSH}, nil
	case "http":
		return Access{Kind: AccessHTTP}, nil
	case "krb":
		return Access{Kind: AccessKerberos}, nil
	}
	if isRepositoryURL(s) {
		return Access{Kind: AccessURL, raw: s}, nil
	}
	return Access{}, fmt.Errorf("access type %q is neither one of %s nor a repository URL", s, strings.Join(AccessKeys(), ", "))
}

func isRepositoryURL(s string) bool {
	if s == "" || strings.ContainsAny(s, " \t\n") {
		return false
	}
	if scpLike.MatchString(s) {
		return true
	}
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" {
		return false
	}
	if u.Scheme == "file" {
		return u.Path != ""
	}
	return u.Host != ""
}

// URL returns the clone URL for a document. For AccessURL the stored URL is
// returned unchanged.
func (a Access) URL(category Category, tag string) string {
	var prefix string
	switch a.Kind {
	case AccessSSH:
		prefix = sshTemplate
	case AccessHTTP:
		prefix = httpTemplate
	case AccessKerberos:
		prefix = kerberosTemplate
	case AccessURL:
		return a.raw
	default:
		panic(fmt.Sprintf("config: unhandled access kind %d", a.Kind))
	}
	return prefix + string(category) + "/" + tag
}

// NeedsGitBinary reports whether go-git cannot serve this access kind.
// Kerberos (SPNEGO) over https is only supported by the git executable.
func (a Access) NeedsGitBinary() bool { return a.Kind == AccessKerberos }

func (a Access) String() string {
	switch a.Kind {
	case AccessSSH:
		return "ssh"
	case AccessHTTP:
		return "http"
	case AccessKerberos:
		return "krb"
	default:
		return a.raw
	}
}

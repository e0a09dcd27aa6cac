package git

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/tdrdiff/internal/command"
	"git.home.luguber.info/inful/tdrdiff/internal/config"
	derrors "git.home.luguber.info/inful/tdrdiff/internal/errors"
	"git.home.luguber.info/inful/tdrdiff/internal/retry"
)

func argv(c command.Cmd) string { return strings.Join(c.Args, " ") }

func TestCLICloneWhenMissing(t *testing.T) {
	workspace := t.TempDir()
	dir := filepath.Join(workspace, "TEST-00-001")
	fake := &command.Fake{Handler: func(c command.Cmd) (command.Result, error) {
		switch argv(c) {
		case "rev-parse HEAD":
			return command.Result{Stdout: "abc123\n"}, nil
		case "rev-parse --abbrev-ref HEAD":
			return command.Result{Stdout: "master\n"}, nil
		}
		return command.Result{}, nil
	}}
	cli := NewCLI("/usr/bin/git", fake)
	cli.Logger = testLogger()

	res, err := cli.EnsureClone(context.Background(), "https://:@gitlab.cern.ch:8443/tdr/papers/TEST-00-001", dir)
	require.NoError(t, err)
	assert.True(t, res.Cloned)
	assert.Equal(t, "abc123", res.Head)
	assert.Equal(t, "master", res.Branch)

	require.NotEmpty(t, fake.Calls)
	first := fake.Calls[0]
	assert.Equal(t, "/usr/bin/git", first.Name)
	assert.Equal(t, []string{"clone", "--recursive", "https://:@gitlab.cern.ch:8443/tdr/papers/TEST-00-001", "TEST-00-001"}, first.Args)
	assert.Equal(t, workspace, first.Dir)
}

func TestCLISyncWhenPresent(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, ".git"), 0o750))
	fake := &command.Fake{Handler: func(c command.Cmd) (command.Result, error) {
		switch argv(c) {
		case "symbolic-ref --short refs/remotes/origin/HEAD":
			return command.Result{Stdout: "origin/main\n"}, nil
		case "rev-parse HEAD":
			return command.Result{Stdout: "fff\n"}, nil
		}
		return command.Result{}, nil
	}}
	cli := NewCLI("git", fake)
	cli.Logger = testLogger()

	res, err := cli.EnsureClone(context.Background(), "ssh://example/x", dir)
	require.NoError(t, err)
	assert.False(t, res.Cloned)
	assert.Equal(t, "main", res.Branch)

	var got []string
	for _, c := range fake.Calls {
		assert.Equal(t, dir, c.Dir)
		got = append(got, argv(c))
	}
	assert.Equal(t, []string{
		"remote get-url origin",
		"fetch --tags --force origin",
		"symbolic-ref --short refs/remotes/origin/HEAD",
		"checkout --force main",
		"reset --hard origin/main",
		"submodule update --init --recursive",
		"rev-parse HEAD",
	}, got)
}

func TestCLISyncFetchFailureKeepsClone(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, ".git"), 0o750))
	fake := &command.Fake{Handler: func(c command.Cmd) (command.Result, error) {
		switch argv(c) {
		case "fetch --tags --force origin":
			return command.Result{ExitCode: 128}, &command.ExitError{Command: "git", ExitCode: 128,
				Stderr: "fatal: unable to access 'https://gitlab.cern.ch/': Could not resolve host: gitlab.cern.ch"}
		case "rev-parse HEAD":
			return command.Result{Stdout: "eee\n"}, nil
		}
		return command.Result{}, nil
	}}
	cli := NewCLI("git", fake)
	cli.Logger = testLogger()
	cli.Policy = retry.Policy{}

	res, err := cli.EnsureClone(context.Background(), "https://gitlab.cern.ch/tdr/notes/x", dir)
	require.NoError(t, err)
	assert.True(t, res.Offline)
	assert.Equal(t, "eee", res.Head)
	for _, c := range fake.Calls {
		assert.NotEqual(t, "checkout", c.Args[0])
		assert.NotEqual(t, "reset", c.Args[0])
	}
}

func TestCLIResolveFallsBackToRemoteBranch(t *testing.T) {
	fake := &command.Fake{Handler: func(c command.Cmd) (command.Result, error) {
		if argv(c) == "rev-parse --verify --quiet origin/feature^{commit}" {
			return command.Result{Stdout: "0123456789012345678901234567890123456789\n"}, nil
		}
		return command.Result{ExitCode: 1}, &command.ExitError{Command: "git", ExitCode: 1}
	}}
	cli := NewCLI("git", fake)

	h, err := cli.Resolve(context.Background(), "/ws/TEST", "feature")
	require.NoError(t, err)
	assert.Equal(t, "0123456789012345678901234567890123456789", h)

	_, err = cli.Resolve(context.Background(), "/ws/TEST", "nothing")
	require.Error(t, err)
	assert.True(t, derrors.IsCategory(err, derrors.CategoryGit))
}

func TestCLICheckoutFailure(t *testing.T) {
	fake := &command.Fake{Handler: func(c command.Cmd) (command.Result, error) {
		return command.Result{ExitCode: 1}, &command.ExitError{Command: "git", ExitCode: 1, Stderr: "error: pathspec"}
	}}
	cli := NewCLI("git", fake)
	err := cli.Checkout(context.Background(), "/ws/TEST", "abcdef")
	require.Error(t, err)
	assert.True(t, derrors.IsFatal(err))
	assert.Len(t, fake.Calls, 1)
}

func TestNewBackendSelection(t *testing.T) {
	krb, err := config.ParseAccess("krb")
	require.NoError(t, err)
	ssh, err := config.ParseAccess("ssh")
	require.NoError(t, err)

	b, err := NewBackend(BackendOptions{Access: krb, GitPath: "git", Runner: &command.Fake{}})
	require.NoError(t, err)
	assert.IsType(t, &CLI{}, b)

	b, err = NewBackend(BackendOptions{Access: ssh, URL: "https://x/y"})
	require.NoError(t, err)
	assert.IsType(t, &Client{}, b)

	b, err = NewBackend(BackendOptions{Access: ssh, Settings: config.GitSettings{Backend: config.GitBackendExec}, Runner: &command.Fake{}})
	require.NoError(t, err)
	assert.IsType(t, &CLI{}, b)

	b, err = NewBackend(BackendOptions{Access: krb, URL: "https://x/y", Settings: config.GitSettings{Backend: config.GitBackendGoGit}})
	require.NoError(t, err)
	assert.IsType(t, &Client{}, b)
}

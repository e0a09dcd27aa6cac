package toolchain

import (
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/tdrdiff/internal/command"
	"git.home.luguber.info/inful/tdrdiff/internal/config"
	derrors "git.home.luguber.info/inful/tdrdiff/internal/errors"
)

type fakeFS struct {
	path  map[string]string
	files map[string]bool
}

func (f fakeFS) lookPath(name string) (string, error) {
	if p, ok := f.path[name]; ok {
		return p, nil
	}
	return "", exec.ErrNotFound
}

func (f fakeFS) isFile(p string) bool { return f.files[filepath.Clean(p)] }

func gitRunner(out string) *command.Fake {
	return &command.Fake{Handler: func(c command.Cmd) (command.Result, error) {
		return command.Result{Stdout: out}, nil
	}}
}

func fullPath() map[string]string {
	return map[string]string{
		"git":       "/usr/bin/git",
		"perl":      "/usr/bin/perl",
		"latexdiff": "/usr/bin/latexdiff",
		"latexmk":   "/usr/bin/latexmk",
	}
}

func TestVerifyFindsEverything(t *testing.T) {
	fs := fakeFS{
		path:  fullPath(),
		files: map[string]bool{"/opt/tdr/utils/tdr": true},
	}
	runner := gitRunner("git version 2.39.2\n")
	tools, err := Verify(context.Background(), runner, Options{
		ExeDir:   "/opt/tdr/bin",
		LookPath: fs.lookPath,
		IsFile:   fs.isFile,
	})
	require.NoError(t, err)
	assert.Equal(t, Tools{
		Git:        "/usr/bin/git",
		GitVersion: "2.39.2",
		Perl:       "/usr/bin/perl",
		TDR:        "/opt/tdr/utils/tdr",
		Latexdiff:  "/usr/bin/latexdiff",
		Latexmk:    "/usr/bin/latexmk",
	}, tools)
	require.Len(t, runner.Calls, 1)
	assert.Equal(t, []string{"--version"}, runner.Calls[0].Args)
}

func TestVerifyRejectsOldGit(t *testing.T) {
	fs := fakeFS{path: fullPath()}
	_, err := Verify(context.Background(), gitRunner("git version 2.7.4"), Options{
		ExeDir: "/x", LookPath: fs.lookPath, IsFile: fs.isFile,
	})
	require.Error(t, err)
	assert.True(t, derrors.IsCategory(err, derrors.CategoryEnvironment))
	ce, ok := derrors.AsClassified(err)
	require.True(t, ok)
	assert.Equal(t, "Git version (2.7) is too low. Need at least 2.9", ce.Message)
}

func TestVerifyAcceptsMinimumGit(t *testing.T) {
	fs := fakeFS{path: fullPath(), files: map[string]bool{"/x/tdr": true}}
	tools, err := Verify(context.Background(), gitRunner("git version 2.9.0"), Options{
		ExeDir: "/x", LookPath: fs.lookPath, IsFile: fs.isFile,
	})
	require.NoError(t, err)
	assert.Equal(t, "/x/tdr", tools.TDR)
}

func TestVerifyMissingTDR(t *testing.T) {
	fs := fakeFS{path: fullPath()}
	_, err := Verify(context.Background(), gitRunner("git version 2.40.1"), Options{
		ExeDir: "/x", LookPath: fs.lookPath, IsFile: fs.isFile,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, derrors.IsFatal(err))
}

func TestVerifyLatexFallbackDir(t *testing.T) {
	path := map[string]string{"git": "/usr/bin/git", "perl": "/usr/bin/perl", "tdr": "/usr/local/bin/tdr"}
	fs := fakeFS{path: path, files: map[string]bool{
		filepath.Join(config.FallbackTeXDir, "latexdiff"): true,
		filepath.Join(config.FallbackTeXDir, "latexmk"):   true,
	}}
	tools, err := Verify(context.Background(), gitRunner("git version 2.30.0"), Options{
		Settings: config.ToolSettings{FallbackDir: config.FallbackTeXDir},
		ExeDir:   "/x", LookPath: fs.lookPath, IsFile: fs.isFile,
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(config.FallbackTeXDir, "latexmk"), tools.Latexmk)
	assert.Equal(t, filepath.Join(config.FallbackTeXDir, "latexdiff"), tools.Latexdiff)
}

func TestVerifyMissingLatexTools(t *testing.T) {
	path := map[string]string{"git": "/usr/bin/git", "perl": "/usr/bin/perl", "tdr": "/usr/local/bin/tdr", "latexdiff": "/usr/bin/latexdiff"}
	fs := fakeFS{path: path}
	_, err := Verify(context.Background(), gitRunner("git version 2.30.0"), Options{
		Settings: config.ToolSettings{FallbackDir: "/nowhere"},
		ExeDir:   "/x", LookPath: fs.lookPath, IsFile: fs.isFile,
	})
	require.Error(t, err)
	ce, ok := derrors.AsClassified(err)
	require.True(t, ok)
	assert.Equal(t, "Could not find latexdiff and latexmk", ce.Message)
}

func TestVerifyConfiguredPathMustExist(t *testing.T) {
	fs := fakeFS{path: fullPath(), files: map[string]bool{"/x/tdr": true}}
	_, err := Verify(context.Background(), gitRunner("git version 2.30.0"), Options{
		Settings: config.ToolSettings{Perl: "/custom/perl"},
		ExeDir:   "/x", LookPath: fs.lookPath, IsFile: fs.isFile,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/custom/perl")
}

func TestParseGitVersion(t *testing.T) {
	for out, want := range map[string]string{
		"git version 2.39.2\n":               "2.39.2",
		"git version 2.24.3 (Apple Git-128)": "2.24.3",
		"git version 2.45.1.windows.1":       "2.45.1",
		"git version 2.9":                    "2.9.0",
	} {
		v, err := ParseGitVersion(out)
		require.NoError(t, err, out)
		assert.Equal(t, want, v.String())
	}
	_, err := ParseGitVersion("no version here")
	assert.Error(t, err)
}

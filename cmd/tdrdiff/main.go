// Command tdrdiff builds a latexdiff PDF between two revisions of a tdr
// document.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/tdrdiff/cmd/tdrdiff/commands"
	"git.home.luguber.info/inful/tdrdiff/internal/config"
	derrors "git.home.luguber.info/inful/tdrdiff/internal/errors"
	"git.home.luguber.info/inful/tdrdiff/internal/version"
)

const description = "Generate latexdiffs for a tdr document. Requires installed versions of git, latexdiff, and latexmk."

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	// .env values must be in the environment before kong reads env tags.
	if _, err := config.LoadEnv(); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: load .env: %v\n", err)
		return 1
	}
	return execute(ctx, args, &commands.Global{Stdout: stdout, Stderr: stderr})
}

func execute(ctx context.Context, args []string, g *commands.Global) int {
	var cli commands.CLI
	parser, err := kong.New(&cli,
		kong.Name("tdrdiff"),
		kong.Description(description),
		kong.UsageOnError(),
		kong.Writers(g.Stdout, g.Stderr),
		commands.Vars(version.String()),
		kong.Bind(g),
	)
	if err != nil {
		return exitWith(g, cli.Verbosity, derrors.InternalError("invalid command line definition", err))
	}
	defer func() { _ = g.Close() }()

	kctx, err := parser.Parse(commands.NormalizeArgs(args))
	if err != nil {
		var pe *kong.ParseError
		if _, ok := derrors.AsClassified(err); !ok && errors.As(err, &pe) {
			_, _ = fmt.Fprintf(g.Stderr, "tdrdiff: error: %v\n", err)
			return 2
		}
		return exitWith(g, cli.Verbosity, err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	kctx.BindTo(ctx, (*context.Context)(nil))

	return exitWith(g, cli.Verbosity, kctx.Run())
}

func exitWith(g *commands.Global, verbosity int, err error) int {
	if err == nil {
		return 0
	}
	logger := slog.Default()
	if g.Logger != nil {
		logger = g.Logger.Logger
	}
	code := 1
	derrors.NewCLIErrorAdapter(verbosity > 1, logger).
		WithWriter(g.Stderr).
		WithExit(func(c int) { code = c }).
		HandleError(err)
	return code
}

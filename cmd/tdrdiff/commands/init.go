package commands

import (
	"fmt"

	"git.home.luguber.info/inful/tdrdiff/internal/config"
	derrors "git.home.luguber.info/inful/tdrdiff/internal/errors"
)

// InitCmd implements the 'init' command.
type InitCmd struct {
	Force bool `help:"Overwrite an existing settings file"`
}

func (i *InitCmd) Run(g *Global, root *CLI) error {
	path := root.Config
	if path == "" {
		path = config.DefaultSettingsPath()
	}
	if path == "" {
		return derrors.ConfigRequired("config")
	}
	path = config.ExpandHome(path)
	_, _ = fmt.Fprintf(g.Stdout, "Writing settings to %s\n", path)
	if err := config.Init(path, i.Force); err != nil {
		return derrors.Wrap(err, derrors.CategoryConfig, derrors.SeverityFatal, "init failed")
	}
	_, _ = fmt.Fprintln(g.Stdout, "initialized successfully")
	return nil
}

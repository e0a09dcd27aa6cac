package differ

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/tdrdiff/internal/command"
)

// ExportDirName is the directory `tdr --export` writes into, relative to the
// source tree.
const ExportDirName = "export"

// DefaultAdmin is the --admin value passed to tdr.
const DefaultAdmin = "nolineno"

// Exporter produces the flattened export of a document from a source tree.
// It returns the directory holding the export. When the export command fails
// but left output behind, both the directory and the error are returned.
type Exporter interface {
	Export(ctx context.Context, srcDir string) (string, error)
}

// TDRExporter runs `perl tdr --export --admin=<admin> b <tag>`.
type TDRExporter struct {
	Perl   string
	TDR    string
	Tag    string
	Admin  string
	Runner command.Runner
}

// Export removes any stale export directory in srcDir, then runs tdr there.
func (e TDRExporter) Export(ctx context.Context, srcDir string) (string, error) {
	out := filepath.Join(srcDir, ExportDirName)
	if err := os.RemoveAll(out); err != nil {
		return "", fmt.Errorf("remove stale export: %w", err)
	}
	admin := e.Admin
	if admin == "" {
		admin = DefaultAdmin
	}
	_, err := e.Runner.Run(ctx, command.Cmd{
		Name: e.Perl,
		Args: []string{e.TDR, "--export", "--admin=" + admin, "b", e.Tag},
		Dir:  srcDir,
	})
	if _, statErr := os.Stat(out); statErr != nil {
		if err == nil {
			err = fmt.Errorf("tdr produced no %s directory: %w", ExportDirName, statErr)
		}
		return "", err
	}
	return out, err
}

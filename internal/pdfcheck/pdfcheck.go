// Package pdfcheck sanity-checks the diff PDF before it is delivered.
// latexmk runs with -f, so a PDF can exist and still be truncated.
package pdfcheck

import (
	"fmt"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Info summarises a checked PDF.
type Info struct {
	Path  string
	Pages int
}

var disableConfigDir sync.Once

func configuration() *model.Configuration {
	// pdfcpu otherwise creates its own config directory under $HOME.
	disableConfigDir.Do(api.DisableConfigDir)
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	return cfg
}

// Inspect validates path in relaxed mode and counts its pages.
func Inspect(path string) (Info, error) {
	cfg := configuration()
	if err := api.ValidateFile(path, cfg); err != nil {
		return Info{Path: path}, fmt.Errorf("invalid PDF %s: %w", path, err)
	}
	pages, err := api.PageCountFile(path)
	if err != nil {
		return Info{Path: path}, fmt.Errorf("count pages of %s: %w", path, err)
	}
	if pages == 0 {
		return Info{Path: path}, fmt.Errorf("PDF %s has no pages", path)
	}
	return Info{Path: path, Pages: pages}, nil
}

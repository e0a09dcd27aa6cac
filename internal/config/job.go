package config

import (
	"fmt"
	"strings"

	derrors "git.home.luguber.info/inful/tdrdiff/internal/errors"
)

// Category selects the repository subpath a document lives under.
type Category string

const (
	CategoryNotes  Category = "notes"
	CategoryPapers Category = "papers"
)

// CurrentTree is the --revBase value meaning "use the working tree as it is".
const CurrentTree = "."

// Revision defaults.
const (
	DefaultRevBase = "HEAD"
	DefaultRevDiff = "HEAD~1"
)

// DefaultLogFile is used when --logfile is given without a value.
const DefaultLogFile = "differLog.txt"

// Job describes one diff run. It is immutable once returned by NewJob.
type Job struct {
	Tag              string
	Category         Category
	RevBase          string
	RevDiff          string
	Access           Access
	OutFile          string
	LogFile          string
	Verbosity        int
	PlotsFromRevBase bool
}

// JobOptions holds the raw invocation parameters. Empty fields take defaults.
type JobOptions struct {
	Tag              string
	Category         string
	RevBase          string
	RevDiff          string
	AccessType       string
	OutFile          string
	LogFile          string
	Verbosity        int
	PlotsFromRevBase bool
}

// NewJob validates opts, applies defaults and resolves the access type.
func NewJob(opts JobOptions) (Job, error) {
	tag := strings.TrimSpace(opts.Tag)
	if tag == "" {
		return Job{}, derrors.ConfigRequired("tag")
	}
	if strings.ContainsAny(tag, `/\`) || tag == "." || tag == ".." {
		return Job{}, derrors.ValidationFailed("tag", fmt.Sprintf("%q is not a document tag", tag))
	}

	category := CategoryPapers
	if opts.Category != "" {
		c, err := ParseCategory(opts.Category)
		if err != nil {
			return Job{}, err
		}
		category = c
	}

	accessType := opts.AccessType
	if accessType == "" {
		accessType = "ssh"
	}
	access, err := ParseAccess(accessType)
	if err != nil {
		return Job{}, derrors.Wrap(err, derrors.CategoryConfig, derrors.SeverityFatal, "invalid access type").
			WithContext("access_type", accessType)
	}

	if opts.Verbosity < 0 {
		return Job{}, derrors.ValidationFailed("verbosity", "must not be negative")
	}

	job := Job{
		Tag:              tag,
		Category:         category,
		RevBase:          valueOr(strings.TrimSpace(opts.RevBase), DefaultRevBase),
		RevDiff:          valueOr(strings.TrimSpace(opts.RevDiff), DefaultRevDiff),
		Access:           access,
		OutFile:          opts.OutFile,
		LogFile:          opts.LogFile,
		Verbosity:        opts.Verbosity,
		PlotsFromRevBase: opts.PlotsFromRevBase,
	}
	if job.RevDiff == CurrentTree {
		return Job{}, derrors.ValidationFailed("revDiff", "only the base revision may be the current working tree")
	}
	if job.URL() == "" {
		return Job{}, derrors.ValidationFailed("accessType", "resolves to an empty repository URL")
	}
	return job, nil
}

// ParseCategory accepts "notes" or "papers".
func ParseCategory(s string) (Category, error) {
	switch Category(strings.ToLower(strings.TrimSpace(s))) {
	case CategoryNotes:
		return CategoryNotes, nil
	case CategoryPapers:
		return CategoryPapers, nil
	}
	return "", derrors.ValidationFailed("path", fmt.Sprintf("%q is not one of notes, papers", s))
}

// URL is the repository clone URL.
func (j Job) URL() string { return j.Access.URL(j.Category, j.Tag) }

// BaseIsCurrent reports whether the base revision is the working-tree sentinel.
func (j Job) BaseIsCurrent() bool { return j.RevBase == CurrentTree }

// MainFile is the exported main source file name inside an export directory.
func (j Job) MainFile() string { return j.Tag + "_temp.tex" }

// DiffSource is the generated latexdiff output file name.
func (j Job) DiffSource() string { return j.Tag + "_diff.tex" }

// DiffPDF is the PDF latexmk produces from DiffSource.
func (j Job) DiffPDF() string { return j.Tag + "_diff.pdf" }

func valueOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

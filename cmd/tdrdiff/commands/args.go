package commands

import (
	"strings"

	"git.home.luguber.info/inful/tdrdiff/internal/config"
)

// NormalizeArgs gives -l/--logfile an optional value: when the flag is last
// or followed by another flag it becomes "-l differLog.txt". A following
// non-flag word is taken as the file name.
func NormalizeArgs(args []string) []string {
	out := make([]string, 0, len(args)+1)
	for i, a := range args {
		out = append(out, a)
		if a == "--" {
			out = append(out, args[i+1:]...)
			break
		}
		if a != "-l" && a != "--logfile" {
			continue
		}
		if i+1 == len(args) || strings.HasPrefix(args[i+1], "-") {
			out = append(out, config.DefaultLogFile)
		}
	}
	return out
}

// Package logging builds the slog logger used by tdrdiff: a stderr text
// handler whose level follows the -v counter, an optional DEBUG log file
// appended under $HOME, and run-scoped attributes carried on the context.
package logging

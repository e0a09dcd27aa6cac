package command

import (
	"context"
	"io"
	"sync"
)

// Fake is a Runner that records invocations and answers them from Handler.
// A nil Handler succeeds with empty output.
type Fake struct {
	mu      sync.Mutex
	Calls   []Cmd
	Handler func(c Cmd) (Result, error)
}

func (f *Fake) Run(ctx context.Context, c Cmd) (Result, error) {
	f.mu.Lock()
	f.Calls = append(f.Calls, c)
	h := f.Handler
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Result{ExitCode: -1}, err
	}
	if h == nil {
		return Result{}, nil
	}
	res, err := h(c)
	if c.Stdout != nil && res.Stdout != "" {
		if _, werr := io.WriteString(c.Stdout, res.Stdout); werr != nil && err == nil {
			err = werr
		}
		res.Stdout = ""
	}
	return res, err
}

// Names returns the program names invoked so far, in order.
func (f *Fake) Names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, len(f.Calls))
	for i, c := range f.Calls {
		names[i] = c.Name
	}
	return names
}

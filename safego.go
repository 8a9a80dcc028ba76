package descry

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// goSafe runs fn in an errgroup goroutine. A panic is reported on stderr and
// returned as an error instead of crashing the process.
func goSafe(group *errgroup.Group, name string, fn func() error) {
	if group == nil || fn == nil {
		return
	}
	group.Go(func() error {
		return callSafe(name, fn)
	})
}

// callSafe calls fn and converts a panic into an error. The stack goes to
// stderr rather than the logger since the panic may come from the logger.
func callSafe(name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			_, _ = fmt.Fprintf(os.Stderr, "WARN: %s panicked: %v\n%s\n", name, r, debug.Stack())
			err = errors.Errorf("%s panicked: %v", name, r)
		}
	}()
	return fn()
}

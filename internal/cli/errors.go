package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Process exit codes.
const (
	ExitCodeSuccess = 0
	ExitCodeFailure = 1
	ExitCodeUsage   = 2
)

// ExitError carries the exit code a command wants the process to end with.
// Printed is set when the command already reported the failure itself.
type ExitError struct {
	Code    int
	Err     error
	Printed bool
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// Exitf builds an ExitError with a formatted message.
func Exitf(code int, format string, args ...any) error {
	return &ExitError{Code: code, Err: fmt.Errorf(format, args...)}
}

func usageError(cmd *cobra.Command, message string) error {
	fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n\n%s", message, cmd.UsageString())
	return &ExitError{Code: ExitCodeUsage, Err: fmt.Errorf("%s", message), Printed: true}
}

package runner

import (
	"github.com/tigerroll/ddbimport/pkg/batch/support/util/exception"
)

// Process exit codes.
const (
	ExitOK           = 0
	ExitFailed       = 1
	ExitPrecondition = 2
)

// ExitCode maps the error of a run onto a process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case exception.IsPrecondition(err):
		return ExitPrecondition
	default:
		return ExitFailed
	}
}

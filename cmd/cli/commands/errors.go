package commands

import (
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/jakechorley/volunteer-portal/pkg/apperr"
	"github.com/jakechorley/volunteer-portal/pkg/core/services"
)

var (
	errorColor = color.New(color.FgRed, color.Bold)
	hintColor  = color.New(color.FgYellow)
	okColor    = color.New(color.FgGreen)
	dimColor   = color.New(color.Faint)
)

// ReportError prints err as a user notice and returns the process exit code
func ReportError(w io.Writer, err error) int {
	if err == nil {
		return 0
	}
	if errors.Is(err, services.ErrDeclined) {
		fmt.Fprintln(w, "Cancelled")
		return 0
	}

	e, ok := apperr.As(err)
	if !ok {
		// cobra usage errors and other plain errors
		errorColor.Fprintf(w, "✗ %s\n", err.Error())
		return apperr.ExitGeneral
	}

	errorColor.Fprintf(w, "✗ %s\n", apperr.Notice(err))
	if e.Hint != "" {
		hintColor.Fprintf(w, "  %s\n", e.Hint)
	}
	return e.ExitCode()
}

func success(w io.Writer, format string, args ...any) {
	okColor.Fprintf(w, "\n✓ "+format+"\n", args...)
}

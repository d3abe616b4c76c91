package commands

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	failColor = color.New(color.FgRed)
)

func printSuccess(w io.Writer, format string, args ...interface{}) {
	okColor.Fprintf(w, "✓ %s\n", fmt.Sprintf(format, args...))
}

func printWarning(w io.Writer, format string, args ...interface{}) {
	warnColor.Fprintf(w, "⚠ %s\n", fmt.Sprintf(format, args...))
}

func printError(w io.Writer, format string, args ...interface{}) {
	failColor.Fprintf(w, "✗ %s\n", fmt.Sprintf(format, args...))
}

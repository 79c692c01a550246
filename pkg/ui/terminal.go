package ui

import "fmt"

// ASCII logo for the application
const ASCIILogo = `
    ██╗  ██╗███████╗ ██████╗██████╗  █████╗ ██████╗ ███████╗██████╗
    ╚██╗██╔╝██╔════╝██╔════╝██╔══██╗██╔══██╗██╔══██╗██╔════╝██╔══██╗
     ╚███╔╝ ███████╗██║     ██████╔╝███████║██████╔╝█████╗  ██████╔╝
     ██╔██╗ ╚════██║██║     ██╔══██╗██╔══██║██╔═══╝ ██╔══╝  ██╔══██╗
    ██╔╝ ██╗███████║╚██████╗██║  ██║██║  ██║██║     ███████╗██║  ██║
    ╚═╝  ╚═╝╚══════╝ ╚═════╝╚═╝  ╚═╝╚═╝  ╚═╝╚═╝     ╚══════╝╚═╝  ╚═╝
        NETRUNNER EDITION - TIMELINE EXTRACTION UTILITY v1.0
`

// Output mode switches set from the command line.
var (
	quietMode    bool
	progressOnly bool
	colorEnabled = true
)

// SetQuietMode suppresses everything except errors.
func SetQuietMode(enabled bool) {
	quietMode = enabled
}

// SetProgressOnlyMode suppresses decorative output but keeps the progress
// line and errors.
func SetProgressOnlyMode(enabled bool) {
	progressOnly = enabled
}

// SetColorEnabled toggles ANSI color codes on all output helpers.
func SetColorEnabled(enabled bool) {
	colorEnabled = enabled
}

// Quiet reports whether quiet mode is active.
func Quiet() bool {
	return quietMode
}

// ProgressOnly reports whether progress-only mode is active.
func ProgressOnly() bool {
	return progressOnly
}

// Color functions for terminal output
var (
	Cyan    = colorize("\033[36m%s\033[0m")
	Yellow  = colorize("\033[33m%s\033[0m")
	Red     = colorize("\033[31m%s\033[0m")
	Green   = colorize("\033[32m%s\033[0m")
	Magenta = colorize("\033[35m%s\033[0m")
	Dim     = colorize("\033[2m%s\033[0m")
)

// colorize returns a function that wraps text with ANSI color codes
func colorize(colorString string) func(string) string {
	return func(text string) string {
		if !colorEnabled {
			return text
		}
		return fmt.Sprintf(colorString, text)
	}
}

// PrintLogo prints the ASCII logo with color
func PrintLogo() {
	if quietMode || progressOnly {
		return
	}
	fmt.Print(Cyan(ASCIILogo))
}

// PrintError prints an error message in red
func PrintError(msg string, args ...interface{}) {
	if len(args) > 0 {
		fmt.Println(Red(msg + ": " + fmt.Sprintf("%v", args[0])))
	} else {
		fmt.Println(Red(msg))
	}
}

// PrintSuccess prints a success message in green
func PrintSuccess(msg string) {
	if quietMode {
		return
	}
	fmt.Println(Green(msg))
}

// PrintInfo prints an info message in cyan
func PrintInfo(label string, value string) {
	if quietMode || progressOnly {
		return
	}
	fmt.Printf("%s: %s\n", Cyan(label), Yellow(value))
}

// PrintWarning prints a warning message in yellow
func PrintWarning(msg string, args ...interface{}) {
	if quietMode {
		return
	}
	if len(args) > 0 {
		fmt.Println(Yellow(msg + ": " + fmt.Sprintf("%v", args[0])))
	} else {
		fmt.Println(Yellow(msg))
	}
}

// PrintHighlight prints a highlighted message in magenta
func PrintHighlight(msg string) {
	if quietMode || progressOnly {
		return
	}
	fmt.Println(Magenta(msg))
}

package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/toyz/loom/internal/lint"
	"github.com/toyz/loom/internal/logging"
	"github.com/toyz/loom/internal/utils"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one command and returns the process exit code
func run(args []string, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("loom", flag.ContinueOnError)
	flags.SetOutput(stderr)

	var (
		verboseFlag = flags.Bool("verbose", false, "Enable verbose output and detailed error reporting")
		quietFlag   = flags.Bool("quiet", false, "Only show errors and final results")
		helpFlag    = flags.Bool("help", false, "Show help information")
	)

	flags.Usage = func() {
		fmt.Fprintf(stderr, "Usage: loom [options] <command> <directory-paths...>\n\n")
		fmt.Fprintf(stderr, "Loom declaration checker\n")
		fmt.Fprintf(stderr, "Scans Go files for loom.Component declarations and validates their //loom:: annotations.\n\n")
		fmt.Fprintf(stderr, "Commands:\n")
		fmt.Fprintf(stderr, "  lint               Report malformed annotations and conflicting routes\n")
		fmt.Fprintf(stderr, "  routes             Print the route table the application would compile\n")
		fmt.Fprintf(stderr, "\nOptions:\n")
		flags.PrintDefaults()
		fmt.Fprintf(stderr, "\nDirectory Patterns:\n")
		fmt.Fprintf(stderr, "  ./...              Scan current directory and all subdirectories recursively\n")
		fmt.Fprintf(stderr, "  ./internal/...     Scan internal directory and all its subdirectories\n")
		fmt.Fprintf(stderr, "  ./pkg/controllers  Scan only the specific directory (no recursion)\n")
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  loom lint ./...\n")
		fmt.Fprintf(stderr, "  loom --verbose routes ./examples/blog\n")
	}

	if err := flags.Parse(args); err != nil {
		return 2
	}
	if *helpFlag {
		flags.Usage()
		return 0
	}

	rest := flags.Args()
	if len(rest) == 0 {
		fmt.Fprintf(stderr, "Error: a command is required\n\n")
		flags.Usage()
		return 1
	}
	command, patterns := rest[0], rest[1:]
	if command != "lint" && command != "routes" {
		fmt.Fprintf(stderr, "Error: unknown command %q\n\n", command)
		flags.Usage()
		return 1
	}
	if len(patterns) == 0 {
		patterns = []string{"./..."}
	}

	var diagnostics *utils.DiagnosticSystem
	switch {
	case *quietFlag:
		diagnostics = utils.NewQuietDiagnostics()
	case *verboseFlag:
		diagnostics = utils.NewVerboseDiagnostics()
	default:
		diagnostics = utils.NewDiagnosticSystem(utils.DiagnosticInfo)
	}
	diagnostics.SetOutput(stdout, stderr)

	logger := logging.Discard()
	if *verboseFlag {
		logger = logrus.New()
		logger.SetOutput(stderr)
		logger.SetLevel(logrus.DebugLevel)
	}

	diagnostics.Section("Loom " + command)
	diagnostics.Verbose("Patterns: %s", strings.Join(patterns, ", "))

	report, err := lint.Run(logger, patterns...)
	if err != nil {
		diagnostics.Error("Scan failed: %v", err)
		return 1
	}
	if report.Module != "" {
		diagnostics.Verbose("Module: %s", report.Module)
	}

	for _, finding := range report.Findings {
		if finding.Severity == lint.SeverityError {
			diagnostics.Error("%s", finding)
		} else {
			diagnostics.Warn("%s", finding)
		}
	}

	if command == "routes" {
		printRoutes(diagnostics, report)
	}

	diagnostics.Summary("Scan complete", map[string]interface{}{
		"Files scanned": report.Files,
		"Declarations":  report.Declarations,
		"Routes":        len(report.Routes),
		"Errors":        report.Errors(),
		"Warnings":      report.Warnings(),
	})

	if report.Errors() > 0 {
		return 1
	}
	diagnostics.Success("No problems found")
	return 0
}

func printRoutes(diagnostics *utils.DiagnosticSystem, report *lint.Report) {
	diagnostics.Subsection("Routes")
	if len(report.Routes) == 0 {
		diagnostics.List("none")
		return
	}

	rows := make([][]string, 0, len(report.Routes))
	for _, route := range report.Routes {
		rows = append(rows, []string{
			route.Verb,
			route.Template,
			route.Kind.String(),
			route.Handler,
			fmt.Sprintf("%s:%d", route.Pos.Filename, route.Pos.Line),
		})
	}
	diagnostics.Table([]string{"VERB", "TEMPLATE", "KIND", "HANDLER", "DECLARED"}, rows)
}
